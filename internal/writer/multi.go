package writer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gw/kraken-feed/internal/flush"
	"github.com/gw/kraken-feed/internal/model"
)

// perSymbolFilename renders `<base-without-ext>_<symbol-with-/-replaced-by-_>.<ext>`
// per §6's per-symbol multi-file naming rule. Segment suffixing is then
// applied on top by each child writer's own flush.Engine.
func perSymbolFilename(base, symbol string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	safeSymbol := strings.ReplaceAll(symbol, "/", "_")
	return fmt.Sprintf("%s_%s%s", stem, safeSymbol, ext)
}

// MultiCSVWriter opens one CSVWriter per symbol on first use, each with an
// independent flush/segment engine so per-symbol rotation and buffering
// are independent, per §4.3.
type MultiCSVWriter struct {
	mu      sync.Mutex
	baseCfg flush.Config
	byKey   map[string]*CSVWriter
}

func NewMultiCSVWriter(baseCfg flush.Config) *MultiCSVWriter {
	return &MultiCSVWriter{baseCfg: baseCfg, byKey: make(map[string]*CSVWriter)}
}

func (m *MultiCSVWriter) Append(r model.TickerRecord) error {
	m.mu.Lock()
	w, ok := m.byKey[r.Symbol]
	if !ok {
		cfg := m.baseCfg
		cfg.BaseFilename = perSymbolFilename(m.baseCfg.BaseFilename, r.Symbol)
		var err error
		w, err = NewCSVWriter(cfg)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("multi csv writer: open %s: %w", r.Symbol, err)
		}
		m.byKey[r.Symbol] = w
	}
	m.mu.Unlock()
	return w.Append(r)
}

func (m *MultiCSVWriter) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, w := range m.byKey {
		if err := w.Flush(); err != nil {
			return fmt.Errorf("multi csv writer: flush %s: %w", sym, err)
		}
	}
	return nil
}

func (m *MultiCSVWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.byKey {
		w.Close()
	}
	return nil
}

// MultiL2Writer is the per-symbol variant of L2Writer.
type MultiL2Writer struct {
	mu      sync.Mutex
	baseCfg flush.Config
	byKey   map[string]*L2Writer
}

func NewMultiL2Writer(baseCfg flush.Config) *MultiL2Writer {
	return &MultiL2Writer{baseCfg: baseCfg, byKey: make(map[string]*L2Writer)}
}

func (m *MultiL2Writer) Append(r model.OrderBookRecord) error {
	m.mu.Lock()
	w, ok := m.byKey[r.Symbol]
	if !ok {
		cfg := m.baseCfg
		cfg.BaseFilename = perSymbolFilename(m.baseCfg.BaseFilename, r.Symbol)
		var err error
		w, err = NewL2Writer(cfg)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("multi l2 writer: open %s: %w", r.Symbol, err)
		}
		m.byKey[r.Symbol] = w
	}
	m.mu.Unlock()
	return w.Append(r)
}

func (m *MultiL2Writer) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, w := range m.byKey {
		if err := w.Flush(); err != nil {
			return fmt.Errorf("multi l2 writer: flush %s: %w", sym, err)
		}
	}
	return nil
}

func (m *MultiL2Writer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.byKey {
		w.Close()
	}
	return nil
}

// MultiL3Writer is the per-symbol variant of L3Writer.
type MultiL3Writer struct {
	mu      sync.Mutex
	baseCfg flush.Config
	byKey   map[string]*L3Writer
}

func NewMultiL3Writer(baseCfg flush.Config) *MultiL3Writer {
	return &MultiL3Writer{baseCfg: baseCfg, byKey: make(map[string]*L3Writer)}
}

func (m *MultiL3Writer) Append(r model.Level3Record) error {
	m.mu.Lock()
	w, ok := m.byKey[r.Symbol]
	if !ok {
		cfg := m.baseCfg
		cfg.BaseFilename = perSymbolFilename(m.baseCfg.BaseFilename, r.Symbol)
		var err error
		w, err = NewL3Writer(cfg)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("multi l3 writer: open %s: %w", r.Symbol, err)
		}
		m.byKey[r.Symbol] = w
	}
	m.mu.Unlock()
	return w.Append(r)
}

func (m *MultiL3Writer) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for sym, w := range m.byKey {
		if err := w.Flush(); err != nil {
			return fmt.Errorf("multi l3 writer: flush %s: %w", sym, err)
		}
	}
	return nil
}

func (m *MultiL3Writer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.byKey {
		w.Close()
	}
	return nil
}
