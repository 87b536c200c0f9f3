package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gw/kraken-feed/internal/flush"
	"github.com/gw/kraken-feed/internal/model"
)

const jsonlRecordSize = 256

// wireL2/wireL3 mirror the persisted JSONL shapes from §6 exactly: L2
// levels serialize as [price, qty] pairs, L3 orders as objects with event
// omitted on snapshots.
type wireL2Envelope struct {
	Timestamp string       `json:"timestamp"`
	Channel   string       `json:"channel"`
	Type      string       `json:"type"`
	Data      wireL2Data   `json:"data"`
}

type wireL2Data struct {
	Symbol   string      `json:"symbol"`
	Bids     [][2]float64 `json:"bids"`
	Asks     [][2]float64 `json:"asks"`
	Checksum uint32      `json:"checksum"`
}

type wireL3Envelope struct {
	Timestamp string     `json:"timestamp"`
	Channel   string     `json:"channel"`
	Type      string     `json:"type"`
	Data      wireL3Data `json:"data"`
}

type wireL3Data struct {
	Symbol   string          `json:"symbol"`
	Bids     []wireL3Order   `json:"bids"`
	Asks     []wireL3Order   `json:"asks"`
	Checksum uint32          `json:"checksum"`
}

type wireL3Order struct {
	Event     string  `json:"event,omitempty"`
	OrderID   string  `json:"order_id"`
	Price     float64 `json:"limit_price"`
	Qty       float64 `json:"order_qty"`
	Timestamp string  `json:"timestamp"`
}

// JSONLWriter persists already-serialized JSON lines. L2Writer/L3Writer
// wrap it with the channel-specific marshaling logic above so both share
// one flush/segment engine implementation, matching §4.3's "both variants
// plug into C2 via the capability above."
type JSONLWriter struct {
	mu     sync.Mutex
	buffer [][]byte

	file   *os.File
	engine *flush.Engine

	OnError func(error)
}

func newJSONLWriter(cfg flush.Config) (*JSONLWriter, error) {
	w := &JSONLWriter{}
	w.engine = flush.New(cfg, w)
	if cfg.SegmentMode == flush.SegmentNone {
		if err := w.PerformSegmentTransition(cfg.BaseFilename); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *JSONLWriter) appendLine(line []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, line)
	if err := w.engine.CheckAndFlush(time.Now()); err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return err
	}
	return nil
}

func (w *JSONLWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buffer) == 0 {
		return nil
	}
	return w.PerformFlush()
}

func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

func (w *JSONLWriter) Stats() (flushCount, segmentCount int, currentFile string) {
	return w.engine.FlushCount(), w.engine.SegmentCount(), w.engine.CurrentFilename()
}

// --- flush.SegmentedWriter ---

func (w *JSONLWriter) BufferLen() int    { return len(w.buffer) }
func (w *JSONLWriter) RecordSize() int   { return jsonlRecordSize }
func (w *JSONLWriter) Extension() string { return ".jsonl" }

func (w *JSONLWriter) PerformFlush() error {
	if w.file == nil {
		return fmt.Errorf("jsonl writer: no segment file open")
	}
	for _, line := range w.buffer {
		if _, err := w.file.Write(line); err != nil {
			return fmt.Errorf("jsonl writer: write: %w", err)
		}
	}
	w.buffer = w.buffer[:0]
	return nil
}

// PerformSegmentTransition opens path in truncate mode — never append.
// The teacher's JSONL writer opens with O_APPEND on every rotation; §9
// names this as a known bug not to be replicated.
func (w *JSONLWriter) PerformSegmentTransition(path string) error {
	if w.file != nil {
		w.file.Close()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("jsonl writer: open segment: %w", err)
	}
	w.file = f
	return nil
}

func (w *JSONLWriter) OnSegmentInitialized() {}

// L2Writer marshals OrderBookRecord into the §6 wire shape and appends.
type L2Writer struct{ *JSONLWriter }

func NewL2Writer(cfg flush.Config) (*L2Writer, error) {
	w, err := newJSONLWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &L2Writer{w}, nil
}

func (w *L2Writer) Append(r model.OrderBookRecord) error {
	env := wireL2Envelope{
		Timestamp: r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		Channel:   "book",
		Type:      string(r.Kind),
		Data: wireL2Data{
			Symbol:   r.Symbol,
			Bids:     toPairs(r.Bids),
			Asks:     toPairs(r.Asks),
			Checksum: r.Checksum,
		},
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("l2 writer: marshal: %w", err)
	}
	b = append(b, '\n')
	return w.appendLine(b)
}

func toPairs(levels []model.PriceLevel) [][2]float64 {
	out := make([][2]float64, len(levels))
	for i, l := range levels {
		out[i] = [2]float64{l.Price, l.Qty}
	}
	return out
}

// L3Writer marshals Level3Record into the §6 wire shape and appends.
type L3Writer struct{ *JSONLWriter }

func NewL3Writer(cfg flush.Config) (*L3Writer, error) {
	w, err := newJSONLWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &L3Writer{w}, nil
}

func (w *L3Writer) Append(r model.Level3Record) error {
	env := wireL3Envelope{
		Timestamp: r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		Channel:   "level3",
		Type:      string(r.Kind),
		Data: wireL3Data{
			Symbol:   r.Symbol,
			Bids:     toWireOrders(r.Bids),
			Asks:     toWireOrders(r.Asks),
			Checksum: r.Checksum,
		},
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("l3 writer: marshal: %w", err)
	}
	b = append(b, '\n')
	return w.appendLine(b)
}

func toWireOrders(orders []model.Level3Order) []wireL3Order {
	out := make([]wireL3Order, len(orders))
	for i, o := range orders {
		out[i] = wireL3Order{
			Event:     string(o.Event),
			OrderID:   o.OrderID,
			Price:     o.Price,
			Qty:       o.Qty,
			Timestamp: o.Timestamp.UTC().Format(time.RFC3339),
		}
	}
	return out
}
