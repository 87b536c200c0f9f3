package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/gw/kraken-feed/internal/flush"
	"github.com/gw/kraken-feed/internal/model"
)

// csvRecordSize is the compile-time per-record size estimate the flush
// engine uses for its memory-threshold trigger (§5: "Record size is a
// compile-time constant per record type").
const csvRecordSize = 160

var csvHeader = []string{
	"timestamp", "pair", "type", "bid", "bid_qty", "ask", "ask_qty",
	"last", "volume", "vwap", "low", "high", "change", "change_pct",
}

// CSVWriter persists TickerRecord (L1) values as CSV, one row per record,
// a header row written once per segment. Grounded on the teacher's
// collector.Writer, generalized from an always-JSONL/always-daily writer
// into one that plugs into the general flush.Engine.
type CSVWriter struct {
	mu     sync.Mutex
	buffer []model.TickerRecord

	file          *os.File
	csvw          *csv.Writer
	headerWritten bool

	engine *flush.Engine

	// OnError is invoked (while the writer's own lock is held) for
	// writer-kind errors the engine surfaces, per §7's "writer" error kind.
	OnError func(error)
}

// NewCSVWriter constructs a CSVWriter governed by cfg. When segmentation
// is disabled the single output file is opened immediately (truncate
// mode); otherwise the first segment file is opened by the engine on the
// first CheckAndFlush that observes a new segment key.
func NewCSVWriter(cfg flush.Config) (*CSVWriter, error) {
	w := &CSVWriter{}
	w.engine = flush.New(cfg, w)
	if cfg.SegmentMode == flush.SegmentNone {
		if err := w.PerformSegmentTransition(cfg.BaseFilename); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Append adds r to the buffer and runs the flush/segment check.
func (w *CSVWriter) Append(r model.TickerRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buffer = append(w.buffer, r)
	if err := w.engine.CheckAndFlush(time.Now()); err != nil {
		if w.OnError != nil {
			w.OnError(err)
		}
		return err
	}
	return nil
}

// Flush forces an immediate drain regardless of the configured triggers —
// the Ingestion Client's flush() operation.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buffer) == 0 {
		return nil
	}
	return w.PerformFlush()
}

func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		if w.csvw != nil {
			w.csvw.Flush()
		}
		return w.file.Close()
	}
	return nil
}

func (w *CSVWriter) Stats() (flushCount, segmentCount int, currentFile string) {
	return w.engine.FlushCount(), w.engine.SegmentCount(), w.engine.CurrentFilename()
}

// --- flush.SegmentedWriter ---

func (w *CSVWriter) BufferLen() int   { return len(w.buffer) }
func (w *CSVWriter) RecordSize() int  { return csvRecordSize }
func (w *CSVWriter) Extension() string { return ".csv" }

func (w *CSVWriter) PerformFlush() error {
	if w.file == nil {
		return fmt.Errorf("csv writer: no segment file open")
	}
	if !w.headerWritten {
		if err := w.csvw.Write(csvHeader); err != nil {
			return fmt.Errorf("csv writer: header: %w", err)
		}
		w.headerWritten = true
	}
	for _, r := range w.buffer {
		row := []string{
			r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			r.Symbol,
			string(r.Kind),
			FormatNumber(r.Bid), FormatNumber(r.BidQty),
			FormatNumber(r.Ask), FormatNumber(r.AskQty),
			FormatNumber(r.Last), FormatNumber(r.Volume), FormatNumber(r.VWAP),
			FormatNumber(r.Low), FormatNumber(r.High),
			FormatNumber(r.Change), FormatNumber(r.ChangePct),
		}
		if err := w.csvw.Write(row); err != nil {
			return fmt.Errorf("csv writer: row: %w", err)
		}
	}
	w.csvw.Flush()
	if err := w.csvw.Error(); err != nil {
		return fmt.Errorf("csv writer: flush: %w", err)
	}
	w.buffer = w.buffer[:0]
	return nil
}

// PerformSegmentTransition opens path in truncate mode — never append —
// per §4.2 and §8 S2.
func (w *CSVWriter) PerformSegmentTransition(path string) error {
	if w.file != nil {
		if w.csvw != nil {
			w.csvw.Flush()
		}
		w.file.Close()
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("csv writer: open segment: %w", err)
	}
	w.file = f
	w.csvw = csv.NewWriter(f)
	w.headerWritten = false
	return nil
}

func (w *CSVWriter) OnSegmentInitialized() {}
