// Package flush implements the time-or-size flush trigger and UTC segment
// rotation shared by every record writer. It is the Go rendering of the
// CRTP-like mixin the design notes describe: a writer satisfies
// SegmentedWriter and embeds an *Engine, calling CheckAndFlush after every
// append. None of the engine's invariants are reimplemented by writers.
package flush

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ncruces/go-strftime"
)

// SegmentMode selects the UTC boundary on which output files rotate.
type SegmentMode string

const (
	SegmentNone   SegmentMode = "none"
	SegmentHourly SegmentMode = "hourly"
	SegmentDaily  SegmentMode = "daily"
)

// SegmentedWriter is the six-operation contract a writer must implement to
// plug into Engine. PerformSegmentTransition MUST open the new file in
// truncate mode: a stale residual from a prior run must never be appended
// to (the teacher's JSONL writer opens with O_APPEND on every rotation,
// which this spec calls out by name as a bug not to replicate).
type SegmentedWriter interface {
	BufferLen() int
	RecordSize() int
	Extension() string
	PerformFlush() error
	PerformSegmentTransition(path string) error
	OnSegmentInitialized()
}

// Config carries the tunables named in §4.2. Zero disables the
// corresponding trigger.
type Config struct {
	FlushInterval   time.Duration
	MemoryThreshold uint64
	SegmentMode     SegmentMode
	BaseFilename    string
	// CompressRotated gzips each segment file in the background once it
	// has been rotated away (never the live segment). See compress.go.
	CompressRotated bool
}

const (
	DefaultFlushInterval   = 30 * time.Second
	DefaultMemoryThreshold = 10 * 1024 * 1024
)

// Engine owns the flush/segment bookkeeping described in §4.2 and §3's
// FlushSegmentState. It is not internally synchronized: callers that share
// an Engine across goroutines must hold their own lock around
// CheckAndFlush, as CSVWriter and JSONLWriter do with their own mutex.
type Engine struct {
	cfg Config
	w   SegmentedWriter

	currentSegmentKey  string
	currentFilename    string
	lastFlushInstant   time.Time
	flushCount         int
	segmentCount       int
	flushLogsEmitted   int
}

// New constructs an Engine bound to w. cfg is used as given: a zero
// FlushInterval or MemoryThreshold disables that trigger, and no default
// (DefaultFlushInterval, DefaultMemoryThreshold) is substituted here.
func New(cfg Config, w SegmentedWriter) *Engine {
	if cfg.FlushInterval == 0 {
		// Explicit 0 disables the trigger; we distinguish "unset" from
		// "disabled" at the config-loading layer, not here.
	}
	e := &Engine{cfg: cfg, w: w, currentFilename: cfg.BaseFilename, lastFlushInstant: time.Now()}
	return e
}

// FlushCount, SegmentCount and CurrentFilename expose the read-only
// statistics named in §4.2.
func (e *Engine) FlushCount() int          { return e.flushCount }
func (e *Engine) SegmentCount() int        { return e.segmentCount }
func (e *Engine) CurrentFilename() string  { return e.currentFilename }

// CheckAndFlush runs after every record append. It performs segment
// rotation first (draining the buffer if non-empty before the rotation),
// then evaluates the OR-combined time/size flush trigger.
func (e *Engine) CheckAndFlush(now time.Time) error {
	if e.cfg.SegmentMode != SegmentNone {
		key, err := segmentKey(e.cfg.SegmentMode, now)
		if err != nil {
			return fmt.Errorf("compute segment key: %w", err)
		}
		if key != e.currentSegmentKey {
			firstSegment := e.currentSegmentKey == ""
			// No file has ever been opened yet, so there is nothing to
			// drain — PerformFlush would hit a segment file that was
			// never opened. The buffer carries over into the first
			// segment PerformSegmentTransition is about to open below.
			if e.w.BufferLen() > 0 && !firstSegment {
				if err := e.w.PerformFlush(); err != nil {
					return fmt.Errorf("writer: pre-rotation flush: %w", err)
				}
				e.lastFlushInstant = now
			}
			rotatedAway := e.currentFilename
			e.currentSegmentKey = key
			e.currentFilename = segmentedFilename(e.cfg.BaseFilename, key)
			if err := e.w.PerformSegmentTransition(e.currentFilename); err != nil {
				return fmt.Errorf("writer: segment transition: %w", err)
			}
			if e.cfg.CompressRotated && !firstSegment && rotatedAway != e.currentFilename {
				go compressRotatedSegment(rotatedAway)
			}
			e.w.OnSegmentInitialized()
			e.segmentCount++
			slog.Info("segment opened", "file", e.currentFilename, "segment", e.segmentCount)
		}
	}

	if e.w.BufferLen() == 0 {
		return nil
	}

	timeTrigger := e.cfg.FlushInterval > 0 && now.Sub(e.lastFlushInstant) >= e.cfg.FlushInterval
	sizeTrigger := e.cfg.MemoryThreshold > 0 &&
		uint64(e.w.BufferLen())*uint64(e.w.RecordSize()) >= e.cfg.MemoryThreshold

	if !timeTrigger && !sizeTrigger {
		return nil
	}

	bufferedBytes := uint64(e.w.BufferLen()) * uint64(e.w.RecordSize())
	if err := e.w.PerformFlush(); err != nil {
		// Buffer is preserved; the next tick retries. Never abort the
		// ingestion thread over a writer error.
		return fmt.Errorf("writer: flush: %w", err)
	}
	e.lastFlushInstant = now
	e.flushCount++

	if e.flushLogsEmitted < 3 {
		e.flushLogsEmitted++
		slog.Info("[FLUSH]", "file", e.currentFilename, "count", e.flushCount,
			"buffered_bytes", humanize.Bytes(bufferedBytes))
	}
	return nil
}

func segmentKey(mode SegmentMode, t time.Time) (string, error) {
	switch mode {
	case SegmentHourly:
		return strftime.Format("%Y%m%d_%H", t.UTC())
	case SegmentDaily:
		return strftime.Format("%Y%m%d", t.UTC())
	default:
		return "", nil
	}
}

// segmentedFilename inserts key before the extension, or appends it when
// base has no extension.
func segmentedFilename(base, key string) string {
	ext := filepath.Ext(base)
	if ext == "" {
		return base + "." + key
	}
	stem := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("%s.%s%s", stem, key, ext)
}
