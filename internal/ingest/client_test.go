package ingest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gw/kraken-feed/internal/model"
	"github.com/gw/kraken-feed/internal/parser"
)

// fakeWriter is a plain in-memory RecordWriter test double.
type fakeWriter[R any] struct {
	mu      sync.Mutex
	records []R
	flushes int
}

func (w *fakeWriter[R]) Append(r R) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, r)
	return nil
}
func (w *fakeWriter[R]) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return nil
}
func (w *fakeWriter[R]) Close() error { return nil }

func (w *fakeWriter[R]) snapshot() []R {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]R, len(w.records))
	copy(out, w.records)
	return out
}

func wsURL(httpURL string) string { return "ws" + strings.TrimPrefix(httpURL, "http") }

// newStreamingServer upgrades the connection, drains the subscribe frame,
// then writes each of frames in order with a short stagger.
func newStreamingServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage() // the subscribe envelope
		for _, f := range frames {
			conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestTickerClientRecordFlow is §8 property 7: the update-callback sequence
// equals the history sequence, and §8 S6's memory-bound scenario: pending
// drains rather than growing unboundedly across repeated GetUpdates calls.
func TestTickerClientRecordFlow(t *testing.T) {
	frames := []string{
		`{"channel":"ticker","type":"update","data":[{"symbol":"BTC/USD","bid":100,"bid_qty":1,"ask":101,"ask_qty":1}]}`,
		`{"channel":"ticker","type":"update","data":[{"symbol":"BTC/USD","bid":100.5,"bid_qty":1,"ask":101.5,"ask_qty":1}]}`,
	}
	srv := newStreamingServer(t, frames)

	w := &fakeWriter[model.TickerRecord]{}
	client := NewTickerClient(wsURL(srv.URL), []string{"BTC/USD"}, parser.NewReflective(), w)

	var mu sync.Mutex
	var updates []model.TickerRecord
	client.SetUpdateCallback(func(r model.TickerRecord) {
		mu.Lock()
		updates = append(updates, r)
		mu.Unlock()
	})

	client.Start()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(w.snapshot()) >= 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	client.Stop()

	history := client.GetHistory()
	if len(history) != 2 {
		t.Fatalf("history has %d records, want 2", len(history))
	}
	mu.Lock()
	gotUpdates := len(updates)
	mu.Unlock()
	if gotUpdates != len(history) {
		t.Errorf("update-callback count (%d) != history count (%d)", gotUpdates, len(history))
	}

	first := client.GetUpdates()
	if len(first) != 2 {
		t.Fatalf("first GetUpdates() drained %d, want 2", len(first))
	}
	if n := client.PendingCount(); n != 0 {
		t.Errorf("PendingCount() after drain = %d, want 0", n)
	}
	second := client.GetUpdates()
	if len(second) != 0 {
		t.Errorf("second GetUpdates() should be empty, got %d", len(second))
	}
}

// TestL2ClientNonStrictChecksumMismatchWarns covers the non-strict routing
// of a checksum mismatch through ChecksumWarning rather than the error
// callback.
func TestL2ClientNonStrictChecksumMismatchWarns(t *testing.T) {
	frame := `{"channel":"book","type":"snapshot","data":[{"symbol":"BTC/USD","bids":[{"price":100,"qty":1}],"asks":[{"price":101,"qty":1}],"checksum":1}]}`
	srv := newStreamingServer(t, []string{frame})

	w := &fakeWriter[model.OrderBookRecord]{}
	lc := NewL2Client(wsURL(srv.URL), []string{"BTC/USD"}, 10, false, parser.NewReflective(), w)

	var mu sync.Mutex
	var warned bool
	var errored bool
	lc.ChecksumWarning = func(symbol string, err error) {
		mu.Lock()
		warned = true
		mu.Unlock()
	}
	lc.SetErrorCallback(func(err error) {
		mu.Lock()
		errored = true
		mu.Unlock()
	})

	lc.Start()
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		w2 := warned
		mu.Unlock()
		if w2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	lc.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !warned {
		t.Error("expected ChecksumWarning to fire on a deliberate mismatch")
	}
	if errored {
		t.Error("non-strict mode should not route a checksum mismatch through the error callback")
	}
	if b := lc.Book("BTC/USD"); b == nil {
		t.Error("book state should still exist despite the mismatch")
	} else if p, _, ok := b.BestBid(); !ok || p != 100 {
		t.Errorf("book state should still reflect the snapshot: best_bid=(%v,%v)", p, ok)
	}
}

// TestL2ClientStrictChecksumMismatchErrors covers strict-mode escalation.
func TestL2ClientStrictChecksumMismatchErrors(t *testing.T) {
	frame := `{"channel":"book","type":"snapshot","data":[{"symbol":"BTC/USD","bids":[{"price":100,"qty":1}],"asks":[{"price":101,"qty":1}],"checksum":1}]}`
	srv := newStreamingServer(t, []string{frame})

	w := &fakeWriter[model.OrderBookRecord]{}
	lc := NewL2Client(wsURL(srv.URL), []string{"BTC/USD"}, 10, true, parser.NewReflective(), w)

	var mu sync.Mutex
	var warned, errored bool
	lc.ChecksumWarning = func(symbol string, err error) {
		mu.Lock()
		warned = true
		mu.Unlock()
	}
	lc.SetErrorCallback(func(err error) {
		mu.Lock()
		errored = true
		mu.Unlock()
	})

	lc.Start()
	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		e2 := errored
		mu.Unlock()
		if e2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	// §7: strict mode must actually abort consumption, not just notify.
	runningDeadline := time.Now().Add(2 * time.Second)
	for lc.IsRunning() && time.Now().Before(runningDeadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if lc.IsRunning() {
		t.Error("strict mode should stop the session on a state error, but the client is still running")
	}

	lc.Stop()

	mu.Lock()
	defer mu.Unlock()
	if !errored {
		t.Error("strict mode should route a checksum mismatch through the error callback")
	}
	if warned {
		t.Error("strict mode should not also fire ChecksumWarning")
	}
}
