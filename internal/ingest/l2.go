package ingest

import (
	"sync"

	"github.com/gw/kraken-feed/internal/book"
	"github.com/gw/kraken-feed/internal/model"
	"github.com/gw/kraken-feed/internal/parser"
)

// L2Client wraps the generic Client with the per-symbol L2 book state
// §4.5 says the client owns "when active". Book application happens on
// the I/O thread, inside the decode step, before the generic fan-out —
// so a caller reading Book(symbol) from the update callback always sees
// the state the just-delivered record produced.
type L2Client struct {
	*Client[model.OrderBookRecord]

	booksMu sync.RWMutex
	books   map[string]*book.L2Book
	strict  bool

	// ChecksumWarning is invoked for every checksum mismatch in non-strict
	// mode. In strict mode a mismatch is instead routed through the
	// client's error callback and the client stops its session.
	ChecksumWarning func(symbol string, err error)
}

func NewL2Client(url string, symbols []string, depth int, strict bool, p parser.Parser, w RecordWriter[model.OrderBookRecord]) *L2Client {
	lc := &L2Client{books: make(map[string]*book.L2Book), strict: strict}

	decode := func(payload []byte, onRecord func(model.OrderBookRecord), onStatus func(kind, channel, message string, err error)) {
		p.ParseMessage(payload,
			func(model.TickerRecord) {},
			func(r model.OrderBookRecord) {
				lc.applyBook(r)
				onRecord(r)
			},
			func(model.Level3Record) {},
			func(ev model.StatusEvent) { onStatus(string(ev.Kind), ev.Channel, ev.Message, ev.Err) },
		)
	}

	opts := parser.SubscriptionOptions{Depth: depth}
	lc.Client = newClient(url, parser.ChannelBook, symbols, opts, p, w, decode)
	return lc
}

func (lc *L2Client) applyBook(r model.OrderBookRecord) {
	lc.booksMu.Lock()
	b, ok := lc.books[r.Symbol]
	if !ok {
		b = book.NewL2Book(r.Symbol)
		lc.books[r.Symbol] = b
	}
	lc.booksMu.Unlock()

	var err error
	if r.Kind == model.KindSnapshot {
		err = b.ApplySnapshot(r)
	} else {
		err = b.ApplyUpdate(r)
	}
	if err == nil {
		return
	}
	if lc.strict {
		// §7: a state error is fatal in strict mode — stop the session so
		// is_running goes false and consumption actually aborts, not just
		// a callback notification while the feed keeps flowing.
		lc.Client.reportError(err)
		_ = lc.Client.sess.Stop()
		return
	}
	if lc.ChecksumWarning != nil {
		lc.ChecksumWarning(r.Symbol, err)
	}
}

// Book returns the live L2 book for symbol, or nil if no record has been
// applied for it yet.
func (lc *L2Client) Book(symbol string) *book.L2Book {
	lc.booksMu.RLock()
	defer lc.booksMu.RUnlock()
	return lc.books[symbol]
}
