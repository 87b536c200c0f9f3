package ingest

import (
	"sync"

	"github.com/gw/kraken-feed/internal/book"
	"github.com/gw/kraken-feed/internal/model"
	"github.com/gw/kraken-feed/internal/parser"
)

// L3Client wraps the generic Client with the per-symbol L3 dual-indexed
// book state, applying add/modify/delete events on the I/O thread before
// the record is fanned out, exactly as L2Client does for L2Book.
type L3Client struct {
	*Client[model.Level3Record]

	booksMu sync.RWMutex
	books   map[string]*book.L3Book
	strict  bool

	ChecksumWarning func(symbol string, err error)
	ProtocolWarning func(symbol string, err error)
}

func NewL3Client(url string, symbols []string, depth int, token string, strict bool, p parser.Parser, w RecordWriter[model.Level3Record]) *L3Client {
	lc := &L3Client{books: make(map[string]*book.L3Book), strict: strict}

	decode := func(payload []byte, onRecord func(model.Level3Record), onStatus func(kind, channel, message string, err error)) {
		p.ParseMessage(payload,
			func(model.TickerRecord) {},
			func(model.OrderBookRecord) {},
			func(r model.Level3Record) {
				lc.applyBook(r)
				onRecord(r)
			},
			func(ev model.StatusEvent) { onStatus(string(ev.Kind), ev.Channel, ev.Message, ev.Err) },
		)
	}

	opts := parser.SubscriptionOptions{Depth: depth, Snapshot: true, Token: token}
	lc.Client = newClient(url, parser.ChannelLevel3, symbols, opts, p, w, decode)
	return lc
}

func (lc *L3Client) applyBook(r model.Level3Record) {
	lc.booksMu.Lock()
	b, ok := lc.books[r.Symbol]
	if !ok {
		b = book.NewL3Book(r.Symbol)
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

	_, isChecksum := err.(*book.ErrChecksumMismatch)
	if lc.strict {
		// §7: a state error is fatal in strict mode — stop the session so
		// is_running goes false and consumption actually aborts, not just
		// a callback notification while the feed keeps flowing.
		lc.Client.reportError(err)
		_ = lc.Client.sess.Stop()
		return
	}
	if isChecksum {
		if lc.ChecksumWarning != nil {
			lc.ChecksumWarning(r.Symbol, err)
		}
		return
	}
	if lc.ProtocolWarning != nil {
		lc.ProtocolWarning(r.Symbol, err)
	}
}

// Book returns the live L3 book for symbol, or nil if no record has been
// applied for it yet.
func (lc *L3Client) Book(symbol string) *book.L3Book {
	lc.booksMu.RLock()
	defer lc.booksMu.RUnlock()
	return lc.books[symbol]
}
