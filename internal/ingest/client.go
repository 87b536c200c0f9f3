// Package ingest implements the Ingestion Client (C5): it owns the
// background I/O thread, the parser, the record writer, and — for L2/L3 —
// the book state, and fans every decoded record out to history, the
// pending-updates queue, the writer's flush/segment engine, and an
// optional update callback.
package ingest

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gw/kraken-feed/internal/parser"
	"github.com/gw/kraken-feed/internal/session"
)

// RecordWriter is the subset of writer.CSVWriter/L2Writer/L3Writer (or
// their Multi* variants) the client needs: append one record and force a
// flush. All implementations plug into a flush.Engine internally; the
// client does not touch the engine directly.
type RecordWriter[R any] interface {
	Append(R) error
	Flush() error
	Close() error
}

// Decoder turns one raw frame into zero-or-more typed records (one per
// element of the frame's data array) plus zero-or-more status observations; it is built per-channel (ticker/book/level3)
// by the NewTickerClient/NewL2Client/NewL3Client constructors, since the
// parser's four emit callbacks only ever populate one record kind per
// session/channel.
type Decoder[R any] func(payload []byte, onRecord func(R), onStatus func(kind, channel, message string, err error))

const initialCapacity = 1000

// Client is the generic Ingestion Client core, parameterized over the
// record type so the same locking discipline, history/pending fan-out,
// and start/stop lifecycle serve the ticker, book, and level3 channels
// without triplicating §4.5's contract. Grounded on collector.Collector's
// goroutine-owns-everything shape and baseFeed's mutex-guarded state,
// generalized from one exchange feed to the three Kraken channels.
type Client[R any] struct {
	url     string
	channel string
	symbols []string
	opts    parser.SubscriptionOptions
	parser  parser.Parser
	writer  RecordWriter[R]
	decode  Decoder[R]

	// dataMu guards history and pending. The writer's Append (and with it
	// the flush/segment check) is called while dataMu is held, for every
	// channel; each writer also serializes its own flush path with its
	// own mutex.
	dataMu  sync.Mutex
	history []R
	pending []R

	// callbackMu guards only the cold-path observers.
	callbackMu     sync.Mutex
	connectionFn   func(connected bool, err error)
	errorFn        func(err error)

	// updateFn is read-once, installed-before-start, and deliberately not
	// guarded on the hot path — §4.5/§9's callback-binding contract.
	updateFn func(R)

	sess    *session.Session
	running atomic.Bool
	connect atomic.Bool
	wg      sync.WaitGroup
}

func newClient[R any](url, channel string, symbols []string, opts parser.SubscriptionOptions, p parser.Parser, w RecordWriter[R], decode Decoder[R]) *Client[R] {
	return &Client[R]{
		url: url, channel: channel, symbols: symbols, opts: opts,
		parser: p, writer: w, decode: decode,
		history: make([]R, 0, initialCapacity),
		pending: make([]R, 0, initialCapacity),
	}
}

// SetUpdateCallback must be called before Start; mutating it afterward is
// undefined behavior per §4.5.
func (c *Client[R]) SetUpdateCallback(fn func(R)) { c.updateFn = fn }

func (c *Client[R]) SetConnectionCallback(fn func(connected bool, err error)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.connectionFn = fn
}

func (c *Client[R]) SetErrorCallback(fn func(err error)) {
	c.callbackMu.Lock()
	defer c.callbackMu.Unlock()
	c.errorFn = fn
}

// Start spawns the background I/O thread. It returns immediately;
// connection readiness is signaled asynchronously via the connection
// callback.
func (c *Client[R]) Start() {
	c.sess = session.New(c.url, c.channel, c.symbols, c.opts, c.parser)
	c.sess.OnOpen = func() {
		c.connect.Store(true)
		c.callbackMu.Lock()
		fn := c.connectionFn
		c.callbackMu.Unlock()
		if fn != nil {
			fn(true, nil)
		}
	}
	c.sess.OnClose = func(err error) {
		c.connect.Store(false)
		c.callbackMu.Lock()
		fn := c.connectionFn
		c.callbackMu.Unlock()
		if fn != nil {
			fn(false, err)
		}
	}
	c.sess.OnMessage = func(msg []byte) {
		c.decode(msg,
			func(rec R) { c.onRecord(rec) },
			func(kind, channel, message string, err error) { c.onStatus(kind, channel, message, err) },
		)
	}

	c.running.Store(true)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		if err := c.sess.Run(); err != nil {
			c.callbackMu.Lock()
			fn := c.errorFn
			c.callbackMu.Unlock()
			if fn != nil {
				fn(fmt.Errorf("ingest: transport: %w", err))
			}
		}
	}()
}

// Stop requests the session to close, joins the I/O thread, and performs
// a final flush. Idempotent.
func (c *Client[R]) Stop() {
	if c.sess == nil {
		return
	}
	_ = c.sess.Stop()
	c.wg.Wait()
	_ = c.writer.Flush()
}

func (c *Client[R]) onRecord(rec R) {
	c.dataMu.Lock()
	c.history = append(c.history, rec)
	c.pending = append(c.pending, rec)
	if err := c.writer.Append(rec); err != nil {
		c.callbackMu.Lock()
		fn := c.errorFn
		c.callbackMu.Unlock()
		if fn != nil {
			fn(fmt.Errorf("ingest: writer: %w", err))
		}
	}
	c.dataMu.Unlock()

	// Update callback invoked without holding the data mutex — the hot
	// path is read-only against updateFn per the installed-before-start
	// contract.
	if c.updateFn != nil {
		c.updateFn(rec)
	}
}

// reportError routes an error through the cold-path error callback.
// Exported within the package only, for the L2/L3 wrappers to surface
// strict-mode checksum/protocol errors through the same path transport
// errors use.
func (c *Client[R]) reportError(err error) {
	c.callbackMu.Lock()
	fn := c.errorFn
	c.callbackMu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (c *Client[R]) onStatus(kind, channel, message string, err error) {
	if kind != "error" {
		return
	}
	c.callbackMu.Lock()
	fn := c.errorFn
	c.callbackMu.Unlock()
	if fn != nil {
		if err == nil {
			err = fmt.Errorf("%s", message)
		}
		fn(fmt.Errorf("ingest: protocol (%s): %w", channel, err))
	}
}

func (c *Client[R]) IsConnected() bool { return c.connect.Load() }
func (c *Client[R]) IsRunning() bool   { return c.running.Load() }

func (c *Client[R]) PendingCount() int {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	return len(c.pending)
}

// GetUpdates drains and returns the pending-updates queue.
func (c *Client[R]) GetUpdates() []R {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	out := c.pending
	c.pending = make([]R, 0, initialCapacity)
	return out
}

// GetHistory returns an element-wise copy of history (expensive for a long
// history). Slices held inside a record, such as book levels or L3
// orders, are shared with the stored records, not cloned.
func (c *Client[R]) GetHistory() []R {
	c.dataMu.Lock()
	defer c.dataMu.Unlock()
	out := make([]R, len(c.history))
	copy(out, c.history)
	return out
}

// Flush forces an immediate drain of the writer buffer, distinct from any
// ad-hoc snapshot export a caller performs over GetHistory.
func (c *Client[R]) Flush() error {
	return c.writer.Flush()
}
