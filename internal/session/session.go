// Package session implements the WebSocket Session (C4): a single TLS
// connection to the Kraken v2 feed, owned and driven by exactly one
// goroutine, that sends one subscription and dispatches framed messages
// to a handler until Stop is called or the connection fails.
//
// Grounded on the teacher's KrakenFeed.connect (internal/feed/kraken.go)
// for the dial-then-subscribe shape and on internal/kalshi/ws.go for the
// ping/pong/read-deadline discipline — but unlike both, Run never
// reconnects: §6/§9 place automatic reconnection out of scope, so a
// failed or closed session simply returns and the caller (the Ingestion
// Client) decides what that means for is_running.
package session

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gw/kraken-feed/internal/parser"
)

const (
	dialTimeout  = 10 * time.Second
	readTimeout  = 15 * time.Second // reset on every frame; Kraken emits heartbeats well inside this window
	pingInterval = 20 * time.Second
	writeTimeout = 5 * time.Second
)

// Session is not thread-safe beyond Stop: it is driven by exactly one
// goroutine (per §4.4's contract) and Stop is the only operation safe to
// call from another goroutine.
type Session struct {
	url     string
	channel string
	symbols []string
	opts    parser.SubscriptionOptions
	parser  parser.Parser

	connMu sync.Mutex
	conn   *websocket.Conn

	stopped atomic.Bool
	closeCh chan struct{}

	OnOpen    func()
	OnClose   func(error)
	OnMessage func([]byte)
}

func New(url, channel string, symbols []string, opts parser.SubscriptionOptions, p parser.Parser) *Session {
	return &Session{
		url: url, channel: channel, symbols: symbols, opts: opts, parser: p,
		closeCh: make(chan struct{}),
	}
}

// Run dials, subscribes, and blocks in the read loop until Stop is called
// or a transport error occurs. It returns nil only after a clean Stop.
func (s *Session) Run() error {
	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(s.url, nil)
	if err != nil {
		return fmt.Errorf("session: dial %s: %w", s.url, err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	defer func() {
		s.connMu.Lock()
		conn.Close()
		s.connMu.Unlock()
	}()

	corrID := uuid.NewString()
	sub, err := s.parser.BuildSubscription(s.channel, s.symbols, s.opts)
	if err != nil {
		return fmt.Errorf("session: build subscription: %w", err)
	}
	if err := s.writeText([]byte(sub)); err != nil {
		return fmt.Errorf("session: send subscribe: %w", err)
	}
	slog.Info("subscription sent", "channel", s.channel, "symbols", s.symbols, "correlation_id", corrID)

	if s.OnOpen != nil {
		s.OnOpen()
	}

	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	pingDone := make(chan struct{})
	go s.pingLoop(pingDone)
	defer close(pingDone)

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		select {
		case <-s.closeCh:
			if s.OnClose != nil {
				s.OnClose(nil)
			}
			return nil
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if s.stopped.Load() {
				if s.OnClose != nil {
					s.OnClose(nil)
				}
				return nil
			}
			if s.OnClose != nil {
				s.OnClose(err)
			}
			return fmt.Errorf("session: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if s.OnMessage != nil {
			s.OnMessage(msg)
		}
	}
}

// Stop cleanly closes the session. Idempotent; safe to call from any
// goroutine.
func (s *Session) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(s.closeCh)

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}
	deadline := time.Now().Add(writeTimeout)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}

func (s *Session) pingLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := s.writeControl(websocket.PingMessage); err != nil {
				return
			}
		}
	}
}

func (s *Session) writeText(b []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session: not connected")
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, b)
}

func (s *Session) writeControl(msgType int) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("session: not connected")
	}
	return s.conn.WriteControl(msgType, nil, time.Now().Add(writeTimeout))
}
