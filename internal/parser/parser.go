// Package parser decodes Kraken WebSocket v2 payloads into the typed
// records in internal/model, behind a backend-agnostic capability so the
// decoding strategy can be swapped without touching ingestion logic.
package parser

import "github.com/gw/kraken-feed/internal/model"

// Channel names as they appear on the wire and in BuildSubscription.
const (
	ChannelTicker  = "ticker"
	ChannelBook    = "book"
	ChannelLevel3  = "level3"
	ChannelStatus  = "status"
	ChannelHeart   = "heartbeat"
)

// EmitTicker, EmitL2, EmitL3 and EmitStatus are invoked exactly once per
// inner record decoded out of a single payload. They must not retain the
// byte slice passed to ParseMessage past the call.
type (
	EmitTicker func(model.TickerRecord)
	EmitL2     func(model.OrderBookRecord)
	EmitL3     func(model.Level3Record)
	EmitStatus func(model.StatusEvent)
)

// SubscriptionOptions parameterizes BuildSubscription per channel.
type SubscriptionOptions struct {
	// Depth is required for book (10,25,100,500,1000) and level3 (10,100,1000).
	Depth int
	// Snapshot requests an initial full-state frame; always true for level3.
	Snapshot bool
	// Token authenticates the level3 (private) subscription.
	Token string
}

// Parser is the decoding capability. Implementations must be single-pass
// and lazy: no implementation may require materializing a full DOM of the
// payload before dispatching to the emit callbacks.
type Parser interface {
	// Name identifies the backend for logging (e.g. "reflective", "fast").
	Name() string

	// BuildSubscription renders the subscribe envelope for one channel.
	BuildSubscription(channel string, symbols []string, opts SubscriptionOptions) (string, error)

	// ParseMessage decodes one framed text message and dispatches its inner
	// records to the matching emit callback. Malformed payloads are
	// reported via emitStatus with StatusError and otherwise skipped; this
	// never panics and never returns an error — every failure mode is
	// routed through emitStatus per the status-kind contract.
	ParseMessage(payload []byte, emitTicker EmitTicker, emitL2 EmitL2, emitL3 EmitL3, emitStatus EmitStatus)
}

// ValidDepth reports whether depth is an allowed value for channel.
func ValidDepth(channel string, depth int) bool {
	switch channel {
	case ChannelBook:
		switch depth {
		case 10, 25, 100, 500, 1000:
			return true
		}
	case ChannelLevel3:
		switch depth {
		case 10, 100, 1000:
			return true
		}
	}
	return false
}
