package parser

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gw/kraken-feed/internal/model"
)

// Reflective is the forgiving backend: it decodes the envelope and each
// inner record via encoding/json's reflection-based Unmarshal. Grounded on
// the teacher's krakenSubscribe/envelope decode in internal/feed/kraken.go,
// generalized from a single ticker field pair to all three channels.
type Reflective struct{}

func NewReflective() *Reflective { return &Reflective{} }

func (p *Reflective) Name() string { return "reflective" }

func (p *Reflective) BuildSubscription(channel string, symbols []string, opts SubscriptionOptions) (string, error) {
	return buildSubscription(channel, symbols, opts)
}

// envelope is the outermost shape every inbound frame conforms to. Fields
// that don't apply to a given frame simply decode to their zero value.
type envelope struct {
	Method  string            `json:"method"`
	Success *bool             `json:"success"`
	Channel string            `json:"channel"`
	Type    string            `json:"type"`
	Data    []json.RawMessage `json:"data"`
	Error   string            `json:"error"`
}

type wireTicker struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	BidQty    float64 `json:"bid_qty"`
	Ask       float64 `json:"ask"`
	AskQty    float64 `json:"ask_qty"`
	Last      float64 `json:"last"`
	Volume    float64 `json:"volume"`
	VWAP      float64 `json:"vwap"`
	Low       float64 `json:"low"`
	High      float64 `json:"high"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
}

type wireLevel struct {
	Price float64 `json:"price"`
	Qty   float64 `json:"qty"`
}

type wireBook struct {
	Symbol   string      `json:"symbol"`
	Bids     []wireLevel `json:"bids"`
	Asks     []wireLevel `json:"asks"`
	Checksum uint32      `json:"checksum"`
}

type wireOrder struct {
	OrderID   string  `json:"order_id"`
	Price     float64 `json:"limit_price"`
	Qty       float64 `json:"order_qty"`
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
}

type wireLevel3 struct {
	Symbol   string      `json:"symbol"`
	Bids     []wireOrder `json:"bids"`
	Asks     []wireOrder `json:"asks"`
	Checksum uint32      `json:"checksum"`
}

func (p *Reflective) ParseMessage(payload []byte, emitTicker EmitTicker, emitL2 EmitL2, emitL3 EmitL3, emitStatus EmitStatus) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		emitStatus(model.StatusEvent{Kind: model.StatusError, Message: "malformed json", Err: err})
		return
	}

	switch {
	case env.Method == "subscribe":
		msg := "subscribed"
		if env.Success != nil && !*env.Success {
			msg = env.Error
		}
		emitStatus(model.StatusEvent{Kind: model.StatusSubscribed, Channel: env.Channel, Message: msg})
		return
	case env.Channel == ChannelHeart:
		emitStatus(model.StatusEvent{Kind: model.StatusHeartbeat, Channel: env.Channel})
		return
	case env.Channel == ChannelStatus:
		emitStatus(model.StatusEvent{Kind: model.StatusSubscribed, Channel: env.Channel, Message: env.Type})
		return
	}

	kind := model.RecordKind(env.Type)
	now := time.Now().UTC()

	switch env.Channel {
	case ChannelTicker:
		for _, raw := range env.Data {
			var t wireTicker
			if err := json.Unmarshal(raw, &t); err != nil {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: env.Channel, Message: "bad ticker record", Err: err})
				continue
			}
			if t.Symbol == "" {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: env.Channel, Message: "ticker missing symbol"})
				continue
			}
			emitTicker(model.TickerRecord{
				Timestamp: now, Symbol: t.Symbol, Kind: kind,
				Bid: t.Bid, BidQty: t.BidQty, Ask: t.Ask, AskQty: t.AskQty,
				Last: t.Last, Volume: t.Volume, VWAP: t.VWAP,
				Low: t.Low, High: t.High, Change: t.Change, ChangePct: t.ChangePct,
			})
		}

	case ChannelBook:
		for _, raw := range env.Data {
			var b wireBook
			if err := json.Unmarshal(raw, &b); err != nil {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: env.Channel, Message: "bad book record", Err: err})
				continue
			}
			if b.Symbol == "" {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: env.Channel, Message: "book missing symbol"})
				continue
			}
			emitL2(model.OrderBookRecord{
				Timestamp: now, Symbol: b.Symbol, Kind: kind,
				Bids: toLevels(b.Bids), Asks: toLevels(b.Asks), Checksum: b.Checksum,
			})
		}

	case ChannelLevel3:
		for _, raw := range env.Data {
			var l wireLevel3
			if err := json.Unmarshal(raw, &l); err != nil {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: env.Channel, Message: "bad level3 record", Err: err})
				continue
			}
			if l.Symbol == "" {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: env.Channel, Message: "level3 missing symbol"})
				continue
			}
			emitL3(model.Level3Record{
				Timestamp: now, Symbol: l.Symbol, Kind: kind,
				Bids: toOrders(l.Bids), Asks: toOrders(l.Asks), Checksum: l.Checksum,
			})
		}

	default:
		emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: env.Channel, Message: fmt.Sprintf("unknown channel %q", env.Channel)})
	}
}

func toLevels(in []wireLevel) []model.PriceLevel {
	out := make([]model.PriceLevel, len(in))
	for i, l := range in {
		out[i] = model.PriceLevel{Price: l.Price, Qty: l.Qty}
	}
	return out
}

func toOrders(in []wireOrder) []model.Level3Order {
	out := make([]model.Level3Order, len(in))
	for i, o := range in {
		ts, _ := time.Parse(time.RFC3339, o.Timestamp)
		out[i] = model.Level3Order{
			OrderID: o.OrderID, Price: o.Price, Qty: o.Qty,
			Timestamp: ts, Event: model.OrderEvent(o.Event),
		}
	}
	return out
}
