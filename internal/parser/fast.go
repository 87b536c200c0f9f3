package parser

import (
	"time"

	"github.com/buger/jsonparser"

	"github.com/gw/kraken-feed/internal/model"
)

// Fast is the high-performance backend: it walks the payload directly with
// jsonparser instead of reflecting into intermediate structs as Reflective
// does. Grounded on the jsonparser
// dependency carried by gocryptotrader's exchange connectors, which favor
// zero-copy field access on the hot decode path.
type Fast struct{}

func NewFast() *Fast { return &Fast{} }

func (p *Fast) Name() string { return "fast" }

func (p *Fast) BuildSubscription(channel string, symbols []string, opts SubscriptionOptions) (string, error) {
	return buildSubscription(channel, symbols, opts)
}

func (p *Fast) ParseMessage(payload []byte, emitTicker EmitTicker, emitL2 EmitL2, emitL3 EmitL3, emitStatus EmitStatus) {
	if method, _ := jsonparser.GetString(payload, "method"); method == "subscribe" {
		channel, _ := jsonparser.GetString(payload, "result", "channel")
		success, _ := jsonparser.GetBoolean(payload, "success")
		msg := "subscribed"
		if !success {
			msg, _ = jsonparser.GetString(payload, "error")
		}
		emitStatus(model.StatusEvent{Kind: model.StatusSubscribed, Channel: channel, Message: msg})
		return
	}

	channel, err := jsonparser.GetString(payload, "channel")
	if err != nil {
		emitStatus(model.StatusEvent{Kind: model.StatusError, Message: "malformed json: no channel", Err: err})
		return
	}

	switch channel {
	case ChannelHeart:
		emitStatus(model.StatusEvent{Kind: model.StatusHeartbeat, Channel: channel})
		return
	case ChannelStatus:
		typ, _ := jsonparser.GetString(payload, "type")
		emitStatus(model.StatusEvent{Kind: model.StatusSubscribed, Channel: channel, Message: typ})
		return
	}

	typ, _ := jsonparser.GetString(payload, "type")
	kind := model.RecordKind(typ)
	now := time.Now().UTC()

	switch channel {
	case ChannelTicker:
		_, _ = jsonparser.ArrayEach(payload, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
			symbol, err := jsonparser.GetString(value, "symbol")
			if err != nil || symbol == "" {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: channel, Message: "ticker missing symbol"})
				return
			}
			emitTicker(model.TickerRecord{
				Timestamp: now, Symbol: symbol, Kind: kind,
				Bid:       fastFloat(value, "bid"),
				BidQty:    fastFloat(value, "bid_qty"),
				Ask:       fastFloat(value, "ask"),
				AskQty:    fastFloat(value, "ask_qty"),
				Last:      fastFloat(value, "last"),
				Volume:    fastFloat(value, "volume"),
				VWAP:      fastFloat(value, "vwap"),
				Low:       fastFloat(value, "low"),
				High:      fastFloat(value, "high"),
				Change:    fastFloat(value, "change"),
				ChangePct: fastFloat(value, "change_pct"),
			})
		}, "data")

	case ChannelBook:
		_, _ = jsonparser.ArrayEach(payload, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
			symbol, err := jsonparser.GetString(value, "symbol")
			if err != nil || symbol == "" {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: channel, Message: "book missing symbol"})
				return
			}
			checksum, _ := jsonparser.GetInt(value, "checksum")
			emitL2(model.OrderBookRecord{
				Timestamp: now, Symbol: symbol, Kind: kind,
				Bids:     fastLevels(value, "bids"),
				Asks:     fastLevels(value, "asks"),
				Checksum: uint32(checksum),
			})
		}, "data")

	case ChannelLevel3:
		_, _ = jsonparser.ArrayEach(payload, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
			symbol, err := jsonparser.GetString(value, "symbol")
			if err != nil || symbol == "" {
				emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: channel, Message: "level3 missing symbol"})
				return
			}
			checksum, _ := jsonparser.GetInt(value, "checksum")
			emitL3(model.Level3Record{
				Timestamp: now, Symbol: symbol, Kind: kind,
				Bids:     fastOrders(value, "bids"),
				Asks:     fastOrders(value, "asks"),
				Checksum: uint32(checksum),
			})
		}, "data")

	default:
		emitStatus(model.StatusEvent{Kind: model.StatusError, Channel: channel, Message: "unknown channel " + channel})
	}
}

func fastFloat(data []byte, key string) float64 {
	v, err := jsonparser.GetFloat(data, key)
	if err != nil {
		return 0.0
	}
	return v
}

func fastLevels(data []byte, key string) []model.PriceLevel {
	var out []model.PriceLevel
	_, _ = jsonparser.ArrayEach(data, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		price, _ := jsonparser.GetFloat(value, "price")
		qty, _ := jsonparser.GetFloat(value, "qty")
		out = append(out, model.PriceLevel{Price: price, Qty: qty})
	}, key)
	return out
}

func fastOrders(data []byte, key string) []model.Level3Order {
	var out []model.Level3Order
	_, _ = jsonparser.ArrayEach(data, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		orderID, _ := jsonparser.GetString(value, "order_id")
		price, _ := jsonparser.GetFloat(value, "limit_price")
		qty, _ := jsonparser.GetFloat(value, "order_qty")
		tsStr, _ := jsonparser.GetString(value, "timestamp")
		ts, _ := time.Parse(time.RFC3339, tsStr)
		event, _ := jsonparser.GetString(value, "event")
		out = append(out, model.Level3Order{
			OrderID: orderID, Price: price, Qty: qty,
			Timestamp: ts, Event: model.OrderEvent(event),
		})
	}, key)
	return out
}
