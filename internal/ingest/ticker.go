package ingest

import (
	"github.com/gw/kraken-feed/internal/model"
	"github.com/gw/kraken-feed/internal/parser"
)

// NewTickerClient builds the L1 Ingestion Client: no book state, one
// record per ticker payload.
func NewTickerClient(url string, symbols []string, p parser.Parser, w RecordWriter[model.TickerRecord]) *Client[model.TickerRecord] {
	decode := func(payload []byte, onRecord func(model.TickerRecord), onStatus func(kind, channel, message string, err error)) {
		p.ParseMessage(payload,
			func(r model.TickerRecord) { onRecord(r) },
			func(model.OrderBookRecord) {},
			func(model.Level3Record) {},
			func(ev model.StatusEvent) { onStatus(string(ev.Kind), ev.Channel, ev.Message, ev.Err) },
		)
	}
	return newClient(url, parser.ChannelTicker, symbols, parser.SubscriptionOptions{}, p, w, decode)
}
