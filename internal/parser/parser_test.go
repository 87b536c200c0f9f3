package parser

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/gw/kraken-feed/internal/model"
)

func TestValidDepth(t *testing.T) {
	cases := []struct {
		channel string
		depth   int
		want    bool
	}{
		{ChannelBook, 10, true},
		{ChannelBook, 1000, true},
		{ChannelBook, 50, false},
		{ChannelLevel3, 10, true},
		{ChannelLevel3, 25, false},
		{ChannelTicker, 10, false},
	}
	for _, c := range cases {
		if got := ValidDepth(c.channel, c.depth); got != c.want {
			t.Errorf("ValidDepth(%q, %d) = %v, want %v", c.channel, c.depth, got, c.want)
		}
	}
}

func TestBuildSubscriptionBook(t *testing.T) {
	s, err := buildSubscription(ChannelBook, []string{"BTC/USD"}, SubscriptionOptions{Depth: 25})
	if err != nil {
		t.Fatalf("buildSubscription: %v", err)
	}
	var env subscribeEnvelope
	if err := json.Unmarshal([]byte(s), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Method != "subscribe" || env.Params.Channel != ChannelBook || env.Params.Depth != 25 {
		t.Errorf("unexpected envelope: %+v", env)
	}
	if env.Params.Snapshot {
		t.Error("book subscription should not force snapshot=true")
	}
}

func TestBuildSubscriptionLevel3(t *testing.T) {
	s, err := buildSubscription(ChannelLevel3, []string{"ETH/USD"}, SubscriptionOptions{Depth: 100, Token: "tok"})
	if err != nil {
		t.Fatalf("buildSubscription: %v", err)
	}
	if !strings.Contains(s, `"snapshot":true`) {
		t.Errorf("level3 subscription missing forced snapshot: %s", s)
	}
	if !strings.Contains(s, `"token":"tok"`) {
		t.Errorf("level3 subscription missing token: %s", s)
	}
}

// testParsers runs the same case against both backends, verifying
// backend-agnosticism per §9's design note.
func testParsers() []Parser {
	return []Parser{NewReflective(), NewFast()}
}

func TestParseMessageTicker(t *testing.T) {
	payload := []byte(`{"channel":"ticker","type":"update","data":[{"symbol":"BTC/USD","bid":100.5,"bid_qty":1.2,"ask":100.6,"ask_qty":0.8,"last":100.55,"volume":123.4,"vwap":100.1,"low":99,"high":101,"change":0.5,"change_pct":0.5}]}`)
	for _, p := range testParsers() {
		var gotSymbol string
		var gotBid float64
		p.ParseMessage(payload,
			func(r model.TickerRecord) { gotSymbol = r.Symbol; gotBid = r.Bid },
			func(r model.OrderBookRecord) {},
			func(r model.Level3Record) {},
			func(s model.StatusEvent) {},
		)
		if gotSymbol != "BTC/USD" {
			t.Errorf("%s: symbol = %q, want BTC/USD", p.Name(), gotSymbol)
		}
		if gotBid != 100.5 {
			t.Errorf("%s: bid = %v, want 100.5", p.Name(), gotBid)
		}
	}
}

func TestParseMessageBookSnapshot(t *testing.T) {
	payload := []byte(`{"channel":"book","type":"snapshot","data":[{"symbol":"BTC/USD","bids":[{"price":100,"qty":1}],"asks":[{"price":101,"qty":0.5}],"checksum":12345}]}`)
	for _, p := range testParsers() {
		var got model.OrderBookRecord
		p.ParseMessage(payload,
			func(model.TickerRecord) {},
			func(r model.OrderBookRecord) { got = r },
			func(model.Level3Record) {},
			func(model.StatusEvent) {},
		)
		if got.Symbol != "BTC/USD" || got.Kind != model.KindSnapshot {
			t.Fatalf("%s: unexpected record %+v", p.Name(), got)
		}
		if len(got.Bids) != 1 || got.Bids[0].Price != 100 || got.Bids[0].Qty != 1 {
			t.Errorf("%s: bids = %+v", p.Name(), got.Bids)
		}
		if got.Checksum != 12345 {
			t.Errorf("%s: checksum = %d, want 12345", p.Name(), got.Checksum)
		}
	}
}

func TestParseMessageLevel3Update(t *testing.T) {
	payload := []byte(`{"channel":"level3","type":"update","data":[{"symbol":"ETH/USD","bids":[{"event":"add","order_id":"A","limit_price":100,"order_qty":0.3,"timestamp":"2025-01-01T00:00:00.000000Z"}],"asks":[],"checksum":999}]}`)
	for _, p := range testParsers() {
		var got model.Level3Record
		p.ParseMessage(payload,
			func(model.TickerRecord) {},
			func(model.OrderBookRecord) {},
			func(r model.Level3Record) { got = r },
			func(model.StatusEvent) {},
		)
		if len(got.Bids) != 1 || got.Bids[0].OrderID != "A" || got.Bids[0].Event != model.EventAdd {
			t.Fatalf("%s: unexpected bids %+v", p.Name(), got.Bids)
		}
	}
}

func TestParseMessageHeartbeatAndMalformed(t *testing.T) {
	for _, p := range testParsers() {
		var statuses []model.StatusEvent
		emitStatus := func(s model.StatusEvent) { statuses = append(statuses, s) }

		p.ParseMessage([]byte(`{"channel":"heartbeat"}`),
			func(model.TickerRecord) {}, func(model.OrderBookRecord) {}, func(model.Level3Record) {}, emitStatus)
		if len(statuses) != 1 || statuses[0].Kind != model.StatusHeartbeat {
			t.Fatalf("%s: heartbeat statuses = %+v", p.Name(), statuses)
		}

		statuses = nil
		p.ParseMessage([]byte(`not json`),
			func(model.TickerRecord) {}, func(model.OrderBookRecord) {}, func(model.Level3Record) {}, emitStatus)
		if len(statuses) != 1 || statuses[0].Kind != model.StatusError {
			t.Fatalf("%s: malformed-json statuses = %+v", p.Name(), statuses)
		}
	}
}
