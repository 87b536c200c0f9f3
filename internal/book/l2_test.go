package book

import (
	"testing"

	"github.com/gw/kraken-feed/internal/model"
)

// TestL2ApplySnapshotThenUpdate is §8 S3's literal scenario.
func TestL2ApplySnapshotThenUpdate(t *testing.T) {
	b := NewL2Book("BTC/USD")

	snapshotChecksum := ChecksumL2(
		[]model.PriceLevel{{Price: 100, Qty: 1.0}, {Price: 99, Qty: 2.0}},
		[]model.PriceLevel{{Price: 101, Qty: 0.5}},
	)
	if err := b.ApplySnapshot(model.OrderBookRecord{
		Symbol: "BTC/USD",
		Bids:   []model.PriceLevel{{Price: 100, Qty: 1.0}, {Price: 99, Qty: 2.0}},
		Asks:   []model.PriceLevel{{Price: 101, Qty: 0.5}},
		Checksum: snapshotChecksum,
	}); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}

	updateChecksum := ChecksumL2(
		[]model.PriceLevel{{Price: 99, Qty: 2.0}, {Price: 98, Qty: 3.0}},
		[]model.PriceLevel{{Price: 101, Qty: 0.5}},
	)
	err := b.ApplyUpdate(model.OrderBookRecord{
		Symbol: "BTC/USD",
		Bids:   []model.PriceLevel{{Price: 100, Qty: 0.0}, {Price: 98, Qty: 3.0}},
		Asks:   []model.PriceLevel{},
		Checksum: updateChecksum,
	})
	if err != nil {
		t.Fatalf("ApplyUpdate returned unexpected warning: %v", err)
	}

	if b.hasBid(100.0) {
		t.Error("price 100 should have been removed")
	}
	if qty := b.bids[99.0]; qty != 2.0 {
		t.Errorf("bids[99] = %v, want 2.0", qty)
	}
	if qty := b.bids[98.0]; qty != 3.0 {
		t.Errorf("bids[98] = %v, want 3.0", qty)
	}
	if qty := b.asks[101.0]; qty != 0.5 {
		t.Errorf("asks[101] = %v, want 0.5", qty)
	}

	bidPrice, _, _ := b.BestBid()
	askPrice, _, _ := b.BestAsk()
	if bidPrice >= askPrice {
		t.Errorf("best_bid (%v) should be < best_ask (%v)", bidPrice, askPrice)
	}
}

func (b *L2Book) hasBid(price float64) bool {
	_, ok := b.bids[price]
	return ok
}

func TestL2ApplySnapshotIdempotent(t *testing.T) {
	b := NewL2Book("BTC/USD")
	rec := model.OrderBookRecord{
		Symbol: "BTC/USD",
		Bids:   []model.PriceLevel{{Price: 100, Qty: 1.0}},
		Asks:   []model.PriceLevel{{Price: 101, Qty: 0.5}},
	}
	rec.Checksum = ChecksumL2(rec.Bids, rec.Asks)

	if err := b.ApplySnapshot(rec); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if err := b.ApplySnapshot(rec); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	bidPrice, bidQty, _ := b.BestBid()
	if bidPrice != 100 || bidQty != 1.0 {
		t.Errorf("best bid = (%v, %v), want (100, 1.0)", bidPrice, bidQty)
	}
	if len(b.bidPrices) != 1 {
		t.Errorf("re-applying the same snapshot should not duplicate price entries, got %v", b.bidPrices)
	}
}

func TestL2BestBidBelowBestAsk(t *testing.T) {
	b := NewL2Book("BTC/USD")
	rec := model.OrderBookRecord{
		Symbol: "BTC/USD",
		Bids:   []model.PriceLevel{{Price: 100, Qty: 1}, {Price: 99.5, Qty: 2}, {Price: 98, Qty: 1}},
		Asks:   []model.PriceLevel{{Price: 101, Qty: 1}, {Price: 102, Qty: 1}},
	}
	rec.Checksum = ChecksumL2(rec.Bids, rec.Asks)
	if err := b.ApplySnapshot(rec); err != nil {
		t.Fatal(err)
	}

	if len(b.bidPrices) != 3 || b.bidPrices[0] != 100 || b.bidPrices[2] != 98 {
		t.Errorf("bidPrices not sorted descending: %v", b.bidPrices)
	}
	if len(b.askPrices) != 2 || b.askPrices[0] != 101 {
		t.Errorf("askPrices not sorted ascending: %v", b.askPrices)
	}
	bidPrice, _, _ := b.BestBid()
	askPrice, _, _ := b.BestAsk()
	if bidPrice >= askPrice {
		t.Errorf("best_bid (%v) >= best_ask (%v)", bidPrice, askPrice)
	}
}

// TestL2ChecksumMismatchWarnsButStillApplies is §8 S5.
func TestL2ChecksumMismatchWarnsButStillApplies(t *testing.T) {
	b := NewL2Book("BTC/USD")
	rec := model.OrderBookRecord{
		Symbol:   "BTC/USD",
		Bids:     []model.PriceLevel{{Price: 100, Qty: 1}},
		Asks:     []model.PriceLevel{{Price: 101, Qty: 1}},
		Checksum: 0xDEADBEEF, // deliberately wrong
	}
	err := b.ApplySnapshot(rec)
	if err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
	if _, ok := err.(*ErrChecksumMismatch); !ok {
		t.Fatalf("expected *ErrChecksumMismatch, got %T", err)
	}

	bidPrice, bidQty, ok := b.BestBid()
	if !ok || bidPrice != 100 || bidQty != 1 {
		t.Errorf("state should still reflect the snapshot despite the mismatch: (%v, %v, %v)", bidPrice, bidQty, ok)
	}
}

func TestChecksumTrim(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{100, "100"},
		{0.5, "5"},
		{101.5, "1015"},
		{0, "0"},
	}
	for _, c := range cases {
		if got := formatChecksumNumber(c.in); got != c.want {
			t.Errorf("formatChecksumNumber(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
