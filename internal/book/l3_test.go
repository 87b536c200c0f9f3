package book

import (
	"testing"

	"github.com/gw/kraken-feed/internal/model"
)

// TestL3ApplySnapshotThenUpdate is §8 S4's literal scenario: snapshot bid
// {A,100,1.0} -> add{B,100,0.5}, modify{A,qty:0.3}, delete{B}.
func TestL3ApplySnapshotThenUpdate(t *testing.T) {
	b := NewL3Book("BTC/USD")

	snapBids := []model.Level3Order{{OrderID: "A", Price: 100, Qty: 1.0}}
	if err := b.ApplySnapshot(model.Level3Record{
		Symbol:   "BTC/USD",
		Bids:     snapBids,
		Checksum: ChecksumL3(bucketsFor(snapBids), nil),
	}); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}

	update := model.Level3Record{
		Symbol: "BTC/USD",
		Bids: []model.Level3Order{
			{OrderID: "B", Price: 100, Qty: 0.5, Event: model.EventAdd},
			{OrderID: "A", Price: 100, Qty: 0.3, Event: model.EventModify},
			{OrderID: "B", Event: model.EventDelete},
		},
	}
	// recompute the checksum the book will see after A=0.3, B added then removed
	finalBids := []model.Level3Order{{OrderID: "A", Price: 100, Qty: 0.3}}
	update.Checksum = ChecksumL3(bucketsFor(finalBids), nil)

	if err := b.ApplyUpdate(update); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	if len(b.ordersByID) != 1 {
		t.Fatalf("orders_by_id = %v entries, want 1", len(b.ordersByID))
	}
	node, ok := b.ordersByID["A"]
	if !ok {
		t.Fatal("order A missing from orders_by_id")
	}
	if node.order.Price != 100 || node.order.Qty != 0.3 {
		t.Errorf("order A = %+v, want price=100 qty=0.3", node.order)
	}

	ids := b.OrderIDsAtPrice(true, 100)
	if len(ids) != 1 || ids[0] != "A" {
		t.Errorf("bids_by_price[100] = %v, want [A]", ids)
	}
	if n := b.OrdersAtBest(true); n != 1 {
		t.Errorf("orders_at_best_bid = %d, want 1", n)
	}
}

func TestL3AddOfExistingIDIsProtocolError(t *testing.T) {
	b := NewL3Book("BTC/USD")
	snapBids := []model.Level3Order{{OrderID: "A", Price: 100, Qty: 1}}
	if err := b.ApplySnapshot(model.Level3Record{
		Bids:     snapBids,
		Checksum: ChecksumL3(bucketsFor(snapBids), nil),
	}); err != nil {
		t.Fatalf("ApplySnapshot: %v", err)
	}

	err := b.ApplyUpdate(model.Level3Record{
		Bids: []model.Level3Order{{OrderID: "A", Price: 100, Qty: 2, Event: model.EventAdd}},
	})
	if err == nil {
		t.Fatal("expected an error re-adding an existing order_id")
	}
	if _, ok := err.(*ErrOrderExists); !ok {
		t.Fatalf("expected *ErrOrderExists, got %T: %v", err, err)
	}
}

func TestL3DeleteOfMissingIDIsProtocolError(t *testing.T) {
	b := NewL3Book("BTC/USD")
	_ = b.ApplySnapshot(model.Level3Record{})

	err := b.ApplyUpdate(model.Level3Record{
		Bids: []model.Level3Order{{OrderID: "ghost", Event: model.EventDelete}},
	})
	if err == nil {
		t.Fatal("expected an error deleting an unknown order_id")
	}
	if _, ok := err.(*ErrOrderMissing); !ok {
		t.Fatalf("expected *ErrOrderMissing, got %T: %v", err, err)
	}
}

// TestL3DoubleDeleteIsProtocolError covers property 2: deleting an
// already-deleted order is a protocol-state error, not a silent no-op.
func TestL3DoubleDeleteIsProtocolError(t *testing.T) {
	b := NewL3Book("BTC/USD")
	_ = b.ApplySnapshot(model.Level3Record{
		Bids: []model.Level3Order{{OrderID: "A", Price: 100, Qty: 1}},
	})

	if err := b.ApplyUpdate(model.Level3Record{
		Bids: []model.Level3Order{{OrderID: "A", Event: model.EventDelete}},
	}); err != nil {
		if _, ok := err.(*ErrChecksumMismatch); !ok {
			t.Fatalf("first delete should succeed, got %v", err)
		}
	}

	err := b.ApplyUpdate(model.Level3Record{
		Bids: []model.Level3Order{{OrderID: "A", Event: model.EventDelete}},
	})
	if _, ok := err.(*ErrOrderMissing); !ok {
		t.Fatalf("second delete of the same order_id should be ErrOrderMissing, got %T: %v", err, err)
	}
}

// TestL3FIFOOrderingAtPrice covers §8 property 8: orders resting at the
// same price preserve arrival order.
func TestL3FIFOOrderingAtPrice(t *testing.T) {
	b := NewL3Book("BTC/USD")
	_ = b.ApplySnapshot(model.Level3Record{
		Bids: []model.Level3Order{
			{OrderID: "A", Price: 100, Qty: 1},
			{OrderID: "B", Price: 100, Qty: 1},
			{OrderID: "C", Price: 100, Qty: 1},
		},
	})

	ids := b.OrderIDsAtPrice(true, 100)
	want := []string{"A", "B", "C"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}

	// removing the middle order preserves relative FIFO order of the rest
	_ = b.ApplyUpdate(model.Level3Record{
		Bids: []model.Level3Order{{OrderID: "B", Event: model.EventDelete}},
	})
	ids = b.OrderIDsAtPrice(true, 100)
	if len(ids) != 2 || ids[0] != "A" || ids[1] != "C" {
		t.Errorf("after deleting B, ids = %v, want [A C]", ids)
	}
}

func TestL3EventCounters(t *testing.T) {
	b := NewL3Book("BTC/USD")
	_ = b.ApplySnapshot(model.Level3Record{
		Bids: []model.Level3Order{{OrderID: "A", Price: 100, Qty: 1}},
	})
	_ = b.ApplyUpdate(model.Level3Record{
		Bids: []model.Level3Order{
			{OrderID: "B", Price: 100, Qty: 1, Event: model.EventAdd},
			{OrderID: "A", Price: 100, Qty: 0.5, Event: model.EventModify},
			{OrderID: "B", Event: model.EventDelete},
		},
	})
	if b.AddCount != 1 || b.ModifyCount != 1 || b.DeleteCount != 1 {
		t.Errorf("counters = add:%d modify:%d delete:%d, want 1/1/1", b.AddCount, b.ModifyCount, b.DeleteCount)
	}
}

func bucketsFor(orders []model.Level3Order) []priceBucket {
	byPrice := make(map[float64]*priceBucket)
	var order []float64
	for _, o := range orders {
		pb, ok := byPrice[o.Price]
		if !ok {
			pb = &priceBucket{price: o.Price}
			byPrice[o.Price] = pb
			order = append(order, o.Price)
		}
		pb.appendNode(&orderNode{order: o})
	}
	out := make([]priceBucket, len(order))
	for i, p := range order {
		out[i] = *byPrice[p]
	}
	return out
}
