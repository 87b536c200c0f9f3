package book

import (
	"fmt"
	"sync"

	"github.com/gw/kraken-feed/internal/model"
)

// ErrOrderExists is the protocol error for an `add` event naming an
// order_id already present in orders_by_id.
type ErrOrderExists struct{ OrderID string }

func (e *ErrOrderExists) Error() string { return fmt.Sprintf("order %q already exists", e.OrderID) }

// ErrOrderMissing is the protocol error for a `modify`/`delete` event
// naming an order_id not present in orders_by_id.
type ErrOrderMissing struct {
	OrderID string
	Event   model.OrderEvent
}

func (e *ErrOrderMissing) Error() string {
	return fmt.Sprintf("%s of unknown order %q", e.Event, e.OrderID)
}

// orderNode is one entry in a priceBucket's doubly-linked FIFO queue.
// Grounded directly on order-matching-engine/internal/orderbook/pricelevel.go's
// OrderNode: a back-pointer to its bucket enables O(1) removal by
// order_id without a linear scan, generalized here from the pricelevel.go
// integer-cents key to Kraken's opaque string order_id.
type orderNode struct {
	order  model.Level3Order
	isBid  bool
	prev   *orderNode
	next   *orderNode
	bucket *priceBucket
}

// priceBucket is the FIFO queue of orders resting at one price, the
// dual-index's price-keyed side of the bijection required by §9.
type priceBucket struct {
	price  float64
	head   *orderNode
	tail   *orderNode
	count  int
	qtySum float64
}

// totalQty sums the resting orders' quantities node by node, so the
// checksum does not see the rounding drift that qtySum accumulates across
// modify/delete adjustments.
func (pb *priceBucket) totalQty() float64 {
	var sum float64
	for n := pb.head; n != nil; n = n.next {
		sum += n.order.Qty
	}
	return sum
}

func (pb *priceBucket) appendNode(n *orderNode) {
	n.bucket = pb
	if pb.tail == nil {
		pb.head, pb.tail = n, n
	} else {
		n.prev = pb.tail
		pb.tail.next = n
		pb.tail = n
	}
	pb.count++
	pb.qtySum += n.order.Qty
}

func (pb *priceBucket) removeNode(n *orderNode) {
	pb.qtySum -= n.order.Qty
	pb.count--
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		pb.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		pb.tail = n.prev
	}
	n.prev, n.next, n.bucket = nil, nil, nil
}

// orderIDsLocked returns order_ids in FIFO arrival order — the
// "FIFO at price" invariant §8 property 8 asserts.
func (pb *priceBucket) orderIDsLocked() []string {
	out := make([]string, 0, pb.count)
	for n := pb.head; n != nil; n = n.next {
		out = append(out, n.order.OrderID)
	}
	return out
}

// L3Book is the dual-indexed Level 3 book state for one symbol:
// orders_by_id keyed by order_id, and a per-side map of price -> FIFO
// bucket. order_id is the stable linkage between the two views, per §9's
// guidance for ownership models that need indirection.
type L3Book struct {
	mu sync.RWMutex

	Symbol string

	ordersByID map[string]*orderNode
	bidBuckets map[float64]*priceBucket
	askBuckets map[float64]*priceBucket
	bidPrices  []float64 // descending
	askPrices  []float64 // ascending

	AddCount    int
	ModifyCount int
	DeleteCount int
}

func NewL3Book(symbol string) *L3Book {
	return &L3Book{
		Symbol:     symbol,
		ordersByID: make(map[string]*orderNode),
		bidBuckets: make(map[float64]*priceBucket),
		askBuckets: make(map[float64]*priceBucket),
	}
}

// ApplySnapshot inserts every standing order into both indices.
func (b *L3Book) ApplySnapshot(r model.Level3Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ordersByID = make(map[string]*orderNode)
	b.bidBuckets = make(map[float64]*priceBucket)
	b.askBuckets = make(map[float64]*priceBucket)
	b.bidPrices = nil
	b.askPrices = nil

	for _, o := range r.Bids {
		b.insertLocked(o, true)
	}
	for _, o := range r.Asks {
		b.insertLocked(o, false)
	}

	return b.verifyChecksum(r.Checksum)
}

// ApplyUpdate dispatches each order by its event tag. The first error
// encountered is returned after all orders in the frame are applied, so
// one protocol error does not mask a checksum check on the rest of the
// frame; callers decide whether to treat it as fatal (strict mode).
func (b *L3Book) ApplyUpdate(r model.Level3Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	apply := func(o model.Level3Order, isBid bool) {
		switch o.Event {
		case model.EventAdd:
			if _, exists := b.ordersByID[o.OrderID]; exists {
				if firstErr == nil {
					firstErr = &ErrOrderExists{OrderID: o.OrderID}
				}
				return
			}
			b.insertLocked(o, isBid)
			b.AddCount++
		case model.EventModify:
			n, exists := b.ordersByID[o.OrderID]
			if !exists {
				if firstErr == nil {
					firstErr = &ErrOrderMissing{OrderID: o.OrderID, Event: o.Event}
				}
				return
			}
			n.bucket.qtySum += o.Qty - n.order.Qty
			n.order.Qty = o.Qty
			n.order.Timestamp = o.Timestamp
			b.ModifyCount++
		case model.EventDelete:
			n, exists := b.ordersByID[o.OrderID]
			if !exists {
				if firstErr == nil {
					firstErr = &ErrOrderMissing{OrderID: o.OrderID, Event: o.Event}
				}
				return
			}
			b.removeLocked(n)
			b.DeleteCount++
		}
	}

	for _, o := range r.Bids {
		apply(o, true)
	}
	for _, o := range r.Asks {
		apply(o, false)
	}

	if err := b.verifyChecksum(r.Checksum); err != nil {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (b *L3Book) insertLocked(o model.Level3Order, isBid bool) {
	buckets, prices := b.askBuckets, &b.askPrices
	desc := false
	if isBid {
		buckets, prices = b.bidBuckets, &b.bidPrices
		desc = true
	}

	pb, ok := buckets[o.Price]
	if !ok {
		pb = &priceBucket{price: o.Price}
		buckets[o.Price] = pb
		*prices = insertSorted(*prices, o.Price, desc)
	}
	n := &orderNode{order: o, isBid: isBid}
	pb.appendNode(n)
	b.ordersByID[o.OrderID] = n
}

func (b *L3Book) removeLocked(n *orderNode) {
	pb := n.bucket
	price := pb.price
	isBid := n.isBid
	pb.removeNode(n)
	delete(b.ordersByID, n.order.OrderID)

	if pb.count == 0 {
		if isBid {
			delete(b.bidBuckets, price)
			b.bidPrices = removeSorted(b.bidPrices, price, true)
		} else {
			delete(b.askBuckets, price)
			b.askPrices = removeSorted(b.askPrices, price, false)
		}
	}
}

func (b *L3Book) verifyChecksum(received uint32) error {
	bids := make([]priceBucket, 0, len(b.bidPrices))
	for _, p := range b.bidPrices {
		bids = append(bids, *b.bidBuckets[p])
	}
	asks := make([]priceBucket, 0, len(b.askPrices))
	for _, p := range b.askPrices {
		asks = append(asks, *b.askBuckets[p])
	}
	got := ChecksumL3(bids, asks)
	if got != received {
		return &ErrChecksumMismatch{Symbol: b.Symbol, Expected: received, Got: got}
	}
	return nil
}

// BestBid/BestAsk are O(1).
func (b *L3Book) BestBid() (price float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bidPrices) == 0 {
		return 0, false
	}
	return b.bidPrices[0], true
}

func (b *L3Book) BestAsk() (price float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.askPrices) == 0 {
		return 0, false
	}
	return b.askPrices[0], true
}

// BestLevel returns the top price and its aggregated quantity on side,
// for analytics that need a qty alongside BestBid/BestAsk's price.
func (b *L3Book) BestLevel(isBid bool) (price, qty float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buckets, prices := b.askBuckets, b.askPrices
	if isBid {
		buckets, prices = b.bidBuckets, b.bidPrices
	}
	if len(prices) == 0 {
		return 0, 0, false
	}
	p := prices[0]
	return p, buckets[p].qtySum, true
}

// AggregatedLevels returns the side's price buckets as PriceLevel pairs,
// in the book's existing price order, for depth-window analytics.
func (b *L3Book) AggregatedLevels(isBid bool) []model.PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buckets, prices := b.askBuckets, b.askPrices
	if isBid {
		buckets, prices = b.bidBuckets, b.bidPrices
	}
	out := make([]model.PriceLevel, len(prices))
	for i, p := range prices {
		out[i] = model.PriceLevel{Price: p, Qty: buckets[p].qtySum}
	}
	return out
}

// DepthWithinBps sums aggregated quantity on side within bps of mid,
// mirroring L2Book.DepthWithinBps for L3's price-bucketed view.
func (b *L3Book) DepthWithinBps(isBid bool, mid, bps float64) float64 {
	bound := mid * bps / 10000.0
	var total float64
	for _, lvl := range b.AggregatedLevels(isBid) {
		if isBid {
			if mid-lvl.Price > bound {
				break
			}
		} else {
			if lvl.Price-mid > bound {
				break
			}
		}
		total += lvl.Qty
	}
	return total
}

// VolumeTopN sums aggregated quantity over the top n price levels.
func (b *L3Book) VolumeTopN(isBid bool, n int) float64 {
	levels := b.AggregatedLevels(isBid)
	var total float64
	for i := 0; i < len(levels) && i < n; i++ {
		total += levels[i].Qty
	}
	return total
}

// OrdersAtBest returns the count of order_ids at the top price on side.
func (b *L3Book) OrdersAtBest(isBid bool) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if isBid {
		if len(b.bidPrices) == 0 {
			return 0
		}
		return b.bidBuckets[b.bidPrices[0]].count
	}
	if len(b.askPrices) == 0 {
		return 0
	}
	return b.askBuckets[b.askPrices[0]].count
}

// OrderCount and AverageOrderSize satisfy §4.6's per-side query surface.
func (b *L3Book) OrderCount(isBid bool) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, _ := b.aggregateLocked(isBid)
	return n
}

func (b *L3Book) AverageOrderSize(isBid bool) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, qty := b.aggregateLocked(isBid)
	if n == 0 {
		return 0
	}
	return qty / float64(n)
}

func (b *L3Book) aggregateLocked(isBid bool) (count int, qty float64) {
	buckets, prices := b.askBuckets, b.askPrices
	if isBid {
		buckets, prices = b.bidBuckets, b.bidPrices
	}
	for _, p := range prices {
		pb := buckets[p]
		count += pb.count
		qty += pb.qtySum
	}
	return count, qty
}

// OrderIDsAtPrice exposes FIFO arrival order at a price, for tests
// asserting §8 property 8.
func (b *L3Book) OrderIDsAtPrice(isBid bool, price float64) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	buckets := b.askBuckets
	if isBid {
		buckets = b.bidBuckets
	}
	pb, ok := buckets[price]
	if !ok {
		return nil
	}
	return pb.orderIDsLocked()
}
