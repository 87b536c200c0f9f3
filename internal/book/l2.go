// Package book reconstructs authoritative order-book state from Kraken's
// snapshot+delta stream, for both the aggregated (L2) and individual-order
// (L3) channels, and verifies the exchange-published CRC checksum.
package book

import (
	"fmt"
	"sort"
	"sync"

	"github.com/gw/kraken-feed/internal/model"
)

// ErrChecksumMismatch is returned by Apply* when the recomputed checksum
// disagrees with the one on the wire. Non-strict callers log it and keep
// the (already-applied) state; strict callers treat it as fatal per §7's
// "state" error kind.
type ErrChecksumMismatch struct {
	Symbol   string
	Expected uint32
	Got      uint32
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: received %d, recomputed %d", e.Symbol, e.Expected, e.Got)
}

// L2Book holds the aggregated price->quantity maps for one symbol, with
// the price keys kept sorted on every write so best_bid/best_ask and
// depth queries never need to re-sort. Grounded on kalshi/ws.go's
// Orderbook{Yes,No map[int]int}, generalized from int-cents keys to
// float64 and from sort-on-read to sort-on-write so the "best_bid <
// best_ask after every delta" invariant holds continuously, not just at
// render time.
type L2Book struct {
	mu     sync.RWMutex
	Symbol string

	bids      map[float64]float64
	asks      map[float64]float64
	bidPrices []float64 // descending
	askPrices []float64 // ascending

	lastChecksum uint32
}

func NewL2Book(symbol string) *L2Book {
	return &L2Book{
		Symbol: symbol,
		bids:   make(map[float64]float64),
		asks:   make(map[float64]float64),
	}
}

// ApplySnapshot replaces both sides wholesale and records the checksum.
func (b *L2Book) ApplySnapshot(r model.OrderBookRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = make(map[float64]float64, len(r.Bids))
	b.bidPrices = make([]float64, 0, len(r.Bids))
	for _, lvl := range r.Bids {
		if lvl.Qty <= 0 {
			continue
		}
		b.bids[lvl.Price] = lvl.Qty
		b.bidPrices = append(b.bidPrices, lvl.Price)
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(b.bidPrices)))

	b.asks = make(map[float64]float64, len(r.Asks))
	b.askPrices = make([]float64, 0, len(r.Asks))
	for _, lvl := range r.Asks {
		if lvl.Qty <= 0 {
			continue
		}
		b.asks[lvl.Price] = lvl.Qty
		b.askPrices = append(b.askPrices, lvl.Price)
	}
	sort.Float64s(b.askPrices)

	return b.verifyChecksum(r.Checksum)
}

// ApplyUpdate applies each level delta: qty=0 removes the level,
// otherwise the level is set (inserted or overwritten).
func (b *L2Book) ApplyUpdate(r model.OrderBookRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, lvl := range r.Bids {
		b.setLevel(true, lvl)
	}
	for _, lvl := range r.Asks {
		b.setLevel(false, lvl)
	}

	return b.verifyChecksum(r.Checksum)
}

func (b *L2Book) setLevel(isBid bool, lvl model.PriceLevel) {
	prices, m := &b.askPrices, b.asks
	desc := false
	if isBid {
		prices, m = &b.bidPrices, b.bids
		desc = true
	}

	_, existed := m[lvl.Price]
	if lvl.Qty <= 0 {
		if existed {
			delete(m, lvl.Price)
			*prices = removeSorted(*prices, lvl.Price, desc)
		}
		return
	}

	m[lvl.Price] = lvl.Qty
	if !existed {
		*prices = insertSorted(*prices, lvl.Price, desc)
	}
}

// verifyChecksum recomputes and compares; on mismatch it returns
// ErrChecksumMismatch but the state has already been applied — per
// §4.6, a mismatch is a warning by default and the caller (the ingestion
// client) decides whether its strict-mode setting escalates this to
// fatal.
func (b *L2Book) verifyChecksum(received uint32) error {
	got := ChecksumL2(b.levelsLocked(true), b.levelsLocked(false))
	b.lastChecksum = got
	if got != received {
		return &ErrChecksumMismatch{Symbol: b.Symbol, Expected: received, Got: got}
	}
	return nil
}

func (b *L2Book) levelsLocked(bid bool) []model.PriceLevel {
	prices, m := b.askPrices, b.asks
	if bid {
		prices, m = b.bidPrices, b.bids
	}
	out := make([]model.PriceLevel, len(prices))
	for i, p := range prices {
		out[i] = model.PriceLevel{Price: p, Qty: m[p]}
	}
	return out
}

// BestBid and BestAsk are O(1): the top of each sorted slice.
func (b *L2Book) BestBid() (price, qty float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.bidPrices) == 0 {
		return 0, 0, false
	}
	p := b.bidPrices[0]
	return p, b.bids[p], true
}

func (b *L2Book) BestAsk() (price, qty float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.askPrices) == 0 {
		return 0, 0, false
	}
	p := b.askPrices[0]
	return p, b.asks[p], true
}

// DepthWithinBps sums quantity on side within bps basis points of mid.
func (b *L2Book) DepthWithinBps(bid bool, mid float64, bps float64) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	bound := mid * bps / 10000.0
	var total float64
	if bid {
		for _, p := range b.bidPrices {
			if mid-p > bound {
				break
			}
			total += b.bids[p]
		}
	} else {
		for _, p := range b.askPrices {
			if p-mid > bound {
				break
			}
			total += b.asks[p]
		}
	}
	return total
}

// VolumeTopN sums quantity over the top n levels on side.
func (b *L2Book) VolumeTopN(bid bool, n int) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	prices, m := b.askPrices, b.asks
	if bid {
		prices, m = b.bidPrices, b.bids
	}
	var total float64
	for i := 0; i < len(prices) && i < n; i++ {
		total += m[prices[i]]
	}
	return total
}

func insertSorted(s []float64, v float64, desc bool) []float64 {
	i := sort.Search(len(s), func(i int) bool {
		if desc {
			return s[i] <= v
		}
		return s[i] >= v
	})
	s = append(s, 0)
	copy(s[i+1:], s[i:])
	s[i] = v
	return s
}

func removeSorted(s []float64, v float64, desc bool) []float64 {
	i := sort.Search(len(s), func(i int) bool {
		if desc {
			return s[i] <= v
		}
		return s[i] >= v
	})
	if i < len(s) && s[i] == v {
		s = append(s[:i], s[i+1:]...)
	}
	return s
}
