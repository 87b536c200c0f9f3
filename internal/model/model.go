// Package model defines the wire-level record types produced by the parser
// and consumed by the writer, book state, and metrics engine.
package model

import "time"

// RecordKind distinguishes a full book/ticker emission from an incremental one.
type RecordKind string

const (
	KindSnapshot RecordKind = "snapshot"
	KindUpdate   RecordKind = "update"
)

// TickerRecord is a single Level 1 ticker emission.
type TickerRecord struct {
	Timestamp time.Time
	Symbol    string
	Kind      RecordKind

	Bid       float64
	BidQty    float64
	Ask       float64
	AskQty    float64
	Last      float64
	Volume    float64
	VWAP      float64
	Low       float64
	High      float64
	Change    float64
	ChangePct float64
}

// PriceLevel is a single price/quantity pair on an L2 book. A Qty of 0 in an
// update means "remove this level".
type PriceLevel struct {
	Price float64
	Qty   float64
}

// OrderBookRecord is a single Level 2 (aggregated) book emission.
type OrderBookRecord struct {
	Timestamp time.Time
	Symbol    string
	Kind      RecordKind
	Bids      []PriceLevel // descending price
	Asks      []PriceLevel // ascending price
	Checksum  uint32
}

// OrderEvent tags what happened to a Level 3 order in an update.
type OrderEvent string

const (
	EventAdd    OrderEvent = "add"
	EventModify OrderEvent = "modify"
	EventDelete OrderEvent = "delete"
)

// Level3Order is a single resting order as carried on the wire. Event is the
// zero value on a snapshot (all orders are implicitly present).
type Level3Order struct {
	OrderID   string
	Price     float64
	Qty       float64
	Timestamp time.Time
	Event     OrderEvent
}

// Level3Record is a single Level 3 (individual order) book emission.
type Level3Record struct {
	Timestamp time.Time
	Symbol    string
	Kind      RecordKind
	Bids      []Level3Order
	Asks      []Level3Order
	Checksum  uint32
}

// StatusKind classifies a non-data control or diagnostic event surfaced by
// the parser (subscription acks, heartbeats, and parse errors).
type StatusKind string

const (
	StatusSubscribed StatusKind = "subscribed"
	StatusHeartbeat  StatusKind = "heartbeat"
	StatusError      StatusKind = "error"
)

// StatusEvent is emitted for anything that is not a decoded data record.
type StatusEvent struct {
	Kind    StatusKind
	Channel string
	Message string
	Err     error
}
