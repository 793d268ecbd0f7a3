package common

import "fmt"

// Depth10Len is the fixed number of levels per side in a depth snapshot.
const Depth10Len = 10

// OrderBookDelta is a single incremental change to an order book.
type OrderBookDelta struct {
	InstrumentID string
	Action       BookAction
	Order        BookOrder
	Flags        uint8
	Sequence     uint64
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

func (d OrderBookDelta) String() string {
	return fmt.Sprintf("OrderBookDelta(instrument_id=%s, action=%s, order=%s, flags=%d, sequence=%d, ts_event=%d)",
		d.InstrumentID, d.Action, d.Order, d.Flags, d.Sequence, d.TsEvent)
}

// IsLast reports the end-of-batch flag.
func (d OrderBookDelta) IsLast() bool {
	return d.Flags&FlagLast != 0
}

// IsSnapshot reports the snapshot flag.
func (d OrderBookDelta) IsSnapshot() bool {
	return d.Flags&FlagSnapshot != 0
}

// OrderBookDeltas is a contiguous batch of deltas for one instrument.
type OrderBookDeltas struct {
	InstrumentID string
	Deltas       []OrderBookDelta
}

// DepthLevel is one row of a fixed-width depth snapshot.
type DepthLevel struct {
	Order BookOrder
	Count uint32
}

// OrderBookDepth10 is a fixed 10-level-per-side book snapshot. Missing
// levels are encoded as the null order.
type OrderBookDepth10 struct {
	InstrumentID string
	Bids         [Depth10Len]DepthLevel
	Asks         [Depth10Len]DepthLevel
	Flags        uint8
	Sequence     uint64
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

// QuoteTick is a top-of-book quote update (drives L1 books only).
type QuoteTick struct {
	InstrumentID string
	BidPrice     Price
	AskPrice     Price
	BidSize      Quantity
	AskSize      Quantity
	TsEvent      UnixNanos
	TsInit       UnixNanos
}

func (q QuoteTick) String() string {
	return fmt.Sprintf("QuoteTick(instrument_id=%s, bid=%s@%s, ask=%s@%s, ts_event=%d)",
		q.InstrumentID, q.BidSize, q.BidPrice, q.AskSize, q.AskPrice, q.TsEvent)
}

// TradeTick is a single trade print (drives L1 books; informational for
// L2/L3).
type TradeTick struct {
	InstrumentID  string
	Price         Price
	Size          Quantity
	AggressorSide AggressorSide
	TradeID       string
	TsEvent       UnixNanos
	TsInit        UnixNanos
}

func (t TradeTick) String() string {
	return fmt.Sprintf("TradeTick(instrument_id=%s, price=%s, size=%s, trade_id=%s, ts_event=%d)",
		t.InstrumentID, t.Price, t.Size, t.TradeID, t.TsEvent)
}
