package common

import (
	"errors"
	"fmt"
)

var ErrNoOrderSide = errors.New("order has no side")

// BookOrder is a single resting order in a public order book.
//
// For L3 books the order id is the venue order id and is unique across
// the whole book. For L1/L2 books the id is derived from the raw price
// so that per-side updates are idempotent.
type BookOrder struct {
	Side    Side
	Price   Price
	Size    Quantity
	OrderID uint64
}

// NullOrder marks an empty slot in fixed-width depth snapshots. It must
// never be inserted into a ladder.
var NullOrder = BookOrder{Side: NoSide, Price: NullPrice, Size: NullQuantity, OrderID: 0}

// NewBookOrder creates a book order.
func NewBookOrder(side Side, price Price, size Quantity, orderID uint64) BookOrder {
	return BookOrder{Side: side, Price: price, Size: size, OrderID: orderID}
}

// IsNull reports whether this is a snapshot padding entry.
func (o BookOrder) IsNull() bool {
	return o.Side == NoSide
}

// Equal reports order identity, which is the order id alone.
func (o BookOrder) Equal(other BookOrder) bool {
	return o.OrderID == other.OrderID
}

// Exposure returns price * size as a float notional.
func (o BookOrder) Exposure() float64 {
	return o.Price.AsFloat() * o.Size.AsFloat()
}

// SignedSize returns +size for buys and -size for sells.
func (o BookOrder) SignedSize() (float64, error) {
	switch o.Side {
	case Buy:
		return o.Size.AsFloat(), nil
	case Sell:
		return -o.Size.AsFloat(), nil
	}
	return 0, ErrNoOrderSide
}

func (o BookOrder) String() string {
	return fmt.Sprintf("BookOrder(side=%s, price=%s, size=%s, order_id=%d)",
		o.Side, o.Price, o.Size, o.OrderID)
}

// BookOrdersFromQuote synthesizes the bid and ask side book orders for
// a quote tick. Order ids are the raw price values, which keeps L1
// updates idempotent per side.
func BookOrdersFromQuote(quote QuoteTick) (bid, ask BookOrder) {
	bid = NewBookOrder(Buy, quote.BidPrice, quote.BidSize, uint64(quote.BidPrice.Raw))
	ask = NewBookOrder(Sell, quote.AskPrice, quote.AskSize, uint64(quote.AskPrice.Raw))
	return bid, ask
}

// BookOrdersFromTrade synthesizes both sides at the trade price with the
// trade size.
func BookOrdersFromTrade(trade TradeTick) (bid, ask BookOrder) {
	bid = NewBookOrder(Buy, trade.Price, trade.Size, uint64(trade.Price.Raw))
	ask = NewBookOrder(Sell, trade.Price, trade.Size, uint64(trade.Price.Raw))
	return bid, ask
}
