package book

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"jormun/internal/common"
	"jormun/internal/own"
)

var (
	ErrInvalidDepth     = errors.New("depth must be positive")
	ErrInvalidGroupSize = errors.New("group size must be positive")
)

// BidsAsMap returns the first depth bid levels as an ordered
// price -> aggregate quantity map.
func (b *OrderBook) BidsAsMap(depth int) (*common.QuantityMap, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return ladderAsMap(b.bids, depth), nil
}

// AsksAsMap returns the first depth ask levels as an ordered
// price -> aggregate quantity map.
func (b *OrderBook) AsksAsMap(depth int) (*common.QuantityMap, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return ladderAsMap(b.asks, depth), nil
}

// BidsFilteredAsMap computes the public bid map then subtracts own
// quantities at matching prices, clamped at zero. A nil own book is
// the unfiltered map.
func (b *OrderBook) BidsFilteredAsMap(depth int, ownBook *own.OrderBook, filter own.Filter) (*common.QuantityMap, error) {
	public, err := b.BidsAsMap(depth)
	if err != nil {
		return nil, err
	}
	if ownBook != nil {
		subtractOwn(public, ownBook.BidsAsMap(filter))
	}
	return public, nil
}

// AsksFilteredAsMap computes the public ask map then subtracts own
// quantities at matching prices, clamped at zero.
func (b *OrderBook) AsksFilteredAsMap(depth int, ownBook *own.OrderBook, filter own.Filter) (*common.QuantityMap, error) {
	public, err := b.AsksAsMap(depth)
	if err != nil {
		return nil, err
	}
	if ownBook != nil {
		subtractOwn(public, ownBook.AsksAsMap(filter))
	}
	return public, nil
}

// GroupBids buckets bid prices into multiples of groupSize, rounding
// down so the grouping is conservative for a taker, and returns up to
// depth buckets best-first.
func (b *OrderBook) GroupBids(groupSize decimal.Decimal, depth int) (*common.QuantityMap, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if !groupSize.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGroupSize, groupSize)
	}
	return groupMap(ladderAsMap(b.bids, 0), groupSize, depth, true)
}

// GroupAsks buckets ask prices into multiples of groupSize, rounding
// up, and returns up to depth buckets best-first.
func (b *OrderBook) GroupAsks(groupSize decimal.Decimal, depth int) (*common.QuantityMap, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if !groupSize.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGroupSize, groupSize)
	}
	return groupMap(ladderAsMap(b.asks, 0), groupSize, depth, false)
}

// GroupBidsFiltered subtracts own quantities at their exact prices
// first and groups the result, so an own order larger than its level
// cannot underflow a whole bucket.
func (b *OrderBook) GroupBidsFiltered(groupSize decimal.Decimal, depth int, ownBook *own.OrderBook, filter own.Filter) (*common.QuantityMap, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if !groupSize.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGroupSize, groupSize)
	}
	public := ladderAsMap(b.bids, 0)
	if ownBook != nil {
		subtractOwn(public, ownBook.BidsAsMap(filter))
	}
	return groupMap(public, groupSize, depth, true)
}

// GroupAsksFiltered subtracts own quantities at their exact prices
// first and groups the result.
func (b *OrderBook) GroupAsksFiltered(groupSize decimal.Decimal, depth int, ownBook *own.OrderBook, filter own.Filter) (*common.QuantityMap, error) {
	if depth <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if !groupSize.IsPositive() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidGroupSize, groupSize)
	}
	public := ladderAsMap(b.asks, 0)
	if ownBook != nil {
		subtractOwn(public, ownBook.AsksAsMap(filter))
	}
	return groupMap(public, groupSize, depth, false)
}

// ladderAsMap projects up to depth levels. depth <= 0 projects all.
func ladderAsMap(ladder *Ladder, depth int) *common.QuantityMap {
	out := common.NewQuantityMap()
	ladder.IterTop(depth, func(level *Level) bool {
		out.Set(level.Price, level.SizeQty())
		return true
	})
	return out
}

func subtractOwn(public *common.QuantityMap, ownMap *common.QuantityMap) {
	ownMap.Each(func(price common.Price, size common.Quantity) bool {
		public.Subtract(price, size)
		return true
	})
}

// groupMap buckets an ordered per-price map. Bids round buckets down,
// asks round up: the grouped ladder never looks better than the raw
// one to a taker.
func groupMap(levels *common.QuantityMap, groupSize decimal.Decimal, depth int, isBid bool) (*common.QuantityMap, error) {
	out := common.NewQuantityMap()
	var err error
	levels.Each(func(price common.Price, size common.Quantity) bool {
		bucket, convErr := bucketPrice(price, groupSize, isBid)
		if convErr != nil {
			err = convErr
			return false
		}
		out.Add(bucket, size)
		return out.Len() <= depth
	})
	if err != nil {
		return nil, err
	}
	out.Truncate(depth)
	return out, nil
}

// bucketPrice snaps a price onto the group grid using exact decimal
// arithmetic (price - price mod group, plus one group for asks off the
// grid).
func bucketPrice(price common.Price, groupSize decimal.Decimal, isBid bool) (common.Price, error) {
	d := price.AsDecimal()
	rem := d.Mod(groupSize)
	// Normalize the remainder for negative prices so bids always round
	// toward -inf and asks toward +inf.
	if rem.IsNegative() {
		rem = rem.Add(groupSize)
	}
	bucket := d.Sub(rem)
	if !isBid && !rem.IsZero() {
		bucket = bucket.Add(groupSize)
	}

	precision := int32(price.Precision)
	if exp := -groupSize.Exponent(); exp > precision {
		precision = exp
	}
	if precision > int32(common.MaxPrecision) {
		return common.Price{}, fmt.Errorf("%w: bucket precision %d", common.ErrOutOfRange, precision)
	}
	scaled := bucket.Shift(precision)
	if !scaled.IsInteger() {
		return common.Price{}, fmt.Errorf("%w: bucket %s at precision %d", common.ErrOutOfRange, bucket, precision)
	}
	return common.Price{Raw: scaled.IntPart(), Precision: uint8(precision)}, nil
}
