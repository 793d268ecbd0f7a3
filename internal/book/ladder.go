package book

import (
	"github.com/tidwall/btree"

	"jormun/internal/common"
)

// Fill is one (price, size) slice of a simulated execution.
type Fill struct {
	Price common.Price
	Size  common.Quantity
}

// Ladder is one side of an order book: an ordered collection of price
// levels, best price first. Bids sort descending, asks ascending, so
// the btree minimum is always the top of book. An order-id cache maps
// live ids to their level price for O(log L) updates and deletes.
type Ladder struct {
	Side   common.Side
	levels *btree.BTreeG[*Level]
	cache  map[uint64]common.Price
}

// NewLadder creates an empty ladder for the given side.
func NewLadder(side common.Side) *Ladder {
	var less func(a, b *Level) bool
	switch side {
	case common.Buy:
		// Sorted greatest first.
		less = func(a, b *Level) bool { return b.Price.Less(a.Price) }
	default:
		// Sorted least first.
		less = func(a, b *Level) bool { return a.Price.Less(b.Price) }
	}
	return &Ladder{
		Side:   side,
		levels: btree.NewBTreeG(less),
		cache:  make(map[uint64]common.Price),
	}
}

// Len returns the number of price levels.
func (l *Ladder) Len() int {
	return l.levels.Len()
}

// IsEmpty reports whether the ladder has no levels.
func (l *Ladder) IsEmpty() bool {
	return l.levels.Len() == 0
}

// Has reports whether an order id is live on this ladder.
func (l *Ladder) Has(orderID uint64) bool {
	_, ok := l.cache[orderID]
	return ok
}

// OrderPrice returns the level price an order id currently rests at.
func (l *Ladder) OrderPrice(orderID uint64) (common.Price, bool) {
	p, ok := l.cache[orderID]
	return p, ok
}

// Clear drops all levels and the id cache.
func (l *Ladder) Clear() {
	l.levels.Clear()
	l.cache = make(map[uint64]common.Price)
}

// Add appends an order to its level's FIFO queue, creating the level
// if absent.
func (l *Ladder) Add(order common.BookOrder) {
	l.cache[order.OrderID] = order.Price
	probe := &Level{Price: order.Price}
	if level, ok := l.levels.GetMut(probe); ok {
		level.Add(order)
		return
	}
	l.levels.Set(LevelFromOrder(order))
}

// Update modifies an existing order. A same-price update mutates the
// order in place (queue position preserved on size reductions); a price
// change removes then re-adds. Unknown ids are upserted.
func (l *Ladder) Update(order common.BookOrder) {
	price, ok := l.cache[order.OrderID]
	if ok {
		probe := &Level{Price: price}
		if level, found := l.levels.GetMut(probe); found {
			if order.Price.Equal(level.Price) {
				level.Update(order)
				if order.Size.IsZero() {
					delete(l.cache, order.OrderID)
				}
				if level.IsEmpty() {
					l.levels.Delete(probe)
				}
				return
			}

			// Price moved: delete at the old level, re-add below.
			delete(l.cache, order.OrderID)
			level.Delete(order.OrderID)
			if level.IsEmpty() {
				l.levels.Delete(probe)
			}
		}
	}

	if order.Size.IsZero() {
		return
	}
	l.Add(order)
}

// Delete removes an order by id, dropping its level if it empties.
// Unknown ids are a no-op; the book layer decides whether that is an
// error.
func (l *Ladder) Delete(orderID uint64) bool {
	price, ok := l.cache[orderID]
	if !ok {
		return false
	}
	delete(l.cache, orderID)
	probe := &Level{Price: price}
	if level, found := l.levels.GetMut(probe); found {
		level.Delete(orderID)
		if level.IsEmpty() {
			l.levels.Delete(probe)
		}
	}
	return true
}

// RemoveLevel removes and returns the whole level at a price.
func (l *Ladder) RemoveLevel(price common.Price) (*Level, bool) {
	probe := &Level{Price: price}
	level, ok := l.levels.Delete(probe)
	if !ok {
		return nil, false
	}
	for _, o := range level.Orders {
		delete(l.cache, o.OrderID)
	}
	return level, true
}

// Top returns the best level, nil if the ladder is empty.
func (l *Ladder) Top() (*Level, bool) {
	return l.levels.Min()
}

// BestPrice returns the price at the top of the ladder.
func (l *Ladder) BestPrice() (common.Price, bool) {
	top, ok := l.Top()
	if !ok {
		return common.Price{}, false
	}
	return top.Price, true
}

// BestSize returns the aggregate size at the top of the ladder.
func (l *Ladder) BestSize() (common.Quantity, bool) {
	top, ok := l.Top()
	if !ok {
		return common.Quantity{}, false
	}
	return top.SizeQty(), true
}

// IterTop yields up to n levels in best-first order. n <= 0 yields all.
func (l *Ladder) IterTop(n int, fn func(level *Level) bool) {
	count := 0
	l.levels.Scan(func(level *Level) bool {
		if n > 0 && count >= n {
			return false
		}
		count++
		return fn(level)
	})
}

// Levels returns up to n levels in best-first order. n <= 0 returns all.
func (l *Ladder) Levels(n int) []*Level {
	var out []*Level
	l.IterTop(n, func(level *Level) bool {
		out = append(out, level)
		return true
	})
	return out
}

// Sizes returns the total resting size on the ladder.
func (l *Ladder) Sizes() float64 {
	var total float64
	l.levels.Scan(func(level *Level) bool {
		total += level.Size()
		return true
	})
	return total
}

// Exposures returns the total resting notional on the ladder.
func (l *Ladder) Exposures() float64 {
	var total float64
	l.levels.Scan(func(level *Level) bool {
		total += level.Exposure()
		return true
	})
	return total
}

// SimulateFills walks the ladder best-first consuming liquidity until
// the order size is filled, the ladder is exhausted, or the next level
// would violate the order's limit. A null order price means no limit
// (market order).
func (l *Ladder) SimulateFills(order common.BookOrder) []Fill {
	var fills []Fill
	target := order.Size.AsFloat()
	var cumulative float64

	l.levels.Scan(func(level *Level) bool {
		if !order.Price.IsNull() {
			// The taker's limit: buying stops above it, selling below.
			if l.Side == common.Sell && order.Price.Less(level.Price) {
				return false
			}
			if l.Side == common.Buy && level.Price.Less(order.Price) {
				return false
			}
		}
		for _, resting := range level.Orders {
			current := resting.Size.AsFloat()
			if cumulative+current >= target {
				remainder := target - cumulative
				if remainder > 0 {
					size, err := common.QuantityFromFloat(remainder, order.Size.Precision)
					if err == nil && size.IsPositive() {
						fills = append(fills, Fill{Price: resting.Price, Size: size})
					}
				}
				cumulative = target
				return false
			}
			fills = append(fills, Fill{Price: resting.Price, Size: resting.Size})
			cumulative += current
		}
		return true
	})

	return fills
}
