package book

import (
	"jormun/internal/common"
)

// Level is all resting orders at a single price on one side of the
// book. Orders are held in FIFO arrival order.
type Level struct {
	Price  common.Price
	Side   common.Side
	Orders []common.BookOrder
}

// NewLevel creates an empty level at the given price.
func NewLevel(price common.Price, side common.Side) *Level {
	return &Level{Price: price, Side: side}
}

// LevelFromOrder creates a level seeded with a single order.
func LevelFromOrder(order common.BookOrder) *Level {
	level := NewLevel(order.Price, order.Side)
	level.Add(order)
	return level
}

// Len returns the number of orders at this level.
func (l *Level) Len() int {
	return len(l.Orders)
}

// IsEmpty reports whether the level holds no orders.
func (l *Level) IsEmpty() bool {
	return len(l.Orders) == 0
}

// First returns the order at the front of the FIFO queue.
func (l *Level) First() (common.BookOrder, bool) {
	if len(l.Orders) == 0 {
		return common.BookOrder{}, false
	}
	return l.Orders[0], true
}

// Add appends an order to the back of the queue. If an order with the
// same id already rests here its entry is replaced in place instead,
// which is what L1/L2 price-derived ids rely on.
func (l *Level) Add(order common.BookOrder) {
	for i, existing := range l.Orders {
		if existing.OrderID == order.OrderID {
			l.Orders[i] = order
			return
		}
	}
	l.Orders = append(l.Orders, order)
}

// Update replaces the order with the same id. A size reduction keeps
// the order's queue position; a size increase moves it to the tail
// (venue-standard priority rule). Size zero removes the order.
func (l *Level) Update(order common.BookOrder) {
	for i, existing := range l.Orders {
		if existing.OrderID != order.OrderID {
			continue
		}
		if order.Size.IsZero() {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return
		}
		if c, err := order.Size.Compare(existing.Size); err == nil && c > 0 {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			l.Orders = append(l.Orders, order)
			return
		}
		l.Orders[i] = order
		return
	}
	l.Orders = append(l.Orders, order)
}

// Delete removes the order with the given id, reporting whether it was
// present.
func (l *Level) Delete(orderID uint64) bool {
	for i, existing := range l.Orders {
		if existing.OrderID == orderID {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return true
		}
	}
	return false
}

// Size returns the aggregate size at this level as a float.
func (l *Level) Size() float64 {
	var total float64
	for _, o := range l.Orders {
		total += o.Size.AsFloat()
	}
	return total
}

// SizeQty returns the aggregate size as an exact quantity.
func (l *Level) SizeQty() common.Quantity {
	var total common.Quantity
	for i, o := range l.Orders {
		if i == 0 {
			total = o.Size
			continue
		}
		total = common.SumQuantities(total, o.Size)
	}
	return total
}

// Exposure returns the total price * size notional at this level.
func (l *Level) Exposure() float64 {
	var total float64
	for _, o := range l.Orders {
		total += o.Exposure()
	}
	return total
}
