// Package own maintains a private mirror of this participant's live
// orders at a venue, keyed by client order id, and produces the
// per-price quantity maps used to subtract "me" from the public book.
package own

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/btree"

	"jormun/internal/common"
)

var (
	ErrUnknownClientOrderID = errors.New("unknown client order id")
	ErrNoOrderSide          = errors.New("own order has no side")
)

// Order is one of this participant's live orders.
type Order struct {
	ClientOrderID string
	VenueOrderID  string
	Side          common.Side
	Price         common.Price
	Size          common.Quantity
	Status        common.OrderStatus
	TsLast        common.UnixNanos
	TsAccepted    common.UnixNanos
	TsSubmitted   common.UnixNanos
	TsInit        common.UnixNanos
}

// Exposure returns price * size as a float notional.
func (o Order) Exposure() float64 {
	return o.Price.AsFloat() * o.Size.AsFloat()
}

// SignedSize returns +size for buys and -size for sells.
func (o Order) SignedSize() (float64, error) {
	switch o.Side {
	case common.Buy:
		return o.Size.AsFloat(), nil
	case common.Sell:
		return -o.Size.AsFloat(), nil
	}
	return 0, ErrNoOrderSide
}

func (o Order) String() string {
	return fmt.Sprintf("OwnOrder(client_order_id=%s, side=%s, price=%s, size=%s, status=%s)",
		o.ClientOrderID, o.Side, o.Price, o.Size, o.Status)
}

// Filter selects which own orders contribute to a derived view.
type Filter struct {
	// Statuses to include; nil means accepted orders only.
	Statuses map[common.OrderStatus]struct{}
	// AcceptedBufferNs is the minimum age since acceptance. A freshly
	// accepted order not yet reflected in the public book would be
	// double-counted when subtracting, so it is held out until aged.
	AcceptedBufferNs uint64
	// TsNow is the reference time for the age check.
	TsNow common.UnixNanos
}

// Statuses builds a status set for a filter.
func Statuses(statuses ...common.OrderStatus) map[common.OrderStatus]struct{} {
	set := make(map[common.OrderStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

func (f Filter) accepts(o Order) bool {
	if f.Statuses == nil {
		if o.Status != common.StatusAccepted {
			return false
		}
	} else if _, ok := f.Statuses[o.Status]; !ok {
		return false
	}
	if f.AcceptedBufferNs > 0 {
		if o.TsAccepted+f.AcceptedBufferNs > f.TsNow {
			return false
		}
	}
	return true
}

// level holds own orders resting at one price, in insertion order.
type level struct {
	price  common.Price
	orders []Order
}

// OrderBook is the own-order book for a single instrument. Its ladder
// layout mirrors the public book: bids descending, asks ascending.
type OrderBook struct {
	InstrumentID string
	UpdateCount  uint64
	TsLast       common.UnixNanos

	bids  *btree.BTreeG[*level]
	asks  *btree.BTreeG[*level]
	cache map[string]cacheEntry

	// acceptedBufferNs is the accepted-age threshold applied to
	// filtered views when a filter carries none of its own.
	acceptedBufferNs uint64
}

type cacheEntry struct {
	side  common.Side
	price common.Price
}

// New creates an empty own-order book.
func New(instrumentID string) *OrderBook {
	return NewWithBuffer(instrumentID, 0)
}

// NewWithBuffer creates an empty own-order book with a default
// accepted-age threshold for filtered views.
func NewWithBuffer(instrumentID string, acceptedBufferNs uint64) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *level) bool { return b.price.Less(a.price) })
	asks := btree.NewBTreeG(func(a, b *level) bool { return a.price.Less(b.price) })
	return &OrderBook{
		InstrumentID:     instrumentID,
		bids:             bids,
		asks:             asks,
		cache:            make(map[string]cacheEntry),
		acceptedBufferNs: acceptedBufferNs,
	}
}

// Len returns the number of live own orders.
func (b *OrderBook) Len() int {
	return len(b.cache)
}

func (b *OrderBook) side(s common.Side) *btree.BTreeG[*level] {
	if s == common.Buy {
		return b.bids
	}
	return b.asks
}

// Add inserts an order. An order with a live client order id is
// replaced, which keeps the at-most-one-price invariant.
func (b *OrderBook) Add(order Order, tsEvent common.UnixNanos) error {
	if order.Side != common.Buy && order.Side != common.Sell {
		return ErrNoOrderSide
	}
	if _, exists := b.cache[order.ClientOrderID]; exists {
		log.Warn().
			Str("instrument_id", b.InstrumentID).
			Str("client_order_id", order.ClientOrderID).
			Msg("own order re-added; replacing existing entry")
		b.removeByID(order.ClientOrderID)
	}
	b.insert(order)
	b.touch(tsEvent)
	return nil
}

// Update is an upsert: any existing entry for the client order id is
// removed and the order re-inserted atomically.
func (b *OrderBook) Update(order Order, tsEvent common.UnixNanos) error {
	if order.Side != common.Buy && order.Side != common.Sell {
		return ErrNoOrderSide
	}
	b.removeByID(order.ClientOrderID)
	b.insert(order)
	b.touch(tsEvent)
	return nil
}

// Delete removes the order with the given client order id.
func (b *OrderBook) Delete(clientOrderID string, tsEvent common.UnixNanos) error {
	if !b.removeByID(clientOrderID) {
		return fmt.Errorf("%w: %s", ErrUnknownClientOrderID, clientOrderID)
	}
	b.touch(tsEvent)
	return nil
}

// SetStatus transitions the order's status in place. A transition to
// accepted stamps ts_accepted.
func (b *OrderBook) SetStatus(clientOrderID string, status common.OrderStatus, tsEvent common.UnixNanos) error {
	entry, ok := b.cache[clientOrderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClientOrderID, clientOrderID)
	}
	lvl, ok := b.side(entry.side).GetMut(&level{price: entry.price})
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClientOrderID, clientOrderID)
	}
	for i := range lvl.orders {
		if lvl.orders[i].ClientOrderID != clientOrderID {
			continue
		}
		lvl.orders[i].Status = status
		lvl.orders[i].TsLast = tsEvent
		if status == common.StatusAccepted {
			lvl.orders[i].TsAccepted = tsEvent
		}
		b.touch(tsEvent)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownClientOrderID, clientOrderID)
}

// Clear drops all own orders.
func (b *OrderBook) Clear(tsEvent common.UnixNanos) {
	b.bids.Clear()
	b.asks.Clear()
	b.cache = make(map[string]cacheEntry)
	b.touch(tsEvent)
}

// Get returns a live order by client order id.
func (b *OrderBook) Get(clientOrderID string) (Order, bool) {
	entry, ok := b.cache[clientOrderID]
	if !ok {
		return Order{}, false
	}
	lvl, ok := b.side(entry.side).Get(&level{price: entry.price})
	if !ok {
		return Order{}, false
	}
	for _, o := range lvl.orders {
		if o.ClientOrderID == clientOrderID {
			return o, true
		}
	}
	return Order{}, false
}

// BidQuantityAt sums own bid orders with accepted status at the exact
// price.
func (b *OrderBook) BidQuantityAt(price common.Price) common.Quantity {
	return b.quantityAt(b.bids, price, Filter{})
}

// AskQuantityAt sums own ask orders with accepted status at the exact
// price.
func (b *OrderBook) AskQuantityAt(price common.Price) common.Quantity {
	return b.quantityAt(b.asks, price, Filter{})
}

// BidsAsMap materializes the per-price own bid quantities passing the
// filter, best price first. A filter without an accepted buffer picks
// up the book's default.
func (b *OrderBook) BidsAsMap(filter Filter) *common.QuantityMap {
	return asMap(b.bids, b.normalize(filter))
}

// AsksAsMap materializes the per-price own ask quantities passing the
// filter, best price first. A filter without an accepted buffer picks
// up the book's default.
func (b *OrderBook) AsksAsMap(filter Filter) *common.QuantityMap {
	return asMap(b.asks, b.normalize(filter))
}

func (b *OrderBook) normalize(filter Filter) Filter {
	if filter.AcceptedBufferNs == 0 {
		filter.AcceptedBufferNs = b.acceptedBufferNs
	}
	return filter
}

func (b *OrderBook) quantityAt(tree *btree.BTreeG[*level], price common.Price, filter Filter) common.Quantity {
	lvl, ok := tree.Get(&level{price: price})
	if !ok {
		return common.Quantity{}
	}
	var total common.Quantity
	for _, o := range lvl.orders {
		if !filter.accepts(o) {
			continue
		}
		total = common.SumQuantities(total, o.Size)
	}
	return total
}

func asMap(tree *btree.BTreeG[*level], filter Filter) *common.QuantityMap {
	out := common.NewQuantityMap()
	tree.Scan(func(lvl *level) bool {
		for _, o := range lvl.orders {
			if !filter.accepts(o) {
				continue
			}
			out.Add(lvl.price, o.Size)
		}
		return true
	})
	return out
}

func (b *OrderBook) insert(order Order) {
	tree := b.side(order.Side)
	probe := &level{price: order.Price}
	if lvl, ok := tree.GetMut(probe); ok {
		lvl.orders = append(lvl.orders, order)
	} else {
		tree.Set(&level{price: order.Price, orders: []Order{order}})
	}
	b.cache[order.ClientOrderID] = cacheEntry{side: order.Side, price: order.Price}
}

func (b *OrderBook) removeByID(clientOrderID string) bool {
	entry, ok := b.cache[clientOrderID]
	if !ok {
		return false
	}
	delete(b.cache, clientOrderID)
	tree := b.side(entry.side)
	probe := &level{price: entry.price}
	lvl, ok := tree.GetMut(probe)
	if !ok {
		return false
	}
	for i := range lvl.orders {
		if lvl.orders[i].ClientOrderID == clientOrderID {
			lvl.orders = append(lvl.orders[:i], lvl.orders[i+1:]...)
			break
		}
	}
	if len(lvl.orders) == 0 {
		tree.Delete(probe)
	}
	return true
}

func (b *OrderBook) touch(tsEvent common.UnixNanos) {
	b.TsLast = tsEvent
	b.UpdateCount++
}
