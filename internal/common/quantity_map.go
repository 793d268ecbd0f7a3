package common

// QuantityMap is an ordered projection of price -> aggregate quantity.
// Entries keep their insertion order, which for book views is always
// best price first. Values are owned copies; mutating a map never
// touches the book it was derived from.
type QuantityMap struct {
	prices []Price
	sizes  map[Price]Quantity
}

// NewQuantityMap creates an empty quantity map.
func NewQuantityMap() *QuantityMap {
	return &QuantityMap{sizes: make(map[Price]Quantity)}
}

// Len returns the number of price entries.
func (m *QuantityMap) Len() int {
	return len(m.prices)
}

// Get returns the quantity at a numerically equal price.
func (m *QuantityMap) Get(price Price) (Quantity, bool) {
	key, ok := m.lookup(price)
	if !ok {
		return Quantity{}, false
	}
	return m.sizes[key], true
}

// Set inserts or replaces the quantity at a price.
func (m *QuantityMap) Set(price Price, size Quantity) {
	key, ok := m.lookup(price)
	if !ok {
		m.prices = append(m.prices, price)
		key = price
	}
	m.sizes[key] = size
}

// Add accumulates size onto the entry at a price, creating it if absent.
func (m *QuantityMap) Add(price Price, size Quantity) {
	key, ok := m.lookup(price)
	if ok {
		m.sizes[key] = SumQuantities(m.sizes[key], size)
		return
	}
	m.prices = append(m.prices, price)
	m.sizes[price] = size
}

// Subtract reduces the entry at a price by size, clamped at zero.
// Entries reaching zero are dropped. Prices with no entry are ignored.
func (m *QuantityMap) Subtract(price Price, size Quantity) {
	key, ok := m.lookup(price)
	if !ok {
		return
	}
	remaining, underflow := subClamped(m.sizes[key], size)
	if underflow || remaining.IsZero() {
		m.remove(key)
		return
	}
	m.sizes[key] = remaining
}

// lookup resolves a price to the stored key. The fast path is an exact
// match; otherwise numerically equal prices of a different precision
// match by scanning, so "100.0" and "100.00" hit the same entry.
func (m *QuantityMap) lookup(price Price) (Price, bool) {
	if _, ok := m.sizes[price]; ok {
		return price, true
	}
	for _, p := range m.prices {
		if p.Precision != price.Precision && p.Equal(price) {
			return p, true
		}
	}
	return Price{}, false
}

// Prices returns the prices in insertion order. The slice is owned by
// the caller.
func (m *QuantityMap) Prices() []Price {
	out := make([]Price, len(m.prices))
	copy(out, m.prices)
	return out
}

// Each visits entries in insertion order until fn returns false.
func (m *QuantityMap) Each(fn func(price Price, size Quantity) bool) {
	for _, p := range m.prices {
		if !fn(p, m.sizes[p]) {
			return
		}
	}
}

// Truncate drops all entries beyond the first n.
func (m *QuantityMap) Truncate(n int) {
	if n < 0 || n >= len(m.prices) {
		return
	}
	for _, p := range m.prices[n:] {
		delete(m.sizes, p)
	}
	m.prices = m.prices[:n]
}

func (m *QuantityMap) remove(price Price) {
	delete(m.sizes, price)
	for i, p := range m.prices {
		if p == price {
			m.prices = append(m.prices[:i], m.prices[i+1:]...)
			return
		}
	}
}

// SumQuantities adds two quantities, aligning to the finer precision.
// Used for aggregation where operands may carry different precisions;
// alignment overflow saturates rather than wrapping.
func SumQuantities(a, b Quantity) Quantity {
	if a.Precision == b.Precision {
		return Quantity{Raw: a.Raw + b.Raw, Precision: a.Precision}
	}
	precision := a.Precision
	if b.Precision > precision {
		precision = b.Precision
	}
	ra, err := scaleRawU(a.Raw, precision-a.Precision)
	if err != nil {
		return a
	}
	rb, err := scaleRawU(b.Raw, precision-b.Precision)
	if err != nil {
		return a
	}
	return Quantity{Raw: ra + rb, Precision: precision}
}

// subClamped returns a - b aligned to the finer precision. The second
// return reports that b exceeded a.
func subClamped(a, b Quantity) (Quantity, bool) {
	precision := a.Precision
	if b.Precision > precision {
		precision = b.Precision
	}
	ra, err := scaleRawU(a.Raw, precision-a.Precision)
	if err != nil {
		return a, false
	}
	rb, err := scaleRawU(b.Raw, precision-b.Precision)
	if err != nil {
		return a, false
	}
	if rb >= ra {
		return Quantity{Precision: precision}, rb > ra
	}
	return Quantity{Raw: ra - rb, Precision: precision}, false
}
