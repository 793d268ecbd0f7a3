package book

import (
	"jormun/internal/common"
)

// BestBidPrice returns the top bid price, false when the side is empty.
func (b *OrderBook) BestBidPrice() (common.Price, bool) {
	return b.bids.BestPrice()
}

// BestAskPrice returns the top ask price, false when the side is empty.
func (b *OrderBook) BestAskPrice() (common.Price, bool) {
	return b.asks.BestPrice()
}

// BestBidSize returns the aggregate size at the top bid level.
func (b *OrderBook) BestBidSize() (common.Quantity, bool) {
	return b.bids.BestSize()
}

// BestAskSize returns the aggregate size at the top ask level.
func (b *OrderBook) BestAskSize() (common.Quantity, bool) {
	return b.asks.BestSize()
}

// Spread returns best_ask - best_bid, false if either side is empty.
func (b *OrderBook) Spread() (float64, bool) {
	bid, okBid := b.bids.BestPrice()
	ask, okAsk := b.asks.BestPrice()
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.AsFloat() - bid.AsFloat(), true
}

// Midpoint returns (best_bid + best_ask) / 2, false if either side is
// empty.
func (b *OrderBook) Midpoint() (float64, bool) {
	bid, okBid := b.bids.BestPrice()
	ask, okAsk := b.asks.BestPrice()
	if !okBid || !okAsk {
		return 0, false
	}
	return (ask.AsFloat() + bid.AsFloat()) / 2, true
}

// Bids returns up to n bid levels best-first. n <= 0 returns all.
func (b *OrderBook) Bids(n int) []*Level {
	return b.bids.Levels(n)
}

// Asks returns up to n ask levels best-first. n <= 0 returns all.
func (b *OrderBook) Asks(n int) []*Level {
	return b.asks.Levels(n)
}

// GetAvgPxForQuantity returns the volume-weighted average price to fill
// qty on the given taker side, walking the opposing ladder best-first.
// If liquidity runs out the VWAP of what was consumed is returned; zero
// if nothing could be consumed.
func (b *OrderBook) GetAvgPxForQuantity(qty common.Quantity, side common.Side) float64 {
	avg, _, _ := b.walk(qty.AsFloat(), side)
	return avg
}

// GetAvgPxQtyForExposure walks the opposing ladder for a target
// quantity and returns (vwap, filled, remaining) so callers can see
// partial fills.
func (b *OrderBook) GetAvgPxQtyForExposure(qty common.Quantity, side common.Side) (avgPx, filled, remaining float64) {
	return b.walk(qty.AsFloat(), side)
}

func (b *OrderBook) walk(target float64, side common.Side) (avgPx, filled, remaining float64) {
	opposing := b.opposing(side)
	if opposing == nil || target <= 0 {
		return 0, 0, target
	}
	var notional float64
	opposing.IterTop(0, func(level *Level) bool {
		available := level.Size()
		take := available
		if filled+take > target {
			take = target - filled
		}
		notional += level.Price.AsFloat() * take
		filled += take
		return filled < target
	})
	if filled > 0 {
		avgPx = notional / filled
	}
	return avgPx, filled, target - filled
}

// GetQuantityForPrice returns the total size available at prices at
// least as favorable as the given limit for a taker on side: at or
// below the limit across asks for a buy, at or above across bids for a
// sell.
func (b *OrderBook) GetQuantityForPrice(price common.Price, side common.Side) float64 {
	opposing := b.opposing(side)
	if opposing == nil {
		return 0
	}
	var total float64
	opposing.IterTop(0, func(level *Level) bool {
		if side == common.Buy && price.Less(level.Price) {
			return false
		}
		if side == common.Sell && level.Price.Less(price) {
			return false
		}
		total += level.Size()
		return true
	})
	return total
}

// SimulateFills walks the opposing ladder producing the (price, qty)
// slices a marketable order would take, respecting the order's limit
// price (null price means market).
func (b *OrderBook) SimulateFills(order common.BookOrder) []Fill {
	opposing := b.opposing(order.Side)
	if opposing == nil {
		return nil
	}
	return opposing.SimulateFills(order)
}

func (b *OrderBook) opposing(side common.Side) *Ladder {
	switch side {
	case common.Buy:
		return b.asks
	case common.Sell:
		return b.bids
	}
	return nil
}
