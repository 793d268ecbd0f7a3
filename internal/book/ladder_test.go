package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jormun/internal/common"
)

func bidOrder(price, size string, id uint64) common.BookOrder {
	return common.NewBookOrder(common.Buy,
		common.MustPriceFromStr(price), common.MustQuantityFromStr(size), id)
}

func askOrder(price, size string, id uint64) common.BookOrder {
	return common.NewBookOrder(common.Sell,
		common.MustPriceFromStr(price), common.MustQuantityFromStr(size), id)
}

func TestLadder_BidOrdering(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Add(bidOrder("99.00", "1", 1))
	l.Add(bidOrder("101.00", "1", 2))
	l.Add(bidOrder("100.00", "1", 3))

	best, ok := l.BestPrice()
	assert.True(t, ok)
	assert.Equal(t, "101.00", best.String())

	levels := l.Levels(0)
	assert.Len(t, levels, 3)
	assert.Equal(t, "101.00", levels[0].Price.String())
	assert.Equal(t, "100.00", levels[1].Price.String())
	assert.Equal(t, "99.00", levels[2].Price.String())
}

func TestLadder_AskOrdering(t *testing.T) {
	l := NewLadder(common.Sell)
	l.Add(askOrder("101.00", "1", 1))
	l.Add(askOrder("99.00", "1", 2))

	best, ok := l.BestPrice()
	assert.True(t, ok)
	assert.Equal(t, "99.00", best.String())
}

func TestLadder_AggregatesLevelSize(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Add(bidOrder("100.00", "5", 1))
	l.Add(bidOrder("100.00", "3", 2))

	size, ok := l.BestSize()
	assert.True(t, ok)
	assert.Equal(t, "8", size.String())
	assert.Equal(t, 1, l.Len())
}

func TestLadder_UpdatePriceMove(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Add(bidOrder("100.00", "5", 1))
	l.Update(bidOrder("99.00", "5", 1))

	assert.Equal(t, 1, l.Len())
	best, _ := l.BestPrice()
	assert.Equal(t, "99.00", best.String())

	price, ok := l.OrderPrice(1)
	assert.True(t, ok)
	assert.Equal(t, "99.00", price.String())
}

func TestLadder_UpdateUnknownUpserts(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Update(bidOrder("100.00", "5", 1))
	assert.True(t, l.Has(1))
	assert.Equal(t, 1, l.Len())
}

func TestLadder_UpdateZeroSizeRemoves(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Add(bidOrder("100.00", "5", 1))
	l.Update(common.NewBookOrder(common.Buy,
		common.MustPriceFromStr("100.00"), common.Quantity{Precision: 0}, 1))

	assert.False(t, l.Has(1))
	assert.True(t, l.IsEmpty())
}

func TestLadder_DeleteDropsEmptyLevel(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Add(bidOrder("100.00", "5", 1))
	l.Add(bidOrder("100.00", "3", 2))

	assert.True(t, l.Delete(1))
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.Delete(2))
	assert.True(t, l.IsEmpty())
	assert.False(t, l.Delete(2))
}

func TestLadder_RemoveLevelCleansCache(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Add(bidOrder("100.00", "5", 1))
	l.Add(bidOrder("100.00", "3", 2))
	l.Add(bidOrder("99.00", "2", 3))

	level, ok := l.RemoveLevel(common.MustPriceFromStr("100.00"))
	assert.True(t, ok)
	assert.Equal(t, 2, level.Len())
	assert.False(t, l.Has(1))
	assert.False(t, l.Has(2))
	assert.True(t, l.Has(3))
}

func TestLadder_SizesAndExposures(t *testing.T) {
	l := NewLadder(common.Buy)
	l.Add(bidOrder("100.00", "5", 1))
	l.Add(bidOrder("99.00", "2", 2))

	assert.InDelta(t, 7, l.Sizes(), 1e-9)
	assert.InDelta(t, 100.00*5+99.00*2, l.Exposures(), 1e-9)
}

func TestLadder_SimulateFills_RespectsLimit(t *testing.T) {
	asks := NewLadder(common.Sell)
	asks.Add(askOrder("100.50", "8", 1))
	asks.Add(askOrder("101.00", "4", 2))

	// A buy limited to 100.50 never reaches the second level.
	fills := asks.SimulateFills(common.NewBookOrder(
		common.Buy, common.MustPriceFromStr("100.50"), common.MustQuantityFromStr("10"), 0))
	assert.Len(t, fills, 1)
	assert.Equal(t, "100.50", fills[0].Price.String())
	assert.Equal(t, "8", fills[0].Size.String())
}

func TestLadder_SimulateFills_MarketPartialLevel(t *testing.T) {
	asks := NewLadder(common.Sell)
	asks.Add(askOrder("100.50", "8", 1))
	asks.Add(askOrder("101.00", "4", 2))

	fills := asks.SimulateFills(common.NewBookOrder(
		common.Buy, common.NullPrice, common.MustQuantityFromStr("10"), 0))
	assert.Len(t, fills, 2)
	assert.Equal(t, "8", fills[0].Size.String())
	assert.Equal(t, "2", fills[1].Size.String())
	assert.Equal(t, "101.00", fills[1].Price.String())
}

func TestLevel_UpdateKeepsPositionOnReduction(t *testing.T) {
	level := NewLevel(common.MustPriceFromStr("100.00"), common.Buy)
	level.Add(bidOrder("100.00", "5", 1))
	level.Add(bidOrder("100.00", "3", 2))

	level.Update(bidOrder("100.00", "2", 1))
	first, ok := level.First()
	assert.True(t, ok)
	assert.Equal(t, uint64(1), first.OrderID)
	assert.Equal(t, "2", first.Size.String())
}
