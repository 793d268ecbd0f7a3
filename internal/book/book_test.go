package book

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"jormun/internal/common"
)

// --- Setup & Helpers --------------------------------------------------------

const testInstrument = "AAPL.XNAS"

var seqCounter uint64

func nextSeq() uint64 {
	seqCounter++
	return seqCounter
}

func delta(action common.BookAction, side common.Side, price, size string, orderID uint64) common.OrderBookDelta {
	var p common.Price
	var q common.Quantity
	if price != "" {
		p = common.MustPriceFromStr(price)
	}
	if size != "" {
		q = common.MustQuantityFromStr(size)
	}
	seq := nextSeq()
	return common.OrderBookDelta{
		InstrumentID: testInstrument,
		Action:       action,
		Order:        common.NewBookOrder(side, p, q, orderID),
		Flags:        common.FlagLast,
		Sequence:     seq,
		TsEvent:      seq,
	}
}

func applyAll(t *testing.T, b *OrderBook, deltas ...common.OrderBookDelta) {
	t.Helper()
	for _, d := range deltas {
		assert.NoError(t, b.ApplyDelta(d))
	}
}

// seedTopOfBook builds the canonical two-sided L2 state used across tests.
func seedTopOfBook(t *testing.T) *OrderBook {
	t.Helper()
	b := New(testInstrument, common.L2MBP)
	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "10", 0),
		delta(common.ActionAdd, common.Buy, "99.50", "5", 0),
		delta(common.ActionAdd, common.Sell, "100.50", "8", 0),
	)
	return b
}

// --- L2 basics --------------------------------------------------------------

func TestL2_TopOfBook(t *testing.T) {
	b := seedTopOfBook(t)

	bid, ok := b.BestBidPrice()
	assert.True(t, ok)
	assert.Equal(t, "100.00", bid.String())

	ask, ok := b.BestAskPrice()
	assert.True(t, ok)
	assert.Equal(t, "100.50", ask.String())

	spread, ok := b.Spread()
	assert.True(t, ok)
	assert.InDelta(t, 0.50, spread, 1e-9)

	mid, ok := b.Midpoint()
	assert.True(t, ok)
	assert.InDelta(t, 100.25, mid, 1e-9)

	bidSize, ok := b.BestBidSize()
	assert.True(t, ok)
	assert.Equal(t, "10", bidSize.String())

	levels, err := b.BidsAsMap(2)
	assert.NoError(t, err)
	assert.Equal(t, 2, levels.Len())
	q, _ := levels.Get(common.MustPriceFromStr("100.00"))
	assert.Equal(t, "10", q.String())
	q, _ = levels.Get(common.MustPriceFromStr("99.50"))
	assert.Equal(t, "5", q.String())
}

func TestL2_EmptySides(t *testing.T) {
	b := New(testInstrument, common.L2MBP)
	_, ok := b.BestBidPrice()
	assert.False(t, ok)
	_, ok = b.Spread()
	assert.False(t, ok)
	_, ok = b.Midpoint()
	assert.False(t, ok)
	assert.False(t, b.HasBid())
	assert.False(t, b.HasAsk())
}

func TestL2_AddReplacesLevelSize(t *testing.T) {
	b := New(testInstrument, common.L2MBP)
	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "10", 0),
		delta(common.ActionAdd, common.Buy, "100.00", "4", 0),
	)
	size, ok := b.BestBidSize()
	assert.True(t, ok)
	assert.Equal(t, "4", size.String())
	assert.Equal(t, 1, len(b.Bids(0)))
}

func TestL2_UpdateZeroSizeDeletes(t *testing.T) {
	b := seedTopOfBook(t)
	applyAll(t, b, delta(common.ActionUpdate, common.Buy, "100.00", "0", 0))

	bid, ok := b.BestBidPrice()
	assert.True(t, ok)
	assert.Equal(t, "99.50", bid.String())
}

func TestL2_Delete(t *testing.T) {
	b := seedTopOfBook(t)
	applyAll(t, b, delta(common.ActionDelete, common.Buy, "100.00", "10", 0))

	bid, ok := b.BestBidPrice()
	assert.True(t, ok)
	assert.Equal(t, "99.50", bid.String())
}

func TestClearAction_EmptiesBothSides(t *testing.T) {
	b := seedTopOfBook(t)
	applyAll(t, b, delta(common.ActionClear, common.NoSide, "", "", 0))
	assert.False(t, b.HasBid())
	assert.False(t, b.HasAsk())
}

func TestDelta_NoSideRejected(t *testing.T) {
	b := New(testInstrument, common.L2MBP)
	err := b.ApplyDelta(delta(common.ActionAdd, common.NoSide, "100.00", "10", 0))
	assert.ErrorIs(t, err, common.ErrNoOrderSide)
}

// --- VWAP walk --------------------------------------------------------------

func TestVWAPWalk(t *testing.T) {
	b := seedTopOfBook(t)
	applyAll(t, b, delta(common.ActionAdd, common.Sell, "101.00", "4", 0))

	avg := b.GetAvgPxForQuantity(common.MustQuantityFromStr("10"), common.Buy)
	assert.InDelta(t, 100.60, avg, 1e-9)

	avg, filled, remaining := b.GetAvgPxQtyForExposure(common.MustQuantityFromStr("20"), common.Buy)
	assert.InDelta(t, (100.50*8+101.00*4)/12, avg, 1e-9)
	assert.InDelta(t, 12, filled, 1e-9)
	assert.InDelta(t, 8, remaining, 1e-9)
}

func TestGetQuantityForPrice(t *testing.T) {
	b := seedTopOfBook(t)
	applyAll(t, b, delta(common.ActionAdd, common.Sell, "101.00", "4", 0))

	// A buyer willing to pay up to 100.50 only reaches the first ask.
	assert.InDelta(t, 8, b.GetQuantityForPrice(common.MustPriceFromStr("100.50"), common.Buy), 1e-9)
	// Up to 101.00 reaches both.
	assert.InDelta(t, 12, b.GetQuantityForPrice(common.MustPriceFromStr("101.00"), common.Buy), 1e-9)
	// A seller at 99.50 hits both bid levels.
	assert.InDelta(t, 15, b.GetQuantityForPrice(common.MustPriceFromStr("99.50"), common.Sell), 1e-9)
}

// --- L3 ---------------------------------------------------------------------

func TestL3_FIFOQueuePriority(t *testing.T) {
	b := New(testInstrument, common.L3MBO)
	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "5", 1),
		delta(common.ActionAdd, common.Buy, "100.00", "3", 2),
		// Size reduction keeps id=1 at the front of the queue.
		delta(common.ActionUpdate, common.Buy, "100.00", "2", 1),
	)

	fills := b.SimulateFills(common.NewBookOrder(
		common.Sell, common.NullPrice, common.MustQuantityFromStr("3"), 99))
	assert.Len(t, fills, 2)
	assert.Equal(t, "2", fills[0].Size.String())
	assert.Equal(t, "1", fills[1].Size.String())
	assert.Equal(t, "100.00", fills[0].Price.String())
	assert.Equal(t, "100.00", fills[1].Price.String())
}

func TestL3_SizeIncreaseMovesToTail(t *testing.T) {
	b := New(testInstrument, common.L3MBO)
	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "5", 1),
		delta(common.ActionAdd, common.Buy, "100.00", "3", 2),
		delta(common.ActionUpdate, common.Buy, "100.00", "7", 1),
	)

	levels := b.Bids(1)
	assert.Len(t, levels, 1)
	first, ok := levels[0].First()
	assert.True(t, ok)
	assert.Equal(t, uint64(2), first.OrderID)
}

func TestL3_PriceMoveRelocatesOrder(t *testing.T) {
	b := New(testInstrument, common.L3MBO)
	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "5", 1),
		delta(common.ActionUpdate, common.Buy, "99.00", "5", 1),
	)

	bid, ok := b.BestBidPrice()
	assert.True(t, ok)
	assert.Equal(t, "99.00", bid.String())
	assert.Equal(t, 1, len(b.Bids(0)))
}

func TestL3_DuplicateAdd_Strict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lenient = false
	b := NewWithConfig(testInstrument, common.L3MBO, cfg)

	assert.NoError(t, b.ApplyDelta(delta(common.ActionAdd, common.Buy, "100.00", "5", 1)))
	err := b.ApplyDelta(delta(common.ActionAdd, common.Buy, "99.00", "5", 1))
	assert.ErrorIs(t, err, ErrDuplicateOrderID)
}

func TestL3_DuplicateAdd_LenientTreatsAsUpdate(t *testing.T) {
	b := New(testInstrument, common.L3MBO)
	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "5", 1),
		delta(common.ActionAdd, common.Buy, "100.00", "8", 1),
	)
	size, ok := b.BestBidSize()
	assert.True(t, ok)
	assert.Equal(t, "8", size.String())
}

func TestL3_UnknownUpdate_Strict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lenient = false
	b := NewWithConfig(testInstrument, common.L3MBO, cfg)

	err := b.ApplyDelta(delta(common.ActionUpdate, common.Buy, "100.00", "5", 7))
	assert.ErrorIs(t, err, ErrUnknownOrderID)
}

func TestL3_UnknownDelete_LenientIgnored(t *testing.T) {
	b := New(testInstrument, common.L3MBO)
	assert.NoError(t, b.ApplyDelta(delta(common.ActionDelete, common.Buy, "100.00", "5", 7)))
	assert.False(t, b.HasBid())
}

// --- Crossed book -----------------------------------------------------------

func TestCrossedBook_TrimsTouchedSide(t *testing.T) {
	b := New(testInstrument, common.L2MBP)
	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "10", 0),
		delta(common.ActionAdd, common.Sell, "101.00", "8", 0),
		// Erroneous bid through the ask.
		delta(common.ActionUpdate, common.Buy, "101.50", "1", 0),
	)

	bid, ok := b.BestBidPrice()
	assert.True(t, ok)
	assert.Equal(t, "100.00", bid.String())
	ask, ok := b.BestAskPrice()
	assert.True(t, ok)
	assert.Equal(t, "101.00", ask.String())
	assert.False(t, b.Degraded())
	assert.Empty(t, b.CheckIntegrity())
}

func TestCrossedBook_DegradesPastTolerance(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CrossedBookTolerance = 0
	b := NewWithConfig(testInstrument, common.L2MBP, cfg)

	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "10", 0),
		delta(common.ActionAdd, common.Sell, "101.00", "8", 0),
	)
	err := b.ApplyDelta(delta(common.ActionUpdate, common.Buy, "101.50", "1", 0))
	assert.ErrorIs(t, err, ErrCrossedBook)
	assert.True(t, b.Degraded())
}

func TestCrossedBook_SnapshotRecovers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CrossedBookTolerance = 0
	b := NewWithConfig(testInstrument, common.L2MBP, cfg)

	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "10", 0),
		delta(common.ActionAdd, common.Sell, "101.00", "8", 0),
	)
	assert.Error(t, b.ApplyDelta(delta(common.ActionUpdate, common.Buy, "101.50", "1", 0)))
	assert.True(t, b.Degraded())

	depth := depthSnapshot("99.00", "10", "100.00", "5")
	depth.Sequence = nextSeq()
	assert.NoError(t, b.ApplyDepth(depth))
	assert.False(t, b.Degraded())
}

// --- Sequence policy --------------------------------------------------------

func TestSequence_RegressionStrict(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ValidateSequence = true
	b := NewWithConfig(testInstrument, common.L2MBP, cfg)

	d := delta(common.ActionAdd, common.Buy, "100.00", "10", 0)
	d.Sequence = 5
	assert.NoError(t, b.ApplyDelta(d))

	stale := delta(common.ActionAdd, common.Buy, "99.00", "5", 0)
	stale.Sequence = 3
	assert.ErrorIs(t, b.ApplyDelta(stale), ErrSequenceRegression)
	assert.Equal(t, uint64(6), b.ExpectedSequence())
}

func TestSequence_RegressionLenientApplies(t *testing.T) {
	b := New(testInstrument, common.L2MBP)

	d := delta(common.ActionAdd, common.Buy, "100.00", "10", 0)
	d.Sequence = 5
	assert.NoError(t, b.ApplyDelta(d))

	stale := delta(common.ActionAdd, common.Buy, "99.00", "5", 0)
	stale.Sequence = 3
	assert.NoError(t, b.ApplyDelta(stale))
	// The sequence never goes backwards even when the event applies.
	assert.Equal(t, uint64(5), b.Sequence)
	assert.Equal(t, 2, len(b.Bids(0)))
}

// --- Buffering and snapshots ------------------------------------------------

func TestBufferDeltas_HeldUntilLast(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BufferDeltas = true
	b := NewWithConfig(testInstrument, common.L2MBP, cfg)

	d1 := delta(common.ActionAdd, common.Buy, "100.00", "10", 0)
	d1.Flags = 0
	assert.NoError(t, b.ApplyDelta(d1))
	assert.False(t, b.HasBid())

	d2 := delta(common.ActionAdd, common.Sell, "101.00", "8", 0)
	assert.NoError(t, b.ApplyDelta(d2))
	assert.True(t, b.HasBid())
	assert.True(t, b.HasAsk())
}

func TestApplyDeltas_SnapshotClearsAffectedSide(t *testing.T) {
	b := seedTopOfBook(t)

	d := delta(common.ActionAdd, common.Buy, "98.00", "7", 0)
	d.Flags = common.FlagSnapshot | common.FlagLast
	assert.NoError(t, b.ApplyDeltas(common.OrderBookDeltas{
		InstrumentID: testInstrument,
		Deltas:       []common.OrderBookDelta{d},
	}))

	// Bid side replaced by the snapshot, ask side untouched.
	bid, ok := b.BestBidPrice()
	assert.True(t, ok)
	assert.Equal(t, "98.00", bid.String())
	assert.Equal(t, 1, len(b.Bids(0)))
	ask, ok := b.BestAskPrice()
	assert.True(t, ok)
	assert.Equal(t, "100.50", ask.String())
}

// --- Depth snapshots --------------------------------------------------------

func depthSnapshot(bidPrice, bidSize, askPrice, askSize string) common.OrderBookDepth10 {
	depth := common.OrderBookDepth10{InstrumentID: testInstrument, Flags: common.FlagLast}
	for i := 0; i < common.Depth10Len; i++ {
		depth.Bids[i] = common.DepthLevel{Order: common.NullOrder}
		depth.Asks[i] = common.DepthLevel{Order: common.NullOrder}
	}
	depth.Bids[0] = common.DepthLevel{
		Order: common.NewBookOrder(common.Buy,
			common.MustPriceFromStr(bidPrice), common.MustQuantityFromStr(bidSize), 0),
		Count: 1,
	}
	depth.Asks[0] = common.DepthLevel{
		Order: common.NewBookOrder(common.Sell,
			common.MustPriceFromStr(askPrice), common.MustQuantityFromStr(askSize), 0),
		Count: 1,
	}
	return depth
}

func TestApplyDepth_CrossedSnapshotIsFault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CrossedBookTolerance = 0
	b := NewWithConfig(testInstrument, common.L2MBP, cfg)

	depth := depthSnapshot("101.00", "10", "100.00", "5")
	depth.Sequence = nextSeq()
	assert.ErrorIs(t, b.ApplyDepth(depth), ErrCrossedBook)
	assert.True(t, b.Degraded())
	assert.NotEmpty(t, b.CheckIntegrity())
}

func TestApplyDepth_CrossedSnapshotCountsTowardTolerance(t *testing.T) {
	b := New(testInstrument, common.L2MBP)

	crossed := depthSnapshot("101.00", "10", "100.00", "5")
	crossed.Sequence = nextSeq()
	assert.NoError(t, b.ApplyDepth(crossed))
	assert.False(t, b.Degraded())

	crossed.Sequence = nextSeq()
	assert.ErrorIs(t, b.ApplyDepth(crossed), ErrCrossedBook)
	assert.True(t, b.Degraded())

	// A clean snapshot recovers.
	clean := depthSnapshot("99.00", "10", "100.00", "5")
	clean.Sequence = nextSeq()
	assert.NoError(t, b.ApplyDepth(clean))
	assert.False(t, b.Degraded())
	assert.Empty(t, b.CheckIntegrity())
}

func TestApplyDepth_CrossedSnapshotDoesNotRecoverDegraded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CrossedBookTolerance = 0
	b := NewWithConfig(testInstrument, common.L2MBP, cfg)

	applyAll(t, b,
		delta(common.ActionAdd, common.Buy, "100.00", "10", 0),
		delta(common.ActionAdd, common.Sell, "101.00", "8", 0),
	)
	assert.Error(t, b.ApplyDelta(delta(common.ActionUpdate, common.Buy, "101.50", "1", 0)))
	assert.True(t, b.Degraded())

	crossed := depthSnapshot("101.00", "10", "100.00", "5")
	crossed.Sequence = nextSeq()
	assert.ErrorIs(t, b.ApplyDepth(crossed), ErrCrossedBook)
	assert.True(t, b.Degraded())
}

func TestApplyDepth_ReplacesState(t *testing.T) {
	b := seedTopOfBook(t)

	depth := depthSnapshot("99.00", "3", "99.50", "4")
	depth.Sequence = nextSeq()
	assert.NoError(t, b.ApplyDepth(depth))

	assert.Equal(t, 1, len(b.Bids(0)))
	assert.Equal(t, 1, len(b.Asks(0)))
	bid, _ := b.BestBidPrice()
	assert.Equal(t, "99.00", bid.String())
	ask, _ := b.BestAskPrice()
	assert.Equal(t, "99.50", ask.String())
}

// --- L1 ---------------------------------------------------------------------

func TestL1_QuoteTick(t *testing.T) {
	b := New(testInstrument, common.L1MBP)
	quote := common.QuoteTick{
		InstrumentID: testInstrument,
		BidPrice:     common.MustPriceFromStr("100.00"),
		AskPrice:     common.MustPriceFromStr("100.10"),
		BidSize:      common.MustQuantityFromStr("10"),
		AskSize:      common.MustQuantityFromStr("8"),
		TsEvent:      1,
	}
	assert.NoError(t, b.UpdateQuoteTick(quote))

	bid, _ := b.BestBidPrice()
	assert.Equal(t, "100.00", bid.String())
	ask, _ := b.BestAskPrice()
	assert.Equal(t, "100.10", ask.String())

	// A second quote replaces, never accumulates.
	quote.BidPrice = common.MustPriceFromStr("100.05")
	quote.TsEvent = 2
	assert.NoError(t, b.UpdateQuoteTick(quote))
	assert.Equal(t, 1, len(b.Bids(0)))
	bid, _ = b.BestBidPrice()
	assert.Equal(t, "100.05", bid.String())
}

func TestL1_TradeTickReplacesBothSides(t *testing.T) {
	b := New(testInstrument, common.L1MBP)
	trade := common.TradeTick{
		InstrumentID: testInstrument,
		Price:        common.MustPriceFromStr("100.05"),
		Size:         common.MustQuantityFromStr("3"),
		TsEvent:      1,
	}
	assert.NoError(t, b.UpdateTradeTick(trade))

	bid, _ := b.BestBidPrice()
	ask, _ := b.BestAskPrice()
	assert.Equal(t, "100.05", bid.String())
	assert.Equal(t, "100.05", ask.String())
}

func TestL1_TicksRejectedOnL2(t *testing.T) {
	b := New(testInstrument, common.L2MBP)
	assert.ErrorIs(t, b.UpdateQuoteTick(common.QuoteTick{}), ErrInvalidBookType)
	assert.ErrorIs(t, b.UpdateTradeTick(common.TradeTick{}), ErrInvalidBookType)
}

func TestL1_DeleteMatchingTopClearsSide(t *testing.T) {
	b := New(testInstrument, common.L1MBP)
	applyAll(t, b, delta(common.ActionAdd, common.Buy, "100.00", "10", 0))
	applyAll(t, b, delta(common.ActionDelete, common.Buy, "100.00", "10", 0))
	assert.False(t, b.HasBid())
}

// --- Bookkeeping ------------------------------------------------------------

func TestIncrement_TracksMaxSequenceAndCount(t *testing.T) {
	b := seedTopOfBook(t)
	assert.Equal(t, uint64(3), b.UpdateCount)
	assert.Equal(t, b.TsLast, common.UnixNanos(b.Sequence))
}

func TestReset(t *testing.T) {
	b := seedTopOfBook(t)
	b.Reset()
	assert.False(t, b.HasBid())
	assert.False(t, b.HasAsk())
	assert.Equal(t, uint64(0), b.Sequence)
	assert.Equal(t, uint64(0), b.UpdateCount)
}

func TestCheckIntegrity_HealthyBook(t *testing.T) {
	b := seedTopOfBook(t)
	assert.Empty(t, b.CheckIntegrity())
}

func TestPprint(t *testing.T) {
	b := seedTopOfBook(t)
	out := b.Pprint(5)
	assert.Contains(t, out, "100.00")
	assert.Contains(t, out, "100.50")
	assert.Contains(t, out, testInstrument)
}
