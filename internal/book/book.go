package book

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"jormun/internal/common"
)

var (
	ErrInvalidBookType    = errors.New("invalid book type for operation")
	ErrDuplicateOrderID   = errors.New("duplicate order id")
	ErrUnknownOrderID     = errors.New("unknown order id")
	ErrSequenceRegression = errors.New("sequence regression")
	ErrCrossedBook        = errors.New("crossed book")
)

// DefaultBookType is used when an instrument's feed starts without an
// explicit book type declaration.
const DefaultBookType = common.L2MBP

// Config carries the per-book behaviour switches recognized by the core.
type Config struct {
	// CrossedBookTolerance is the number of consecutive crossed updates
	// tolerated before the book enters the degraded state.
	CrossedBookTolerance uint32
	// ValidateSequence makes an out-of-order delta a fault instead of
	// being silently applied.
	ValidateSequence bool
	// BufferDeltas accumulates deltas until one carries FlagLast.
	BufferDeltas bool
	// Lenient downgrades duplicate/unknown order id faults to warnings
	// with the standard fallback behaviour.
	Lenient bool
}

// DefaultConfig returns a strict book with a tolerance of one crossing.
func DefaultConfig() Config {
	return Config{CrossedBookTolerance: 1, ValidateSequence: false, Lenient: true}
}

// OrderBook maintains one side ladder per market side for a single
// instrument, with update semantics selected by the book type:
//
//   - L1MBP: a single top-of-book level per side, driven by quote and
//     trade ticks or top-of-book deltas.
//   - L2MBP: one aggregated order per price level.
//   - L3MBO: every order, FIFO within its level.
//
// The book is single-writer: all apply operations must come from the
// owning goroutine. Queries return owned values and never retain
// references into the book.
type OrderBook struct {
	InstrumentID string
	BookType     common.BookType

	bids *Ladder
	asks *Ladder

	Sequence    uint64
	TsLast      common.UnixNanos
	UpdateCount uint64

	cfg          Config
	buffered     []common.OrderBookDelta
	crossedCount uint32
	degraded     bool
}

// New creates an empty order book with default configuration.
func New(instrumentID string, bookType common.BookType) *OrderBook {
	return NewWithConfig(instrumentID, bookType, DefaultConfig())
}

// NewWithConfig creates an empty order book.
func NewWithConfig(instrumentID string, bookType common.BookType, cfg Config) *OrderBook {
	return &OrderBook{
		InstrumentID: instrumentID,
		BookType:     bookType,
		bids:         NewLadder(common.Buy),
		asks:         NewLadder(common.Sell),
		cfg:          cfg,
	}
}

// Reset returns the book to its initial empty state.
func (b *OrderBook) Reset() {
	b.bids.Clear()
	b.asks.Clear()
	b.Sequence = 0
	b.TsLast = 0
	b.UpdateCount = 0
	b.buffered = nil
	b.crossedCount = 0
	b.degraded = false
}

// Degraded reports whether the book exceeded its crossed-book tolerance
// and is waiting for a fresh snapshot.
func (b *OrderBook) Degraded() bool {
	return b.degraded
}

// ExpectedSequence is the resynchronization hint for the feed adapter.
func (b *OrderBook) ExpectedSequence() uint64 {
	return b.Sequence + 1
}

// HasBid reports whether any bid order rests in the book.
func (b *OrderBook) HasBid() bool {
	return !b.bids.IsEmpty()
}

// HasAsk reports whether any ask order rests in the book.
func (b *OrderBook) HasAsk() bool {
	return !b.asks.IsEmpty()
}

func (b *OrderBook) ladder(side common.Side) *Ladder {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// ApplyDelta applies one incremental update. With BufferDeltas enabled
// the delta is held back until one carrying FlagLast arrives, then the
// run is applied in order. Each delta is atomic: on error the book is
// as it was before the offending delta.
func (b *OrderBook) ApplyDelta(delta common.OrderBookDelta) error {
	if b.cfg.BufferDeltas {
		b.buffered = append(b.buffered, delta)
		if !delta.IsLast() {
			return nil
		}
		run := b.buffered
		b.buffered = nil
		return b.applyRun(run)
	}
	return b.applyDelta(delta)
}

// ApplyDeltas applies a contiguous batch in order. If any delta carries
// FlagSnapshot the affected sides are cleared before the first add. In
// lenient mode a failed delta is logged and skipped; in strict mode the
// batch aborts at the failure (previous deltas stay applied).
func (b *OrderBook) ApplyDeltas(deltas common.OrderBookDeltas) error {
	return b.applyRun(deltas.Deltas)
}

func (b *OrderBook) applyRun(run []common.OrderBookDelta) error {
	if snapshotSides := snapshotSidesOf(run); snapshotSides != 0 {
		if snapshotSides&sideBitBid != 0 {
			b.bids.Clear()
		}
		if snapshotSides&sideBitAsk != 0 {
			b.asks.Clear()
		}
		b.recover()
	}
	for _, delta := range run {
		if err := b.applyDelta(delta); err != nil {
			if !b.cfg.Lenient {
				return err
			}
			log.Warn().
				Err(err).
				Str("instrument_id", b.InstrumentID).
				Str("delta", delta.String()).
				Msg("skipping failed delta")
		}
	}
	return nil
}

const (
	sideBitBid = 1 << iota
	sideBitAsk
)

// snapshotSidesOf returns the sides that must be cleared before a batch
// containing snapshot-flagged deltas is applied.
func snapshotSidesOf(run []common.OrderBookDelta) int {
	snapshot := false
	for _, d := range run {
		if d.IsSnapshot() {
			snapshot = true
			break
		}
	}
	if !snapshot {
		return 0
	}
	sides := 0
	for _, d := range run {
		if d.Action != common.ActionAdd {
			continue
		}
		switch d.Order.Side {
		case common.Buy:
			sides |= sideBitBid
		case common.Sell:
			sides |= sideBitAsk
		}
	}
	if sides == 0 {
		sides = sideBitBid | sideBitAsk
	}
	return sides
}

func (b *OrderBook) applyDelta(delta common.OrderBookDelta) error {
	if err := b.checkSequence(delta.Sequence); err != nil {
		return err
	}

	if delta.Action == common.ActionClear {
		b.bids.Clear()
		b.asks.Clear()
		b.recover()
		b.increment(delta.Sequence, delta.TsEvent)
		return nil
	}

	order := delta.Order
	if order.Side == common.NoSide {
		return common.ErrNoOrderSide
	}
	order = b.preProcess(order)

	action := delta.Action
	// An update to zero size is a delete in disguise.
	if action == common.ActionUpdate && order.Size.IsZero() {
		action = common.ActionDelete
	}

	switch action {
	case common.ActionAdd:
		if err := b.applyAdd(order); err != nil {
			return err
		}
	case common.ActionUpdate:
		if err := b.applyUpdate(order); err != nil {
			return err
		}
	case common.ActionDelete:
		if err := b.applyDelete(order); err != nil {
			return err
		}
	}

	b.increment(delta.Sequence, delta.TsEvent)
	b.resolveCrossed(order.Side)
	return b.degradePastTolerance()
}

// degradePastTolerance flips the book into the degraded state once the
// consecutive-crossing count exceeds the configured tolerance.
func (b *OrderBook) degradePastTolerance() error {
	if b.crossedCount <= b.cfg.CrossedBookTolerance {
		return nil
	}
	b.degraded = true
	log.Warn().
		Str("instrument_id", b.InstrumentID).
		Uint32("crossings", b.crossedCount).
		Msg("book degraded: crossed beyond tolerance")
	return fmt.Errorf("%w: %d consecutive crossings", ErrCrossedBook, b.crossedCount)
}

// preProcess rewrites an order per the book-type policy. MBP books
// derive the order id from the raw price so that one order represents
// the whole level.
func (b *OrderBook) preProcess(order common.BookOrder) common.BookOrder {
	switch b.BookType {
	case common.L1MBP, common.L2MBP:
		order.OrderID = uint64(order.Price.Raw)
	}
	return order
}

func (b *OrderBook) applyAdd(order common.BookOrder) error {
	ladder := b.ladder(order.Side)
	switch b.BookType {
	case common.L1MBP:
		b.replaceTop(ladder, order)
	case common.L2MBP:
		// Add at an existing price replaces the aggregated size.
		ladder.Update(order)
	case common.L3MBO:
		if ladder.Has(order.OrderID) || b.ladder(order.Side.Opposite()).Has(order.OrderID) {
			if !b.cfg.Lenient {
				return fmt.Errorf("%w: %d", ErrDuplicateOrderID, order.OrderID)
			}
			log.Warn().
				Str("instrument_id", b.InstrumentID).
				Uint64("order_id", order.OrderID).
				Msg("add with live order id treated as update")
			ladder.Update(order)
			return nil
		}
		ladder.Add(order)
	}
	return nil
}

func (b *OrderBook) applyUpdate(order common.BookOrder) error {
	ladder := b.ladder(order.Side)
	if b.BookType == common.L3MBO && !ladder.Has(order.OrderID) {
		if !b.cfg.Lenient {
			return fmt.Errorf("%w: %d", ErrUnknownOrderID, order.OrderID)
		}
		log.Warn().
			Str("instrument_id", b.InstrumentID).
			Uint64("order_id", order.OrderID).
			Msg("update for unknown order id upgraded to add")
	}
	if b.BookType == common.L1MBP {
		b.replaceTop(ladder, order)
		return nil
	}
	ladder.Update(order)
	return nil
}

func (b *OrderBook) applyDelete(order common.BookOrder) error {
	ladder := b.ladder(order.Side)
	if b.BookType == common.L1MBP {
		// A delete matching the current top clears that side.
		if top, ok := ladder.Top(); ok {
			if first, has := top.First(); has && first.OrderID == order.OrderID {
				ladder.Clear()
			}
		}
		return nil
	}
	if !ladder.Delete(order.OrderID) && b.BookType == common.L3MBO {
		if !b.cfg.Lenient {
			return fmt.Errorf("%w: %d", ErrUnknownOrderID, order.OrderID)
		}
		log.Warn().
			Str("instrument_id", b.InstrumentID).
			Uint64("order_id", order.OrderID).
			Msg("delete for unknown order id ignored")
	}
	return nil
}

// replaceTop swaps the single resting order of an L1 side.
func (b *OrderBook) replaceTop(ladder *Ladder, order common.BookOrder) {
	ladder.Clear()
	if order.Size.IsPositive() {
		ladder.Add(order)
	}
}

// ApplyDepth replaces the whole book state with a 10-level snapshot.
// Null-order slots are skipped. An uncrossed snapshot clears the
// degraded state; a crossed one counts as a crossing like any other
// mutation. The snapshot is installed as published either way, so a
// crossed venue state stays visible to CheckIntegrity.
func (b *OrderBook) ApplyDepth(depth common.OrderBookDepth10) error {
	if err := b.checkSequence(depth.Sequence); err != nil {
		return err
	}
	b.bids.Clear()
	b.asks.Clear()

	for _, entry := range depth.Bids {
		if entry.Order.IsNull() || !entry.Order.Size.IsPositive() {
			continue
		}
		b.bids.Add(b.preProcess(entry.Order))
	}
	for _, entry := range depth.Asks {
		if entry.Order.IsNull() || !entry.Order.Size.IsPositive() {
			continue
		}
		b.asks.Add(b.preProcess(entry.Order))
	}

	b.increment(depth.Sequence, depth.TsEvent)

	bestBid, hasBid := b.bids.BestPrice()
	bestAsk, hasAsk := b.asks.BestPrice()
	if hasBid && hasAsk && !bestBid.Less(bestAsk) {
		b.crossedCount++
		log.Warn().
			Str("instrument_id", b.InstrumentID).
			Str("best_bid", bestBid.String()).
			Str("best_ask", bestAsk.String()).
			Uint32("crossings", b.crossedCount).
			Msg("crossed depth snapshot")
		return b.degradePastTolerance()
	}

	b.recover()
	return nil
}

// UpdateQuoteTick replaces the single bid and ask with orders
// synthesized from a quote. Valid only for L1 books.
func (b *OrderBook) UpdateQuoteTick(quote common.QuoteTick) error {
	if b.BookType != common.L1MBP {
		return fmt.Errorf("%w: quote update on %s", ErrInvalidBookType, b.BookType)
	}
	bid, ask := common.BookOrdersFromQuote(quote)
	b.replaceTop(b.bids, bid)
	b.replaceTop(b.asks, ask)
	b.increment(b.Sequence+1, quote.TsEvent)
	return nil
}

// UpdateTradeTick replaces both sides at the trade price. Valid only
// for L1 books. A trade between the current bid and ask still replaces
// both sides; adapters wanting to ignore such prints filter upstream.
func (b *OrderBook) UpdateTradeTick(trade common.TradeTick) error {
	if b.BookType != common.L1MBP {
		return fmt.Errorf("%w: trade update on %s", ErrInvalidBookType, b.BookType)
	}
	bid, ask := common.BookOrdersFromTrade(trade)
	b.replaceTop(b.bids, bid)
	b.replaceTop(b.asks, ask)
	b.increment(b.Sequence+1, trade.TsEvent)
	return nil
}

func (b *OrderBook) checkSequence(sequence uint64) error {
	if sequence > b.Sequence || b.UpdateCount == 0 {
		return nil
	}
	if b.cfg.ValidateSequence {
		return fmt.Errorf("%w: have %d, received %d (expected %d)",
			ErrSequenceRegression, b.Sequence, sequence, b.ExpectedSequence())
	}
	log.Debug().
		Str("instrument_id", b.InstrumentID).
		Uint64("sequence", sequence).
		Uint64("current", b.Sequence).
		Msg("applying out-of-order event")
	return nil
}

func (b *OrderBook) increment(sequence uint64, tsEvent common.UnixNanos) {
	if sequence > b.Sequence {
		b.Sequence = sequence
	}
	b.TsLast = tsEvent
	if b.UpdateCount < ^uint64(0) {
		b.UpdateCount++
	}
}

// recover clears the crossed-book accounting after a snapshot or clear.
func (b *OrderBook) recover() {
	if b.degraded {
		log.Info().
			Str("instrument_id", b.InstrumentID).
			Msg("book recovered from degraded state")
	}
	b.crossedCount = 0
	b.degraded = false
}

// resolveCrossed uncrosses the book after a mutation that touched
// touchedSide. The update that produced the crossing is presumed
// erroneous, so the crossing levels of the touched side are trimmed
// until best_bid < best_ask again.
func (b *OrderBook) resolveCrossed(touchedSide common.Side) {
	bestBid, hasBid := b.bids.BestPrice()
	bestAsk, hasAsk := b.asks.BestPrice()
	if !hasBid || !hasAsk || bestBid.Less(bestAsk) {
		if hasBid && hasAsk {
			b.crossedCount = 0
		}
		return
	}

	b.crossedCount++
	log.Warn().
		Str("instrument_id", b.InstrumentID).
		Str("best_bid", bestBid.String()).
		Str("best_ask", bestAsk.String()).
		Str("side", touchedSide.String()).
		Uint32("crossings", b.crossedCount).
		Msg("crossed book: trimming crossing levels")

	crossed := b.ladder(touchedSide)
	for {
		bestBid, hasBid = b.bids.BestPrice()
		bestAsk, hasAsk = b.asks.BestPrice()
		if !hasBid || !hasAsk || bestBid.Less(bestAsk) {
			return
		}
		top, ok := crossed.Top()
		if !ok {
			return
		}
		crossed.RemoveLevel(top.Price)
	}
}
