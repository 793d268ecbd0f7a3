package book

import (
	"fmt"

	"jormun/internal/common"
)

// ViolationKind classifies an integrity check failure.
type ViolationKind int

const (
	ViolationOrdering ViolationKind = iota
	ViolationEmptyLevel
	ViolationCrossed
	ViolationDuplicateID
)

func (k ViolationKind) String() string {
	switch k {
	case ViolationOrdering:
		return "ORDERING"
	case ViolationEmptyLevel:
		return "EMPTY_LEVEL"
	case ViolationCrossed:
		return "CROSSED"
	case ViolationDuplicateID:
		return "DUPLICATE_ID"
	}
	return "UNKNOWN"
}

// Violation is one specific integrity failure.
type Violation struct {
	Kind   ViolationKind
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s", v.Kind, v.Detail)
}

// CheckIntegrity verifies the book's post-mutation invariants: strict
// per-side ordering, no empty levels, an uncrossed top of book, and for
// L3 the uniqueness of live order ids. It returns nil when the book is
// sound.
func (b *OrderBook) CheckIntegrity() []Violation {
	var violations []Violation

	violations = append(violations, checkLadder(b.bids, "bids", true)...)
	violations = append(violations, checkLadder(b.asks, "asks", false)...)

	bestBid, hasBid := b.bids.BestPrice()
	bestAsk, hasAsk := b.asks.BestPrice()
	if hasBid && hasAsk && !bestBid.Less(bestAsk) {
		violations = append(violations, Violation{
			Kind:   ViolationCrossed,
			Detail: fmt.Sprintf("best_bid %s >= best_ask %s", bestBid, bestAsk),
		})
	}

	if b.BookType == common.L3MBO {
		seen := make(map[uint64]string)
		for _, name := range []struct {
			ladder *Ladder
			label  string
		}{{b.bids, "bids"}, {b.asks, "asks"}} {
			name.ladder.IterTop(0, func(level *Level) bool {
				for _, o := range level.Orders {
					if prev, ok := seen[o.OrderID]; ok {
						violations = append(violations, Violation{
							Kind:   ViolationDuplicateID,
							Detail: fmt.Sprintf("order id %d on %s and %s", o.OrderID, prev, name.label),
						})
					}
					seen[o.OrderID] = name.label
				}
				return true
			})
		}
	}

	return violations
}

func checkLadder(ladder *Ladder, label string, descending bool) []Violation {
	var violations []Violation
	first := true
	var prev common.Price
	ladder.IterTop(0, func(level *Level) bool {
		if level.IsEmpty() {
			violations = append(violations, Violation{
				Kind:   ViolationEmptyLevel,
				Detail: fmt.Sprintf("%s level %s has no orders", label, level.Price),
			})
		}
		if !first {
			ordered := level.Price.Less(prev)
			if !descending {
				ordered = prev.Less(level.Price)
			}
			if !ordered {
				violations = append(violations, Violation{
					Kind:   ViolationOrdering,
					Detail: fmt.Sprintf("%s not strictly ordered at %s after %s", label, level.Price, prev),
				})
			}
		}
		prev = level.Price
		first = false
		return true
	})
	return violations
}
