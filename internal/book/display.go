package book

import (
	"fmt"
	"strings"

	"jormun/internal/common"
)

// Pprint renders a textual ladder with up to numLevels per side, prices
// aligned in a single column, bids on the left and asks on the right.
func (b *OrderBook) Pprint(numLevels int) string {
	if numLevels <= 0 {
		numLevels = 10
	}

	bids := b.bids.Levels(numLevels)
	asks := b.asks.Levels(numLevels)

	// One row per distinct price, asks on top (worst ask first), then
	// bids descending, the conventional ladder orientation.
	type row struct {
		price common.Price
		bid   string
		ask   string
	}
	var rows []row
	for i := len(asks) - 1; i >= 0; i-- {
		rows = append(rows, row{price: asks[i].Price, ask: asks[i].SizeQty().String()})
	}
	for _, level := range bids {
		rows = append(rows, row{price: level.Price, bid: level.SizeQty().String()})
	}

	bidWidth, priceWidth, askWidth := len("bids"), len("price"), len("asks")
	for _, r := range rows {
		if w := len(r.bid); w > bidWidth {
			bidWidth = w
		}
		if w := len(r.price.String()); w > priceWidth {
			priceWidth = w
		}
		if w := len(r.ask); w > askWidth {
			askWidth = w
		}
	}

	var sb strings.Builder
	state := ""
	if b.degraded {
		state = " DEGRADED"
	}
	fmt.Fprintf(&sb, "%s(instrument_id=%s, book_type=%s, update_count=%d)%s\n",
		"OrderBook", b.InstrumentID, b.BookType, b.UpdateCount, state)
	fmt.Fprintf(&sb, "%*s | %*s | %-*s\n", bidWidth, "bids", priceWidth, "price", askWidth, "asks")
	for _, r := range rows {
		fmt.Fprintf(&sb, "%*s | %*s | %-*s\n", bidWidth, r.bid, priceWidth, r.price.String(), askWidth, r.ask)
	}
	return strings.TrimRight(sb.String(), "\n")
}
