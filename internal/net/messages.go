package net

import (
	"encoding/json"
	"errors"
	"fmt"

	"jormun/internal/common"
	"jormun/internal/own"
)

var (
	ErrInvalidMessageType = errors.New("invalid message type")
	ErrInvalidSide        = errors.New("invalid side")
	ErrInvalidAction      = errors.New("invalid action")
	ErrInvalidBookType    = errors.New("invalid book type")
	ErrInvalidStatus      = errors.New("invalid order status")
)

// Message kinds carried in the envelope.
const (
	KindCreate    = "create"
	KindDelta     = "delta"
	KindDeltas    = "deltas"
	KindDepth10   = "depth10"
	KindQuote     = "quote"
	KindTrade     = "trade"
	KindQuery     = "query"
	KindOwnAdd    = "own_add"
	KindOwnUpdate = "own_update"
	KindOwnDelete = "own_delete"
	KindOwnStatus = "own_status"
)

// Envelope wraps every wire message: one JSON object per line.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Message is any decoded inbound message.
type Message interface {
	Kind() string
}

// CreateMessage declares an instrument's book type ahead of its feed.
type CreateMessage struct {
	InstrumentID string
	BookType     common.BookType
}

func (CreateMessage) Kind() string { return KindCreate }

// DeltaMessage carries one order book delta.
type DeltaMessage struct {
	Delta common.OrderBookDelta
}

func (DeltaMessage) Kind() string { return KindDelta }

// DeltasMessage carries a contiguous batch of deltas.
type DeltasMessage struct {
	Deltas common.OrderBookDeltas
}

func (DeltasMessage) Kind() string { return KindDeltas }

// DepthMessage carries a 10-level snapshot.
type DepthMessage struct {
	Depth common.OrderBookDepth10
}

func (DepthMessage) Kind() string { return KindDepth10 }

// QuoteMessage carries a top-of-book quote tick.
type QuoteMessage struct {
	Quote common.QuoteTick
}

func (QuoteMessage) Kind() string { return KindQuote }

// TradeMessage carries a trade tick.
type TradeMessage struct {
	Trade common.TradeTick
}

func (TradeMessage) Kind() string { return KindTrade }

// OwnAddMessage places an own order into an instrument's private book.
type OwnAddMessage struct {
	InstrumentID string
	Order        own.Order
	TsEvent      common.UnixNanos
}

func (OwnAddMessage) Kind() string { return KindOwnAdd }

// OwnUpdateMessage upserts an own order.
type OwnUpdateMessage struct {
	InstrumentID string
	Order        own.Order
	TsEvent      common.UnixNanos
}

func (OwnUpdateMessage) Kind() string { return KindOwnUpdate }

// OwnDeleteMessage removes an own order by client order id.
type OwnDeleteMessage struct {
	InstrumentID  string
	ClientOrderID string
	TsEvent       common.UnixNanos
}

func (OwnDeleteMessage) Kind() string { return KindOwnDelete }

// OwnStatusMessage transitions an own order's lifecycle status.
type OwnStatusMessage struct {
	InstrumentID  string
	ClientOrderID string
	Status        common.OrderStatus
	TsEvent       common.UnixNanos
}

func (OwnStatusMessage) Kind() string { return KindOwnStatus }

// Query names understood by the server.
const (
	QueryTop          = "top"
	QueryBids         = "bids"
	QueryAsks         = "asks"
	QueryBidsFiltered = "bids_filtered"
	QueryAsksFiltered = "asks_filtered"
	QueryPprint       = "pprint"
)

// QueryMessage requests a read-only view of a book.
type QueryMessage struct {
	InstrumentID string
	Query        string
	Depth        int
}

func (QueryMessage) Kind() string { return KindQuery }

// --- wire DTOs --------------------------------------------------------------

type orderDTO struct {
	Side    string `json:"side"`
	Price   string `json:"price"`
	Size    string `json:"size"`
	OrderID uint64 `json:"order_id"`
}

type createDTO struct {
	InstrumentID string `json:"instrument_id"`
	BookType     string `json:"book_type"`
}

type deltaDTO struct {
	InstrumentID string   `json:"instrument_id"`
	Action       string   `json:"action"`
	Order        orderDTO `json:"order"`
	Flags        uint8    `json:"flags"`
	Sequence     uint64   `json:"sequence"`
	TsEvent      uint64   `json:"ts_event"`
	TsInit       uint64   `json:"ts_init"`
}

type deltasDTO struct {
	InstrumentID string     `json:"instrument_id"`
	Deltas       []deltaDTO `json:"deltas"`
}

type depthLevelDTO struct {
	Order orderDTO `json:"order"`
	Count uint32   `json:"count"`
}

type depthDTO struct {
	InstrumentID string          `json:"instrument_id"`
	Bids         []depthLevelDTO `json:"bids"`
	Asks         []depthLevelDTO `json:"asks"`
	Flags        uint8           `json:"flags"`
	Sequence     uint64          `json:"sequence"`
	TsEvent      uint64          `json:"ts_event"`
	TsInit       uint64          `json:"ts_init"`
}

type quoteDTO struct {
	InstrumentID string `json:"instrument_id"`
	BidPrice     string `json:"bid_price"`
	AskPrice     string `json:"ask_price"`
	BidSize      string `json:"bid_size"`
	AskSize      string `json:"ask_size"`
	TsEvent      uint64 `json:"ts_event"`
	TsInit       uint64 `json:"ts_init"`
}

type tradeDTO struct {
	InstrumentID string `json:"instrument_id"`
	Price        string `json:"price"`
	Size         string `json:"size"`
	Aggressor    string `json:"aggressor"`
	TradeID      string `json:"trade_id"`
	TsEvent      uint64 `json:"ts_event"`
	TsInit       uint64 `json:"ts_init"`
}

type queryDTO struct {
	InstrumentID string `json:"instrument_id"`
	Query        string `json:"query"`
	Depth        int    `json:"depth"`
}

type ownOrderDTO struct {
	InstrumentID  string `json:"instrument_id"`
	ClientOrderID string `json:"client_order_id"`
	VenueOrderID  string `json:"venue_order_id"`
	Side          string `json:"side"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	Status        string `json:"status"`
	TsEvent       uint64 `json:"ts_event"`
}

// ParseMessage decodes one line of the wire protocol.
func ParseMessage(raw []byte) (Message, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding envelope: %w", err)
	}
	switch envelope.Type {
	case KindCreate:
		var dto createDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		bookType, err := parseBookType(dto.BookType)
		if err != nil {
			return nil, err
		}
		return CreateMessage{InstrumentID: dto.InstrumentID, BookType: bookType}, nil
	case KindDelta:
		var dto deltaDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		delta, err := dto.toDelta()
		if err != nil {
			return nil, err
		}
		return DeltaMessage{Delta: delta}, nil
	case KindDeltas:
		var dto deltasDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		batch := common.OrderBookDeltas{InstrumentID: dto.InstrumentID}
		for _, d := range dto.Deltas {
			delta, err := d.toDelta()
			if err != nil {
				return nil, err
			}
			batch.Deltas = append(batch.Deltas, delta)
		}
		return DeltasMessage{Deltas: batch}, nil
	case KindDepth10:
		var dto depthDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		depth, err := dto.toDepth()
		if err != nil {
			return nil, err
		}
		return DepthMessage{Depth: depth}, nil
	case KindQuote:
		var dto quoteDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		quote, err := dto.toQuote()
		if err != nil {
			return nil, err
		}
		return QuoteMessage{Quote: quote}, nil
	case KindTrade:
		var dto tradeDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		trade, err := dto.toTrade()
		if err != nil {
			return nil, err
		}
		return TradeMessage{Trade: trade}, nil
	case KindQuery:
		var dto queryDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		return QueryMessage{InstrumentID: dto.InstrumentID, Query: dto.Query, Depth: dto.Depth}, nil
	case KindOwnAdd, KindOwnUpdate:
		var dto ownOrderDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		order, err := dto.toOwnOrder()
		if err != nil {
			return nil, err
		}
		if envelope.Type == KindOwnAdd {
			return OwnAddMessage{InstrumentID: dto.InstrumentID, Order: order, TsEvent: dto.TsEvent}, nil
		}
		return OwnUpdateMessage{InstrumentID: dto.InstrumentID, Order: order, TsEvent: dto.TsEvent}, nil
	case KindOwnDelete:
		var dto ownOrderDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		return OwnDeleteMessage{
			InstrumentID:  dto.InstrumentID,
			ClientOrderID: dto.ClientOrderID,
			TsEvent:       dto.TsEvent,
		}, nil
	case KindOwnStatus:
		var dto ownOrderDTO
		if err := json.Unmarshal(envelope.Data, &dto); err != nil {
			return nil, err
		}
		status, err := parseStatus(dto.Status)
		if err != nil {
			return nil, err
		}
		return OwnStatusMessage{
			InstrumentID:  dto.InstrumentID,
			ClientOrderID: dto.ClientOrderID,
			Status:        status,
			TsEvent:       dto.TsEvent,
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidMessageType, envelope.Type)
}

func (d deltaDTO) toDelta() (common.OrderBookDelta, error) {
	action, err := parseAction(d.Action)
	if err != nil {
		return common.OrderBookDelta{}, err
	}
	order, err := d.Order.toOrder()
	if err != nil {
		return common.OrderBookDelta{}, err
	}
	return common.OrderBookDelta{
		InstrumentID: d.InstrumentID,
		Action:       action,
		Order:        order,
		Flags:        d.Flags,
		Sequence:     d.Sequence,
		TsEvent:      d.TsEvent,
		TsInit:       d.TsInit,
	}, nil
}

func (d depthDTO) toDepth() (common.OrderBookDepth10, error) {
	depth := common.OrderBookDepth10{
		InstrumentID: d.InstrumentID,
		Flags:        d.Flags,
		Sequence:     d.Sequence,
		TsEvent:      d.TsEvent,
		TsInit:       d.TsInit,
	}
	// Missing trailing levels are padded with the null order.
	for i := range depth.Bids {
		depth.Bids[i] = common.DepthLevel{Order: common.NullOrder}
		depth.Asks[i] = common.DepthLevel{Order: common.NullOrder}
	}
	for i, lvl := range d.Bids {
		if i >= common.Depth10Len {
			break
		}
		order, err := lvl.Order.toOrder()
		if err != nil {
			return common.OrderBookDepth10{}, err
		}
		depth.Bids[i] = common.DepthLevel{Order: order, Count: lvl.Count}
	}
	for i, lvl := range d.Asks {
		if i >= common.Depth10Len {
			break
		}
		order, err := lvl.Order.toOrder()
		if err != nil {
			return common.OrderBookDepth10{}, err
		}
		depth.Asks[i] = common.DepthLevel{Order: order, Count: lvl.Count}
	}
	return depth, nil
}

func (q quoteDTO) toQuote() (common.QuoteTick, error) {
	bidPrice, err := common.PriceFromStr(q.BidPrice)
	if err != nil {
		return common.QuoteTick{}, err
	}
	askPrice, err := common.PriceFromStr(q.AskPrice)
	if err != nil {
		return common.QuoteTick{}, err
	}
	bidSize, err := common.QuantityFromStr(q.BidSize)
	if err != nil {
		return common.QuoteTick{}, err
	}
	askSize, err := common.QuantityFromStr(q.AskSize)
	if err != nil {
		return common.QuoteTick{}, err
	}
	return common.QuoteTick{
		InstrumentID: q.InstrumentID,
		BidPrice:     bidPrice,
		AskPrice:     askPrice,
		BidSize:      bidSize,
		AskSize:      askSize,
		TsEvent:      q.TsEvent,
		TsInit:       q.TsInit,
	}, nil
}

func (t tradeDTO) toTrade() (common.TradeTick, error) {
	price, err := common.PriceFromStr(t.Price)
	if err != nil {
		return common.TradeTick{}, err
	}
	size, err := common.QuantityFromStr(t.Size)
	if err != nil {
		return common.TradeTick{}, err
	}
	aggressor := common.NoAggressor
	switch t.Aggressor {
	case "BUYER":
		aggressor = common.BuyerAggressor
	case "SELLER":
		aggressor = common.SellerAggressor
	}
	return common.TradeTick{
		InstrumentID:  t.InstrumentID,
		Price:         price,
		Size:          size,
		AggressorSide: aggressor,
		TradeID:       t.TradeID,
		TsEvent:       t.TsEvent,
		TsInit:        t.TsInit,
	}, nil
}

func (o orderDTO) toOrder() (common.BookOrder, error) {
	side, err := parseSide(o.Side)
	if err != nil {
		return common.BookOrder{}, err
	}
	// Null entries are snapshot padding.
	if side == common.NoSide {
		return common.NullOrder, nil
	}
	price, err := common.PriceFromStr(o.Price)
	if err != nil {
		return common.BookOrder{}, err
	}
	size, err := common.QuantityFromStr(o.Size)
	if err != nil {
		return common.BookOrder{}, err
	}
	return common.NewBookOrder(side, price, size, o.OrderID), nil
}

func (o ownOrderDTO) toOwnOrder() (own.Order, error) {
	side, err := parseSide(o.Side)
	if err != nil {
		return own.Order{}, err
	}
	price, err := common.PriceFromStr(o.Price)
	if err != nil {
		return own.Order{}, err
	}
	size, err := common.QuantityFromStr(o.Size)
	if err != nil {
		return own.Order{}, err
	}
	status := common.StatusSubmitted
	if o.Status != "" {
		if status, err = parseStatus(o.Status); err != nil {
			return own.Order{}, err
		}
	}
	return own.Order{
		ClientOrderID: o.ClientOrderID,
		VenueOrderID:  o.VenueOrderID,
		Side:          side,
		Price:         price,
		Size:          size,
		Status:        status,
	}, nil
}

func parseStatus(s string) (common.OrderStatus, error) {
	switch s {
	case "INITIALIZED":
		return common.StatusInitialized, nil
	case "SUBMITTED":
		return common.StatusSubmitted, nil
	case "ACCEPTED":
		return common.StatusAccepted, nil
	case "PARTIALLY_FILLED":
		return common.StatusPartiallyFilled, nil
	case "FILLED":
		return common.StatusFilled, nil
	case "CANCELED":
		return common.StatusCanceled, nil
	case "REJECTED":
		return common.StatusRejected, nil
	case "EXPIRED":
		return common.StatusExpired, nil
	}
	return common.StatusInitialized, fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func parseSide(s string) (common.Side, error) {
	switch s {
	case "BUY":
		return common.Buy, nil
	case "SELL":
		return common.Sell, nil
	case "NO_SIDE", "":
		return common.NoSide, nil
	}
	return common.NoSide, fmt.Errorf("%w: %q", ErrInvalidSide, s)
}

func parseAction(s string) (common.BookAction, error) {
	switch s {
	case "ADD":
		return common.ActionAdd, nil
	case "UPDATE":
		return common.ActionUpdate, nil
	case "DELETE":
		return common.ActionDelete, nil
	case "CLEAR":
		return common.ActionClear, nil
	}
	return common.ActionAdd, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

func parseBookType(s string) (common.BookType, error) {
	switch s {
	case "L1_MBP":
		return common.L1MBP, nil
	case "L2_MBP", "":
		return common.L2MBP, nil
	case "L3_MBO":
		return common.L3MBO, nil
	}
	return common.L2MBP, fmt.Errorf("%w: %q", ErrInvalidBookType, s)
}

// --- replies ----------------------------------------------------------------

// Reply is the server's answer to a query, one JSON object per line.
type Reply struct {
	Type         string       `json:"type"`
	InstrumentID string       `json:"instrument_id,omitempty"`
	Error        string       `json:"error,omitempty"`
	Top          *TopOfBook   `json:"top,omitempty"`
	Levels       []LevelEntry `json:"levels,omitempty"`
	Text         string       `json:"text,omitempty"`
}

// TopOfBook is the scalar top-of-book view.
type TopOfBook struct {
	BidPrice string  `json:"bid_price,omitempty"`
	BidSize  string  `json:"bid_size,omitempty"`
	AskPrice string  `json:"ask_price,omitempty"`
	AskSize  string  `json:"ask_size,omitempty"`
	Spread   float64 `json:"spread,omitempty"`
	Midpoint float64 `json:"midpoint,omitempty"`
}

// LevelEntry is one price level of a map reply.
type LevelEntry struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// Serialize renders the reply as a single wire line.
func (r Reply) Serialize() ([]byte, error) {
	out, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
