package net

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"jormun/internal/common"
)

func TestParseMessage_Delta(t *testing.T) {
	line := `{"type":"delta","data":{
		"instrument_id":"AAPL.XNAS",
		"action":"ADD",
		"order":{"side":"BUY","price":"100.25","size":"10","order_id":42},
		"flags":1,"sequence":7,"ts_event":1000,"ts_init":1001}}`

	msg, err := ParseMessage([]byte(line))
	assert.NoError(t, err)
	dm, ok := msg.(DeltaMessage)
	assert.True(t, ok)
	assert.Equal(t, "AAPL.XNAS", dm.Delta.InstrumentID)
	assert.Equal(t, common.ActionAdd, dm.Delta.Action)
	assert.Equal(t, common.Buy, dm.Delta.Order.Side)
	assert.Equal(t, "100.25", dm.Delta.Order.Price.String())
	assert.Equal(t, "10", dm.Delta.Order.Size.String())
	assert.Equal(t, uint64(42), dm.Delta.Order.OrderID)
	assert.True(t, dm.Delta.IsLast())
	assert.Equal(t, uint64(7), dm.Delta.Sequence)
}

func TestParseMessage_Deltas(t *testing.T) {
	line := `{"type":"deltas","data":{
		"instrument_id":"AAPL.XNAS",
		"deltas":[
			{"instrument_id":"AAPL.XNAS","action":"ADD",
			 "order":{"side":"BUY","price":"100.00","size":"5","order_id":1},
			 "flags":0,"sequence":1},
			{"instrument_id":"AAPL.XNAS","action":"DELETE",
			 "order":{"side":"SELL","price":"101.00","size":"0","order_id":2},
			 "flags":1,"sequence":2}
		]}}`

	msg, err := ParseMessage([]byte(line))
	assert.NoError(t, err)
	dm, ok := msg.(DeltasMessage)
	assert.True(t, ok)
	assert.Len(t, dm.Deltas.Deltas, 2)
	assert.Equal(t, common.ActionDelete, dm.Deltas.Deltas[1].Action)
	assert.True(t, dm.Deltas.Deltas[1].IsLast())
}

func TestParseMessage_Depth10_PadsMissingLevels(t *testing.T) {
	line := `{"type":"depth10","data":{
		"instrument_id":"AAPL.XNAS",
		"bids":[{"order":{"side":"BUY","price":"100.00","size":"10","order_id":1},"count":2}],
		"asks":[{"order":{"side":"SELL","price":"100.50","size":"8","order_id":2},"count":1}],
		"sequence":3}}`

	msg, err := ParseMessage([]byte(line))
	assert.NoError(t, err)
	dm, ok := msg.(DepthMessage)
	assert.True(t, ok)
	assert.Equal(t, "100.00", dm.Depth.Bids[0].Order.Price.String())
	assert.Equal(t, uint32(2), dm.Depth.Bids[0].Count)
	for i := 1; i < common.Depth10Len; i++ {
		assert.True(t, dm.Depth.Bids[i].Order.IsNull())
		assert.True(t, dm.Depth.Asks[i].Order.IsNull())
	}
}

func TestParseMessage_Quote(t *testing.T) {
	line := `{"type":"quote","data":{
		"instrument_id":"AAPL.XNAS",
		"bid_price":"100.00","ask_price":"100.10",
		"bid_size":"10","ask_size":"8","ts_event":5}}`

	msg, err := ParseMessage([]byte(line))
	assert.NoError(t, err)
	qm, ok := msg.(QuoteMessage)
	assert.True(t, ok)
	assert.Equal(t, "100.10", qm.Quote.AskPrice.String())
	assert.Equal(t, "10", qm.Quote.BidSize.String())
}

func TestParseMessage_Trade(t *testing.T) {
	line := `{"type":"trade","data":{
		"instrument_id":"AAPL.XNAS",
		"price":"100.05","size":"3","aggressor":"BUYER","trade_id":"t-1"}}`

	msg, err := ParseMessage([]byte(line))
	assert.NoError(t, err)
	tm, ok := msg.(TradeMessage)
	assert.True(t, ok)
	assert.Equal(t, common.BuyerAggressor, tm.Trade.AggressorSide)
	assert.Equal(t, "t-1", tm.Trade.TradeID)
}

func TestParseMessage_CreateAndQuery(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"create","data":{"instrument_id":"X","book_type":"L3_MBO"}}`))
	assert.NoError(t, err)
	cm, ok := msg.(CreateMessage)
	assert.True(t, ok)
	assert.Equal(t, common.L3MBO, cm.BookType)

	msg, err = ParseMessage([]byte(`{"type":"query","data":{"instrument_id":"X","query":"bids","depth":5}}`))
	assert.NoError(t, err)
	qm, ok := msg.(QueryMessage)
	assert.True(t, ok)
	assert.Equal(t, QueryBids, qm.Query)
	assert.Equal(t, 5, qm.Depth)
}

func TestParseMessage_OwnAdd(t *testing.T) {
	line := `{"type":"own_add","data":{
		"instrument_id":"AAPL.XNAS",
		"client_order_id":"o-1",
		"venue_order_id":"v-9",
		"side":"BUY",
		"price":"100.00",
		"size":"5",
		"ts_event":1000}}`

	msg, err := ParseMessage([]byte(line))
	assert.NoError(t, err)
	om, ok := msg.(OwnAddMessage)
	assert.True(t, ok)
	assert.Equal(t, "AAPL.XNAS", om.InstrumentID)
	assert.Equal(t, "o-1", om.Order.ClientOrderID)
	assert.Equal(t, "v-9", om.Order.VenueOrderID)
	assert.Equal(t, common.Buy, om.Order.Side)
	assert.Equal(t, "100.00", om.Order.Price.String())
	assert.Equal(t, common.StatusSubmitted, om.Order.Status)
	assert.Equal(t, uint64(1000), om.TsEvent)
}

func TestParseMessage_OwnUpdateAndDelete(t *testing.T) {
	line := `{"type":"own_update","data":{
		"instrument_id":"AAPL.XNAS","client_order_id":"o-1",
		"side":"SELL","price":"101.00","size":"3","status":"ACCEPTED","ts_event":2000}}`

	msg, err := ParseMessage([]byte(line))
	assert.NoError(t, err)
	um, ok := msg.(OwnUpdateMessage)
	assert.True(t, ok)
	assert.Equal(t, common.Sell, um.Order.Side)
	assert.Equal(t, common.StatusAccepted, um.Order.Status)

	msg, err = ParseMessage([]byte(`{"type":"own_delete","data":{"instrument_id":"X","client_order_id":"o-1","ts_event":3}}`))
	assert.NoError(t, err)
	dm, ok := msg.(OwnDeleteMessage)
	assert.True(t, ok)
	assert.Equal(t, "o-1", dm.ClientOrderID)
}

func TestParseMessage_OwnStatus(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"own_status","data":{"instrument_id":"X","client_order_id":"o-1","status":"FILLED","ts_event":4}}`))
	assert.NoError(t, err)
	sm, ok := msg.(OwnStatusMessage)
	assert.True(t, ok)
	assert.Equal(t, common.StatusFilled, sm.Status)

	_, err = ParseMessage([]byte(`{"type":"own_status","data":{"instrument_id":"X","client_order_id":"o-1","status":"LOST"}}`))
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestParseMessage_Errors(t *testing.T) {
	_, err := ParseMessage([]byte(`{"type":"nope","data":{}}`))
	assert.ErrorIs(t, err, ErrInvalidMessageType)

	_, err = ParseMessage([]byte(`{"type":"delta","data":{"action":"ADD","order":{"side":"SIDEWAYS"}}}`))
	assert.ErrorIs(t, err, ErrInvalidSide)

	_, err = ParseMessage([]byte(`{"type":"delta","data":{"action":"NUKE","order":{"side":"BUY"}}}`))
	assert.ErrorIs(t, err, ErrInvalidAction)

	_, err = ParseMessage([]byte(`{"type":"create","data":{"book_type":"L9"}}`))
	assert.ErrorIs(t, err, ErrInvalidBookType)

	_, err = ParseMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestReply_Serialize(t *testing.T) {
	reply := Reply{
		Type:         QueryTop,
		InstrumentID: "AAPL.XNAS",
		Top:          &TopOfBook{BidPrice: "100.00", AskPrice: "100.50"},
	}
	out, err := reply.Serialize()
	assert.NoError(t, err)
	assert.Equal(t, byte('\n'), out[len(out)-1])

	var decoded Reply
	assert.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "100.00", decoded.Top.BidPrice)
	assert.Empty(t, decoded.Error)
}
