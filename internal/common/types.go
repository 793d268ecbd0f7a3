package common

// Side is the market side of an order or ladder.
type Side int

const (
	// NoSide marks padding entries in depth snapshots and must never
	// reach a ladder.
	NoSide Side = iota
	Buy
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	}
	return "NO_SIDE"
}

// Opposite returns the other market side. NoSide maps to NoSide.
func (s Side) Opposite() Side {
	switch s {
	case Buy:
		return Sell
	case Sell:
		return Buy
	}
	return NoSide
}

// BookType selects the update semantics of an order book.
type BookType int

const (
	// L1MBP keeps a single top-of-book level per side.
	L1MBP BookType = iota
	// L2MBP aggregates orders into one level per price.
	L2MBP
	// L3MBO keeps every order, FIFO within its price level.
	L3MBO
)

func (b BookType) String() string {
	switch b {
	case L1MBP:
		return "L1_MBP"
	case L2MBP:
		return "L2_MBP"
	case L3MBO:
		return "L3_MBO"
	}
	return "UNKNOWN"
}

// BookAction is the operation carried by an order book delta.
type BookAction int

const (
	ActionAdd BookAction = iota
	ActionUpdate
	ActionDelete
	ActionClear
)

func (a BookAction) String() string {
	switch a {
	case ActionAdd:
		return "ADD"
	case ActionUpdate:
		return "UPDATE"
	case ActionDelete:
		return "DELETE"
	case ActionClear:
		return "CLEAR"
	}
	return "UNKNOWN"
}

// OrderStatus is the lifecycle state of an own order.
type OrderStatus int

const (
	StatusInitialized OrderStatus = iota
	StatusSubmitted
	StatusAccepted
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
	StatusExpired
)

func (s OrderStatus) String() string {
	switch s {
	case StatusInitialized:
		return "INITIALIZED"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusAccepted:
		return "ACCEPTED"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	case StatusExpired:
		return "EXPIRED"
	}
	return "UNKNOWN"
}

// AggressorSide is the taker side of a trade tick.
type AggressorSide int

const (
	NoAggressor AggressorSide = iota
	BuyerAggressor
	SellerAggressor
)

// Delta flag bits.
const (
	// FlagLast marks the final delta of a batch.
	FlagLast uint8 = 1 << 0
	// FlagSnapshot means the affected side must be cleared before the
	// first contained add.
	FlagSnapshot uint8 = 1 << 1
	// FlagTOB marks a delta affecting the top of book only.
	FlagTOB uint8 = 1 << 2
)

// UnixNanos is a nanosecond unix timestamp.
type UnixNanos = uint64
