package common

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// MaxPrecision is the largest number of decimal places a fixed-point
// value may carry. Beyond this the raw representation overflows too
// easily to be useful.
const MaxPrecision uint8 = 9

var (
	ErrPrecisionMismatch = errors.New("precision mismatch")
	ErrOutOfRange        = errors.New("value out of range")
	ErrOverflow          = errors.New("fixed-point overflow")
)

var pow10 = [...]int64{
	1, 10, 100, 1_000, 10_000, 100_000,
	1_000_000, 10_000_000, 100_000_000, 1_000_000_000,
}

// Price is an exact decimal price: Raw scaled by 10^-Precision.
// Prices may be negative (calendar spreads, some futures).
type Price struct {
	Raw       int64
	Precision uint8
}

// NullPrice is the sentinel price used by the null book order.
var NullPrice = Price{}

// NewPrice creates a price from a raw value and precision.
func NewPrice(raw int64, precision uint8) (Price, error) {
	if precision > MaxPrecision {
		return Price{}, fmt.Errorf("%w: precision %d exceeds max %d", ErrOutOfRange, precision, MaxPrecision)
	}
	return Price{Raw: raw, Precision: precision}, nil
}

// PriceFromStr parses a decimal string such as "100.25". The precision
// is taken from the number of fractional digits.
func PriceFromStr(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	var precision uint8
	if d.Exponent() < 0 {
		if -d.Exponent() > int32(MaxPrecision) {
			return Price{}, fmt.Errorf("%w: precision %d exceeds max %d", ErrOutOfRange, -d.Exponent(), MaxPrecision)
		}
		precision = uint8(-d.Exponent())
	}
	scaled := d.Shift(int32(precision))
	if !scaled.IsInteger() {
		return Price{}, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}
	return Price{Raw: scaled.IntPart(), Precision: precision}, nil
}

// PriceFromFloat builds a price from a float rounded to the given precision.
// Intended for test fixtures and display paths, not feed decoding.
func PriceFromFloat(value float64, precision uint8) (Price, error) {
	if precision > MaxPrecision {
		return Price{}, fmt.Errorf("%w: precision %d exceeds max %d", ErrOutOfRange, precision, MaxPrecision)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Price{}, fmt.Errorf("%w: %f", ErrOutOfRange, value)
	}
	raw := decimal.NewFromFloat(value).Shift(int32(precision)).Round(0).IntPart()
	return Price{Raw: raw, Precision: precision}, nil
}

// MustPriceFromStr is PriceFromStr for statically known literals.
func MustPriceFromStr(s string) Price {
	p, err := PriceFromStr(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsNull reports whether this is the null sentinel.
func (p Price) IsNull() bool {
	return p.Raw == 0 && p.Precision == 0
}

// AsFloat converts to float64 for reporting only.
func (p Price) AsFloat() float64 {
	return float64(p.Raw) / float64(pow10[p.Precision])
}

// AsDecimal converts to an arbitrary-precision decimal.
func (p Price) AsDecimal() decimal.Decimal {
	return decimal.New(p.Raw, -int32(p.Precision))
}

// Add returns p + other. Both operands must share a precision.
func (p Price) Add(other Price) (Price, error) {
	if p.Precision != other.Precision {
		return Price{}, fmt.Errorf("%w: %d != %d", ErrPrecisionMismatch, p.Precision, other.Precision)
	}
	return Price{Raw: p.Raw + other.Raw, Precision: p.Precision}, nil
}

// Sub returns p - other. Both operands must share a precision.
func (p Price) Sub(other Price) (Price, error) {
	if p.Precision != other.Precision {
		return Price{}, fmt.Errorf("%w: %d != %d", ErrPrecisionMismatch, p.Precision, other.Precision)
	}
	return Price{Raw: p.Raw - other.Raw, Precision: p.Precision}, nil
}

// Compare returns -1, 0 or +1. Differing precisions are aligned by
// scaling the coarser raw up; the comparison fails if scaling would
// overflow int64.
func (p Price) Compare(other Price) (int, error) {
	a, b := p.Raw, other.Raw
	if p.Precision != other.Precision {
		var err error
		if p.Precision < other.Precision {
			a, err = scaleRaw(a, other.Precision-p.Precision)
		} else {
			b, err = scaleRaw(b, p.Precision-other.Precision)
		}
		if err != nil {
			return 0, err
		}
	}
	switch {
	case a < b:
		return -1, nil
	case a > b:
		return 1, nil
	}
	return 0, nil
}

// Equal reports exact numeric equality across precisions. Values whose
// comparison overflows are considered unequal.
func (p Price) Equal(other Price) bool {
	c, err := p.Compare(other)
	return err == nil && c == 0
}

// Less reports p < other numerically, falling back to float comparison
// if exact alignment overflows.
func (p Price) Less(other Price) bool {
	if c, err := p.Compare(other); err == nil {
		return c < 0
	}
	return p.AsFloat() < other.AsFloat()
}

func (p Price) String() string {
	return p.AsDecimal().StringFixed(int32(p.Precision))
}

func scaleRaw(raw int64, shift uint8) (int64, error) {
	m := pow10[shift]
	if raw > math.MaxInt64/m || raw < math.MinInt64/m {
		return 0, fmt.Errorf("%w: scaling %d by 10^%d", ErrOverflow, raw, shift)
	}
	return raw * m, nil
}
