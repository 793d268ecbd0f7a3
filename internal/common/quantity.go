package common

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Quantity is an exact decimal size: Raw scaled by 10^-Precision.
// Quantities are never negative.
type Quantity struct {
	Raw       uint64
	Precision uint8
}

// NullQuantity is the sentinel size used by the null book order.
var NullQuantity = Quantity{}

// NewQuantity creates a quantity from a raw value and precision.
func NewQuantity(raw uint64, precision uint8) (Quantity, error) {
	if precision > MaxPrecision {
		return Quantity{}, fmt.Errorf("%w: precision %d exceeds max %d", ErrOutOfRange, precision, MaxPrecision)
	}
	return Quantity{Raw: raw, Precision: precision}, nil
}

// QuantityFromStr parses a decimal string such as "10.5". The precision
// is taken from the number of fractional digits.
func QuantityFromStr(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	if d.IsNegative() {
		return Quantity{}, fmt.Errorf("%w: quantity %q is negative", ErrOutOfRange, s)
	}
	var precision uint8
	if d.Exponent() < 0 {
		if -d.Exponent() > int32(MaxPrecision) {
			return Quantity{}, fmt.Errorf("%w: precision %d exceeds max %d", ErrOutOfRange, -d.Exponent(), MaxPrecision)
		}
		precision = uint8(-d.Exponent())
	}
	scaled := d.Shift(int32(precision))
	if !scaled.IsInteger() {
		return Quantity{}, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}
	return Quantity{Raw: uint64(scaled.IntPart()), Precision: precision}, nil
}

// QuantityFromFloat builds a quantity from a float rounded to the given
// precision. Negative inputs are rejected.
func QuantityFromFloat(value float64, precision uint8) (Quantity, error) {
	if precision > MaxPrecision {
		return Quantity{}, fmt.Errorf("%w: precision %d exceeds max %d", ErrOutOfRange, precision, MaxPrecision)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Quantity{}, fmt.Errorf("%w: %f", ErrOutOfRange, value)
	}
	raw := decimal.NewFromFloat(value).Shift(int32(precision)).Round(0).IntPart()
	return Quantity{Raw: uint64(raw), Precision: precision}, nil
}

// MustQuantityFromStr is QuantityFromStr for statically known literals.
func MustQuantityFromStr(s string) Quantity {
	q, err := QuantityFromStr(s)
	if err != nil {
		panic(err)
	}
	return q
}

// IsZero reports a zero size regardless of precision.
func (q Quantity) IsZero() bool {
	return q.Raw == 0
}

// IsPositive reports a strictly positive size.
func (q Quantity) IsPositive() bool {
	return q.Raw > 0
}

// AsFloat converts to float64 for reporting only.
func (q Quantity) AsFloat() float64 {
	return float64(q.Raw) / float64(pow10[q.Precision])
}

// AsDecimal converts to an arbitrary-precision decimal.
func (q Quantity) AsDecimal() decimal.Decimal {
	return decimal.New(int64(q.Raw), -int32(q.Precision))
}

// Add returns q + other. Both operands must share a precision.
func (q Quantity) Add(other Quantity) (Quantity, error) {
	if q.Precision != other.Precision {
		return Quantity{}, fmt.Errorf("%w: %d != %d", ErrPrecisionMismatch, q.Precision, other.Precision)
	}
	return Quantity{Raw: q.Raw + other.Raw, Precision: q.Precision}, nil
}

// Sub returns q - other. Both operands must share a precision and the
// result may not go negative.
func (q Quantity) Sub(other Quantity) (Quantity, error) {
	if q.Precision != other.Precision {
		return Quantity{}, fmt.Errorf("%w: %d != %d", ErrPrecisionMismatch, q.Precision, other.Precision)
	}
	if other.Raw > q.Raw {
		return Quantity{}, fmt.Errorf("%w: %s - %s is negative", ErrOutOfRange, q, other)
	}
	return Quantity{Raw: q.Raw - other.Raw, Precision: q.Precision}, nil
}

// Compare returns -1, 0 or +1, aligning precisions by scaling the
// coarser raw up. Fails if scaling would overflow.
func (q Quantity) Compare(other Quantity) (int, error) {
	a, b := q.Raw, other.Raw
	if q.Precision != other.Precision {
		var err error
		if q.Precision < other.Precision {
			a, err = scaleRawU(a, other.Precision-q.Precision)
		} else {
			b, err = scaleRawU(b, q.Precision-other.Precision)
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

func (q Quantity) String() string {
	return q.AsDecimal().StringFixed(int32(q.Precision))
}

func scaleRawU(raw uint64, shift uint8) (uint64, error) {
	m := uint64(pow10[shift])
	if raw > math.MaxUint64/m {
		return 0, fmt.Errorf("%w: scaling %d by 10^%d", ErrOverflow, raw, shift)
	}
	return raw * m, nil
}
