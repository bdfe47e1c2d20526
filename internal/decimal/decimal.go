// Package decimal wraps cockroachdb/apd/v3 with the fixed-point contract the
// price oracle core needs: at least 28 significant digits, exact add/sub/mul/div
// with a selectable rounding strategy, a base-10 logarithm, and a stable byte
// form for storage. apd is chosen over shopspring/decimal because it exposes
// Log10 directly against a configurable-precision Context; shopspring has no
// transcendental functions.
package decimal

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

// precision is the working precision for all arithmetic: comfortably above
// the spec's 28-significant-digit floor.
const precision = 40

// context is shared read-only configuration; apd.Context methods are safe
// for concurrent use since they only read their own fields.
var context = func() apd.Context {
	ctx := apd.BaseContext.WithPrecision(precision)
	ctx.Rounding = apd.RoundHalfEven
	return *ctx
}()

// Decimal is a fixed-point number with at least 28 significant digits.
type Decimal struct {
	d apd.Decimal
}

// Rounding selects a rounding strategy for division.
type Rounding int

const (
	// ToZero truncates toward zero (the only strategy the spec requires).
	ToZero Rounding = iota
	// ToNearest rounds half to even.
	ToNearest
)

// Zero is the additive identity.
var Zero = Decimal{}

// NewFromFloat builds a Decimal from a float64. Used only for values that
// genuinely originate as floats (upstream REST/WS payloads); internal
// arithmetic never round-trips through float64.
func NewFromFloat(f float64) Decimal {
	d, err := new(apd.Decimal).SetFloat64(f)
	if err != nil {
		return Decimal{}
	}
	return Decimal{d: *d}
}

// NewFromString parses a decimal literal.
func NewFromString(s string) (Decimal, error) {
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return Decimal{}, fmt.Errorf("decimal: parse %q: %w", s, err)
	}
	return Decimal{d: *d}, nil
}

// NewFromInt builds a Decimal from an int64.
func NewFromInt(i int64) Decimal {
	return Decimal{d: *apd.New(i, 0)}
}

func (x Decimal) Add(y Decimal) Decimal {
	var res apd.Decimal
	_, _ = context.Add(&res, &x.d, &y.d)
	return Decimal{d: res}
}

func (x Decimal) Sub(y Decimal) Decimal {
	var res apd.Decimal
	_, _ = context.Sub(&res, &x.d, &y.d)
	return Decimal{d: res}
}

func (x Decimal) Mul(y Decimal) Decimal {
	var res apd.Decimal
	_, _ = context.Mul(&res, &x.d, &y.d)
	return Decimal{d: res}
}

// Div divides x by y using the given rounding strategy. Returns an error on
// division by zero rather than panicking.
func (x Decimal) Div(y Decimal, rnd Rounding) (Decimal, error) {
	if y.d.IsZero() {
		return Decimal{}, fmt.Errorf("decimal: division by zero")
	}
	ctx := context
	if rnd == ToZero {
		ctx.Rounding = apd.RoundDown
	}
	var res apd.Decimal
	if _, err := ctx.Quo(&res, &x.d, &y.d); err != nil {
		return Decimal{}, fmt.Errorf("decimal: divide: %w", err)
	}
	return Decimal{d: res}, nil
}

// Cmp compares x to y: -1, 0, or 1.
func (x Decimal) Cmp(y Decimal) int { return x.d.Cmp(&y.d) }

// IsZero reports whether x is exactly zero.
func (x Decimal) IsZero() bool { return x.d.IsZero() }

// IsNegative reports whether x is strictly negative.
func (x Decimal) IsNegative() bool { return x.d.Negative && !x.d.IsZero() }

// Log10 returns the base-10 logarithm of x. x must be strictly positive.
func (x Decimal) Log10() (Decimal, error) {
	if x.d.Sign() <= 0 {
		return Decimal{}, fmt.Errorf("decimal: log10 of non-positive value %s", x.d.String())
	}
	var res apd.Decimal
	if _, err := context.Log10(&res, &x.d); err != nil {
		return Decimal{}, fmt.Errorf("decimal: log10: %w", err)
	}
	return Decimal{d: res}, nil
}

// String renders the canonical decimal form.
func (x Decimal) String() string { return x.d.String() }

// MarshalBinary produces a stable byte form for storage (the decimal's
// canonical string, which round-trips exactly through UnmarshalBinary).
func (x Decimal) MarshalBinary() ([]byte, error) {
	return []byte(x.d.String()), nil
}

// UnmarshalBinary restores a Decimal from MarshalBinary's output.
func (x *Decimal) UnmarshalBinary(data []byte) error {
	d, _, err := apd.NewFromString(string(data))
	if err != nil {
		return fmt.Errorf("decimal: unmarshal %q: %w", string(data), err)
	}
	x.d = *d
	return nil
}

// MarshalJSON renders x as a JSON string (not a bare number) to avoid
// float64 round-tripping through encoding/json.
func (x Decimal) MarshalJSON() ([]byte, error) {
	return []byte(`"` + x.d.String() + `"`), nil
}

// UnmarshalJSON accepts either a JSON string or a bare JSON number.
func (x *Decimal) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	d, _, err := apd.NewFromString(s)
	if err != nil {
		return fmt.Errorf("decimal: unmarshal json %q: %w", string(data), err)
	}
	x.d = *d
	return nil
}

// ToInt64Scaled multiplies x by 10^scale, truncates toward zero, and reports
// whether the result fits in an int64.
func ToInt64Scaled(x Decimal, scale int32) (int64, bool) {
	shiftCtx := context
	shiftCtx.Rounding = apd.RoundDown

	var scaled apd.Decimal
	factor := apd.New(1, scale)
	if _, err := shiftCtx.Mul(&scaled, &x.d, factor); err != nil {
		return 0, false
	}

	var truncated apd.Decimal
	if _, err := shiftCtx.Quantize(&truncated, &scaled, 0); err != nil {
		return 0, false
	}

	i, err := truncated.Int64()
	if err != nil {
		return 0, false
	}
	return i, true
}
