package medication

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Host state strings that never carry a number.
const (
	StateUnknown     = "unknown"
	StateUnavailable = "unavailable"
)

// ToDecimal coerces a loosely typed value (JSON number, Go numeric, numeric
// string) to a decimal. NaN and infinities are rejected.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case nil:
		return decimal.Zero, fmt.Errorf("%w: value is required", ErrInvalidValue)
	case decimal.Decimal:
		return n, nil
	case float64:
		return fromFloat(n)
	case float32:
		return fromFloat(float64(n))
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt32(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint:
		return decimal.NewFromUint64(uint64(n)), nil
	case uint64:
		return decimal.NewFromUint64(n), nil
	case json.Number:
		return fromString(n.String())
	case string:
		return fromString(n)
	default:
		return decimal.Zero, fmt.Errorf("%w: %v (%T) is not a number", ErrInvalidValue, v, v)
	}
}

func fromFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, fmt.Errorf("%w: %v is not finite", ErrInvalidValue, f)
	}
	return decimal.NewFromFloat(f), nil
}

func fromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "nan", "inf", "+inf", "-inf", "infinity", "+infinity", "-infinity":
		return decimal.Zero, fmt.Errorf("%w: %q is not a finite number", ErrInvalidValue, s)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, s)
	}
	return d, nil
}

// ParseState reads a published state string as a quantity. The host's
// unknown and unavailable markers, and anything non-numeric, yield
// ErrUnavailableSource.
func ParseState(state string) (decimal.Decimal, error) {
	switch state {
	case "", StateUnknown, StateUnavailable:
		return decimal.Zero, fmt.Errorf("%w: state is %q", ErrUnavailableSource, state)
	}
	d, err := fromString(state)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: state %q is not numeric", ErrUnavailableSource, state)
	}
	return d, nil
}

// FormatQuantity renders a quantity the way it is published as entity state.
func FormatQuantity(d decimal.Decimal) string {
	return d.String()
}

// float returns the float64 form of d for attributes and telemetry.
func float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
