// Package numeric provides deterministic float normalization for every
// value that crosses an observable boundary (comparison, aggregation,
// serialization).
//
// Cost math mixes externally sourced pricing and usage values; without a
// single normalization boundary, platform-specific float behavior
// (rounding mode, denormal handling, NaN payloads) silently breaks the
// cross-platform determinism contract.
package numeric

import (
	"fmt"
	"math"
	"strconv"
)

// CurrencyScale is the fixed decimal precision for monetary values.
const CurrencyScale = 2

// Normalize maps every float64 into the deterministic subset:
//
//	NaN   -> 0
//	+Inf  -> math.MaxFloat64
//	-Inf  -> -math.MaxFloat64
//	-0    -> +0
//
// All other finite values pass through unchanged.
func Normalize(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return 0
	case math.IsInf(x, 1):
		return math.MaxFloat64
	case math.IsInf(x, -1):
		return -math.MaxFloat64
	case x == 0:
		// Collapses -0 to +0.
		return 0
	default:
		return x
	}
}

// RoundCurrency rounds to CurrencyScale decimal places using
// round-half-to-even, after normalization.
func RoundCurrency(x float64) float64 {
	return RoundHalfEven(Normalize(x), CurrencyScale)
}

// RoundHalfEven rounds x to the given number of decimal places with
// banker's rounding. The input is normalized first so the result is
// always finite.
func RoundHalfEven(x float64, places int) float64 {
	x = Normalize(x)
	shift := math.Pow(10, float64(places))
	scaled := x * shift
	if math.IsInf(scaled, 0) {
		// Scaling overflowed; the value is already far beyond any
		// representable fraction, so rounding is the identity.
		return x
	}
	return Normalize(math.RoundToEven(scaled) / shift)
}

// FormatCurrency renders x with exactly CurrencyScale decimals and a
// '.' separator, independent of locale.
func FormatCurrency(x float64) string {
	return strconv.FormatFloat(RoundCurrency(x), 'f', CurrencyScale, 64)
}

// NormalizeDeep walks a decoded JSON value (maps, slices, scalars) and
// normalizes every float64 it contains. It returns an error for values
// that cannot appear in canonical output.
func NormalizeDeep(v any) (any, error) {
	switch t := v.(type) {
	case nil, bool, string, int, int64, uint64:
		return t, nil
	case float64:
		return Normalize(t), nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			n, err := NormalizeDeep(elem)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, elem := range t {
			n, err := NormalizeDeep(elem)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("numeric: unsupported value type %T", v)
	}
}
