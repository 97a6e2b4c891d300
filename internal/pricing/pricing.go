package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrUnknownDuration = errors.New("unknown storage duration")

// USD is a fixed-point dollar amount in micro-dollars (6 fractional digits).
// USDC carries 6 decimals on-chain, so one micro-dollar is exactly one
// atomic unit of the asset.
type USD int64

// prices maps the enumerated retention durations (in days) to their fee.
var prices = map[int]USD{
	1:  50_000,  // $0.05
	7:  150_000, // $0.15
	30: 250_000, // $0.25
}

// durations lists the valid retention options in ascending order.
var durations = []int{1, 7, 30}

// PriceFor returns the fee for the given retention duration in days.
// Only the enumerated durations are priced; anything else is rejected.
func PriceFor(durationDays int) (USD, error) {
	price, ok := prices[durationDays]
	if !ok {
		return 0, ErrUnknownDuration
	}
	return price, nil
}

// IsValidDuration reports whether d is one of the enumerated options.
func IsValidDuration(d int) bool {
	_, ok := prices[d]
	return ok
}

// Durations returns the enumerated retention options in days.
func Durations() []int {
	out := make([]int, len(durations))
	copy(out, durations)
	return out
}

// String formats the amount as a decimal dollar string with trailing
// zeros trimmed, e.g. "0.05" or "1.5".
func (u USD) String() string {
	whole := int64(u) / 1_000_000
	frac := int64(u) % 1_000_000
	if frac < 0 {
		frac = -frac
	}
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	s := fmt.Sprintf("%d.%06d", whole, frac)
	return strings.TrimRight(s, "0")
}

// AtomicUnits returns the amount in the asset's atomic units.
func (u USD) AtomicUnits() int64 {
	return int64(u)
}

// ParseUSD parses a decimal dollar string, with an optional leading "$",
// into a fixed-point amount. At most 6 fractional digits are accepted.
func ParseUSD(s string) (USD, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}

	whole, frac := s, ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole, frac = s[:idx], s[idx+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > 6 {
		return 0, fmt.Errorf("price %q has more than 6 fractional digits", s)
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	if w < 0 {
		return 0, fmt.Errorf("negative price %q", s)
	}

	var f int64
	if frac != "" {
		f, err = strconv.ParseInt(frac, 10, 64)
		if err != nil || f < 0 {
			return 0, fmt.Errorf("invalid price %q", s)
		}
		for i := len(frac); i < 6; i++ {
			f *= 10
		}
	}

	return USD(w*1_000_000 + f), nil
}
