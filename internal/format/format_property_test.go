package format

import (
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"pgregory.net/rapid"
)

// TestSparklineProperty checks one block per point and that the extremes
// map to the lowest and highest blocks.
func TestSparklineProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		prices := rapid.SliceOfN(rapid.Float64Range(0, 1), 2, 50).Draw(rt, "prices")
		s := Sparkline(prices)
		if utf8.RuneCountInString(s) != len(prices) {
			rt.Fatalf("sparkline %q has %d runes for %d prices", s, utf8.RuneCountInString(s), len(prices))
		}
		lo, hi := prices[0], prices[0]
		for _, p := range prices {
			lo, hi = math.Min(lo, p), math.Max(hi, p)
		}
		if hi > lo && (!strings.ContainsRune(s, '▁') || !strings.ContainsRune(s, '█')) {
			rt.Fatalf("sparkline %q misses an extreme", s)
		}
	})
}

// TestUSDStaysInBandProperty checks the mantissa never rounds up to 1000.
func TestUSDStaysInBandProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		v := rapid.Float64Range(0, 9.99e11).Draw(rt, "v")
		s := USD(v)
		if strings.Contains(s, "1000") {
			rt.Fatalf("USD(%v) = %q rounds past its band", v, s)
		}
	})
}
