package service

import (
	"testing"

	"pgregory.net/rapid"
)

// TestParseThresholdRangeProperty checks every accepted threshold is in [0,1].
func TestParseThresholdRangeProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := rapid.OneOf(
			rapid.StringMatching(`-?[0-9]{1,4}(\.[0-9]{1,3})?%?`),
			rapid.String(),
		).Draw(t, "input")
		v, err := ParseThreshold(in)
		if err == nil && (v < 0 || v > 1) {
			t.Fatalf("ParseThreshold(%q) = %v outside [0,1]", in, v)
		}
	})
}
