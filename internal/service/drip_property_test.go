package service

import (
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestDripStepsMonotonicProperty checks a step is only ever due once its
// day has elapsed and steps never skip.
func TestDripStepsMonotonicProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		step := rapid.IntRange(-1, len(DripSteps)+1).Draw(t, "step")
		hours := rapid.IntRange(0, 24*30).Draw(t, "hours")
		signup := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

		got := NextDripStep(step, signup, signup.Add(time.Duration(hours)*time.Hour))
		if got == -1 {
			return
		}
		if got != step {
			t.Fatalf("step %d returned %d", step, got)
		}
		if hours < DripSteps[got].Day*24 {
			t.Fatalf("step %d due after %dh, before day %d", got, hours, DripSteps[got].Day)
		}
	})
}
