// Package format renders market values for chat messages.
package format

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

// NA is shown for missing values.
const NA = "N/A"

// USD abbreviates a dollar amount: $2.5M, $12.3K, $850.
func USD(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return NA
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	// Bands start where the lower band would round up to 1000.
	switch {
	case v >= 999_950_000:
		return fmt.Sprintf("%s$%.1fB", sign, v/1e9)
	case v >= 999_950:
		return fmt.Sprintf("%s$%.1fM", sign, v/1e6)
	case v >= 999.5:
		return fmt.Sprintf("%s$%.1fK", sign, v/1e3)
	}
	return fmt.Sprintf("%s$%.0f", sign, v)
}

// Percent renders a probability rounded to the nearest whole percent: 73%.
func Percent(p float64) string {
	if math.IsNaN(p) {
		return NA
	}
	return fmt.Sprintf("%d%%", int(math.Round(p*100)))
}

// PercentPrecise renders a probability with one decimal: 73.4%.
func PercentPrecise(p float64) string {
	if math.IsNaN(p) {
		return NA
	}
	return fmt.Sprintf("%.1f%%", p*100)
}

// Change renders a probability delta as signed points: +4.0pt, -3.2pt.
func Change(delta float64) string {
	pts := delta * 100
	if math.Abs(pts) < 0.05 {
		return "0.0pt"
	}
	return fmt.Sprintf("%+.1fpt", pts)
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws a price history as block characters. An empty history
// yields "".
func Sparkline(prices []float64) string {
	if len(prices) == 0 {
		return ""
	}
	lo, hi := prices[0], prices[0]
	for _, p := range prices[1:] {
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}

	var b strings.Builder
	for _, p := range prices {
		idx := len(sparkBlocks) / 2
		if hi > lo {
			idx = int(math.Round((p - lo) / (hi - lo) * float64(len(sparkBlocks)-1)))
		}
		b.WriteRune(sparkBlocks[idx])
	}
	return b.String()
}

// MomentumEmoji picks an emoji for a probability move.
func MomentumEmoji(delta float64) string {
	switch {
	case delta >= 0.10:
		return "🚀"
	case delta >= 0.03:
		return "📈"
	case delta <= -0.10:
		return "💥"
	case delta <= -0.03:
		return "📉"
	}
	return "➖"
}

// Tier is a whale size band.
type Tier struct {
	MinUSD float64
	Emoji  string
	Label  string
}

// WhaleTiers is ordered from largest to smallest.
var WhaleTiers = []Tier{
	{1_000_000, "🐋🐋🐋", "Mega whale"},
	{500_000, "🐋🐋", "Giant whale"},
	{250_000, "🐋", "Whale"},
	{100_000, "🦈", "Shark"},
	{50_000, "🐬", "Dolphin"},
	{0, "🐟", "Big fish"},
}

// WhaleTier returns the band for a trade size.
func WhaleTier(usd float64) Tier {
	for _, t := range WhaleTiers {
		if usd >= t.MinUSD {
			return t
		}
	}
	return WhaleTiers[len(WhaleTiers)-1]
}

// Truncate shortens s to at most n runes, ending with an ellipsis.
func Truncate(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "\n", " ")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

// MarketURL links to the market page on the Polymarket site.
func MarketURL(siteURL, eventSlug, slug string) string {
	path := eventSlug
	if path == "" {
		path = slug
	}
	if path == "" {
		return strings.TrimRight(siteURL, "/")
	}
	return strings.TrimRight(siteURL, "/") + "/event/" + path
}

// MarketLink is MarketURL escaped for a Markdown message body.
func MarketLink(siteURL, eventSlug, slug string) string {
	return EscapeMarkdown(MarketURL(siteURL, eventSlug, slug))
}

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// EscapeMarkdown escapes user-supplied text for Telegram's legacy Markdown.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
