package format

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUSD(t *testing.T) {
	cases := map[float64]string{
		2_450_000:     "$2.5M",
		850:           "$850",
		12_300:        "$12.3K",
		1_200_000_000: "$1.2B",
		0:             "$0",
		-15_000:       "-$15.0K",
		999.4:         "$999",
		999.6:         "$1.0K",
		999_940:       "$999.9K",
		999_960:       "$1.0M",
		999_960_000:   "$1.0B",
	}
	for in, want := range cases {
		assert.Equal(t, want, USD(in), "USD(%v)", in)
	}
	assert.Equal(t, NA, USD(math.NaN()))
}

func TestPercentConventions(t *testing.T) {
	assert.Equal(t, "73%", Percent(0.734))
	assert.Equal(t, "73.4%", PercentPrecise(0.734))
	assert.Equal(t, "100%", Percent(0.999))
}

func TestChange(t *testing.T) {
	assert.Equal(t, "+4.0pt", Change(0.04))
	assert.Equal(t, "-12.5pt", Change(-0.125))
	assert.Equal(t, "0.0pt", Change(0.0001))
}

func TestMomentumEmoji(t *testing.T) {
	assert.Equal(t, "🚀", MomentumEmoji(0.12))
	assert.Equal(t, "📈", MomentumEmoji(0.05))
	assert.Equal(t, "➖", MomentumEmoji(0.01))
	assert.Equal(t, "📉", MomentumEmoji(-0.04))
	assert.Equal(t, "💥", MomentumEmoji(-0.2))
}

func TestWhaleTier(t *testing.T) {
	assert.Equal(t, "Big fish", WhaleTier(10_000).Label)
	assert.Equal(t, "Dolphin", WhaleTier(50_000).Label)
	assert.Equal(t, "Shark", WhaleTier(150_000).Label)
	assert.Equal(t, "Whale", WhaleTier(250_000).Label)
	assert.Equal(t, "Giant whale", WhaleTier(999_999).Label)
	assert.Equal(t, "Mega whale", WhaleTier(5_000_000).Label)
	assert.Len(t, WhaleTiers, 6)
}

func TestSparkline(t *testing.T) {
	assert.Equal(t, "", Sparkline(nil))
	assert.Equal(t, "▁█", Sparkline([]float64{0.1, 0.9}))
	assert.Equal(t, "▅▅▅", Sparkline([]float64{0.4, 0.4, 0.4}))
}

func TestTruncateAndURL(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "https://polymarket.com/event/btc-2026", MarketURL("https://polymarket.com/", "btc-2026", "btc-100k"))
	assert.Equal(t, "https://polymarket.com/event/btc-100k", MarketURL("https://polymarket.com", "", "btc-100k"))
}

func TestMarketLinkEscapesSlug(t *testing.T) {
	assert.Equal(t, `https://polymarket.com/event/fed\_cut`, MarketLink("https://polymarket.com", "fed_cut", ""))
	assert.Equal(t, "https://polymarket.com/event/btc-100k", MarketLink("https://polymarket.com", "", "btc-100k"))
}

func TestEscapeMarkdown(t *testing.T) {
	assert.Equal(t, `will\_it \*rain\* \[today]`, EscapeMarkdown("will_it *rain* [today]"))
}
