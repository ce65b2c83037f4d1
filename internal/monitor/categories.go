package monitor

import (
	"strings"
)

// CategoryOther is assigned when no keyword matches.
const CategoryOther = "other"

// Categories lists the keyword categories in match priority order.
var Categories = []string{"politics", "crypto", "sports", "economy", "tech", "culture", "world"}

var categoryKeywords = map[string][]string{
	"politics": {"election", "president", "trump", "biden", "senate", "congress", "governor", "democrat", "republican", "vote", "parliament", "prime minister", "poll"},
	"crypto":   {"bitcoin", "btc", "ethereum", "eth", "solana", "crypto", "token", "coinbase", "binance", "memecoin", "airdrop", "stablecoin"},
	"sports":   {"nba", "nfl", "mlb", "nhl", "fifa", "world cup", "super bowl", "champions league", "premier league", "tennis", "ufc", "olympic", "match", "playoffs"},
	"economy":  {"fed", "interest rate", "inflation", "cpi", "gdp", "recession", "unemployment", "tariff", "s&p", "nasdaq", "stock", "treasury"},
	"tech":     {"ai", "openai", "apple", "google", "microsoft", "nvidia", "tesla", "spacex", "iphone", "chatgpt", "launch"},
	"culture":  {"movie", "oscar", "grammy", "album", "box office", "taylor swift", "netflix", "celebrity", "tiktok", "youtube", "emmy"},
	"world":    {"war", "ukraine", "russia", "china", "israel", "gaza", "iran", "nato", "ceasefire", "un ", "invasion"},
}

// Categorize assigns a market question to the first category whose keywords
// it contains, matching whole words.
func Categorize(question string) string {
	text := " " + normalize(question) + " "
	for _, cat := range Categories {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(text, " "+strings.TrimSpace(kw)+" ") {
				return cat
			}
		}
	}
	return CategoryOther
}

// IsCategory reports whether name is a known category.
func IsCategory(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// normalize lowercases and replaces punctuation with spaces so keyword
// matching works on word boundaries.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '&':
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
