package handler

import (
	"fmt"
	"strings"
	"time"

	"polypulse/internal/billing"
	"polypulse/internal/format"
	"polypulse/internal/model"
	"polypulse/internal/polymarket"
	"polypulse/internal/service"
)

const nameLength = 70

func name(s string) string {
	return format.EscapeMarkdown(format.Truncate(s, nameLength))
}

func renderMarket(m *polymarket.Market, siteURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 *%s*\n\n", format.EscapeMarkdown(m.Question))

	if yes, ok := m.YesPrice(); ok {
		no, _ := m.NoPrice()
		fmt.Fprintf(&b, "YES: *%s*  NO: *%s*\n", format.PercentPrecise(yes), format.PercentPrecise(no))
	} else {
		fmt.Fprintf(&b, "YES: %s\n", format.NA)
	}
	fmt.Fprintf(&b, "24h: %s %s\n", format.MomentumEmoji(m.DayChange), format.Change(m.DayChange))
	fmt.Fprintf(&b, "Volume: %s (24h %s)\n", format.USD(m.Volume), format.USD(m.Volume24h))
	fmt.Fprintf(&b, "Liquidity: %s\n", format.USD(m.Liquidity))
	if !m.EndDate.IsZero() {
		fmt.Fprintf(&b, "Ends: %s\n", m.EndDate.UTC().Format("2006-01-02"))
	}
	if m.Closed {
		b.WriteString("Status: closed\n")
	}
	fmt.Fprintf(&b, "\n%s\nID: `%s`", format.MarketLink(siteURL, m.EventSlug, m.Slug), m.ID)
	return b.String()
}

func renderTrending(markets []polymarket.Market) string {
	if len(markets) == 0 {
		return "No trending markets right now."
	}
	var b strings.Builder
	b.WriteString("🔥 *Trending markets*\n")
	for i := range markets {
		m := &markets[i]
		price := format.NA
		if yes, ok := m.YesPrice(); ok {
			price = format.Percent(yes)
		}
		fmt.Fprintf(&b, "\n%d. %s\n   YES %s %s · 24h vol %s\n",
			i+1, name(m.Question), price, format.Change(m.DayChange), format.USD(m.Volume24h))
	}
	return b.String()
}

func renderAlerts(alerts []*model.Alert, premium bool, freeLimit int) string {
	if len(alerts) == 0 {
		return "You have no active alerts. Create one with /alert <market> <price>."
	}
	var b strings.Builder
	b.WriteString("🔔 *Your alerts*\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "\n#%d %s\n   %s %s\n", a.ID, name(a.MarketName), a.Direction, format.Percent(a.Threshold))
	}
	if !premium {
		fmt.Fprintf(&b, "\n%d/%d free alerts used.", len(alerts), freeLimit)
	}
	b.WriteString("\nCancel with /cancelalert <id>.")
	return b.String()
}

func renderWatchlist(entries []service.WatchEntry) string {
	if len(entries) == 0 {
		return "Your watchlist is empty. Add a market with /watch <market>."
	}
	var b strings.Builder
	b.WriteString("👀 *Watchlist*\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s\n", name(e.Item.MarketName))
		if !e.Quote.OK {
			fmt.Fprintf(&b, "   %s (added at %s)\n", format.NA, format.Percent(e.Item.PriceAtAdd))
			continue
		}
		fmt.Fprintf(&b, "   %s %s since added · %s 24h\n",
			format.PercentPrecise(e.Quote.Price),
			format.Change(e.Quote.Price-e.Item.PriceAtAdd),
			format.Change(e.Quote.DayChange))
	}
	return b.String()
}

func signedUSD(v float64) string {
	if v > 0 {
		return "+" + format.USD(v)
	}
	return format.USD(v)
}

func renderPortfolio(p *service.Portfolio) string {
	if len(p.Positions) == 0 {
		return "No positions yet. Record one with /buy <market> <yes|no> <shares> <price>."
	}
	var b strings.Builder
	b.WriteString("💼 *Portfolio*\n")
	for _, v := range p.Positions {
		pos := v.Position
		fmt.Fprintf(&b, "\n%s\n   %s %.2f @ %s", name(pos.MarketName), pos.Side, pos.Shares, format.PercentPrecise(pos.EntryPrice))
		if v.OK {
			fmt.Fprintf(&b, " → %s · P&L %s\n", format.PercentPrecise(v.Current), signedUSD(v.PnL))
		} else {
			fmt.Fprintf(&b, " → %s\n", format.NA)
		}
	}
	fmt.Fprintf(&b, "\nCost: %s\nValue: %s\nP&L: *%s*", format.USD(p.Cost), format.USD(p.Value), signedUSD(p.PnL))
	return b.String()
}

func renderWhalePref(p *model.WhalePreference, recent []*model.WhaleEvent) string {
	var b strings.Builder
	state := "off"
	if p.Enabled {
		state = "on"
	}
	fmt.Fprintf(&b, "🐋 *Whale alerts:* %s\nMinimum trade: %s\n", state, format.USD(p.MinUSD))
	if len(recent) > 0 {
		b.WriteString("\n*Largest trades, last 24h*\n")
		for _, e := range recent {
			tier := format.WhaleTier(e.AmountUSD)
			fmt.Fprintf(&b, "%s %s %s on %s\n", tier.Emoji, format.USD(e.AmountUSD), e.Side, name(e.MarketTitle))
		}
	}
	b.WriteString("\n/whales on · /whales off · /whales <min usd>")
	return b.String()
}

func renderBriefingPref(p *model.BriefingPreference) string {
	state := "off"
	if p.Enabled {
		state = "on"
	}
	filter := "followed categories"
	if len(p.CategoryFilter) > 0 {
		filter = strings.Join(p.CategoryFilter, ", ")
	}
	return fmt.Sprintf("☀️ *Daily briefing:* %s\nSent at %02d:00 %s\nMovers from: %s\n\n"+
		"/briefing on · /briefing off · /briefing <hour> [timezone] · /briefing filter <categories|clear>",
		state, p.SendHour, format.EscapeMarkdown(p.Timezone), filter)
}

var smartLabels = map[string]string{
	model.SmartVolumeSpike: "Volume spikes",
	model.SmartMomentum:    "Momentum moves",
	model.SmartNewMarket:   "New markets",
}

func renderSmartPrefs(prefs map[string]*model.SmartAlertPreference) string {
	var b strings.Builder
	b.WriteString("🧠 *Smart alerts*\n")
	for _, t := range model.SmartAlertTypes() {
		p := prefs[t]
		state := "off"
		if p != nil && p.Enabled {
			state = "on"
		}
		fmt.Fprintf(&b, "\n%s: %s", smartLabels[t], state)
		if p != nil {
			if cats := p.DecodeParams().Categories; len(cats) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(cats, ", "))
			}
		}
	}
	b.WriteString("\n\n/smart <volume|momentum|new> <on|off> [categories]")
	return b.String()
}

func renderCategories(followed, available []string, tags []polymarket.Tag) string {
	var b strings.Builder
	b.WriteString("🏷 *Categories*\n\n")
	if len(followed) == 0 {
		b.WriteString("You don't follow any categories.\n")
	} else {
		fmt.Fprintf(&b, "Following: %s\n", strings.Join(followed, ", "))
	}
	fmt.Fprintf(&b, "Available: %s\n", strings.Join(available, ", "))
	if len(tags) > 0 {
		labels := make([]string, 0, len(tags))
		for _, t := range tags {
			labels = append(labels, format.EscapeMarkdown(t.Label))
		}
		fmt.Fprintf(&b, "Popular on Polymarket: %s\n", strings.Join(labels, ", "))
	}
	b.WriteString("\n/categories add <category> · /categories remove <category>")
	return b.String()
}

func outcome(p *model.Prediction) string {
	switch {
	case p.Correct == nil:
		return "⏳"
	case *p.Correct:
		return "✅"
	}
	return "❌"
}

func renderPredictions(preds []*model.Prediction) string {
	if len(preds) == 0 {
		return "No predictions yet. Make one with /predict <market> <yes|no>."
	}
	var b strings.Builder
	b.WriteString("🎯 *Your predictions*\n")
	for _, p := range preds {
		fmt.Fprintf(&b, "\n%s %s %s at %s", outcome(p), name(p.MarketName), p.Side, format.Percent(p.Odds))
	}
	return b.String()
}

func renderLeaderboard(entries []*model.LeaderboardEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("No one has %d resolved predictions yet.", service.LeaderboardMinResolved)
	}
	var b strings.Builder
	b.WriteString("🏆 *Prediction leaderboard*\n")
	for i, e := range entries {
		who := e.Username
		if who == "" {
			who = fmt.Sprintf("user %d", e.UserID)
		}
		fmt.Fprintf(&b, "\n%d. %s  %s (%d/%d)", i+1, format.EscapeMarkdown(who),
			format.PercentPrecise(e.Accuracy), e.Correct, e.Total)
	}
	return b.String()
}

func renderAccount(u *model.User, premium bool, trialDays int) string {
	switch {
	case u.SubscriptionStatus == model.StatusTrial && premium:
		return fmt.Sprintf("🎁 Premium trial: %d day(s) left.", trialDays)
	case u.SubscriptionStatus == model.StatusPremium && premium:
		return "⭐ Premium member."
	case u.SubscriptionStatus == model.StatusCancelled && premium:
		return fmt.Sprintf("Premium until %s (cancelled).", u.PremiumExpiresAt.UTC().Format("2006-01-02"))
	}
	return "Free plan. /upgrade for premium."
}

func renderSubscription(u *model.User, info *billing.SubscriptionInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "💳 *Subscription*\n\nStatus: %s\n", u.SubscriptionStatus)
	if info != nil {
		fmt.Fprintf(&b, "Billing status: %s\n", info.Status)
		if !info.CurrentPeriodEnd.IsZero() {
			label := "Renews"
			if info.CancelAtPeriodEnd {
				label = "Ends"
			}
			fmt.Fprintf(&b, "%s: %s\n", label, info.CurrentPeriodEnd.Format("2006-01-02"))
		}
	} else if u.PremiumExpiresAt != nil && u.SubscriptionStatus != model.StatusFree {
		fmt.Fprintf(&b, "Access until: %s\n", u.PremiumExpiresAt.UTC().Format("2006-01-02"))
	}
	return b.String()
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2 Jan 2006")
}
