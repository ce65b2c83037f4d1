package polymarket

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Market is a Polymarket binary market as exposed to the rest of the bot.
type Market struct {
	ID            string
	Question      string
	Slug          string
	EventSlug     string
	ConditionID   string
	Category      string
	Outcomes      []string
	OutcomePrices []float64
	Volume        float64
	Volume24h     float64
	Liquidity     float64
	// DayChange is the 24h YES price change in probability points (0.05 = +5pt).
	DayChange float64
	Active    bool
	Closed    bool
	EndDate   time.Time
	CreatedAt time.Time
}

// YesPrice returns the implied YES probability.
func (m *Market) YesPrice() (float64, bool) {
	if len(m.OutcomePrices) == 0 {
		return 0, false
	}
	return m.OutcomePrices[0], true
}

// NoPrice returns the implied NO probability.
func (m *Market) NoPrice() (float64, bool) {
	if len(m.OutcomePrices) >= 2 {
		return m.OutcomePrices[1], true
	}
	if yes, ok := m.YesPrice(); ok {
		return 1 - yes, true
	}
	return 0, false
}

// Winner returns the winning side of a closed market whose prices have
// settled to 0/1.
func (m *Market) Winner() (string, bool) {
	if !m.Closed || len(m.OutcomePrices) < 2 {
		return "", false
	}
	switch {
	case m.OutcomePrices[0] >= 0.99:
		return "YES", true
	case m.OutcomePrices[1] >= 0.99:
		return "NO", true
	}
	return "", false
}

// Tag is a Gamma category tag.
type Tag struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Slug  string `json:"slug"`
}

// Trade is one fill from the data API trade feed.
type Trade struct {
	Wallet      string
	Side        string // BUY or SELL
	Asset       string
	ConditionID string
	Size        decimal.Decimal
	Price       decimal.Decimal
	Timestamp   time.Time
	Title       string
	Slug        string
	EventSlug   string
	Outcome     string
	TxHash      string
	Name        string
}

// USDValue is size × price.
func (t Trade) USDValue() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

type gammaMarket struct {
	ID                string          `json:"id"`
	Question          string          `json:"question"`
	Slug              string          `json:"slug"`
	ConditionID       string          `json:"conditionId"`
	Category          string          `json:"category"`
	Outcomes          StringList      `json:"outcomes"`
	OutcomePrices     StringList      `json:"outcomePrices"`
	Volume            NullableDecimal `json:"volume"`
	Volume24hr        NullableDecimal `json:"volume24hr"`
	Liquidity         NullableDecimal `json:"liquidity"`
	OneDayPriceChange NullableDecimal `json:"oneDayPriceChange"`
	LastTradePrice    NullableDecimal `json:"lastTradePrice"`
	Active            bool            `json:"active"`
	Closed            bool            `json:"closed"`
	EndDate           string          `json:"endDate"`
	CreatedAt         string          `json:"createdAt"`
	Events            []struct {
		Slug string `json:"slug"`
	} `json:"events"`
}

func (g gammaMarket) toMarket() Market {
	m := Market{
		ID:          g.ID,
		Question:    g.Question,
		Slug:        g.Slug,
		ConditionID: g.ConditionID,
		Category:    g.Category,
		Outcomes:    []string(g.Outcomes),
		Volume:      g.Volume.Float(),
		Volume24h:   g.Volume24hr.Float(),
		Liquidity:   g.Liquidity.Float(),
		DayChange:   g.OneDayPriceChange.Float(),
		Active:      g.Active,
		Closed:      g.Closed,
		EndDate:     parseTime(g.EndDate),
		CreatedAt:   parseTime(g.CreatedAt),
	}
	if len(g.Events) > 0 {
		m.EventSlug = g.Events[0].Slug
	}
	for _, p := range g.OutcomePrices {
		d, err := decimal.NewFromString(strings.TrimSpace(p))
		if err != nil {
			m.OutcomePrices = nil
			break
		}
		m.OutcomePrices = append(m.OutcomePrices, d.InexactFloat64())
	}
	if len(m.OutcomePrices) == 0 && g.LastTradePrice.Valid {
		yes := g.LastTradePrice.Decimal.InexactFloat64()
		m.OutcomePrices = []float64{yes, 1 - yes}
	}
	return m
}

type dataTrade struct {
	ProxyWallet     string          `json:"proxyWallet"`
	Side            string          `json:"side"`
	Asset           string          `json:"asset"`
	ConditionID     string          `json:"conditionId"`
	Size            NullableDecimal `json:"size"`
	Price           NullableDecimal `json:"price"`
	Timestamp       int64           `json:"timestamp"`
	Title           string          `json:"title"`
	Slug            string          `json:"slug"`
	EventSlug       string          `json:"eventSlug"`
	Outcome         string          `json:"outcome"`
	TransactionHash string          `json:"transactionHash"`
	Name            string          `json:"name"`
}

func (d dataTrade) toTrade() Trade {
	return Trade{
		Wallet:      d.ProxyWallet,
		Side:        strings.ToUpper(d.Side),
		Asset:       d.Asset,
		ConditionID: d.ConditionID,
		Size:        d.Size.Decimal,
		Price:       d.Price.Decimal,
		Timestamp:   time.Unix(d.Timestamp, 0).UTC(),
		Title:       d.Title,
		Slug:        d.Slug,
		EventSlug:   d.EventSlug,
		Outcome:     d.Outcome,
		TxHash:      d.TransactionHash,
		Name:        d.Name,
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// NullableDecimal decodes numbers that Gamma sends either as JSON numbers,
// quoted strings or null.
type NullableDecimal struct {
	Decimal decimal.Decimal
	Valid   bool
}

// Float returns the value, or 0 when absent.
func (n NullableDecimal) Float() float64 {
	if !n.Valid {
		return 0
	}
	return n.Decimal.InexactFloat64()
}

func (n *NullableDecimal) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		n.Valid = false
		return nil
	}
	trimmed = strings.Trim(trimmed, "\"")
	if trimmed == "" {
		n.Valid = false
		return nil
	}
	dec, err := decimal.NewFromString(trimmed)
	if err != nil {
		n.Valid = false
		return err
	}
	n.Decimal = dec
	n.Valid = true
	return nil
}

// StringList decodes Gamma list fields, which arrive either as a JSON array
// or as a string containing a JSON array.
type StringList []string

func (s *StringList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		*s = nil
		return nil
	}
	switch trimmed[0] {
	case '"':
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			*s = nil
			return nil
		}
		var values []string
		if err := json.Unmarshal([]byte(inner), &values); err == nil {
			*s = values
			return nil
		}
		*s = []string{inner}
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		values := make([]string, 0, len(raw))
		for _, r := range raw {
			var v string
			if err := json.Unmarshal(r, &v); err != nil {
				v = string(r)
			}
			values = append(values, v)
		}
		*s = values
		return nil
	}
	return fmt.Errorf("unexpected string list format: %s", trimmed)
}
