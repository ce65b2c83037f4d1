// Package handler provides Telegram bot command handlers.
package handler

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	tele "gopkg.in/telebot.v3"

	"polypulse/internal/billing"
	"polypulse/internal/model"
	"polypulse/internal/monitor"
	"polypulse/internal/pkg/lock"
	"polypulse/internal/repository"
	"polypulse/internal/service"
)

// Context keys set by the bot middleware.
const (
	userKey    = "polypulse.user"
	createdKey = "polypulse.user_created"
)

// requestTimeout bounds the work done for one command.
const requestTimeout = 30 * time.Second

// GenericError is the reply for any failure without a specific message.
const GenericError = "⚠️ Something went wrong, try again."

// SetUser stores the resolved user on the update context.
func SetUser(c tele.Context, user *model.User, created bool) {
	c.Set(userKey, user)
	c.Set(createdKey, created)
}

// CurrentUser returns the user stored by SetUser, or nil.
func CurrentUser(c tele.Context) *model.User {
	user, _ := c.Get(userKey).(*model.User)
	return user
}

// IsNewUser reports whether the user was created by this update.
func IsNewUser(c tele.Context) bool {
	created, _ := c.Get(createdKey).(bool)
	return created
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

// reply answers with legacy Markdown and link previews disabled.
func reply(c tele.Context, text string) error {
	return c.Reply(text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
}

// replyError maps err to a friendly message. Unknown errors are logged and
// answered with GenericError.
func replyError(c tele.Context, command string, err error) error {
	msg, known := ErrorMessage(err)
	if !known {
		ev := log.Error().Err(err).Str("command", command)
		if sender := c.Sender(); sender != nil {
			ev = ev.Int64("user_id", sender.ID)
		}
		ev.Msg("Command failed")
	}
	return reply(c, msg)
}

// ErrorMessage returns the user-facing text for err. The bool is false for
// errors without a dedicated message.
func ErrorMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, service.ErrMarketNotFound):
		return "🔍 No market found for that query. Try /trending.", true
	case errors.Is(err, service.ErrNoPrice):
		return "That market has no price yet.", true
	case errors.Is(err, service.ErrMarketClosed):
		return "That market is closed.", true
	case errors.Is(err, service.ErrInvalidThreshold):
		return "Price must be between 0 and 1, e.g. `0.65`, `65` or `65%`.", true
	case errors.Is(err, service.ErrInvalidDirection):
		return "Direction must be `above` or `below`.", true
	case errors.Is(err, service.ErrAlertLimit):
		return "🔒 You've reached the free alert limit. /upgrade for unlimited alerts.", true
	case errors.Is(err, service.ErrAlreadyWatching):
		return "That market is already on your watchlist.", true
	case errors.Is(err, service.ErrInvalidSide):
		return "Side must be `yes` or `no`.", true
	case errors.Is(err, service.ErrInvalidAmount):
		return "Amount must be a positive number.", true
	case errors.Is(err, service.ErrInvalidHour):
		return "Hour must be between 0 and 23.", true
	case errors.Is(err, service.ErrInvalidTimezone):
		return "Unknown timezone. Use an IANA name such as `Europe/London`.", true
	case errors.Is(err, service.ErrUnknownCategory):
		return "Unknown category. Choose from: " + strings.Join(monitor.Categories, ", ") + ".", true
	case errors.Is(err, service.ErrUnknownAlertType):
		return "Unknown alert type. Choose from: `volume`, `momentum`, `new`.", true
	case errors.Is(err, service.ErrPremiumRequired):
		return premiumHint, true
	case errors.Is(err, repository.ErrAlertNotFound):
		return "No alert with that id. See /alerts.", true
	case errors.Is(err, repository.ErrWatchlistItemNotFound):
		return "That market is not on your watchlist.", true
	case errors.Is(err, repository.ErrPositionNotFound):
		return "No position matches that market. See /portfolio.", true
	case errors.Is(err, lock.ErrLockTimeout):
		return "⏳ Still working on your last request, try again in a moment.", true
	case errors.Is(err, billing.ErrNotConfigured):
		return "Billing is not available right now.", true
	case errors.Is(err, billing.ErrNoSubscription):
		return "You don't have an active subscription. /upgrade to start one.", true
	}
	return GenericError, false
}

const premiumHint = "🔒 This is a premium feature. /upgrade to unlock watchlists, portfolio tracking, whale and smart alerts, briefings and predictions."

// PremiumHint is the reply for free users calling premium commands.
func PremiumHint() string {
	return premiumHint
}

func usage(c tele.Context, text string) error {
	return reply(c, "Usage: "+text)
}

func chatID(c tele.Context) int64 {
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	if sender := c.Sender(); sender != nil {
		return sender.ID
	}
	return 0
}

func displayName(u *tele.User) string {
	if u == nil {
		return ""
	}
	if u.Username != "" {
		return u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// splitTail separates the trailing n arguments from a free-text query.
// ok is false when there is no query left.
func splitTail(args []string, n int) (query string, tail []string, ok bool) {
	if len(args) <= n {
		return "", nil, false
	}
	cut := len(args) - n
	return strings.Join(args[:cut], " "), args[cut:], true
}

// parseAlertArgs parses "<query> <price> [above|below]".
func parseAlertArgs(args []string) (query, price, direction string, ok bool) {
	if n := len(args); n >= 3 {
		if d := strings.ToLower(args[n-1]); d == model.DirectionAbove || d == model.DirectionBelow {
			direction = d
			args = args[:n-1]
		}
	}
	query, tail, ok := splitTail(args, 1)
	if !ok {
		return "", "", "", false
	}
	return query, tail[0], direction, true
}

// parseUSD accepts 50000, 50,000, $50k, 1.5m.
func parseUSD(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "k"):
		mult, s = 1e3, strings.TrimSuffix(s, "k")
	case strings.HasSuffix(s, "m"):
		mult, s = 1e6, strings.TrimSuffix(s, "m")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, service.ErrInvalidAmount
	}
	return v * mult, nil
}

func isOn(s string) (on bool, ok bool) {
	switch strings.ToLower(s) {
	case "on", "enable", "yes", "start":
		return true, true
	case "off", "disable", "no", "stop":
		return false, true
	}
	return false, false
}
