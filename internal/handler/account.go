package handler

import (
	"fmt"

	tele "gopkg.in/telebot.v3"

	"polypulse/internal/service"
)

// AccountHandler handles /start and /help.
type AccountHandler struct {
	accountService *service.AccountService
	freeLimit      int
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accountService *service.AccountService, freeLimit int) *AccountHandler {
	return &AccountHandler{accountService: accountService, freeLimit: freeLimit}
}

// HandleStart greets the user. New users are told about their trial.
func (h *AccountHandler) HandleStart(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	who := displayName(c.Sender())
	premium := h.accountService.IsPremium(user)
	status := renderAccount(user, premium, h.accountService.TrialDaysLeft(user))

	if IsNewUser(c) {
		return reply(c, fmt.Sprintf(
			"👋 Welcome to *PolyPulse*, %s!\n\n"+
				"Live Polymarket odds, price alerts, whale tracking and daily briefings right here in Telegram.\n\n"+
				"%s\n\n"+
				"Try /trending or /price bitcoin to get started. /help lists every command.",
			escapeName(who), status,
		))
	}

	return reply(c, fmt.Sprintf("👋 Welcome back, %s!\n\n%s\n\n/help lists every command.", escapeName(who), status))
}

// HandleHelp lists the commands.
func (h *AccountHandler) HandleHelp(c tele.Context) error {
	return reply(c, fmt.Sprintf(helpText, h.freeLimit))
}

const helpText = "*PolyPulse commands*\n\n" +
	"*Markets*\n" +
	"/price <market> - odds, volume and link\n" +
	"/trending - top markets by 24h volume\n\n" +
	"*Alerts* (%d free)\n" +
	"/alert <market> <price> [above|below]\n" +
	"/alerts - your active alerts\n" +
	"/cancelalert <id>\n\n" +
	"*Premium*\n" +
	"/watch <market> · /unwatch <market> · /watchlist\n" +
	"/buy <market> <yes|no> <shares> <price> · /sell <market> · /portfolio\n" +
	"/whales [on|off|<min usd>]\n" +
	"/briefing [on|off|<hour> [timezone]]\n" +
	"/smart [<volume|momentum|new> <on|off>]\n" +
	"/categories [add|remove <category>]\n" +
	"/predict <market> <yes|no> · /predictions · /leaderboard\n\n" +
	"*Account*\n" +
	"/upgrade · /subscription · /cancelsub"

func escapeName(s string) string {
	if s == "" {
		return "there"
	}
	return name(s)
}
