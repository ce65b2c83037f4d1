package handler

import (
	"fmt"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v3"

	"polypulse/internal/format"
	"polypulse/internal/service"
)

// AlertHandler handles price alert commands.
type AlertHandler struct {
	alertService   *service.AlertService
	accountService *service.AccountService
}

// NewAlertHandler creates a new AlertHandler.
func NewAlertHandler(alertService *service.AlertService, accountService *service.AccountService) *AlertHandler {
	return &AlertHandler{alertService: alertService, accountService: accountService}
}

// HandleAlert handles /alert <query> <price> [above|below].
func (h *AlertHandler) HandleAlert(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	query, price, direction, ok := parseAlertArgs(c.Args())
	if !ok {
		return usage(c, "/alert <market> <price> [above|below]\nExample: /alert bitcoin 100k 0.65")
	}

	ctx, cancel := requestContext()
	defer cancel()

	alert, market, err := h.alertService.Create(ctx, service.CreateAlertRequest{
		User:      user,
		ChatID:    chatID(c),
		Query:     query,
		Threshold: price,
		Direction: direction,
	})
	if err != nil {
		return replyError(c, "alert", err)
	}

	current := format.NA
	if yes, ok := market.YesPrice(); ok {
		current = format.Percent(yes)
	}
	return reply(c, fmt.Sprintf(
		"✅ Alert #%d set\n\n%s\nNotify when YES goes %s %s (now %s).",
		alert.ID, name(alert.MarketName), alert.Direction, format.Percent(alert.Threshold), current,
	))
}

// HandleAlerts handles /alerts.
func (h *AlertHandler) HandleAlerts(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	alerts, err := h.alertService.List(ctx, user.ID)
	if err != nil {
		return replyError(c, "alerts", err)
	}
	return reply(c, renderAlerts(alerts, h.accountService.IsPremium(user), h.alertService.FreeLimit()))
}

// HandleCancelAlert handles /cancelalert <id>.
func (h *AlertHandler) HandleCancelAlert(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	args := c.Args()
	if len(args) != 1 {
		return usage(c, "/cancelalert <id>")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return usage(c, "/cancelalert <id>")
	}

	ctx, cancel := requestContext()
	defer cancel()

	if err := h.alertService.Cancel(ctx, user.ID, id); err != nil {
		return replyError(c, "cancelalert", err)
	}
	return reply(c, fmt.Sprintf("🗑 Alert #%d cancelled.", id))
}
