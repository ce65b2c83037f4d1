package handler

import (
	"errors"
	"fmt"

	tele "gopkg.in/telebot.v3"

	"polypulse/internal/billing"
	"polypulse/internal/model"
	"polypulse/internal/service"
)

// BillingHandler handles subscription commands.
type BillingHandler struct {
	billingService *billing.Service
	accountService *service.AccountService
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billingService *billing.Service, accountService *service.AccountService) *BillingHandler {
	return &BillingHandler{billingService: billingService, accountService: accountService}
}

// HandleUpgrade handles /upgrade by sending a Stripe Checkout link.
func (h *BillingHandler) HandleUpgrade(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}
	if user.SubscriptionStatus == model.StatusPremium && h.accountService.IsPremium(user) {
		return reply(c, "⭐ You're already premium. /subscription shows your plan.")
	}

	ctx, cancel := requestContext()
	defer cancel()

	url, err := h.billingService.CreateCheckoutSession(ctx, user)
	if err != nil {
		return replyError(c, "upgrade", err)
	}
	return reply(c, fmt.Sprintf(
		"⭐ *PolyPulse Premium*\n\nUnlimited alerts, watchlists, portfolio P&L, whale and smart alerts, daily briefings and predictions.\n\n[Subscribe here](%s)",
		url,
	))
}

// HandleSubscription handles /subscription.
func (h *BillingHandler) HandleSubscription(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	info, err := h.billingService.SubscriptionInfo(ctx, user)
	switch {
	case err == nil:
	case errors.Is(err, billing.ErrNoSubscription), errors.Is(err, billing.ErrNotConfigured):
		info = nil
	default:
		return replyError(c, "subscription", err)
	}

	text := renderSubscription(user, info) + "\n" + renderAccount(user, h.accountService.IsPremium(user), h.accountService.TrialDaysLeft(user))
	return reply(c, text)
}

// HandleCancelSub handles /cancelsub. Access continues until the end of the
// paid period.
func (h *BillingHandler) HandleCancelSub(c tele.Context) error {
	user := CurrentUser(c)
	if user == nil {
		return nil
	}

	ctx, cancel := requestContext()
	defer cancel()

	info, err := h.billingService.CancelAtPeriodEnd(ctx, user)
	if err != nil {
		return replyError(c, "cancelsub", err)
	}
	return reply(c, fmt.Sprintf("Your subscription is cancelled. Premium stays active until %s.", formatDate(info.CurrentPeriodEnd)))
}
