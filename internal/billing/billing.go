// Package billing handles Stripe checkout, subscription management and
// webhook events.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"polypulse/internal/model"
	"polypulse/internal/notify"
	"polypulse/internal/repository"
)

// Errors returned by the billing service.
var (
	ErrNotConfigured    = errors.New("billing is not configured")
	ErrNoSubscription   = errors.New("no subscription on file")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

const metadataTelegramID = "telegram_id"

// UserStore is the user persistence billing needs.
type UserStore interface {
	GetByCustomerID(ctx context.Context, customerID string) (*model.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*model.User, error)
	SetCustomerID(ctx context.Context, id int64, customerID string) error
	SetSubscription(ctx context.Context, id int64, upd repository.SubscriptionUpdate) (*model.User, error)
}

// Options configure the billing service.
type Options struct {
	PriceID       string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

// Service wraps Stripe for the bot.
type Service struct {
	api      API
	users    UserStore
	notifier notify.Notifier
	opts     Options
	now      func() time.Time
}

// NewService creates a billing Service. A nil api disables checkout and
// subscription calls.
func NewService(api API, users UserStore, notifier notify.Notifier, opts Options) *Service {
	return &Service{api: api, users: users, notifier: notifier, opts: opts, now: time.Now}
}

// Enabled reports whether Stripe calls can be made.
func (s *Service) Enabled() bool {
	return s.api != nil && s.opts.PriceID != ""
}

// idempotencyKey derives a stable key for a user action within a window,
// so a double tap reuses the first request.
func idempotencyKey(action string, userID int64, window time.Time) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("polypulse:%s:%d:%d", action, userID, window.Unix()))).String()
}

func (s *Service) ensureCustomer(ctx context.Context, user *model.User) (string, error) {
	if user.StripeCustomerID != nil && *user.StripeCustomerID != "" {
		return *user.StripeCustomerID, nil
	}

	params := &stripe.CustomerParams{}
	if user.Username != "" {
		params.Name = stripe.String("@" + user.Username)
	}
	params.AddMetadata(metadataTelegramID, strconv.FormatInt(user.TelegramID, 10))
	params.SetIdempotencyKey(idempotencyKey("customer", user.ID, time.Unix(0, 0)))

	cus, err := s.api.NewCustomer(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	if err := s.users.SetCustomerID(ctx, user.ID, cus.ID); err != nil {
		return "", err
	}
	user.StripeCustomerID = &cus.ID
	return cus.ID, nil
}

// CreateCheckoutSession starts a subscription checkout and returns its URL.
func (s *Service) CreateCheckoutSession(ctx context.Context, user *model.User) (string, error) {
	if !s.Enabled() {
		return "", ErrNotConfigured
	}
	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	tgID := strconv.FormatInt(user.TelegramID, 10)
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(customerID),
		ClientReferenceID: stripe.String(tgID),
		SuccessURL:        stripe.String(s.opts.SuccessURL),
		CancelURL:         stripe.String(s.opts.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(s.opts.PriceID), Quantity: stripe.Int64(1)},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataTelegramID: tgID},
		},
	}
	params.AddMetadata(metadataTelegramID, tgID)
	params.SetIdempotencyKey(idempotencyKey("checkout", user.ID, s.now().Truncate(10*time.Minute)))

	sess, err := s.api.NewCheckoutSession(ctx, params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	log.Info().Int64("user_id", user.ID).Str("session_id", sess.ID).Msg("Checkout session created")
	return sess.URL, nil
}

// SubscriptionInfo summarizes a Stripe subscription.
type SubscriptionInfo struct {
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

func infoFrom(sub *stripe.Subscription) *SubscriptionInfo {
	return &SubscriptionInfo{
		Status:            string(sub.Status),
		CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
}

// SubscriptionInfo fetches the user's subscription from Stripe.
func (s *Service) SubscriptionInfo(ctx context.Context, user *model.User) (*SubscriptionInfo, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	sub, err := s.api.GetSubscription(ctx, *user.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return infoFrom(sub), nil
}

// CancelAtPeriodEnd schedules the subscription to end with the current
// period. Access continues until then.
func (s *Service) CancelAtPeriodEnd(ctx context.Context, user *model.User) (*SubscriptionInfo, error) {
	if !s.Enabled() {
		return nil, ErrNotConfigured
	}
	if user.StripeSubscriptionID == nil || *user.StripeSubscriptionID == "" {
		return nil, ErrNoSubscription
	}
	params := &stripe.SubscriptionParams{CancelAtPeriodEnd: stripe.Bool(true)}
	params.SetIdempotencyKey(idempotencyKey("cancel", user.ID, s.now().Truncate(10*time.Minute)))

	sub, err := s.api.UpdateSubscription(ctx, *user.StripeSubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}
	log.Info().Int64("user_id", user.ID).Str("subscription_id", sub.ID).Msg("Subscription set to cancel at period end")
	return infoFrom(sub), nil
}

// ConstructEvent verifies a webhook payload against its Stripe-Signature
// header.
func (s *Service) ConstructEvent(payload []byte, header string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header, s.opts.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return event, nil
}

// HandleEvent applies a webhook event. Duplicate deliveries re-apply the
// same write and may repeat a notification.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	if event.Data == nil {
		return nil
	}
	switch string(event.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fmt.Errorf("failed to decode checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, &sess)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("failed to decode subscription: %w", err)
		}
		return s.subscriptionChanged(ctx, string(event.Type), &sub)

	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return fmt.Errorf("failed to decode invoice: %w", err)
		}
		return s.paymentFailed(ctx, &inv)
	}

	log.Debug().Str("type", string(event.Type)).Msg("Ignoring Stripe event")
	return nil
}

func (s *Service) checkoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	if sess.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}
	customerID := customerOf(sess.Customer)
	fallback := sess.Metadata[metadataTelegramID]
	if fallback == "" {
		fallback = sess.ClientReferenceID
	}
	user, err := s.findUser(ctx, customerID, fallback)
	if err != nil {
		return err
	}

	upd := repository.SubscriptionUpdate{Status: model.StatusPremium}
	if customerID != "" {
		upd.CustomerID = &customerID
	}
	if sess.Subscription != nil && sess.Subscription.ID != "" {
		subID := sess.Subscription.ID
		upd.SubscriptionID = &subID
	}
	if _, err := s.users.SetSubscription(ctx, user.ID, upd); err != nil {
		return err
	}
	log.Info().Int64("user_id", user.ID).Str("customer_id", customerID).Msg("Subscription activated")

	s.tell(ctx, user, "🎉 *Welcome to PolyPulse Premium!*\n\nWhale alerts, briefings, smart alerts and unlimited price alerts are now unlocked. Try /whales on.")
	return nil
}

func (s *Service) subscriptionChanged(ctx context.Context, eventType string, sub *stripe.Subscription) error {
	user, err := s.findUser(ctx, customerOf(sub.Customer), sub.Metadata[metadataTelegramID])
	if err != nil {
		return err
	}

	periodEnd := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	subID := sub.ID
	upd := repository.SubscriptionUpdate{SubscriptionID: &subID}

	switch {
	case eventType == "customer.subscription.deleted":
		upd.Status = model.StatusCancelled
		upd.ExpiresAt = &periodEnd
	case sub.Status == stripe.SubscriptionStatusCanceled,
		sub.Status == stripe.SubscriptionStatusUnpaid,
		sub.Status == stripe.SubscriptionStatusIncompleteExpired:
		upd.Status = model.StatusCancelled
		upd.ExpiresAt = &periodEnd
	case sub.Status == stripe.SubscriptionStatusActive, sub.Status == stripe.SubscriptionStatusTrialing:
		upd.Status = model.StatusPremium
		if sub.CancelAtPeriodEnd {
			upd.ExpiresAt = &periodEnd
		}
	default:
		log.Info().Int64("user_id", user.ID).Str("status", string(sub.Status)).Msg("Subscription status left unchanged")
		return nil
	}

	if _, err := s.users.SetSubscription(ctx, user.ID, upd); err != nil {
		return err
	}
	log.Info().
		Int64("user_id", user.ID).
		Str("event", eventType).
		Str("status", upd.Status).
		Msg("Subscription updated")

	if eventType == "customer.subscription.deleted" {
		s.tell(ctx, user, "Your PolyPulse Premium subscription has ended. Price alerts keep working on the free plan. /upgrade to come back any time.")
	}
	return nil
}

func (s *Service) paymentFailed(ctx context.Context, inv *stripe.Invoice) error {
	user, err := s.findUser(ctx, customerOf(inv.Customer), "")
	if err != nil {
		return err
	}
	log.Warn().Int64("user_id", user.ID).Str("invoice_id", inv.ID).Msg("Invoice payment failed")
	s.tell(ctx, user, "⚠️ *Payment failed*\n\nWe couldn't charge your card for PolyPulse Premium. Please update your payment method to keep premium features.")
	return nil
}

// findUser looks the user up by Stripe customer id, falling back to the
// Telegram id carried in metadata.
func (s *Service) findUser(ctx context.Context, customerID, telegramID string) (*model.User, error) {
	if customerID != "" {
		user, err := s.users.GetByCustomerID(ctx, customerID)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, err
		}
	}
	if telegramID == "" {
		return nil, repository.ErrUserNotFound
	}
	id, err := strconv.ParseInt(telegramID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid telegram id %q: %w", telegramID, err)
	}
	return s.users.GetByTelegramID(ctx, id)
}

func (s *Service) tell(ctx context.Context, user *model.User, text string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, user.TelegramID, text); err != nil {
		log.Warn().Err(err).Int64("user_id", user.ID).Msg("Failed to send billing notification")
	}
}

func customerOf(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}
