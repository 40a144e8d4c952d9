package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/payments"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

// PaymentGateway is the part of Stripe the billing flow depends on.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, userID int64, name, email string) (string, error)
	CustomerEmail(ctx context.Context, customerID string) (string, error)
	Subscription(ctx context.Context, subscriptionID string) (*payments.SubscriptionInfo, error)
	CreateCheckoutSession(ctx context.Context, req payments.CheckoutRequest) (string, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}

// BillingConfig carries the Stripe identifiers the flow needs.
type BillingConfig struct {
	WebhookSecret         string
	PriceIDPremiumMonthly string
	PriceIDEarlyAdopter   string
	FrontendURL           string
}

// BillingService creates checkout sessions and keeps local subscriptions in sync with
// Stripe webhook events.
type BillingService struct {
	users        repository.UserRepository
	gateway      PaymentGateway
	earlyAdopter *EarlyAdopterService
	cfg          BillingConfig
	now          func() time.Time
}

// NewBillingService builds a BillingService. gateway may be nil, in which case every
// Stripe API call fails with ErrBillingNotConfigured.
func NewBillingService(users repository.UserRepository, gateway PaymentGateway, earlyAdopter *EarlyAdopterService, cfg BillingConfig) *BillingService {
	return &BillingService{
		users:        users,
		gateway:      gateway,
		earlyAdopter: earlyAdopter,
		cfg:          cfg,
		now:          time.Now,
	}
}

// --- CHECKOUT ---

// CreateCheckoutSession starts a subscription checkout and returns the hosted page URL.
// With earlyAdopter set a slot is claimed first, or the one the user already holds is
// reused. A slot claimed by this call is released again if Stripe fails.
func (s *BillingService) CreateCheckoutSession(ctx context.Context, userID int64, earlyAdopter bool) (string, error) {
	if s.gateway == nil || s.cfg.PriceIDPremiumMonthly == "" {
		return "", ErrBillingNotConfigured
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	if user.Subscription.IsPremium(s.now()) {
		return "", ErrSubscriptionActive
	}

	customerID, err := s.ensureCustomer(ctx, user)
	if err != nil {
		return "", err
	}

	priceID := s.cfg.PriceIDPremiumMonthly
	claimedNow := false
	if earlyAdopter {
		if s.earlyAdopter == nil || s.cfg.PriceIDEarlyAdopter == "" {
			return "", ErrBillingNotConfigured
		}
		// A slot held from an earlier, unfinished checkout is reused.
		held, err := s.earlyAdopter.HasClaimed(ctx, user.ID)
		if err != nil {
			return "", err
		}
		if !held {
			_, err := s.earlyAdopter.Claim(ctx, user.ID, user.Email)
			switch {
			case err == nil:
				claimedNow = true
			case errors.Is(err, ErrAlreadyClaimed):
				// a concurrent checkout for the same user got there first
			default:
				return "", err
			}
		}
		priceID = s.cfg.PriceIDEarlyAdopter
	}

	url, err := s.gateway.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		CustomerID:   customerID,
		PriceID:      priceID,
		UserID:       user.ID,
		EarlyAdopter: earlyAdopter,
		SuccessURL:   s.cfg.FrontendURL + "/billing/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:    s.cfg.FrontendURL + "/billing/cancel",
	})
	if err != nil {
		if claimedNow {
			if cerr := s.earlyAdopter.Cancel(ctx, user.ID); cerr != nil {
				slog.Error("failed to release early adopter slot after checkout error", "user_id", user.ID, "error", cerr)
			}
		}
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}

	slog.Info("checkout session created", "user_id", user.ID, "early_adopter", earlyAdopter)
	return url, nil
}

// CreatePortalSession returns a Stripe billing portal URL for the user.
func (s *BillingService) CreatePortalSession(ctx context.Context, userID int64) (string, error) {
	if s.gateway == nil {
		return "", ErrBillingNotConfigured
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", ErrUserNotFound
	}
	if user.Subscription.StripeCustomerID == "" {
		return "", ErrNoStripeCustomer
	}
	return s.gateway.CreatePortalSession(ctx, user.Subscription.StripeCustomerID, s.cfg.FrontendURL+"/account")
}

func (s *BillingService) ensureCustomer(ctx context.Context, user *domain.User) (string, error) {
	if id := user.Subscription.StripeCustomerID; id != "" {
		return id, nil
	}
	id, err := s.gateway.CreateCustomer(ctx, user.ID, user.Name, user.Email)
	if err != nil {
		return "", fmt.Errorf("failed to create stripe customer: %w", err)
	}
	if err := s.users.SetStripeCustomerID(ctx, user.ID, id); err != nil {
		return "", err
	}
	return id, nil
}

// --- WEBHOOK ---

const (
	outcomeApplied      = "applied"
	outcomeDropped      = "dropped"
	outcomeIgnored      = "ignored"
	outcomeFailed       = "failed"
	outcomeBadSignature = "bad_signature"
)

// HandleStripeWebhook verifies and applies one Stripe event. Only ErrWebhookSignature
// and infrastructure errors are returned; events that cannot be tied to a user are
// logged and acknowledged.
func (s *BillingService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		slog.Warn("stripe webhook signature verification failed", "error", err)
		webhookEventsTotal.WithLabelValues("unknown", outcomeBadSignature).Inc()
		return ErrWebhookSignature
	}

	log := slog.With("event_id", event.ID, "event_type", event.Type)

	var outcome string
	switch event.Type {
	case "checkout.session.completed":
		outcome, err = s.onCheckoutCompleted(ctx, log, event)
	case "customer.subscription.updated":
		outcome, err = s.onSubscriptionUpdated(ctx, log, event)
	case "customer.subscription.deleted":
		outcome, err = s.onSubscriptionDeleted(ctx, log, event)
	case "invoice.payment_succeeded":
		outcome, err = s.onInvoicePaid(ctx, log, event)
	case "invoice.payment_failed":
		outcome, err = s.onInvoiceFailed(ctx, log, event)
	default:
		log.Debug("stripe event ignored")
		outcome = outcomeIgnored
	}

	if err != nil {
		outcome = outcomeFailed
		log.Error("failed to process stripe event", "error", err)
	}
	webhookEventsTotal.WithLabelValues(string(event.Type), outcome).Inc()
	return err
}

func (s *BillingService) onCheckoutCompleted(ctx context.Context, log *slog.Logger, event stripe.Event) (string, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return "", fmt.Errorf("error parsing checkout session: %w", err)
	}
	if sess.Customer == nil || sess.Subscription == nil || sess.Subscription.ID == "" {
		log.Warn("checkout session without customer or subscription", "session_id", sess.ID)
		return outcomeDropped, nil
	}
	if s.gateway == nil {
		return "", ErrBillingNotConfigured
	}

	sub, err := s.gateway.Subscription(ctx, sess.Subscription.ID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch subscription %s: %w", sess.Subscription.ID, err)
	}

	tier := domain.TierPremium
	patch := repository.SubscriptionPatch{
		Tier:                 &tier,
		Status:               &sub.Status,
		StripeCustomerID:     &sess.Customer.ID,
		StripeSubscriptionID: &sub.ID,
		CurrentPeriodEnd:     &sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:    &sub.CancelAtPeriodEnd,
	}
	_, outcome, err := s.apply(ctx, log, sess.Customer.ID, patch)
	return outcome, err
}

func (s *BillingService) onSubscriptionUpdated(ctx context.Context, log *slog.Logger, event stripe.Event) (string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("error parsing subscription: %w", err)
	}
	info := payments.SubscriptionInfoFrom(&sub)

	patch := repository.SubscriptionPatch{
		Status:            &info.Status,
		CurrentPeriodEnd:  &info.CurrentPeriodEnd,
		CancelAtPeriodEnd: &info.CancelAtPeriodEnd,
	}
	_, outcome, err := s.apply(ctx, log, info.CustomerID, patch)
	return outcome, err
}

func (s *BillingService) onSubscriptionDeleted(ctx context.Context, log *slog.Logger, event stripe.Event) (string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return "", fmt.Errorf("error parsing subscription: %w", err)
	}
	info := payments.SubscriptionInfoFrom(&sub)

	tier, status, cancelAtPeriodEnd := domain.TierFree, domain.StatusCanceled, false
	patch := repository.SubscriptionPatch{
		Tier:              &tier,
		Status:            &status,
		CancelAtPeriodEnd: &cancelAtPeriodEnd,
	}
	target, outcome, err := s.apply(ctx, log, info.CustomerID, patch)
	if err != nil || outcome != outcomeApplied || s.earlyAdopter == nil {
		return outcome, err
	}

	user, err := s.lookup(ctx, target)
	if err != nil {
		return "", err
	}
	if user != nil {
		if err := s.earlyAdopter.Cancel(ctx, user.ID); err != nil {
			return "", err
		}
	}
	return outcome, nil
}

func (s *BillingService) onInvoicePaid(ctx context.Context, log *slog.Logger, event stripe.Event) (string, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", fmt.Errorf("error parsing invoice: %w", err)
	}
	if inv.Customer == nil {
		log.Warn("invoice without customer", "invoice_id", inv.ID)
		return outcomeDropped, nil
	}

	status := domain.StatusActive
	patch := repository.SubscriptionPatch{Status: &status}

	periodEnd, err := s.invoicePeriodEnd(ctx, &inv)
	if err != nil {
		return "", err
	}
	if !periodEnd.IsZero() {
		patch.CurrentPeriodEnd = &periodEnd
	}

	_, outcome, err := s.apply(ctx, log, inv.Customer.ID, patch)
	return outcome, err
}

func (s *BillingService) onInvoiceFailed(ctx context.Context, log *slog.Logger, event stripe.Event) (string, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", fmt.Errorf("error parsing invoice: %w", err)
	}
	if inv.Customer == nil {
		log.Warn("invoice without customer", "invoice_id", inv.ID)
		return outcomeDropped, nil
	}

	status := domain.StatusPastDue
	_, outcome, err := s.apply(ctx, log, inv.Customer.ID, repository.SubscriptionPatch{Status: &status})
	return outcome, err
}

// invoicePeriodEnd takes the latest line item period end, falling back to the
// subscription itself when the invoice carries no lines.
func (s *BillingService) invoicePeriodEnd(ctx context.Context, inv *stripe.Invoice) (time.Time, error) {
	var end int64
	if inv.Lines != nil {
		for _, line := range inv.Lines.Data {
			if line != nil && line.Period != nil && line.Period.End > end {
				end = line.Period.End
			}
		}
	}
	if end > 0 {
		return time.Unix(end, 0).UTC(), nil
	}
	if inv.Subscription == nil || inv.Subscription.ID == "" || s.gateway == nil {
		return time.Time{}, nil
	}
	sub, err := s.gateway.Subscription(ctx, inv.Subscription.ID)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch subscription %s: %w", inv.Subscription.ID, err)
	}
	return sub.CurrentPeriodEnd, nil
}

// subscriber records which key matched when a patch was applied.
type subscriber struct {
	email      string
	customerID string
	byCustomer bool
}

// apply resolves the customer's e-mail and writes the patch to the matching user. When
// no user has that e-mail, for instance after the address was changed locally, the user
// already linked to the Stripe customer is updated instead.
func (s *BillingService) apply(ctx context.Context, log *slog.Logger, customerID string, patch repository.SubscriptionPatch) (subscriber, string, error) {
	target := subscriber{customerID: customerID}
	if customerID == "" {
		log.Warn("stripe event without customer")
		return target, outcomeDropped, nil
	}
	if s.gateway == nil {
		return target, "", ErrBillingNotConfigured
	}

	email, err := s.gateway.CustomerEmail(ctx, customerID)
	if errors.Is(err, payments.ErrCustomerDeleted) {
		log.Warn("stripe customer deleted, event dropped", "customer_id", customerID)
		return target, outcomeDropped, nil
	}
	if err != nil {
		return target, "", fmt.Errorf("failed to look up customer %s: %w", customerID, err)
	}
	if email == "" {
		log.Warn("stripe customer has no email, event dropped", "customer_id", customerID)
		return target, outcomeDropped, nil
	}
	target.email = email

	n, err := s.users.UpdateSubscriptionByEmail(ctx, email, patch)
	if err != nil {
		return target, "", err
	}
	if n == 0 {
		n, err = s.users.UpdateSubscriptionByCustomerID(ctx, customerID, patch)
		if err != nil {
			return target, "", err
		}
		if n > 0 {
			target.byCustomer = true
			log.Info("stripe e-mail matched no user, updated by customer id", "customer_id", customerID)
		}
	}
	if n == 0 {
		log.Warn("no user for stripe customer, event dropped", "customer_id", customerID)
		return target, outcomeDropped, nil
	}

	log.Info("subscription updated from stripe event", "customer_id", customerID)
	return target, outcomeApplied, nil
}

func (s *BillingService) lookup(ctx context.Context, target subscriber) (*domain.User, error) {
	if target.byCustomer {
		return s.users.GetByStripeCustomerID(ctx, target.customerID)
	}
	return s.users.GetByEmail(ctx, target.email)
}
