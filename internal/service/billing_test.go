package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/payments"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

const testWebhookSecret = "whsec_test_secret"

// fakeGateway stands in for Stripe. Customers map to e-mails, subscriptions are
// looked up by id.
type fakeGateway struct {
	emails        map[string]string
	subscriptions map[string]*payments.SubscriptionInfo
	emailErr      error
	checkoutErr   error

	createdCustomers int
	checkouts        []payments.CheckoutRequest
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		emails:        map[string]string{},
		subscriptions: map[string]*payments.SubscriptionInfo{},
	}
}

func (g *fakeGateway) CreateCustomer(_ context.Context, _ int64, _, email string) (string, error) {
	g.createdCustomers++
	id := "cus_new"
	g.emails[id] = email
	return id, nil
}

func (g *fakeGateway) CustomerEmail(_ context.Context, customerID string) (string, error) {
	if g.emailErr != nil {
		return "", g.emailErr
	}
	return g.emails[customerID], nil
}

func (g *fakeGateway) Subscription(_ context.Context, id string) (*payments.SubscriptionInfo, error) {
	sub, ok := g.subscriptions[id]
	if !ok {
		return nil, errors.New("no such subscription")
	}
	return sub, nil
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (string, error) {
	if g.checkoutErr != nil {
		return "", g.checkoutErr
	}
	g.checkouts = append(g.checkouts, req)
	return "https://checkout.stripe.test/" + req.PriceID, nil
}

func (g *fakeGateway) CreatePortalSession(_ context.Context, customerID, _ string) (string, error) {
	return "https://billing.stripe.test/" + customerID, nil
}

var testBillingConfig = BillingConfig{
	WebhookSecret:         testWebhookSecret,
	PriceIDPremiumMonthly: "price_monthly",
	PriceIDEarlyAdopter:   "price_early",
	FrontendURL:           "https://mealmuse.test",
}

func newBilling(t *testing.T) (*testEnv, *fakeGateway, *BillingService) {
	t.Helper()
	env := newTestEnv(t)
	gw := newFakeGateway()
	return env, gw, NewBillingService(env.users, gw, env.earlyAdopter, testBillingConfig)
}

func signedEvent(t *testing.T, eventType string, object map[string]any) ([]byte, string) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":          "evt_" + eventType,
		"object":      "event",
		"type":        eventType,
		"api_version": "2024-04-10",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload: raw,
		Secret:  testWebhookSecret,
	})
	return signed.Payload, signed.Header
}

func (e *testEnv) subscription(t *testing.T, id int64) domain.Subscription {
	t.Helper()
	u, err := e.users.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u.Subscription
}

// --- WEBHOOK ---

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")
	gw.emails["cus_1"] = "ana@mealmuse.app"

	payload, _ := signedEvent(t, "invoice.payment_failed", map[string]any{"id": "in_1", "customer": "cus_1"})

	err := billing.HandleStripeWebhook(ctx, payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrWebhookSignature)
	assert.Equal(t, domain.FreeSubscription(), env.subscription(t, id))
}

func TestHandleStripeWebhook_CheckoutCompletedIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")

	periodEnd := time.Now().Add(30 * 24 * time.Hour).UTC().Truncate(time.Second)
	gw.emails["cus_1"] = "ana@mealmuse.app"
	gw.subscriptions["sub_1"] = &payments.SubscriptionInfo{
		ID:               "sub_1",
		CustomerID:       "cus_1",
		Status:           domain.StatusActive,
		CurrentPeriodEnd: periodEnd,
	}

	payload, header := signedEvent(t, "checkout.session.completed", map[string]any{
		"id":           "cs_1",
		"object":       "checkout.session",
		"customer":     "cus_1",
		"subscription": "sub_1",
	})

	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))
	first := env.subscription(t, id)

	assert.Equal(t, domain.TierPremium, first.Tier)
	assert.Equal(t, domain.StatusActive, first.Status)
	assert.Equal(t, "cus_1", first.StripeCustomerID)
	assert.Equal(t, "sub_1", first.StripeSubscriptionID)
	assert.True(t, periodEnd.Equal(first.CurrentPeriodEnd))
	assert.True(t, first.IsPremium(time.Now()))

	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))
	assert.Equal(t, first, env.subscription(t, id))
}

func TestHandleStripeWebhook_EmailChangedLocally(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)

	// Arrange: a premium early adopter linked to cus_1 whose Stripe e-mail is the old one.
	id := env.createUser(t, "ana@mealmuse.app")
	env.makePremium(t, "ana@mealmuse.app", time.Now().Add(time.Hour))
	require.NoError(t, env.users.SetStripeCustomerID(ctx, id, "cus_1"))
	gw.emails["cus_1"] = "ana@mealmuse.app"
	_, err := env.earlyAdopter.Claim(ctx, id, "ana@mealmuse.app")
	require.NoError(t, err)

	require.NoError(t, env.userService.UpdateUser(ctx, id, domain.User{Name: "Ana", Email: "ana.new@mealmuse.app"}))

	// Act: Stripe still reports the old address.
	payload, header := signedEvent(t, "customer.subscription.deleted", map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"customer": "cus_1",
		"status":   "canceled",
	})
	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))

	// Assert: the user is found through the stored customer id.
	sub := env.subscription(t, id)
	assert.Equal(t, domain.TierFree, sub.Tier)
	assert.Equal(t, domain.StatusCanceled, sub.Status)

	claimed, err := env.earlyAdopter.HasClaimed(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestHandleStripeWebhook_SubscriptionUpdatedKeepsTier(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")
	env.makePremium(t, "ana@mealmuse.app", time.Now().Add(time.Hour))
	gw.emails["cus_1"] = "ana@mealmuse.app"

	periodEnd := time.Now().Add(60 * 24 * time.Hour).Unix()
	payload, header := signedEvent(t, "customer.subscription.updated", map[string]any{
		"id":                   "sub_1",
		"object":               "subscription",
		"customer":             "cus_1",
		"status":               "past_due",
		"current_period_end":   periodEnd,
		"cancel_at_period_end": true,
	})

	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))

	sub := env.subscription(t, id)
	assert.Equal(t, domain.TierPremium, sub.Tier)
	assert.Equal(t, domain.StatusPastDue, sub.Status)
	assert.Equal(t, periodEnd, sub.CurrentPeriodEnd.Unix())
	assert.True(t, sub.CancelAtPeriodEnd)
}

func TestHandleStripeWebhook_SubscriptionDeleted(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")
	gw.emails["cus_1"] = "ana@mealmuse.app"

	_, err := env.earlyAdopter.Claim(ctx, id, "ana@mealmuse.app")
	require.NoError(t, err)

	tier := domain.TierPremium
	cancelAtEnd := true
	status := domain.StatusActive
	_, err = env.users.UpdateSubscriptionByEmail(ctx, "ana@mealmuse.app", repository.SubscriptionPatch{
		Tier:              &tier,
		Status:            &status,
		CancelAtPeriodEnd: &cancelAtEnd,
	})
	require.NoError(t, err)

	payload, header := signedEvent(t, "customer.subscription.deleted", map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"customer": "cus_1",
		"status":   "canceled",
	})
	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))

	sub := env.subscription(t, id)
	assert.Equal(t, domain.TierFree, sub.Tier)
	assert.Equal(t, domain.StatusCanceled, sub.Status)
	assert.False(t, sub.CancelAtPeriodEnd)

	claimed, err := env.earlyAdopter.HasClaimed(ctx, id)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Replays converge on the same state.
	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))
	assert.Equal(t, sub, env.subscription(t, id))
}

func TestHandleStripeWebhook_InvoicePaidRefreshesPeriod(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")
	gw.emails["cus_1"] = "ana@mealmuse.app"

	end := time.Now().Add(31 * 24 * time.Hour).Unix()
	payload, header := signedEvent(t, "invoice.payment_succeeded", map[string]any{
		"id":       "in_1",
		"object":   "invoice",
		"customer": "cus_1",
		"lines": map[string]any{
			"object": "list",
			"data": []map[string]any{
				{"id": "il_1", "object": "line_item", "period": map[string]any{"start": end - 100, "end": end}},
			},
		},
	})
	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))

	sub := env.subscription(t, id)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.Equal(t, end, sub.CurrentPeriodEnd.Unix())
}

func TestHandleStripeWebhook_InvoicePaidFallsBackToSubscription(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")
	gw.emails["cus_1"] = "ana@mealmuse.app"

	end := time.Now().Add(10 * 24 * time.Hour).UTC().Truncate(time.Second)
	gw.subscriptions["sub_1"] = &payments.SubscriptionInfo{ID: "sub_1", Status: "active", CurrentPeriodEnd: end}

	payload, header := signedEvent(t, "invoice.payment_succeeded", map[string]any{
		"id":           "in_1",
		"object":       "invoice",
		"customer":     "cus_1",
		"subscription": "sub_1",
	})
	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))
	assert.True(t, end.Equal(env.subscription(t, id).CurrentPeriodEnd))
}

func TestHandleStripeWebhook_InvoiceFailed(t *testing.T) {
	ctx := context.Background()
	env, gw, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")
	gw.emails["cus_1"] = "ana@mealmuse.app"

	payload, header := signedEvent(t, "invoice.payment_failed", map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_1",
	})
	require.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))
	assert.Equal(t, domain.StatusPastDue, env.subscription(t, id).Status)
}

func TestHandleStripeWebhook_CustomerWithoutEmailIsDropped(t *testing.T) {
	ctx := context.Background()
	env, _, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")

	payload, header := signedEvent(t, "invoice.payment_failed", map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_no_email",
	})
	assert.NotPanics(t, func() {
		assert.NoError(t, billing.HandleStripeWebhook(ctx, payload, header))
	})
	assert.Equal(t, domain.FreeSubscription(), env.subscription(t, id))
}

func TestHandleStripeWebhook_DeletedCustomerIsDropped(t *testing.T) {
	env, gw, billing := newBilling(t)
	env.createUser(t, "ana@mealmuse.app")
	gw.emailErr = payments.ErrCustomerDeleted

	payload, header := signedEvent(t, "invoice.payment_failed", map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_gone",
	})
	assert.NoError(t, billing.HandleStripeWebhook(context.Background(), payload, header))
}

func TestHandleStripeWebhook_UnknownUserIsDropped(t *testing.T) {
	_, gw, billing := newBilling(t)
	gw.emails["cus_1"] = "stranger@elsewhere.app"

	payload, header := signedEvent(t, "invoice.payment_failed", map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_1",
	})
	assert.NoError(t, billing.HandleStripeWebhook(context.Background(), payload, header))
}

func TestHandleStripeWebhook_StripeErrorIsReturned(t *testing.T) {
	env, gw, billing := newBilling(t)
	env.createUser(t, "ana@mealmuse.app")
	gw.emailErr = errors.New("stripe unavailable")

	payload, header := signedEvent(t, "invoice.payment_failed", map[string]any{
		"id": "in_1", "object": "invoice", "customer": "cus_1",
	})
	err := billing.HandleStripeWebhook(context.Background(), payload, header)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrWebhookSignature)
}

func TestHandleStripeWebhook_UnhandledEventAcknowledged(t *testing.T) {
	_, _, billing := newBilling(t)
	payload, header := signedEvent(t, "customer.created", map[string]any{"id": "cus_1", "object": "customer"})
	assert.NoError(t, billing.HandleStripeWebhook(context.Background(), payload, header))
}

// --- CHECKOUT ---

func TestCreateCheckoutSession(t *testing.T) {
	ctx := context.Background()

	t.Run("regular price creates customer once", func(t *testing.T) {
		env, gw, billing := newBilling(t)
		id := env.createUser(t, "ana@mealmuse.app")

		url, err := billing.CreateCheckoutSession(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.stripe.test/price_monthly", url)

		_, err = billing.CreateCheckoutSession(ctx, id, false)
		require.NoError(t, err)
		assert.Equal(t, 1, gw.createdCustomers)
		assert.Equal(t, "cus_new", env.subscription(t, id).StripeCustomerID)
		require.Len(t, gw.checkouts, 2)
		assert.Equal(t, "cus_new", gw.checkouts[1].CustomerID)
	})

	t.Run("early adopter claims a slot", func(t *testing.T) {
		env, gw, billing := newBilling(t)
		id := env.createUser(t, "ana@mealmuse.app")

		_, err := billing.CreateCheckoutSession(ctx, id, true)
		require.NoError(t, err)
		require.Len(t, gw.checkouts, 1)
		assert.Equal(t, "price_early", gw.checkouts[0].PriceID)
		assert.True(t, gw.checkouts[0].EarlyAdopter)

		claimed, err := env.earlyAdopter.HasClaimed(ctx, id)
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("abandoned early adopter checkout can be retried", func(t *testing.T) {
		env, gw, billing := newBilling(t)
		id := env.createUser(t, "ana@mealmuse.app")

		// First session is never completed, so no webhook arrives.
		_, err := billing.CreateCheckoutSession(ctx, id, true)
		require.NoError(t, err)

		// The retry reuses the held slot instead of failing as already claimed.
		url, err := billing.CreateCheckoutSession(ctx, id, true)
		require.NoError(t, err)
		assert.Equal(t, "https://checkout.stripe.test/price_early", url)
		require.Len(t, gw.checkouts, 2)
		assert.Equal(t, "price_early", gw.checkouts[1].PriceID)

		status, err := env.earlyAdopter.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, status.UsedSlots)

		// A Stripe failure on the retry keeps the slot claimed earlier.
		gw.checkoutErr = errors.New("card network down")
		_, err = billing.CreateCheckoutSession(ctx, id, true)
		require.Error(t, err)

		claimed, err := env.earlyAdopter.HasClaimed(ctx, id)
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("direct second claim is still rejected", func(t *testing.T) {
		env, _, billing := newBilling(t)
		id := env.createUser(t, "ana@mealmuse.app")

		_, err := billing.CreateCheckoutSession(ctx, id, true)
		require.NoError(t, err)

		_, err = env.earlyAdopter.Claim(ctx, id, "ana@mealmuse.app")
		assert.ErrorIs(t, err, ErrAlreadyClaimed)
	})

	t.Run("sold out", func(t *testing.T) {
		env, _, billing := newBilling(t)
		require.NoError(t, env.earlyAdopter.Configure(ctx, 0))
		id := env.createUser(t, "ana@mealmuse.app")

		_, err := billing.CreateCheckoutSession(ctx, id, true)
		assert.ErrorIs(t, err, ErrSoldOut)
	})

	t.Run("failed session releases the slot", func(t *testing.T) {
		env, gw, billing := newBilling(t)
		id := env.createUser(t, "ana@mealmuse.app")
		gw.checkoutErr = errors.New("card network down")

		_, err := billing.CreateCheckoutSession(ctx, id, true)
		require.Error(t, err)

		status, err := env.earlyAdopter.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, status.UsedSlots)
	})

	t.Run("already premium", func(t *testing.T) {
		env, _, billing := newBilling(t)
		id := env.createUser(t, "ana@mealmuse.app")
		env.makePremium(t, "ana@mealmuse.app", time.Now().Add(time.Hour))

		_, err := billing.CreateCheckoutSession(ctx, id, false)
		assert.ErrorIs(t, err, ErrSubscriptionActive)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, _, billing := newBilling(t)
		_, err := billing.CreateCheckoutSession(ctx, 42, false)
		assert.ErrorIs(t, err, ErrUserNotFound)
	})

	t.Run("not configured", func(t *testing.T) {
		env := newTestEnv(t)
		billing := NewBillingService(env.users, nil, env.earlyAdopter, BillingConfig{})
		_, err := billing.CreateCheckoutSession(ctx, 1, false)
		assert.ErrorIs(t, err, ErrBillingNotConfigured)
	})
}

func TestCreatePortalSession(t *testing.T) {
	ctx := context.Background()
	env, _, billing := newBilling(t)
	id := env.createUser(t, "ana@mealmuse.app")

	_, err := billing.CreatePortalSession(ctx, id)
	assert.ErrorIs(t, err, ErrNoStripeCustomer)

	require.NoError(t, env.users.SetStripeCustomerID(ctx, id, "cus_1"))
	url, err := billing.CreatePortalSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "https://billing.stripe.test/cus_1", url)
}
