// Package payments wraps the Stripe API calls the billing service needs.
package payments

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/stripe/stripe-go/v78"
	portal "github.com/stripe/stripe-go/v78/billingportal/session"
	"github.com/stripe/stripe-go/v78/checkout/session"
	"github.com/stripe/stripe-go/v78/customer"
	"github.com/stripe/stripe-go/v78/subscription"
)

// ErrCustomerDeleted is returned when Stripe reports the customer as deleted.
var ErrCustomerDeleted = errors.New("stripe customer deleted")

// SubscriptionInfo is the slice of a Stripe subscription we persist.
type SubscriptionInfo struct {
	ID                string
	CustomerID        string
	Status            string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

// CheckoutRequest describes a subscription checkout for one user.
type CheckoutRequest struct {
	CustomerID   string
	PriceID      string
	UserID       int64
	EarlyAdopter bool
	SuccessURL   string
	CancelURL    string
}

// StripeGateway talks to the real Stripe API through the package-level client of
// stripe-go. Customer e-mail lookups are cached because every webhook event needs one.
type StripeGateway struct {
	emails *expirable.LRU[string, string]
}

// NewStripeGateway sets the global Stripe key and builds the e-mail cache.
func NewStripeGateway(secretKey string, cacheTTL time.Duration) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{
		emails: expirable.NewLRU[string, string](1024, nil, cacheTTL),
	}
}

// CreateCustomer registers a new Stripe customer for a MealMuse user.
func (g *StripeGateway) CreateCustomer(ctx context.Context, userID int64, name, email string) (string, error) {
	params := &stripe.CustomerParams{
		Name:  stripe.String(name),
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata("user_id", strconv.FormatInt(userID, 10))

	c, err := customer.New(params)
	if err != nil {
		slog.Error("failed to create stripe customer", "user_id", userID, "error", err)
		return "", err
	}
	g.emails.Add(c.ID, email)
	return c.ID, nil
}

// CustomerEmail resolves a customer id to its e-mail. An empty string with a nil error
// means the customer exists but has no e-mail on file.
func (g *StripeGateway) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if email, ok := g.emails.Get(customerID); ok {
		return email, nil
	}

	params := &stripe.CustomerParams{}
	params.Context = ctx
	c, err := customer.Get(customerID, params)
	if err != nil {
		return "", err
	}
	if c.Deleted {
		return "", ErrCustomerDeleted
	}
	if c.Email != "" {
		g.emails.Add(customerID, c.Email)
	}
	return c.Email, nil
}

// Subscription fetches the current state of a subscription.
func (g *StripeGateway) Subscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, err
	}
	return SubscriptionInfoFrom(sub), nil
}

// CreateCheckoutSession returns the hosted checkout URL.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (string, error) {
	userID := strconv.FormatInt(req.UserID, 10)
	params := &stripe.CheckoutSessionParams{
		Customer:          stripe.String(req.CustomerID),
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		ClientReferenceID: stripe.String(userID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{
				"user_id":       userID,
				"early_adopter": strconv.FormatBool(req.EarlyAdopter),
			},
		},
	}
	params.Context = ctx

	sess, err := session.New(params)
	if err != nil {
		slog.Error("failed to create stripe checkout session", "user_id", req.UserID, "error", err)
		return "", err
	}
	return sess.URL, nil
}

// CreatePortalSession returns a billing portal URL for an existing customer.
func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	sess, err := portal.New(params)
	if err != nil {
		slog.Error("failed to create stripe portal session", "customer", customerID, "error", err)
		return "", err
	}
	return sess.URL, nil
}

// SubscriptionInfoFrom maps a stripe-go subscription, as fetched or as found in a
// webhook payload, onto SubscriptionInfo.
func SubscriptionInfoFrom(sub *stripe.Subscription) *SubscriptionInfo {
	info := &SubscriptionInfo{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Customer != nil {
		info.CustomerID = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		info.CurrentPeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return info
}
