package domain

import "time"

// Plan tiers.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// Subscription statuses we write ourselves. Anything else comes straight from Stripe.
const (
	StatusNone     = "none"
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
)

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`

	Subscription Subscription `json:"subscription"`

	CreatedAt time.Time `json:"createdAt"`
}

// Subscription is the user's current plan as last reported by Stripe.
type Subscription struct {
	Tier   string `json:"tier"`
	Status string `json:"status"`

	// Stripe ids stay out of the public JSON.
	StripeCustomerID     string `json:"-"`
	StripeSubscriptionID string `json:"-"`

	// Zero value means "never had a paid period".
	CurrentPeriodEnd  time.Time `json:"currentPeriodEnd,omitzero"`
	CancelAtPeriodEnd bool      `json:"cancelAtPeriodEnd"`
}

// FreeSubscription is what a freshly created account carries.
func FreeSubscription() Subscription {
	return Subscription{Tier: TierFree, Status: StatusNone}
}

// IsPremium reports whether premium features are unlocked at the given instant.
// A premium tier with a lapsed period or a non-paying status does not count.
func (s Subscription) IsPremium(now time.Time) bool {
	if s.Tier != TierPremium {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return false
	}
	return s.CurrentPeriodEnd.After(now)
}
