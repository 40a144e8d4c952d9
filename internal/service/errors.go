package service

import "errors"

// Business errors. Handlers map these onto HTTP status codes.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidData        = errors.New("invalid data")
	ErrEmailTaken         = errors.New("email already in use")
	ErrSubscriptionActive = errors.New("user already has an active subscription")

	ErrWebhookSignature     = errors.New("stripe webhook signature verification failed")
	ErrBillingNotConfigured = errors.New("billing is not configured")
	ErrNoStripeCustomer     = errors.New("user has no billing account yet")

	ErrAlreadyClaimed = errors.New("you have already claimed the early adopter discount")
	ErrSoldOut        = errors.New("early adopter offer is sold out: all slots have been claimed")

	ErrRecipeNotFound = errors.New("recipe not found")
	ErrItemNotFound   = errors.New("shopping list item not found")
	ErrForbidden      = errors.New("not allowed")

	ErrPremiumRequired      = errors.New("a premium subscription is required")
	ErrRateLimited          = errors.New("AI request limit reached, try again later")
	ErrAssistantUnavailable = errors.New("AI assistant is not configured")
)
