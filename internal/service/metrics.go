package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Outcome is one of applied, dropped, ignored, failed, bad_signature.
	webhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealmuse_webhook_events_total",
			Help: "Stripe webhook events processed, by type and outcome.",
		},
		[]string{"type", "outcome"},
	)

	// Outcome is one of claimed, already_claimed, sold_out, error.
	earlyAdopterClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mealmuse_early_adopter_claims_total",
			Help: "Early adopter claim attempts by outcome.",
		},
		[]string{"outcome"},
	)
)
