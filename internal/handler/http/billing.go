package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/service"
)

type BillingService interface {
	CreateCheckoutSession(ctx context.Context, userID int64, earlyAdopter bool) (string, error)
	CreatePortalSession(ctx context.Context, userID int64) (string, error)
	HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error
}

type EarlyAdopterService interface {
	Status(ctx context.Context) (domain.EarlyAdopterStatus, error)
}

// BillingHandler serves checkout, the billing portal, the early adopter status and
// the Stripe webhook.
type BillingHandler struct {
	billing      BillingService
	earlyAdopter EarlyAdopterService
}

func NewBillingHandler(billing BillingService, earlyAdopter EarlyAdopterService) *BillingHandler {
	return &BillingHandler{
		billing:      billing,
		earlyAdopter: earlyAdopter,
	}
}

// Routes returns the public /billing router.
func (h *BillingHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/early-adopter", h.GetEarlyAdopterStatus)
	return r
}

// UserRoutes registers the per-user billing routes under /users/{id}.
func (h *BillingHandler) UserRoutes(r chi.Router) {
	r.Post("/checkout", h.CreateCheckoutSession)
	r.Post("/portal", h.CreatePortalSession)
}

type checkoutRequest struct {
	EarlyAdopter bool `json:"earlyAdopter"`
}

// @Summary      Start a Stripe checkout
// @Description  Returns a hosted payment page URL. With earlyAdopter set, one of the promotional slots is reserved first.
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        id    path      int              true   "User ID"
// @Param        body  body      checkoutRequest  false  "Checkout options"
// @Success      200   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /users/{id}/checkout [post]
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}

	checkoutURL, err := h.billing.CreateCheckoutSession(r.Context(), id, req.EarlyAdopter)
	if err != nil {
		respondWithServiceError(w, err, "failed to create checkout session")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"checkoutUrl": checkoutURL})
}

// @Summary      Open the Stripe billing portal
// @Tags         billing
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  map[string]string
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /users/{id}/portal [post]
func (h *BillingHandler) CreatePortalSession(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	portalURL, err := h.billing.CreatePortalSession(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to create portal session")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"portalUrl": portalURL})
}

// @Summary      Early adopter availability
// @Tags         billing
// @Produce      json
// @Success      200  {object}  domain.EarlyAdopterStatus
// @Failure      500  {object}  map[string]string
// @Router       /billing/early-adopter [get]
func (h *BillingHandler) GetEarlyAdopterStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.earlyAdopter.Status(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "failed to fetch early adopter status")
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// @Summary      Stripe webhook
// @Description  Receives signed subscription events from Stripe
// @Tags         billing
// @Accept       json
// @Produce      json
// @Param        Stripe-Signature  header    string  true  "Stripe signature"
// @Success      200               {object}  map[string]string
// @Failure      400               {object}  map[string]string
// @Failure      500               {object}  map[string]string
// @Router       /webhooks/stripe [post]
func (h *BillingHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	const maxBodyBytes = int64(65536)
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			slog.Warn("webhook body too large", "limit", tooLarge.Limit)
			respondWithError(w, http.StatusBadRequest, "request body too large")
			return
		}
		slog.Error("failed to read webhook body", "error", err)
		respondWithError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}

	signature := r.Header.Get("Stripe-Signature")

	if err := h.billing.HandleStripeWebhook(r.Context(), payload, signature); err != nil {
		if errors.Is(err, service.ErrWebhookSignature) {
			respondWithError(w, http.StatusBadRequest, "webhook signature verification failed")
		} else {
			respondWithError(w, http.StatusInternalServerError, "failed to process webhook")
		}
		return
	}

	// 2xx tells Stripe not to redeliver.
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
