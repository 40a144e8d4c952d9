package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/service"
)

// UserService is what UserHandler needs from the service layer. Handlers depend on
// interfaces so tests can swap in function-field mocks.
type UserService interface {
	CreateUser(ctx context.Context, user domain.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
	GetAllUsers(ctx context.Context) ([]domain.User, error)
	UpdateUser(ctx context.Context, id int64, user domain.User) error
	DeleteUser(ctx context.Context, id int64) error
	GetSubscription(ctx context.Context, id int64) (*service.SubscriptionView, error)
}

// UserHandler serves /users.
type UserHandler struct {
	service UserService
}

func NewUserHandler(s UserService) *UserHandler {
	return &UserHandler{
		service: s,
	}
}

// Routes returns the /users router. Every nested registers its own routes under
// /users/{id}.
func (h *UserHandler) Routes(nested ...func(r chi.Router)) chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateUser)
	r.Get("/", h.GetAllUsers)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.GetUserByID)
		r.Put("/", h.UpdateUser)
		r.Delete("/", h.DeleteUser)
		r.Get("/subscription", h.GetSubscription)

		for _, register := range nested {
			register(r)
		}
	})

	return r
}

// @Summary      Create a user
// @Description  Registers a new account on the free plan
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        user  body      domain.User  true  "Name and e-mail"
// @Success      201   {object}  domain.User
// @Failure      400   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /users [post]
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var user domain.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newID, err := h.service.CreateUser(r.Context(), user)
	if err != nil {
		respondWithServiceError(w, err, "failed to create user")
		return
	}

	user.ID = newID
	user.Subscription = domain.FreeSubscription()
	respondWithJSON(w, http.StatusCreated, user)
}

// @Summary      List users
// @Tags         users
// @Produce      json
// @Success      200  {array}   domain.User
// @Failure      500  {object}  map[string]string
// @Router       /users [get]
func (h *UserHandler) GetAllUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.GetAllUsers(r.Context())
	if err != nil {
		respondWithServiceError(w, err, "failed to list users")
		return
	}
	respondWithJSON(w, http.StatusOK, users)
}

// @Summary      Get a user
// @Tags         users
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  domain.User
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /users/{id} [get]
func (h *UserHandler) GetUserByID(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	user, err := h.service.GetUserByID(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to fetch user")
		return
	}

	respondWithJSON(w, http.StatusOK, user)
}

// @Summary      Update a user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id    path      int          true  "User ID"
// @Param        user  body      domain.User  true  "New name and e-mail"
// @Success      204   {string}  string "No Content"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /users/{id} [put]
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	var user domain.User
	if err := json.NewDecoder(r.Body).Decode(&user); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.service.UpdateUser(r.Context(), id, user); err != nil {
		respondWithServiceError(w, err, "failed to update user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Delete a user
// @Description  Removes the account and releases any early adopter slot it held
// @Tags         users
// @Param        id   path      int  true  "User ID"
// @Success      204  {string}  string "No Content"
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /users/{id} [delete]
func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		respondWithServiceError(w, err, "failed to delete user")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Get a user's subscription
// @Tags         billing
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  service.SubscriptionView
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /users/{id}/subscription [get]
func (h *UserHandler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetSubscription(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to fetch subscription")
		return
	}

	respondWithJSON(w, http.StatusOK, view)
}

// --- HELPERS ---

func userIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// respondWithServiceError maps business errors onto status codes. Anything unknown is
// logged and reported as a 500 with the fallback message.
func respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrRecipeNotFound),
		errors.Is(err, service.ErrItemNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidData),
		errors.Is(err, service.ErrNoStripeCustomer):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrSubscriptionActive),
		errors.Is(err, service.ErrAlreadyClaimed),
		errors.Is(err, service.ErrSoldOut):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrForbidden):
		respondWithError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrPremiumRequired):
		respondWithError(w, http.StatusPaymentRequired, err.Error())
	case errors.Is(err, service.ErrRateLimited):
		respondWithError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, service.ErrBillingNotConfigured),
		errors.Is(err, service.ErrAssistantUnavailable):
		respondWithError(w, http.StatusServiceUnavailable, err.Error())
	default:
		slog.Error(fallback, "error", err)
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	if code >= http.StatusInternalServerError {
		slog.Error("API Error", "code", code, "message", message)
	} else {
		slog.Debug("API Error", "code", code, "message", message)
	}
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
