package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/willjrcristo/mealmuse/internal/service"
)

type AssistantService interface {
	Chat(ctx context.Context, userID int64, req service.ChatRequest) (string, error)
	GenerateRecipe(ctx context.Context, userID int64, req service.GenerateRequest) (string, error)
	ExplainIngredient(ctx context.Context, userID int64, req service.ExplainRequest) (string, error)
	Quota(ctx context.Context, userID int64) (service.Quota, bool)
}

// AssistantHandler serves the premium AI routes.
type AssistantHandler struct {
	service AssistantService
}

func NewAssistantHandler(s AssistantService) *AssistantHandler {
	return &AssistantHandler{service: s}
}

// UserRoutes registers /ai/* under /users/{id}.
func (h *AssistantHandler) UserRoutes(r chi.Router) {
	r.Route("/ai", func(r chi.Router) {
		r.Post("/chat", h.Chat)
		r.Post("/generate", h.GenerateRecipe)
		r.Post("/explain", h.ExplainIngredient)
	})
}

// @Summary      Chat with the cooking assistant
// @Tags         ai
// @Accept       json
// @Produce      json
// @Param        id    path      int                  true  "User ID"
// @Param        body  body      service.ChatRequest  true  "Conversation so far"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      402   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /users/{id}/ai/chat [post]
func (h *AssistantHandler) Chat(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req service.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := h.service.Chat(r.Context(), id, req)
	h.respond(w, r, id, answer, err)
}

// @Summary      Generate a recipe from ingredients
// @Tags         ai
// @Accept       json
// @Produce      json
// @Param        id    path      int                      true  "User ID"
// @Param        body  body      service.GenerateRequest  true  "Ingredients and preferences"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      402   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /users/{id}/ai/generate [post]
func (h *AssistantHandler) GenerateRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req service.GenerateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := h.service.GenerateRecipe(r.Context(), id, req)
	h.respond(w, r, id, answer, err)
}

// @Summary      Explain an ingredient
// @Tags         ai
// @Accept       json
// @Produce      json
// @Param        id    path      int                     true  "User ID"
// @Param        body  body      service.ExplainRequest  true  "Ingredient"
// @Success      200   {object}  map[string]string
// @Failure      400   {object}  map[string]string
// @Failure      402   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /users/{id}/ai/explain [post]
func (h *AssistantHandler) ExplainIngredient(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req service.ExplainRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	answer, err := h.service.ExplainIngredient(r.Context(), id, req)
	h.respond(w, r, id, answer, err)
}

// respond writes the answer. Served and throttled calls also carry the user's quota
// in X-RateLimit-* headers.
func (h *AssistantHandler) respond(w http.ResponseWriter, r *http.Request, userID int64, answer string, err error) {
	if err == nil || errors.Is(err, service.ErrRateLimited) {
		if q, ok := h.service.Quota(r.Context(), userID); ok {
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(q.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(q.Remaining))
		}
	}
	if err != nil {
		respondWithServiceError(w, err, "assistant request failed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
