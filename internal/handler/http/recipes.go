package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/willjrcristo/mealmuse/internal/domain"
)

type RecipeService interface {
	Submit(ctx context.Context, authorID int64, recipe domain.Recipe) (*domain.Recipe, error)
	ListPublished(ctx context.Context, limit, offset int) ([]domain.Recipe, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]domain.Recipe, error)
	GetPublished(ctx context.Context, id string) (*domain.Recipe, error)
	Update(ctx context.Context, userID int64, id string, changes domain.Recipe) (*domain.Recipe, error)
	Delete(ctx context.Context, userID int64, id string) error

	AddFavorite(ctx context.Context, userID int64, recipeID string) error
	RemoveFavorite(ctx context.Context, userID int64, recipeID string) error
	ListFavorites(ctx context.Context, userID int64) ([]domain.Recipe, error)

	ModerationQueue(ctx context.Context, moderatorID int64) ([]domain.Recipe, error)
	Moderate(ctx context.Context, moderatorID int64, recipeID, decision string) error
}

// RecipeHandler serves the public catalogue and the per-user recipe routes.
type RecipeHandler struct {
	service RecipeService
}

func NewRecipeHandler(s RecipeService) *RecipeHandler {
	return &RecipeHandler{service: s}
}

// Routes returns the public /recipes router.
func (h *RecipeHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListPublished)
	r.Get("/{recipeID}", h.GetPublished)
	return r
}

// UserRoutes registers authoring, favorites and moderation under /users/{id}.
func (h *RecipeHandler) UserRoutes(r chi.Router) {
	r.Get("/recipes", h.ListMine)
	r.Post("/recipes", h.Submit)
	r.Put("/recipes/{recipeID}", h.Update)
	r.Delete("/recipes/{recipeID}", h.Delete)

	r.Get("/favorites", h.ListFavorites)
	r.Put("/favorites/{recipeID}", h.AddFavorite)
	r.Delete("/favorites/{recipeID}", h.RemoveFavorite)

	r.Get("/moderation/queue", h.ModerationQueue)
	r.Post("/moderation/{recipeID}", h.Moderate)
}

// @Summary      List published recipes
// @Tags         recipes
// @Produce      json
// @Param        limit   query     int  false  "Page size (max 100)"
// @Param        offset  query     int  false  "Offset"
// @Success      200     {array}   domain.Recipe
// @Failure      500     {object}  map[string]string
// @Router       /recipes [get]
func (h *RecipeHandler) ListPublished(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	recipes, err := h.service.ListPublished(r.Context(), limit, offset)
	if err != nil {
		respondWithServiceError(w, err, "failed to list recipes")
		return
	}
	respondWithJSON(w, http.StatusOK, recipes)
}

// @Summary      Get a published recipe
// @Tags         recipes
// @Produce      json
// @Param        recipeID  path      string  true  "Recipe ID"
// @Success      200       {object}  domain.Recipe
// @Failure      404       {object}  map[string]string
// @Router       /recipes/{recipeID} [get]
func (h *RecipeHandler) GetPublished(w http.ResponseWriter, r *http.Request) {
	recipe, err := h.service.GetPublished(r.Context(), chi.URLParam(r, "recipeID"))
	if err != nil {
		respondWithServiceError(w, err, "failed to fetch recipe")
		return
	}
	respondWithJSON(w, http.StatusOK, recipe)
}

// @Summary      List the user's own recipes
// @Tags         recipes
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {array}   domain.Recipe
// @Failure      404  {object}  map[string]string
// @Router       /users/{id}/recipes [get]
func (h *RecipeHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	recipes, err := h.service.ListByAuthor(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to list recipes")
		return
	}
	respondWithJSON(w, http.StatusOK, recipes)
}

// @Summary      Submit a recipe
// @Description  New recipes wait in the moderation queue until approved
// @Tags         recipes
// @Accept       json
// @Produce      json
// @Param        id      path      int            true  "User ID"
// @Param        recipe  body      domain.Recipe  true  "Recipe"
// @Success      201     {object}  domain.Recipe
// @Failure      400     {object}  map[string]string
// @Failure      404     {object}  map[string]string
// @Router       /users/{id}/recipes [post]
func (h *RecipeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var recipe domain.Recipe
	if !decodeJSON(w, r, &recipe) {
		return
	}

	created, err := h.service.Submit(r.Context(), id, recipe)
	if err != nil {
		respondWithServiceError(w, err, "failed to submit recipe")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// @Summary      Edit a recipe
// @Description  Only the author may edit. The recipe goes back to moderation.
// @Tags         recipes
// @Accept       json
// @Produce      json
// @Param        id        path      int            true  "User ID"
// @Param        recipeID  path      string         true  "Recipe ID"
// @Param        recipe    body      domain.Recipe  true  "Recipe"
// @Success      200       {object}  domain.Recipe
// @Failure      400       {object}  map[string]string
// @Failure      403       {object}  map[string]string
// @Failure      404       {object}  map[string]string
// @Router       /users/{id}/recipes/{recipeID} [put]
func (h *RecipeHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var changes domain.Recipe
	if !decodeJSON(w, r, &changes) {
		return
	}

	updated, err := h.service.Update(r.Context(), id, chi.URLParam(r, "recipeID"), changes)
	if err != nil {
		respondWithServiceError(w, err, "failed to update recipe")
		return
	}
	respondWithJSON(w, http.StatusOK, updated)
}

// @Summary      Delete a recipe
// @Tags         recipes
// @Param        id        path      int     true  "User ID"
// @Param        recipeID  path      string  true  "Recipe ID"
// @Success      204       {string}  string "No Content"
// @Failure      403       {object}  map[string]string
// @Failure      404       {object}  map[string]string
// @Router       /users/{id}/recipes/{recipeID} [delete]
func (h *RecipeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, chi.URLParam(r, "recipeID")); err != nil {
		respondWithServiceError(w, err, "failed to delete recipe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      List favorites
// @Tags         favorites
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {array}   domain.Recipe
// @Failure      404  {object}  map[string]string
// @Router       /users/{id}/favorites [get]
func (h *RecipeHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	recipes, err := h.service.ListFavorites(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to list favorites")
		return
	}
	respondWithJSON(w, http.StatusOK, recipes)
}

// @Summary      Add a favorite
// @Tags         favorites
// @Param        id        path      int     true  "User ID"
// @Param        recipeID  path      string  true  "Recipe ID"
// @Success      204       {string}  string "No Content"
// @Failure      404       {object}  map[string]string
// @Router       /users/{id}/favorites/{recipeID} [put]
func (h *RecipeHandler) AddFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.AddFavorite(r.Context(), id, chi.URLParam(r, "recipeID")); err != nil {
		respondWithServiceError(w, err, "failed to add favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Remove a favorite
// @Tags         favorites
// @Param        id        path      int     true  "User ID"
// @Param        recipeID  path      string  true  "Recipe ID"
// @Success      204       {string}  string "No Content"
// @Router       /users/{id}/favorites/{recipeID} [delete]
func (h *RecipeHandler) RemoveFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveFavorite(r.Context(), id, chi.URLParam(r, "recipeID")); err != nil {
		respondWithServiceError(w, err, "failed to remove favorite")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Moderation queue
// @Tags         moderation
// @Produce      json
// @Param        id   path      int  true  "Moderator user ID"
// @Success      200  {array}   domain.Recipe
// @Failure      403  {object}  map[string]string
// @Router       /users/{id}/moderation/queue [get]
func (h *RecipeHandler) ModerationQueue(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	recipes, err := h.service.ModerationQueue(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to load moderation queue")
		return
	}
	respondWithJSON(w, http.StatusOK, recipes)
}

type moderationRequest struct {
	Decision string `json:"decision" example:"approve"`
}

// @Summary      Approve or reject a recipe
// @Tags         moderation
// @Accept       json
// @Param        id        path      int                true  "Moderator user ID"
// @Param        recipeID  path      string             true  "Recipe ID"
// @Param        body      body      moderationRequest  true  "approve or reject"
// @Success      204       {string}  string "No Content"
// @Failure      400       {object}  map[string]string
// @Failure      403       {object}  map[string]string
// @Failure      404       {object}  map[string]string
// @Router       /users/{id}/moderation/{recipeID} [post]
func (h *RecipeHandler) Moderate(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req moderationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.Moderate(r.Context(), id, chi.URLParam(r, "recipeID"), req.Decision); err != nil {
		respondWithServiceError(w, err, "failed to moderate recipe")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
