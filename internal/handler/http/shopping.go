package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/willjrcristo/mealmuse/internal/domain"
)

type ShoppingListService interface {
	List(ctx context.Context, userID int64) ([]domain.ShoppingItem, error)
	AddItem(ctx context.Context, userID int64, item domain.ShoppingItem) (*domain.ShoppingItem, error)
	AddFromRecipe(ctx context.Context, userID int64, recipeID string) ([]domain.ShoppingItem, error)
	SetChecked(ctx context.Context, userID int64, itemID string, checked bool) error
	RemoveItem(ctx context.Context, userID int64, itemID string) error
	ClearChecked(ctx context.Context, userID int64) (int64, error)
}

type ShoppingListHandler struct {
	service ShoppingListService
}

func NewShoppingListHandler(s ShoppingListService) *ShoppingListHandler {
	return &ShoppingListHandler{service: s}
}

// UserRoutes registers the shopping list under /users/{id}.
func (h *ShoppingListHandler) UserRoutes(r chi.Router) {
	r.Route("/shopping-list", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.AddItem)
		r.Delete("/", h.ClearChecked)
		r.Post("/from-recipe/{recipeID}", h.AddFromRecipe)
		r.Patch("/{itemID}", h.SetChecked)
		r.Delete("/{itemID}", h.RemoveItem)
	})
}

// @Summary      Get the shopping list
// @Tags         shopping-list
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {array}   domain.ShoppingItem
// @Failure      404  {object}  map[string]string
// @Router       /users/{id}/shopping-list [get]
func (h *ShoppingListHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	items, err := h.service.List(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to load shopping list")
		return
	}
	respondWithJSON(w, http.StatusOK, items)
}

// @Summary      Add an item
// @Tags         shopping-list
// @Accept       json
// @Produce      json
// @Param        id    path      int                  true  "User ID"
// @Param        item  body      domain.ShoppingItem  true  "Name and quantity"
// @Success      201   {object}  domain.ShoppingItem
// @Failure      400   {object}  map[string]string
// @Router       /users/{id}/shopping-list [post]
func (h *ShoppingListHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var item domain.ShoppingItem
	if !decodeJSON(w, r, &item) {
		return
	}
	created, err := h.service.AddItem(r.Context(), id, item)
	if err != nil {
		respondWithServiceError(w, err, "failed to add item")
		return
	}
	respondWithJSON(w, http.StatusCreated, created)
}

// @Summary      Add a recipe's ingredients
// @Tags         shopping-list
// @Produce      json
// @Param        id        path      int     true  "User ID"
// @Param        recipeID  path      string  true  "Recipe ID"
// @Success      201       {array}   domain.ShoppingItem
// @Failure      404       {object}  map[string]string
// @Router       /users/{id}/shopping-list/from-recipe/{recipeID} [post]
func (h *ShoppingListHandler) AddFromRecipe(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	items, err := h.service.AddFromRecipe(r.Context(), id, chi.URLParam(r, "recipeID"))
	if err != nil {
		respondWithServiceError(w, err, "failed to add recipe ingredients")
		return
	}
	respondWithJSON(w, http.StatusCreated, items)
}

type checkRequest struct {
	Checked bool `json:"checked"`
}

// @Summary      Check or uncheck an item
// @Tags         shopping-list
// @Accept       json
// @Param        id      path      int           true  "User ID"
// @Param        itemID  path      string        true  "Item ID"
// @Param        body    body      checkRequest  true  "Checked flag"
// @Success      204     {string}  string "No Content"
// @Failure      404     {object}  map[string]string
// @Router       /users/{id}/shopping-list/{itemID} [patch]
func (h *ShoppingListHandler) SetChecked(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	var req checkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.service.SetChecked(r.Context(), id, chi.URLParam(r, "itemID"), req.Checked); err != nil {
		respondWithServiceError(w, err, "failed to update item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Remove an item
// @Tags         shopping-list
// @Param        id      path      int     true  "User ID"
// @Param        itemID  path      string  true  "Item ID"
// @Success      204     {string}  string "No Content"
// @Failure      404     {object}  map[string]string
// @Router       /users/{id}/shopping-list/{itemID} [delete]
func (h *ShoppingListHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveItem(r.Context(), id, chi.URLParam(r, "itemID")); err != nil {
		respondWithServiceError(w, err, "failed to remove item")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary      Clear checked items
// @Tags         shopping-list
// @Produce      json
// @Param        id   path      int  true  "User ID"
// @Success      200  {object}  map[string]int64
// @Failure      404  {object}  map[string]string
// @Router       /users/{id}/shopping-list [delete]
func (h *ShoppingListHandler) ClearChecked(w http.ResponseWriter, r *http.Request) {
	id, ok := userIDParam(w, r)
	if !ok {
		return
	}
	removed, err := h.service.ClearChecked(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, err, "failed to clear shopping list")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}
