package domain

import "time"

// Moderation states of a recipe. Only approved recipes are public.
const (
	RecipePending  = "pending"
	RecipeApproved = "approved"
	RecipeRejected = "rejected"
)

type Recipe struct {
	ID           string    `json:"id"`
	AuthorID     int64     `json:"authorId"`
	Title        string    `json:"title" validate:"required,max=200"`
	Description  string    `json:"description" validate:"max=4000"`
	Ingredients  []string  `json:"ingredients" validate:"required,min=1,max=100,dive,required,max=200"`
	Instructions []string  `json:"instructions" validate:"required,min=1,max=100,dive,required,max=2000"`
	Servings     int       `json:"servings" validate:"gte=0,lte=100"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ShoppingItem is one line of a user's shopping list.
type ShoppingItem struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Name      string    `json:"name" validate:"required,max=200"`
	Quantity  string    `json:"quantity" validate:"max=100"`
	Checked   bool      `json:"checked"`
	RecipeID  string    `json:"recipeId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
