package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

// ShoppingListService manages a user's shopping list.
type ShoppingListService struct {
	items   repository.ShoppingListRepository
	recipes repository.RecipeRepository
	users   repository.UserRepository
	now     func() time.Time
}

func NewShoppingListService(items repository.ShoppingListRepository, recipes repository.RecipeRepository, users repository.UserRepository) *ShoppingListService {
	return &ShoppingListService{
		items:   items,
		recipes: recipes,
		users:   users,
		now:     time.Now,
	}
}

func (s *ShoppingListService) List(ctx context.Context, userID int64) ([]domain.ShoppingItem, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.items.List(ctx, userID)
}

func (s *ShoppingListService) AddItem(ctx context.Context, userID int64, item domain.ShoppingItem) (*domain.ShoppingItem, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return nil, err
	}
	item.Name = strings.TrimSpace(item.Name)
	item.Quantity = strings.TrimSpace(item.Quantity)
	if err := validateStruct(item); err != nil {
		return nil, err
	}

	item = s.newItem(userID, item.Name, item.Quantity, "")
	if err := s.items.Add(ctx, item); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddFromRecipe copies every ingredient of a published recipe, or one of the user's
// own, onto the list.
func (s *ShoppingListService) AddFromRecipe(ctx context.Context, userID int64, recipeID string) ([]domain.ShoppingItem, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return nil, err
	}
	recipe, err := s.recipes.GetByID(ctx, recipeID)
	if err != nil {
		return nil, err
	}
	if recipe == nil || (recipe.Status != domain.RecipeApproved && recipe.AuthorID != userID) {
		return nil, ErrRecipeNotFound
	}

	items := make([]domain.ShoppingItem, 0, len(recipe.Ingredients))
	for _, ingredient := range recipe.Ingredients {
		items = append(items, s.newItem(userID, ingredient, "", recipe.ID))
	}
	if err := s.items.Add(ctx, items...); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *ShoppingListService) SetChecked(ctx context.Context, userID int64, itemID string, checked bool) error {
	found, err := s.items.SetChecked(ctx, userID, itemID, checked)
	if err != nil {
		return err
	}
	if !found {
		return ErrItemNotFound
	}
	return nil
}

func (s *ShoppingListService) RemoveItem(ctx context.Context, userID int64, itemID string) error {
	found, err := s.items.Delete(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if !found {
		return ErrItemNotFound
	}
	return nil
}

// ClearChecked removes checked items and returns how many were removed.
func (s *ShoppingListService) ClearChecked(ctx context.Context, userID int64) (int64, error) {
	if err := s.checkUser(ctx, userID); err != nil {
		return 0, err
	}
	return s.items.ClearChecked(ctx, userID)
}

func (s *ShoppingListService) newItem(userID int64, name, quantity, recipeID string) domain.ShoppingItem {
	return domain.ShoppingItem{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		Quantity:  quantity,
		RecipeID:  recipeID,
		CreatedAt: s.now().UTC(),
	}
}

func (s *ShoppingListService) checkUser(ctx context.Context, userID int64) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	return nil
}
