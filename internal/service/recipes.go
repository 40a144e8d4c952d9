package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"

	defaultPageSize = 20
	maxPageSize     = 100
)

// RecipeService covers user-submitted recipes, favorites and moderation.
type RecipeService struct {
	recipes repository.RecipeRepository
	users   repository.UserRepository
	isAdmin func(email string) bool
	now     func() time.Time
}

// NewRecipeService builds a RecipeService. isAdmin decides who may moderate.
func NewRecipeService(recipes repository.RecipeRepository, users repository.UserRepository, isAdmin func(string) bool) *RecipeService {
	if isAdmin == nil {
		isAdmin = func(string) bool { return false }
	}
	return &RecipeService{
		recipes: recipes,
		users:   users,
		isAdmin: isAdmin,
		now:     time.Now,
	}
}

// --- RECIPES ---

// Submit stores a new recipe in the moderation queue.
func (s *RecipeService) Submit(ctx context.Context, authorID int64, recipe domain.Recipe) (*domain.Recipe, error) {
	if _, err := s.user(ctx, authorID); err != nil {
		return nil, err
	}
	normalizeRecipe(&recipe)
	if err := validateStruct(recipe); err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Second)
	recipe.ID = uuid.NewString()
	recipe.AuthorID = authorID
	recipe.Status = domain.RecipePending
	recipe.CreatedAt = now
	recipe.UpdatedAt = now

	if err := s.recipes.Create(ctx, recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// ListPublished pages through approved recipes.
func (s *RecipeService) ListPublished(ctx context.Context, limit, offset int) ([]domain.Recipe, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.recipes.ListByStatus(ctx, domain.RecipeApproved, limit, offset)
}

// ListByAuthor returns every recipe a user wrote, whatever its status.
func (s *RecipeService) ListByAuthor(ctx context.Context, authorID int64) ([]domain.Recipe, error) {
	if _, err := s.user(ctx, authorID); err != nil {
		return nil, err
	}
	return s.recipes.ListByAuthor(ctx, authorID)
}

// GetPublished returns an approved recipe. Unpublished recipes look missing.
func (s *RecipeService) GetPublished(ctx context.Context, id string) (*domain.Recipe, error) {
	recipe, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe.Status != domain.RecipeApproved {
		return nil, ErrRecipeNotFound
	}
	return recipe, nil
}

// Update replaces the recipe content. Only the author may edit and every edit goes
// back to moderation.
func (s *RecipeService) Update(ctx context.Context, userID int64, id string, changes domain.Recipe) (*domain.Recipe, error) {
	current, err := s.owned(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	normalizeRecipe(&changes)
	if err := validateStruct(changes); err != nil {
		return nil, err
	}

	current.Title = changes.Title
	current.Description = changes.Description
	current.Ingredients = changes.Ingredients
	current.Instructions = changes.Instructions
	current.Servings = changes.Servings
	current.Status = domain.RecipePending
	current.UpdatedAt = s.now().UTC().Truncate(time.Second)

	if err := s.recipes.Update(ctx, *current); err != nil {
		return nil, err
	}
	return current, nil
}

func (s *RecipeService) Delete(ctx context.Context, userID int64, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	return s.recipes.Delete(ctx, id)
}

// --- FAVORITES ---

func (s *RecipeService) AddFavorite(ctx context.Context, userID int64, recipeID string) error {
	if _, err := s.user(ctx, userID); err != nil {
		return err
	}
	if _, err := s.GetPublished(ctx, recipeID); err != nil {
		return err
	}
	return s.recipes.AddFavorite(ctx, userID, recipeID)
}

func (s *RecipeService) RemoveFavorite(ctx context.Context, userID int64, recipeID string) error {
	if _, err := s.user(ctx, userID); err != nil {
		return err
	}
	return s.recipes.RemoveFavorite(ctx, userID, recipeID)
}

func (s *RecipeService) ListFavorites(ctx context.Context, userID int64) ([]domain.Recipe, error) {
	if _, err := s.user(ctx, userID); err != nil {
		return nil, err
	}
	return s.recipes.ListFavorites(ctx, userID)
}

// --- MODERATION ---

// ModerationQueue lists pending recipes, oldest first.
func (s *RecipeService) ModerationQueue(ctx context.Context, moderatorID int64) ([]domain.Recipe, error) {
	if err := s.requireAdmin(ctx, moderatorID); err != nil {
		return nil, err
	}
	return s.recipes.ListByStatus(ctx, domain.RecipePending, maxPageSize, 0)
}

// Moderate approves or rejects a recipe.
func (s *RecipeService) Moderate(ctx context.Context, moderatorID int64, recipeID, decision string) error {
	if err := s.requireAdmin(ctx, moderatorID); err != nil {
		return err
	}

	var status string
	switch decision {
	case DecisionApprove:
		status = domain.RecipeApproved
	case DecisionReject:
		status = domain.RecipeRejected
	default:
		return ErrInvalidData
	}

	found, err := s.recipes.SetStatus(ctx, recipeID, status)
	if err != nil {
		return err
	}
	if !found {
		return ErrRecipeNotFound
	}
	return nil
}

// --- HELPERS ---

func (s *RecipeService) user(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *RecipeService) get(ctx context.Context, id string) (*domain.Recipe, error) {
	recipe, err := s.recipes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe == nil {
		return nil, ErrRecipeNotFound
	}
	return recipe, nil
}

func (s *RecipeService) owned(ctx context.Context, userID int64, id string) (*domain.Recipe, error) {
	recipe, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if recipe.AuthorID != userID {
		return nil, ErrForbidden
	}
	return recipe, nil
}

func (s *RecipeService) requireAdmin(ctx context.Context, userID int64) error {
	user, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !s.isAdmin(user.Email) {
		return ErrForbidden
	}
	return nil
}

func normalizeRecipe(r *domain.Recipe) {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Ingredients = trimAll(r.Ingredients)
	r.Instructions = trimAll(r.Instructions)
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
