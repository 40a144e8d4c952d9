package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/willjrcristo/mealmuse/internal/domain"
)

// RecipeRepository stores recipes and the favorites that point at them.
type RecipeRepository interface {
	Create(ctx context.Context, recipe domain.Recipe) error
	GetByID(ctx context.Context, id string) (*domain.Recipe, error)
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]domain.Recipe, error)
	ListByAuthor(ctx context.Context, authorID int64) ([]domain.Recipe, error)
	Update(ctx context.Context, recipe domain.Recipe) error
	SetStatus(ctx context.Context, id, status string) (bool, error)
	Delete(ctx context.Context, id string) error

	AddFavorite(ctx context.Context, userID int64, recipeID string) error
	RemoveFavorite(ctx context.Context, userID int64, recipeID string) error
	ListFavorites(ctx context.Context, userID int64) ([]domain.Recipe, error)
}

type sqliteRecipeRepository struct {
	db *sql.DB
}

func NewSQLiteRecipeRepository(db *sql.DB) RecipeRepository {
	return &sqliteRecipeRepository{db: db}
}

const recipeColumns = `r.id, r.author_id, r.title, r.description, r.ingredients, r.instructions,
	r.servings, r.status, r.created_at, r.updated_at`

func (r *sqliteRecipeRepository) Create(ctx context.Context, recipe domain.Recipe) error {
	ingredients, instructions, err := encodeSteps(recipe)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO recipes (id, author_id, title, description, ingredients, instructions, servings, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, recipe.ID, recipe.AuthorID, recipe.Title, recipe.Description, ingredients, instructions,
		recipe.Servings, recipe.Status, recipe.CreatedAt.Unix(), recipe.UpdatedAt.Unix())
	return err
}

func (r *sqliteRecipeRepository) GetByID(ctx context.Context, id string) (*domain.Recipe, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+recipeColumns+" FROM recipes r WHERE r.id = ?", id)
	recipe, err := scanRecipe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return recipe, err
}

func (r *sqliteRecipeRepository) ListByStatus(ctx context.Context, status string, limit, offset int) ([]domain.Recipe, error) {
	return r.list(ctx, `
		SELECT `+recipeColumns+`
		FROM recipes r
		WHERE r.status = ?
		ORDER BY r.created_at DESC, r.id
		LIMIT ? OFFSET ?
	`, status, limit, offset)
}

func (r *sqliteRecipeRepository) ListByAuthor(ctx context.Context, authorID int64) ([]domain.Recipe, error) {
	return r.list(ctx, `
		SELECT `+recipeColumns+`
		FROM recipes r
		WHERE r.author_id = ?
		ORDER BY r.created_at DESC, r.id
	`, authorID)
}

func (r *sqliteRecipeRepository) Update(ctx context.Context, recipe domain.Recipe) error {
	ingredients, instructions, err := encodeSteps(recipe)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE recipes
		SET title = ?, description = ?, ingredients = ?, instructions = ?, servings = ?, status = ?, updated_at = ?
		WHERE id = ?
	`, recipe.Title, recipe.Description, ingredients, instructions, recipe.Servings, recipe.Status,
		recipe.UpdatedAt.Unix(), recipe.ID)
	return err
}

func (r *sqliteRecipeRepository) SetStatus(ctx context.Context, id, status string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE recipes SET status = ?, updated_at = ? WHERE id = ?", status, time.Now().Unix(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *sqliteRecipeRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM recipes WHERE id = ?", id)
	return err
}

// AddFavorite is idempotent.
func (r *sqliteRecipeRepository) AddFavorite(ctx context.Context, userID int64, recipeID string) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO favorites (user_id, recipe_id, created_at) VALUES (?, ?, ?)",
		userID, recipeID, time.Now().Unix())
	return err
}

func (r *sqliteRecipeRepository) RemoveFavorite(ctx context.Context, userID int64, recipeID string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM favorites WHERE user_id = ? AND recipe_id = ?", userID, recipeID)
	return err
}

func (r *sqliteRecipeRepository) ListFavorites(ctx context.Context, userID int64) ([]domain.Recipe, error) {
	return r.list(ctx, `
		SELECT `+recipeColumns+`
		FROM favorites f
		JOIN recipes r ON r.id = f.recipe_id
		WHERE f.user_id = ?
		ORDER BY f.created_at DESC, r.id
	`, userID)
}

func (r *sqliteRecipeRepository) list(ctx context.Context, query string, args ...any) ([]domain.Recipe, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipes := []domain.Recipe{}
	for rows.Next() {
		recipe, err := scanRecipe(rows)
		if err != nil {
			return nil, err
		}
		recipes = append(recipes, *recipe)
	}
	return recipes, rows.Err()
}

func scanRecipe(s rowScanner) (*domain.Recipe, error) {
	var (
		recipe                    domain.Recipe
		ingredients, instructions string
		created, updated          int64
	)
	err := s.Scan(
		&recipe.ID,
		&recipe.AuthorID,
		&recipe.Title,
		&recipe.Description,
		&ingredients,
		&instructions,
		&recipe.Servings,
		&recipe.Status,
		&created,
		&updated,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ingredients), &recipe.Ingredients); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(instructions), &recipe.Instructions); err != nil {
		return nil, err
	}
	recipe.CreatedAt = time.Unix(created, 0).UTC()
	recipe.UpdatedAt = time.Unix(updated, 0).UTC()
	return &recipe, nil
}

func encodeSteps(recipe domain.Recipe) (string, string, error) {
	ingredients, err := json.Marshal(nonNil(recipe.Ingredients))
	if err != nil {
		return "", "", err
	}
	instructions, err := json.Marshal(nonNil(recipe.Instructions))
	if err != nil {
		return "", "", err
	}
	return string(ingredients), string(instructions), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
