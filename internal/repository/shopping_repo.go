package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/willjrcristo/mealmuse/internal/domain"
)

// ShoppingListRepository stores per-user shopping list items.
type ShoppingListRepository interface {
	Add(ctx context.Context, items ...domain.ShoppingItem) error
	List(ctx context.Context, userID int64) ([]domain.ShoppingItem, error)
	Get(ctx context.Context, userID int64, itemID string) (*domain.ShoppingItem, error)
	SetChecked(ctx context.Context, userID int64, itemID string, checked bool) (bool, error)
	Delete(ctx context.Context, userID int64, itemID string) (bool, error)
	ClearChecked(ctx context.Context, userID int64) (int64, error)
}

type sqliteShoppingListRepository struct {
	db *sql.DB
}

func NewSQLiteShoppingListRepository(db *sql.DB) ShoppingListRepository {
	return &sqliteShoppingListRepository{db: db}
}

// Add inserts all items in one transaction.
func (r *sqliteShoppingListRepository) Add(ctx context.Context, items ...domain.ShoppingItem) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO shopping_items (id, user_id, name, quantity, checked, recipe_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if _, err := stmt.ExecContext(ctx, it.ID, it.UserID, it.Name, it.Quantity, it.Checked, it.RecipeID, it.CreatedAt.UnixNano()); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *sqliteShoppingListRepository) List(ctx context.Context, userID int64) ([]domain.ShoppingItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, quantity, checked, recipe_id, created_at
		FROM shopping_items
		WHERE user_id = ?
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []domain.ShoppingItem{}
	for rows.Next() {
		it, err := scanShoppingItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *it)
	}
	return items, rows.Err()
}

func (r *sqliteShoppingListRepository) Get(ctx context.Context, userID int64, itemID string) (*domain.ShoppingItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, quantity, checked, recipe_id, created_at
		FROM shopping_items
		WHERE user_id = ? AND id = ?
	`, userID, itemID)
	it, err := scanShoppingItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

func (r *sqliteShoppingListRepository) SetChecked(ctx context.Context, userID int64, itemID string, checked bool) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE shopping_items SET checked = ? WHERE user_id = ? AND id = ?", checked, userID, itemID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *sqliteShoppingListRepository) Delete(ctx context.Context, userID int64, itemID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM shopping_items WHERE user_id = ? AND id = ?", userID, itemID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *sqliteShoppingListRepository) ClearChecked(ctx context.Context, userID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM shopping_items WHERE user_id = ? AND checked = 1", userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanShoppingItem(s rowScanner) (*domain.ShoppingItem, error) {
	var (
		it      domain.ShoppingItem
		created int64
	)
	if err := s.Scan(&it.ID, &it.UserID, &it.Name, &it.Quantity, &it.Checked, &it.RecipeID, &created); err != nil {
		return nil, err
	}
	it.CreatedAt = time.Unix(0, created).UTC()
	return &it, nil
}
