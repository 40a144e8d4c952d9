package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/willjrcristo/mealmuse/internal/domain"
)

// ErrEmailTaken is returned when another account already uses the e-mail.
var ErrEmailTaken = errors.New("email already in use")

// UserRepository defines persistence for user accounts and their embedded subscription.
// Using an interface lets services be tested with fakes and keeps SQL in one place.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) (int64, error)
	GetAll(ctx context.Context) ([]domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error)
	Update(ctx context.Context, id int64, user domain.User) error
	Delete(ctx context.Context, id int64) error

	SetStripeCustomerID(ctx context.Context, id int64, customerID string) error
	// UpdateSubscriptionByEmail applies patch to the user with that e-mail and returns
	// the number of rows touched (0 when nobody matches).
	UpdateSubscriptionByEmail(ctx context.Context, email string, patch SubscriptionPatch) (int64, error)
	// UpdateSubscriptionByCustomerID does the same for the user linked to a Stripe customer.
	UpdateSubscriptionByCustomerID(ctx context.Context, customerID string, patch SubscriptionPatch) (int64, error)
}

// SubscriptionPatch lists the subscription fields to overwrite. Nil fields are left alone.
// Every field is an absolute value so applying a patch twice gives the same row.
type SubscriptionPatch struct {
	Tier                 *string
	Status               *string
	StripeCustomerID     *string
	StripeSubscriptionID *string
	CurrentPeriodEnd     *time.Time
	CancelAtPeriodEnd    *bool
}

// IsEmpty reports whether the patch would change nothing.
func (p SubscriptionPatch) IsEmpty() bool {
	return p.Tier == nil && p.Status == nil && p.StripeCustomerID == nil &&
		p.StripeSubscriptionID == nil && p.CurrentPeriodEnd == nil && p.CancelAtPeriodEnd == nil
}

// sqliteRepository is the SQLite implementation of UserRepository.
type sqliteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository builds a UserRepository over an open database.
func NewSQLiteRepository(db *sql.DB) UserRepository {
	return &sqliteRepository{
		db: db,
	}
}

const userColumns = `id, name, email, tier, subscription_status, stripe_customer_id,
	stripe_subscription_id, current_period_end, cancel_at_period_end, created_at`

// --- IMPLEMENTATION ---

func (r *sqliteRepository) Create(ctx context.Context, user domain.User) (int64, error) {
	stmt, err := r.db.PrepareContext(ctx, "INSERT INTO users(name, email, tier, subscription_status, created_at) VALUES(?, ?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	sub := user.Subscription
	if sub.Tier == "" {
		sub = domain.FreeSubscription()
	}
	res, err := stmt.ExecContext(ctx, user.Name, user.Email, sub.Tier, sub.Status, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrEmailTaken
		}
		return 0, err
	}

	return res.LastInsertId()
}

func (r *sqliteRepository) GetAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return users, nil
}

func (r *sqliteRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id)

	u, err := scanUser(row)
	if err != nil {
		// Not found is not an error at this layer; the service decides what it means.
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return u, nil
}

func (r *sqliteRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ?", strings.TrimSpace(email))

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return u, nil
}

func (r *sqliteRepository) GetByStripeCustomerID(ctx context.Context, customerID string) (*domain.User, error) {
	if customerID == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE stripe_customer_id = ?", customerID)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return u, nil
}

func (r *sqliteRepository) Update(ctx context.Context, id int64, user domain.User) error {
	stmt, err := r.db.PrepareContext(ctx, "UPDATE users SET name = ?, email = ? WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, user.Name, user.Email, id)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *sqliteRepository) Delete(ctx context.Context, id int64) error {
	stmt, err := r.db.PrepareContext(ctx, "DELETE FROM users WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, id)
	return err
}

func (r *sqliteRepository) SetStripeCustomerID(ctx context.Context, id int64, customerID string) error {
	_, err := r.db.ExecContext(ctx, "UPDATE users SET stripe_customer_id = ? WHERE id = ?", customerID, id)
	return err
}

func (r *sqliteRepository) UpdateSubscriptionByEmail(ctx context.Context, email string, patch SubscriptionPatch) (int64, error) {
	return r.updateSubscription(ctx, "email = ?", strings.TrimSpace(email), patch)
}

func (r *sqliteRepository) UpdateSubscriptionByCustomerID(ctx context.Context, customerID string, patch SubscriptionPatch) (int64, error) {
	if customerID == "" {
		return 0, nil
	}
	return r.updateSubscription(ctx, "stripe_customer_id = ?", customerID, patch)
}

func (r *sqliteRepository) updateSubscription(ctx context.Context, where string, key any, patch SubscriptionPatch) (int64, error) {
	if patch.IsEmpty() {
		return 0, nil
	}

	var (
		sets []string
		args []any
	)
	if patch.Tier != nil {
		sets = append(sets, "tier = ?")
		args = append(args, *patch.Tier)
	}
	if patch.Status != nil {
		sets = append(sets, "subscription_status = ?")
		args = append(args, *patch.Status)
	}
	if patch.StripeCustomerID != nil {
		sets = append(sets, "stripe_customer_id = ?")
		args = append(args, *patch.StripeCustomerID)
	}
	if patch.StripeSubscriptionID != nil {
		sets = append(sets, "stripe_subscription_id = ?")
		args = append(args, *patch.StripeSubscriptionID)
	}
	if patch.CurrentPeriodEnd != nil {
		sets = append(sets, "current_period_end = ?")
		args = append(args, unixOrZero(*patch.CurrentPeriodEnd))
	}
	if patch.CancelAtPeriodEnd != nil {
		sets = append(sets, "cancel_at_period_end = ?")
		args = append(args, *patch.CancelAtPeriodEnd)
	}
	args = append(args, key)

	res, err := r.db.ExecContext(ctx, "UPDATE users SET "+strings.Join(sets, ", ")+" WHERE "+where, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- HELPERS ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*domain.User, error) {
	var (
		u                 domain.User
		periodEnd, create int64
		cancelAtEnd       bool
	)
	err := s.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.Subscription.Tier,
		&u.Subscription.Status,
		&u.Subscription.StripeCustomerID,
		&u.Subscription.StripeSubscriptionID,
		&periodEnd,
		&cancelAtEnd,
		&create,
	)
	if err != nil {
		return nil, err
	}
	u.Subscription.CurrentPeriodEnd = timeOrZero(periodEnd)
	u.Subscription.CancelAtPeriodEnd = cancelAtEnd
	u.CreatedAt = time.Unix(create, 0).UTC()
	return &u, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
