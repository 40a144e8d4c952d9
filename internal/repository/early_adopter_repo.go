package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/willjrcristo/mealmuse/internal/domain"
)

const earlyAdopterPromo = "early_adopter"

var (
	// ErrClaimExists means the user already holds an active claim.
	ErrClaimExists = errors.New("active claim already exists")
	// ErrNoSlotsLeft means the promotion's counter is at its cap.
	ErrNoSlotsLeft = errors.New("no promotional slots left")
)

// EarlyAdopterRepository persists promotional slot claims. The slot counter is a single
// row in promo_slots, so the cap holds across any number of API instances.
type EarlyAdopterRepository interface {
	// SetMaxSlots aligns the stored cap with configuration.
	SetMaxSlots(ctx context.Context, maxSlots int) error
	Counts(ctx context.Context) (used, maxSlots int, err error)
	HasActiveClaim(ctx context.Context, userID int64) (bool, error)
	GetActiveClaim(ctx context.Context, userID int64) (*domain.EarlyAdopterClaim, error)
	// Claim reserves a slot and records the claim atomically.
	Claim(ctx context.Context, claim domain.EarlyAdopterClaim) error
	// Cancel releases the user's active claim. It reports false when there was none.
	Cancel(ctx context.Context, userID int64) (bool, error)
}

type sqliteEarlyAdopterRepository struct {
	db *sql.DB
}

func NewSQLiteEarlyAdopterRepository(db *sql.DB) EarlyAdopterRepository {
	return &sqliteEarlyAdopterRepository{db: db}
}

func (r *sqliteEarlyAdopterRepository) SetMaxSlots(ctx context.Context, maxSlots int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO promo_slots (name, max_slots, used_slots) VALUES (?, ?, 0)
		ON CONFLICT (name) DO UPDATE SET max_slots = excluded.max_slots
	`, earlyAdopterPromo, maxSlots)
	return err
}

func (r *sqliteEarlyAdopterRepository) Counts(ctx context.Context) (int, int, error) {
	var used, maxSlots int
	err := r.db.QueryRowContext(ctx,
		"SELECT used_slots, max_slots FROM promo_slots WHERE name = ?", earlyAdopterPromo,
	).Scan(&used, &maxSlots)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	return used, maxSlots, err
}

func (r *sqliteEarlyAdopterRepository) HasActiveClaim(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM early_adopter_claims WHERE user_id = ? AND status = ?",
		userID, domain.ClaimActive,
	).Scan(&n)
	return n > 0, err
}

func (r *sqliteEarlyAdopterRepository) GetActiveClaim(ctx context.Context, userID int64) (*domain.EarlyAdopterClaim, error) {
	var (
		c         domain.EarlyAdopterClaim
		claimedAt int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, claimed_at, status
		FROM early_adopter_claims
		WHERE user_id = ? AND status = ?
	`, userID, domain.ClaimActive).Scan(&c.ID, &c.UserID, &c.Email, &claimedAt, &c.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ClaimedAt = time.Unix(claimedAt, 0).UTC()
	return &c, nil
}

// Claim runs the duplicate check, the guarded counter increment and the insert in one
// transaction. The counter update only matches while used_slots < max_slots, so the cap
// cannot be overshot even if two claims interleave; the partial unique index on active
// claims catches a duplicate that slips past the first check.
func (r *sqliteEarlyAdopterRepository) Claim(ctx context.Context, claim domain.EarlyAdopterClaim) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM early_adopter_claims WHERE user_id = ? AND status = ?",
		claim.UserID, domain.ClaimActive,
	).Scan(&existing)
	if err != nil {
		return err
	}
	if existing > 0 {
		return ErrClaimExists
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE promo_slots
		SET used_slots = used_slots + 1
		WHERE name = ? AND used_slots < max_slots
	`, earlyAdopterPromo)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoSlotsLeft
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO early_adopter_claims (id, user_id, email, claimed_at, status)
		VALUES (?, ?, ?, ?, ?)
	`, claim.ID, claim.UserID, claim.Email, claim.ClaimedAt.Unix(), domain.ClaimActive)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrClaimExists
		}
		return err
	}

	return tx.Commit()
}

func (r *sqliteEarlyAdopterRepository) Cancel(ctx context.Context, userID int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE early_adopter_claims SET status = ? WHERE user_id = ? AND status = ?",
		domain.ClaimCanceled, userID, domain.ClaimActive,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE promo_slots
		SET used_slots = used_slots - 1
		WHERE name = ? AND used_slots > 0
	`, earlyAdopterPromo)
	if err != nil {
		return false, err
	}

	return true, tx.Commit()
}
