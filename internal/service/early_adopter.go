package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

// EarlyAdopterService gates the promotional price behind a fixed number of slots.
type EarlyAdopterService struct {
	repo repository.EarlyAdopterRepository
	now  func() time.Time
}

func NewEarlyAdopterService(repo repository.EarlyAdopterRepository) *EarlyAdopterService {
	return &EarlyAdopterService{repo: repo, now: time.Now}
}

// Configure stores the slot cap. Lowering it below the current usage only blocks new
// claims; existing claims are kept.
func (s *EarlyAdopterService) Configure(ctx context.Context, maxSlots int) error {
	return s.repo.SetMaxSlots(ctx, maxSlots)
}

// Status reports remaining capacity.
func (s *EarlyAdopterService) Status(ctx context.Context) (domain.EarlyAdopterStatus, error) {
	used, maxSlots, err := s.repo.Counts(ctx)
	if err != nil {
		return domain.EarlyAdopterStatus{}, err
	}
	return domain.NewEarlyAdopterStatus(used, maxSlots), nil
}

// HasClaimed reports whether the user currently holds a slot.
func (s *EarlyAdopterService) HasClaimed(ctx context.Context, userID int64) (bool, error) {
	return s.repo.HasActiveClaim(ctx, userID)
}

// ActiveClaim returns the user's current claim, or nil when they hold none.
func (s *EarlyAdopterService) ActiveClaim(ctx context.Context, userID int64) (*domain.EarlyAdopterClaim, error) {
	return s.repo.GetActiveClaim(ctx, userID)
}

// Claim reserves a slot for the user. It fails with ErrAlreadyClaimed or ErrSoldOut.
func (s *EarlyAdopterService) Claim(ctx context.Context, userID int64, email string) (*domain.EarlyAdopterClaim, error) {
	claim := domain.EarlyAdopterClaim{
		ID:        uuid.NewString(),
		UserID:    userID,
		Email:     email,
		ClaimedAt: s.now().UTC().Truncate(time.Second),
		Status:    domain.ClaimActive,
	}

	err := s.repo.Claim(ctx, claim)
	switch {
	case err == nil:
		earlyAdopterClaimsTotal.WithLabelValues("claimed").Inc()
		slog.Info("early adopter slot claimed", "user_id", userID)
		return &claim, nil
	case errors.Is(err, repository.ErrClaimExists):
		earlyAdopterClaimsTotal.WithLabelValues("already_claimed").Inc()
		return nil, ErrAlreadyClaimed
	case errors.Is(err, repository.ErrNoSlotsLeft):
		earlyAdopterClaimsTotal.WithLabelValues("sold_out").Inc()
		return nil, ErrSoldOut
	default:
		earlyAdopterClaimsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
}

// Cancel frees the user's slot. No active claim is not an error.
func (s *EarlyAdopterService) Cancel(ctx context.Context, userID int64) error {
	released, err := s.repo.Cancel(ctx, userID)
	if err != nil {
		return err
	}
	if released {
		slog.Info("early adopter slot released", "user_id", userID)
	}
	return nil
}
