package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

// UserService holds the business rules for user accounts.
type UserService struct {
	repo         repository.UserRepository
	earlyAdopter *EarlyAdopterService
	now          func() time.Time
}

// NewUserService builds a UserService. earlyAdopter may be nil when the promotion is off.
func NewUserService(repo repository.UserRepository, earlyAdopter *EarlyAdopterService) *UserService {
	return &UserService{
		repo:         repo,
		earlyAdopter: earlyAdopter,
		now:          time.Now,
	}
}

// SubscriptionView is the read model behind GET /users/{id}/subscription.
type SubscriptionView struct {
	domain.Subscription
	IsPremium    bool `json:"isPremium"`
	EarlyAdopter bool `json:"earlyAdopter"`
	// EarlyAdopterSince is when the held slot was claimed.
	EarlyAdopterSince *time.Time `json:"earlyAdopterSince,omitempty"`
}

// --- CRUD ---

func (s *UserService) CreateUser(ctx context.Context, user domain.User) (int64, error) {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	if err := validateUser(user); err != nil {
		return 0, err
	}
	user.Subscription = domain.FreeSubscription()

	id, err := s.repo.Create(ctx, user)
	if errors.Is(err, repository.ErrEmailTaken) {
		return 0, ErrEmailTaken
	}
	return id, err
}

func (s *UserService) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) GetAllUsers(ctx context.Context) ([]domain.User, error) {
	return s.repo.GetAll(ctx)
}

func (s *UserService) UpdateUser(ctx context.Context, id int64, user domain.User) error {
	user.Name = strings.TrimSpace(user.Name)
	user.Email = strings.TrimSpace(user.Email)
	if err := validateUser(user); err != nil {
		return err
	}
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return err
	}
	err := s.repo.Update(ctx, id, user)
	if errors.Is(err, repository.ErrEmailTaken) {
		return ErrEmailTaken
	}
	return err
}

// DeleteUser releases the user's early adopter slot before removing the account,
// otherwise the slot would stay counted forever.
func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if _, err := s.GetUserByID(ctx, id); err != nil {
		return err
	}
	if s.earlyAdopter != nil {
		if err := s.earlyAdopter.Cancel(ctx, id); err != nil {
			return err
		}
	}
	return s.repo.Delete(ctx, id)
}

// GetSubscription returns the stored subscription plus derived flags.
func (s *UserService) GetSubscription(ctx context.Context, id int64) (*SubscriptionView, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &SubscriptionView{
		Subscription: user.Subscription,
		IsPremium:    user.Subscription.IsPremium(s.now()),
	}
	if s.earlyAdopter != nil {
		claim, err := s.earlyAdopter.ActiveClaim(ctx, id)
		if err != nil {
			return nil, err
		}
		if claim != nil {
			view.EarlyAdopter = true
			view.EarlyAdopterSince = &claim.ClaimedAt
		}
	}
	return view, nil
}

func validateUser(user domain.User) error {
	if user.Name == "" || user.Email == "" {
		return ErrInvalidData
	}
	if !strings.Contains(user.Email, "@") {
		return ErrInvalidData
	}
	return nil
}
