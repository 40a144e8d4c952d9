package service

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/willjrcristo/mealmuse/internal/assistant"
	"github.com/willjrcristo/mealmuse/internal/repository"
)

// LanguageModel is implemented by assistant.OpenAIClient.
type LanguageModel interface {
	Chat(ctx context.Context, history []assistant.Message) (string, error)
	GenerateRecipe(ctx context.Context, ingredients []string, preferences string) (string, error)
	ExplainIngredient(ctx context.Context, ingredient string) (string, error)
}

// Limiter is implemented by ratelimit.RedisLimiter. Allow may return true with an
// error, meaning the limiter failed open.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Remaining(ctx context.Context, key string) (int, error)
	Limit() int
}

// Quota is what is left of a user's AI allowance in the current window.
type Quota struct {
	Limit     int
	Remaining int
}

// ChatRequest is the body of POST /users/{id}/ai/chat.
type ChatRequest struct {
	Messages []assistant.Message `json:"messages" validate:"required,min=1,max=50,dive"`
}

// GenerateRequest is the body of POST /users/{id}/ai/generate.
type GenerateRequest struct {
	Ingredients []string `json:"ingredients" validate:"required,min=1,max=30,dive,required,max=100"`
	Preferences string   `json:"preferences" validate:"max=500"`
}

// ExplainRequest is the body of POST /users/{id}/ai/explain.
type ExplainRequest struct {
	Ingredient string `json:"ingredient" validate:"required,max=100"`
}

// AssistantService puts the premium gate and the rate limit in front of the LLM.
type AssistantService struct {
	users   repository.UserRepository
	model   LanguageModel
	limiter Limiter
	now     func() time.Time
}

// NewAssistantService builds an AssistantService. model nil disables the feature,
// limiter nil disables rate limiting.
func NewAssistantService(users repository.UserRepository, model LanguageModel, limiter Limiter) *AssistantService {
	return &AssistantService{
		users:   users,
		model:   model,
		limiter: limiter,
		now:     time.Now,
	}
}

func (s *AssistantService) Chat(ctx context.Context, userID int64, req ChatRequest) (string, error) {
	if err := validateStruct(req); err != nil {
		return "", err
	}
	if err := s.admit(ctx, userID); err != nil {
		return "", err
	}
	return s.model.Chat(ctx, req.Messages)
}

func (s *AssistantService) GenerateRecipe(ctx context.Context, userID int64, req GenerateRequest) (string, error) {
	req.Preferences = strings.TrimSpace(req.Preferences)
	if err := validateStruct(req); err != nil {
		return "", err
	}
	if err := s.admit(ctx, userID); err != nil {
		return "", err
	}
	return s.model.GenerateRecipe(ctx, req.Ingredients, req.Preferences)
}

func (s *AssistantService) ExplainIngredient(ctx context.Context, userID int64, req ExplainRequest) (string, error) {
	req.Ingredient = strings.TrimSpace(req.Ingredient)
	if err := validateStruct(req); err != nil {
		return "", err
	}
	if err := s.admit(ctx, userID); err != nil {
		return "", err
	}
	return s.model.ExplainIngredient(ctx, req.Ingredient)
}

// admit runs the checks shared by every AI call, in order: configured, user exists,
// premium, under the rate limit.
func (s *AssistantService) admit(ctx context.Context, userID int64) error {
	if s.model == nil {
		return ErrAssistantUnavailable
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}
	if !user.Subscription.IsPremium(s.now()) {
		return ErrPremiumRequired
	}
	if s.limiter == nil {
		return nil
	}

	ok, err := s.limiter.Allow(ctx, limiterKey(userID))
	if err != nil {
		slog.Warn("rate limiter unavailable, allowing request", "user_id", userID, "error", err)
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}

// Quota reports the user's remaining allowance. ok is false when rate limiting is off
// or the limiter cannot be reached.
func (s *AssistantService) Quota(ctx context.Context, userID int64) (Quota, bool) {
	if s.limiter == nil {
		return Quota{}, false
	}
	remaining, err := s.limiter.Remaining(ctx, limiterKey(userID))
	if err != nil {
		slog.Warn("failed to read rate limit quota", "user_id", userID, "error", err)
		return Quota{}, false
	}
	return Quota{Limit: s.limiter.Limit(), Remaining: remaining}, true
}

func limiterKey(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
