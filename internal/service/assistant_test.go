package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willjrcristo/mealmuse/internal/assistant"
	"github.com/willjrcristo/mealmuse/internal/ratelimit"
)

type fakeModel struct {
	calls int
}

func (m *fakeModel) Chat(_ context.Context, history []assistant.Message) (string, error) {
	m.calls++
	return "echo: " + history[len(history)-1].Content, nil
}

func (m *fakeModel) GenerateRecipe(_ context.Context, ingredients []string, _ string) (string, error) {
	m.calls++
	return "recipe with " + ingredients[0], nil
}

func (m *fakeModel) ExplainIngredient(_ context.Context, ingredient string) (string, error) {
	m.calls++
	return ingredient + " is tasty", nil
}

type fakeLimiter struct {
	allow     bool
	err       error
	remaining int
}

func (l fakeLimiter) Allow(context.Context, string) (bool, error) {
	return l.allow, l.err
}

func (l fakeLimiter) Remaining(context.Context, string) (int, error) {
	if l.err != nil {
		return 0, l.err
	}
	return l.remaining, nil
}

func (l fakeLimiter) Limit() int {
	return 20
}

func TestAssistantService(t *testing.T) {
	ctx := context.Background()
	chat := ChatRequest{Messages: []assistant.Message{{Role: "user", Content: "hi"}}}

	t.Run("unconfigured", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.createUser(t, "ana@mealmuse.app")
		svc := NewAssistantService(env.users, nil, nil)

		_, err := svc.Chat(ctx, id, chat)
		assert.ErrorIs(t, err, ErrAssistantUnavailable)
	})

	t.Run("free users are refused", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.createUser(t, "ana@mealmuse.app")
		model := &fakeModel{}
		svc := NewAssistantService(env.users, model, nil)

		_, err := svc.Chat(ctx, id, chat)
		assert.ErrorIs(t, err, ErrPremiumRequired)
		assert.Zero(t, model.calls)
	})

	t.Run("expired premium is refused", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.createUser(t, "ana@mealmuse.app")
		env.makePremium(t, "ana@mealmuse.app", time.Now().Add(-time.Minute))
		svc := NewAssistantService(env.users, &fakeModel{}, nil)

		_, err := svc.ExplainIngredient(ctx, id, ExplainRequest{Ingredient: "saffron"})
		assert.ErrorIs(t, err, ErrPremiumRequired)
	})

	t.Run("premium users get answers", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.createUser(t, "ana@mealmuse.app")
		env.makePremium(t, "ana@mealmuse.app", time.Now().Add(time.Hour))
		svc := NewAssistantService(env.users, &fakeModel{}, fakeLimiter{allow: true})

		answer, err := svc.Chat(ctx, id, chat)
		require.NoError(t, err)
		assert.Equal(t, "echo: hi", answer)

		answer, err = svc.GenerateRecipe(ctx, id, GenerateRequest{Ingredients: []string{"rice"}})
		require.NoError(t, err)
		assert.Equal(t, "recipe with rice", answer)
	})

	t.Run("rate limited", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.createUser(t, "ana@mealmuse.app")
		env.makePremium(t, "ana@mealmuse.app", time.Now().Add(time.Hour))
		svc := NewAssistantService(env.users, &fakeModel{}, fakeLimiter{allow: false})

		_, err := svc.Chat(ctx, id, chat)
		assert.ErrorIs(t, err, ErrRateLimited)
	})

	t.Run("limiter failure fails open", func(t *testing.T) {
		env := newTestEnv(t)
		id := env.createUser(t, "ana@mealmuse.app")
		env.makePremium(t, "ana@mealmuse.app", time.Now().Add(time.Hour))
		svc := NewAssistantService(env.users, &fakeModel{}, fakeLimiter{allow: true, err: errors.New("redis down")})

		_, err := svc.Chat(ctx, id, chat)
		assert.NoError(t, err)
	})

	t.Run("quota", func(t *testing.T) {
		env := newTestEnv(t)

		_, ok := NewAssistantService(env.users, &fakeModel{}, nil).Quota(ctx, 1)
		assert.False(t, ok, "no limiter, no quota")

		_, ok = NewAssistantService(env.users, &fakeModel{}, fakeLimiter{err: errors.New("redis down")}).Quota(ctx, 1)
		assert.False(t, ok)

		q, ok := NewAssistantService(env.users, &fakeModel{}, fakeLimiter{remaining: 7}).Quota(ctx, 1)
		require.True(t, ok)
		assert.Equal(t, Quota{Limit: 20, Remaining: 7}, q)
	})

	t.Run("invalid request", func(t *testing.T) {
		env := newTestEnv(t)
		svc := NewAssistantService(env.users, &fakeModel{}, nil)

		_, err := svc.Chat(ctx, 1, ChatRequest{Messages: []assistant.Message{{Role: "system", Content: "x"}}})
		assert.ErrorIs(t, err, ErrInvalidData)

		_, err = svc.GenerateRecipe(ctx, 1, GenerateRequest{})
		assert.ErrorIs(t, err, ErrInvalidData)
	})
}

func TestAssistantService_RedisQuota(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	id := env.createUser(t, "ana@mealmuse.app")
	env.makePremium(t, "ana@mealmuse.app", time.Now().Add(time.Hour))

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client, err := ratelimit.NewRedisClient(ctx, "redis://"+mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	svc := NewAssistantService(env.users, &fakeModel{}, ratelimit.NewRedisLimiter(client, 2, time.Hour, "test:ai"))
	explain := ExplainRequest{Ingredient: "miso"}

	_, err = svc.ExplainIngredient(ctx, id, explain)
	require.NoError(t, err)
	q, ok := svc.Quota(ctx, id)
	require.True(t, ok)
	assert.Equal(t, Quota{Limit: 2, Remaining: 1}, q)

	_, err = svc.ExplainIngredient(ctx, id, explain)
	require.NoError(t, err)
	_, err = svc.ExplainIngredient(ctx, id, explain)
	assert.ErrorIs(t, err, ErrRateLimited)

	q, ok = svc.Quota(ctx, id)
	require.True(t, ok)
	assert.Equal(t, 0, q.Remaining)
}
