package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willjrcristo/mealmuse/internal/domain"
	"github.com/willjrcristo/mealmuse/internal/service"
)

// --- Service mock ---

// MockUserService is a fake UserService. Each test sets only the functions it needs,
// which is how we simulate the different service outcomes.
type MockUserService struct {
	CreateUserFn      func(ctx context.Context, user domain.User) (int64, error)
	GetUserByIDFn     func(ctx context.Context, id int64) (*domain.User, error)
	GetAllUsersFn     func(ctx context.Context) ([]domain.User, error)
	UpdateUserFn      func(ctx context.Context, id int64, user domain.User) error
	DeleteUserFn      func(ctx context.Context, id int64) error
	GetSubscriptionFn func(ctx context.Context, id int64) (*service.SubscriptionView, error)
}

// The methods just forward to the function fields above.
func (m *MockUserService) CreateUser(ctx context.Context, user domain.User) (int64, error) {
	return m.CreateUserFn(ctx, user)
}

func (m *MockUserService) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return m.GetUserByIDFn(ctx, id)
}

func (m *MockUserService) GetAllUsers(ctx context.Context) ([]domain.User, error) {
	return m.GetAllUsersFn(ctx)
}

func (m *MockUserService) UpdateUser(ctx context.Context, id int64, user domain.User) error {
	return m.UpdateUserFn(ctx, id, user)
}

func (m *MockUserService) DeleteUser(ctx context.Context, id int64) error {
	return m.DeleteUserFn(ctx, id)
}

func (m *MockUserService) GetSubscription(ctx context.Context, id int64) (*service.SubscriptionView, error) {
	return m.GetSubscriptionFn(ctx, id)
}

// serve sends one request through the router and records the response.
func serve(router http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

// errorMessage decodes the {"error": ...} body written by respondWithError.
func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body["error"]
}

// --- User handler tests ---

func TestUserHandler_GetUserByID(t *testing.T) {
	t.Run("success returns the user and 200", func(t *testing.T) {
		// Arrange
		mockService := &MockUserService{
			GetUserByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
				// The service finds user 1
				assert.Equal(t, int64(1), id)
				return &domain.User{ID: 1, Name: "Test", Email: "test@mealmuse.app"}, nil
			},
		}
		// chi needs the router to resolve {id}
		router := chi.NewRouter()
		router.Mount("/users", NewUserHandler(mockService).Routes())

		// Act
		rr := serve(router, "GET", "/users/1", nil)

		// Assert
		assert.Equal(t, http.StatusOK, rr.Code)
		var got domain.User
		assert.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got)) // body must be valid JSON
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, "Test", got.Name)
	})

	t.Run("missing user returns 404", func(t *testing.T) {
		// Arrange
		mockService := &MockUserService{
			GetUserByIDFn: func(ctx context.Context, id int64) (*domain.User, error) {
				// The service does not find the user
				return nil, service.ErrUserNotFound
			},
		}
		router := chi.NewRouter()
		router.Mount("/users", NewUserHandler(mockService).Routes())

		// Act
		rr := serve(router, "GET", "/users/999", nil)

		// Assert
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("non numeric id returns 400", func(t *testing.T) {
		// The service is never reached, so the mock stays empty.
		router := chi.NewRouter()
		router.Mount("/users", NewUserHandler(&MockUserService{}).Routes())

		rr := serve(router, "GET", "/users/abc", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUserHandler_CreateUser(t *testing.T) {
	t.Run("success returns 201 with the new id", func(t *testing.T) {
		// Arrange
		toCreate := domain.User{Name: "New User", Email: "new@mealmuse.app"}
		mockService := &MockUserService{
			CreateUserFn: func(ctx context.Context, user domain.User) (int64, error) {
				// The service stores the user under ID 5
				assert.Equal(t, toCreate.Name, user.Name)
				return 5, nil
			},
		}
		handler := NewUserHandler(mockService)

		// Encode the struct as the request body
		body, _ := json.Marshal(toCreate)
		req := httptest.NewRequest("POST", "/users", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()

		// Act
		handler.CreateUser(rr, req)

		// Assert
		assert.Equal(t, http.StatusCreated, rr.Code)
		var got domain.User
		json.Unmarshal(rr.Body.Bytes(), &got)
		assert.Equal(t, int64(5), got.ID)
		assert.Equal(t, toCreate.Name, got.Name)
		assert.Equal(t, domain.TierFree, got.Subscription.Tier) // new accounts start free
	})

	// Each service error maps to its own status code.
	testCases := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"invalid data", service.ErrInvalidData, http.StatusBadRequest},
		{"duplicate email", service.ErrEmailTaken, http.StatusConflict},
		{"database failure", errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := &MockUserService{
				CreateUserFn: func(ctx context.Context, user domain.User) (int64, error) {
					return 0, tc.err
				},
			}
			body, _ := json.Marshal(domain.User{Name: "x", Email: "x@mealmuse.app"})
			req := httptest.NewRequest("POST", "/users", bytes.NewBuffer(body))
			rr := httptest.NewRecorder()

			NewUserHandler(mockService).CreateUser(rr, req)
			assert.Equal(t, tc.wantCode, rr.Code)
		})
	}

	t.Run("malformed body returns 400", func(t *testing.T) {
		// Decoding fails before the service is called
		req := httptest.NewRequest("POST", "/users", bytes.NewBufferString("{not json"))
		rr := httptest.NewRecorder()
		NewUserHandler(&MockUserService{}).CreateUser(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestUserHandler_UpdateAndDelete(t *testing.T) {
	// Arrange: record which IDs reached the service
	var updated, deleted int64
	mockService := &MockUserService{
		UpdateUserFn: func(ctx context.Context, id int64, user domain.User) error {
			updated = id
			return nil
		},
		DeleteUserFn: func(ctx context.Context, id int64) error {
			deleted = id
			if id == 404 {
				return service.ErrUserNotFound
			}
			return nil
		},
	}
	router := chi.NewRouter()
	router.Mount("/users", NewUserHandler(mockService).Routes())

	// Act + Assert: update
	body, _ := json.Marshal(domain.User{Name: "Renamed", Email: "r@mealmuse.app"})
	rr := serve(router, "PUT", "/users/7", body)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, int64(7), updated)

	// Act + Assert: delete
	rr = serve(router, "DELETE", "/users/8", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, int64(8), deleted)

	// Deleting an unknown user is a 404
	rr = serve(router, "DELETE", "/users/404", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUserHandler_GetSubscription(t *testing.T) {
	// Arrange
	claimedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mockService := &MockUserService{
		GetSubscriptionFn: func(ctx context.Context, id int64) (*service.SubscriptionView, error) {
			return &service.SubscriptionView{
				Subscription: domain.Subscription{
					Tier:             domain.TierPremium,
					Status:           domain.StatusActive,
					StripeCustomerID: "cus_secret",
				},
				IsPremium:         true,
				EarlyAdopter:      true,
				EarlyAdopterSince: &claimedAt,
			}, nil
		},
	}
	router := chi.NewRouter()
	router.Mount("/users", NewUserHandler(mockService).Routes())

	// Act
	rr := serve(router, "GET", "/users/1/subscription", nil)

	// Assert
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "premium", body["tier"])
	assert.Equal(t, true, body["isPremium"])
	assert.Equal(t, "2026-03-01T12:00:00Z", body["earlyAdopterSince"])
	assert.NotContains(t, rr.Body.String(), "cus_secret") // Stripe ids stay internal
}
