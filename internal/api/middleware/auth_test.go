package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/voicenote-api/internal/service/auth"
)

func authedProbe(t *testing.T) (http.Handler, *uuid.UUID) {
	t.Helper()
	var seenUserID uuid.UUID
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserID(r)
		require.True(t, ok)
		seenUserID = userID
		w.WriteHeader(http.StatusOK)
	})
	return handler, &seenUserID
}

func TestAuthenticateBearerHeader(t *testing.T) {
	mock := auth.NewMockJWTService()
	middleware := NewAuthMiddleware(mock)
	probe, seenUserID := authedProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	rec := httptest.NewRecorder()

	middleware.Authenticate(probe).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mock.Claims.UserID, *seenUserID)
}

func TestAuthenticateTokenQueryParam(t *testing.T) {
	mock := auth.NewMockJWTService()
	middleware := NewAuthMiddleware(mock)
	probe, seenUserID := authedProbe(t)

	// WebSocket clients cannot set headers, so the token rides the URL.
	req := httptest.NewRequest(http.MethodGet, "/api/ws/notes/x/audio?token=some-token", nil)
	rec := httptest.NewRecorder()

	middleware.Authenticate(probe).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mock.Claims.UserID, *seenUserID)
}

func TestAuthenticateHeaderTakesPrecedence(t *testing.T) {
	mock := auth.NewMockJWTService()
	var validated string
	mock.ValidateTokenFunc = func(ctx context.Context, token string) (*auth.Claims, error) {
		validated = token
		return mock.Claims, nil
	}
	middleware := NewAuthMiddleware(mock)
	probe, _ := authedProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/api/notes?token=query-token", nil)
	req.Header.Set("Authorization", "Bearer header-token")
	rec := httptest.NewRecorder()

	middleware.Authenticate(probe).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "header-token", validated)
}

func TestAuthenticateCookieFallback(t *testing.T) {
	mock := auth.NewMockJWTService()
	middleware := NewAuthMiddleware(mock)
	probe, seenUserID := authedProbe(t)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "cookie-token"})
	rec := httptest.NewRecorder()

	middleware.Authenticate(probe).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mock.Claims.UserID, *seenUserID)
}

func TestAuthenticateMissingToken(t *testing.T) {
	middleware := NewAuthMiddleware(auth.NewMockJWTService())

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	rec := httptest.NewRecorder()

	middleware.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run without a token")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticateMalformedHeader(t *testing.T) {
	middleware := NewAuthMiddleware(auth.NewMockJWTService())

	for _, header := range []string{"some-token", "Basic dXNlcg==", "Bearer a b"} {
		req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()

		middleware.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatalf("handler should not run with header %q", header)
		})).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	mock := auth.NewMockJWTService()
	mock.ValidationError = auth.ErrInvalidToken
	middleware := NewAuthMiddleware(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	rec := httptest.NewRecorder()

	middleware.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with an invalid token")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token")
}

func TestAuthenticateExpiredToken(t *testing.T) {
	mock := auth.NewMockJWTService()
	mock.ValidationError = auth.ErrExpiredToken
	middleware := NewAuthMiddleware(mock)

	req := httptest.NewRequest(http.MethodGet, "/api/notes?token=stale", nil)
	rec := httptest.NewRecorder()

	middleware.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run with an expired token")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token expired")
}
