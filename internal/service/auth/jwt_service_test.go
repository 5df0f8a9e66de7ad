package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/voicenote-api/internal/config"
)

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:            "0123456789abcdef0123456789abcdef",
		TokenLifetimeMinutes: 30,
	}
}

func TestNewJWTServiceRejectsShortSecret(t *testing.T) {
	cfg := testAuthConfig()
	cfg.JWTSecret = "too-short"

	_, err := NewJWTService(cfg)
	assert.Error(t, err)
}

func TestGenerateAndValidateToken(t *testing.T) {
	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	userID := uuid.New()
	token, err := svc.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "access", claims.TokenType)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt, time.Minute)
}

func TestValidateTokenExpired(t *testing.T) {
	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	impl := svc.(*hmacJWTService)
	past := time.Now().Add(-2 * time.Hour)
	impl.timeFunc = func() time.Time { return past }

	token, err := svc.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	// Validation happens at real time, well past the lifetime plus skew.
	impl.timeFunc = time.Now
	_, err = svc.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	token, err := svc.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	otherCfg := testAuthConfig()
	otherCfg.JWTSecret = "ffffffffffffffffffffffffffffffff"
	other, err := NewJWTService(otherCfg)
	require.NoError(t, err)

	_, err = other.ValidateToken(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenGarbage(t *testing.T) {
	svc, err := NewJWTService(testAuthConfig())
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := svc.ValidateToken(context.Background(), token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestDefaultTokenLifetime(t *testing.T) {
	cfg := testAuthConfig()
	cfg.TokenLifetimeMinutes = 0

	svc, err := NewJWTService(cfg)
	require.NoError(t, err)

	token, err := svc.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, time.Minute)
}
