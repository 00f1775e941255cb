package auth

import (
	"context"
	"testing"
	"time"

	"github.com/agentsphere/agentsphere-api/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testManager(expiry time.Duration) *JWTManager {
	return NewJWTManager(JWTConfig{Secret: "test-secret", Expiry: expiry, Issuer: "agentsphere-test"})
}

func TestGenerateAndValidateAccessToken(t *testing.T) {
	m := testManager(time.Hour)

	token, jti, err := m.GenerateAccessToken(7, "dana@example.com", 3, 2)
	require.NoError(t, err)
	require.NotEmpty(t, jti)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, uint(3), claims.OrganizationID)
	assert.Equal(t, 2, claims.TokenVersion)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, jti, claims.ID)
}

func TestValidateTokenRejects(t *testing.T) {
	token, _, err := testManager(time.Hour).GenerateAccessToken(1, "a@example.com", 1, 0)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager(JWTConfig{Secret: "other", Issuer: "agentsphere-test"})
		_, err := other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTManager(JWTConfig{Secret: "test-secret", Issuer: "someone-else"})
		_, err := other.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := testManager(time.Hour).ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		m := testManager(time.Nanosecond)
		expired, _, err := m.GenerateAccessToken(1, "a@example.com", 1, 0)
		require.NoError(t, err)
		_, err = m.ValidateToken(expired)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})
}

func TestBlacklist(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&model.Organization{}, &model.User{}, &model.JWTTokenBlacklist{}))

	org := model.Organization{Name: "Acme"}
	require.NoError(t, db.Create(&org).Error)
	user := model.User{Email: "dana@example.com", Name: "Dana", OrganizationID: org.ID}
	require.NoError(t, db.Create(&user).Error)

	ctx := context.Background()
	svc := NewBlacklistService(db)

	revoked, err := svc.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, svc.RevokeToken(ctx, "jti-1", user.ID, time.Now().Add(time.Hour), "logout"))
	require.NoError(t, svc.RevokeToken(ctx, "jti-2", user.ID, time.Now().Add(-time.Hour), "logout"))

	revoked, err = svc.IsTokenRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	// an expired entry no longer matters
	revoked, err = svc.IsTokenRevoked(ctx, "jti-2")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, svc.RevokeAllUserTokens(ctx, user.ID))
	require.NoError(t, db.First(&user, user.ID).Error)
	assert.Equal(t, 1, user.TokenVersion)
}
