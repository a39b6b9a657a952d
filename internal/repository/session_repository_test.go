package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onchain-fund/onchain-trade/internal/model"
)

func TestSessionRepository_UpsertAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	session := &model.Session{
		WalletAddress: "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin",
		Token:         "jwt-token-1",
		UserID:        "user-1",
	}
	require.NoError(t, repo.Upsert(ctx, session))

	got, err := repo.GetByAddress(ctx, session.WalletAddress)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token-1", got.Token)
	assert.Equal(t, "user-1", got.UserID)

	// Same address again replaces token instead of inserting a second row
	session2 := &model.Session{
		WalletAddress: session.WalletAddress,
		Token:         "jwt-token-2",
		UserID:        "user-1",
	}
	require.NoError(t, repo.Upsert(ctx, session2))

	got, err = repo.GetByAddress(ctx, session.WalletAddress)
	require.NoError(t, err)
	assert.Equal(t, "jwt-token-2", got.Token)

	var count int64
	require.NoError(t, db.Model(&model.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSessionRepository_ClearToken(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)
	ctx := context.Background()

	session := &model.Session{
		WalletAddress: "4Nd1mYvNhJx7xGeWvG816bUx9EPjHmaT23yvVM2ZWbrr",
		Token:         "jwt-token",
		UserID:        "user-2",
	}
	require.NoError(t, repo.Upsert(ctx, session))
	require.NoError(t, repo.ClearToken(ctx, session.WalletAddress))

	got, err := repo.GetByAddress(ctx, session.WalletAddress)
	require.NoError(t, err)
	assert.Empty(t, got.Token)
	assert.Equal(t, "user-2", got.UserID)

	err = repo.ClearToken(ctx, "unknown-address")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepository_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepository(db)

	_, err := repo.GetByAddress(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
