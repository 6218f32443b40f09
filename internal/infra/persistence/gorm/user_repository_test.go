package gormpersistence_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"presence-chat/internal/domain"
	gormpersistence "presence-chat/internal/infra/persistence/gorm"
	"presence-chat/internal/repository"
)

func TestGormUserRepository_CreateAndFind(t *testing.T) {
	repo := gormpersistence.NewGormUserRepository(newTestDB(t))
	ctx := context.Background()

	user := &domain.User{Username: "alice", Password: "hash", Email: "alice@example.com", Age: 30}
	require.NoError(t, repo.Create(ctx, user))
	assert.NotZero(t, user.ID)

	found, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)
	assert.Equal(t, 30, found.Age)
}

func TestGormUserRepository_FindByEmail(t *testing.T) {
	repo := gormpersistence.NewGormUserRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.User{Username: "carol", Password: "h", Email: "carol@example.com"}))

	found, err := repo.FindByEmail(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Equal(t, "carol", found.Username)

	_, err = repo.FindByEmail(ctx, "nobody@example.com")
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}

func TestGormUserRepository_FindMissing(t *testing.T) {
	repo := gormpersistence.NewGormUserRepository(newTestDB(t))

	_, err := repo.FindByUsername(context.Background(), "nobody")
	assert.True(t, errors.Is(err, repository.ErrUserNotFound))
}

func TestGormUserRepository_DuplicateUsername(t *testing.T) {
	repo := gormpersistence.NewGormUserRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.User{Username: "bob", Password: "h", Email: "bob@example.com"}))
	err := repo.Create(ctx, &domain.User{Username: "bob", Password: "h", Email: "other@example.com"})
	assert.True(t, errors.Is(err, repository.ErrDuplicateEntry))
}
