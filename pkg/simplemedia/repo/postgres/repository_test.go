package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

func TestHandlePostgresError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind simplemedia.Kind
		is   error
	}{
		{
			name: "duplicate handle",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "users_handle_key"},
			kind: simplemedia.KindConflict,
			is:   simplemedia.ErrHandleTaken,
		},
		{
			name: "other unique violation",
			err:  &pgconn.PgError{Code: "23505", ConstraintName: "content_pkey"},
			kind: simplemedia.KindConflict,
			is:   simplemedia.ErrConflict,
		},
		{
			name: "missing table",
			err:  &pgconn.PgError{Code: "42P01"},
			kind: simplemedia.KindPersistence,
			is:   simplemedia.ErrPersistence,
		},
		{
			name: "connection failure",
			err:  errors.New("connection refused"),
			kind: simplemedia.KindPersistence,
			is:   simplemedia.ErrPersistence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := handlePostgresError("op", tt.err)
			assert.Equal(t, tt.kind, simplemedia.KindOf(got))
			assert.ErrorIs(t, got, tt.is)
		})
	}
}

// setupTestDB connects to SIMPLE_MEDIA_TEST_DATABASE_URL and applies migrations
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("SIMPLE_MEDIA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SIMPLE_MEDIA_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	return pool
}

func TestRepository_Integration(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewWithPool(pool)
	ctx := context.Background()

	handle := "it-" + uuid.NewString()[:8]
	user := &simplemedia.User{ID: uuid.New(), Handle: handle, PasswordHash: "hash", CreatedAt: time.Now().UTC()}
	require.NoError(t, repo.CreateUser(ctx, user))

	err := repo.CreateUser(ctx, &simplemedia.User{ID: uuid.New(), Handle: handle, PasswordHash: "x", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, simplemedia.ErrHandleTaken)

	now := time.Now().UTC().Truncate(time.Microsecond)
	content := &simplemedia.Content{
		ID:          uuid.New(),
		OwnerID:     user.ID,
		Title:       "Ep1",
		ContentType: simplemedia.ContentTypeVideo,
		Duration:    120,
		StorageKey:  "media/x.mp4",
		MimeType:    "video/mp4",
		Size:        10,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, repo.CreateContent(ctx, content))

	got, err := repo.GetContent(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, simplemedia.ContentTypeVideo, got.ContentType)
	assert.Equal(t, 120.0, got.Duration)

	got.Title = "Ep1 (remastered)"
	require.NoError(t, repo.UpdateContent(ctx, got, 1))
	assert.Equal(t, 2, got.Version)
	assert.ErrorIs(t, repo.UpdateContent(ctx, got, 1), simplemedia.ErrVersionConflict)

	list, err := repo.ListContent(ctx, simplemedia.ListContentRequest{OwnerID: &user.ID, Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 1)

	removed, err := repo.DeleteContent(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, "media/x.mp4", removed.StorageKey)

	_, err = repo.DeleteContent(ctx, content.ID)
	assert.ErrorIs(t, err, simplemedia.ErrContentNotFound)
	assert.ErrorIs(t, repo.UpdateContent(ctx, got, 2), simplemedia.ErrContentNotFound)
}
