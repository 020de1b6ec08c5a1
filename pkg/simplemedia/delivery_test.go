package simplemedia_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/presigned"
	"github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func TestDeliveryResolver_Resolve(t *testing.T) {
	ctx := context.Background()
	signer := presigned.New(presigned.WithSecretKey(string(testSecret)))
	store := memorystorage.New(signer)
	repo := memory.New()
	gw := simplemedia.NewGateway("memory", store)

	svc, err := simplemedia.NewContentService(repo, gw)
	require.NoError(t, err)
	content, err := svc.Create(ctx, videoRequest(uuid.New()))
	require.NoError(t, err)

	resolver := simplemedia.NewDeliveryResolver(repo, gw, simplemedia.WithDeliveryTTL(2*time.Minute))
	assert.Equal(t, 2*time.Minute, resolver.TTL())

	before := time.Now()
	desc, err := resolver.Resolve(ctx, content.ID)
	require.NoError(t, err)
	assert.Equal(t, content.ID, desc.ContentID)
	assert.Equal(t, simplemedia.ContentTypeVideo, desc.ContentType)
	assert.Equal(t, 120.0, desc.Duration)
	assert.Equal(t, "video/mp4", desc.MimeType)
	assert.WithinDuration(t, before.Add(2*time.Minute), desc.ExpiresAt, 2*time.Second)

	// The URL downloads the bytes through the blob handler
	rec := httptest.NewRecorder()
	presigned.NewHandler(signer, store, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, desc.URL, nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "video-bytes", rec.Body.String())

	_, err = resolver.Resolve(ctx, uuid.New())
	assert.ErrorIs(t, err, simplemedia.ErrContentNotFound)
}

func TestDeliveryResolver_MissingObject(t *testing.T) {
	ctx := context.Background()
	store := memorystorage.New(presigned.New(presigned.WithSecretKey(string(testSecret))))
	repo := memory.New()
	gw := simplemedia.NewGateway("memory", store)

	now := time.Now().UTC()
	content := &simplemedia.Content{
		ID: uuid.New(), OwnerID: uuid.New(), Title: "x", ContentType: simplemedia.ContentTypeAudio,
		StorageKey: "media/gone.mp3", Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.CreateContent(ctx, content))

	resolver := simplemedia.NewDeliveryResolver(repo, gw)
	_, err := resolver.Resolve(ctx, content.ID)
	assert.ErrorIs(t, err, simplemedia.ErrObjectNotFound)

	_, err = resolver.Open(ctx, content.ID)
	assert.ErrorIs(t, err, simplemedia.ErrNotFound)
}
