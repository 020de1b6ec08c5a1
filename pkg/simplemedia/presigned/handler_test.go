package presigned_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/presigned"
	"github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
)

func TestHandler(t *testing.T) {
	signer := presigned.New(presigned.WithSecretKey("test-secret-key-that-is-32-bytes!"))
	store := memory.New(signer)
	var logs bytes.Buffer
	h := presigned.NewHandler(signer, store, slog.New(slog.NewTextHandler(&logs, nil)))

	data := []byte("0123456789")
	require.NoError(t, store.Upload(context.Background(), "media/a.mp4", bytes.NewReader(data), simplemedia.UploadParams{MimeType: "video/mp4", Size: 10}))
	signed, err := store.GetDownloadURL(context.Background(), "media/a.mp4", time.Minute)
	require.NoError(t, err)

	t.Run("full download", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed, nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
		assert.Equal(t, data, rec.Body.Bytes())
	})

	t.Run("range request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, signed, nil)
		req.Header.Set("Range", "bytes=2-4")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "234", rec.Body.String())
	})

	t.Run("unsigned", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/blobs/media/a.mp4", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, logs.String(), "Presigned URL rejected")
	})

	t.Run("tampered", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed+"0", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, signed, nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	t.Run("deleted object", func(t *testing.T) {
		require.NoError(t, store.Delete(context.Background(), "media/a.mp4"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, signed, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
