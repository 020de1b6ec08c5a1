package presigned

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignKeyRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }
	s := New(WithSecretKey("test-secret-key-that-is-32-bytes!"), WithClock(clock), WithBaseURL("http://localhost:8080"))

	signed, err := s.SignKey("media/u/video/a b.mp4", time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(signed)
	require.NoError(t, err)
	assert.Equal(t, "/blobs/media/u/video/a b.mp4", u.Path)
	assert.Contains(t, signed, "a%20b.mp4")

	req := httptest.NewRequest(http.MethodGet, u.RequestURI(), nil)
	require.NoError(t, s.ValidateRequest(req))

	head := httptest.NewRequest(http.MethodHead, u.RequestURI(), nil)
	assert.NoError(t, s.ValidateRequest(head))

	key, err := s.ExtractObjectKey(u.Path)
	require.NoError(t, err)
	assert.Equal(t, "media/u/video/a b.mp4", key)

	// Expired exactly at the expires instant
	now = now.Add(time.Minute)
	assert.ErrorIs(t, s.ValidateRequest(req), ErrExpired)
}

func TestValidateRequestRejects(t *testing.T) {
	s := New(WithSecretKey("test-secret-key-that-is-32-bytes!"))
	signed, err := s.SignKey("media/a.mp4", time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(signed)
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		method string
		want   error
		status int
	}{
		{"missing signature", "/blobs/media/a.mp4?expires=99999999999", http.MethodGet, ErrMissingSignature, http.StatusUnauthorized},
		{"missing expires", "/blobs/media/a.mp4?signature=abc", http.MethodGet, ErrMissingExpiration, http.StatusUnauthorized},
		{"bad expires", "/blobs/media/a.mp4?signature=abc&expires=soon", http.MethodGet, ErrInvalidExpiration, http.StatusForbidden},
		{"other key", "/blobs/media/b.mp4?" + u.RawQuery, http.MethodGet, ErrInvalidSignature, http.StatusForbidden},
		{"other method", u.RequestURI(), http.MethodDelete, ErrInvalidSignature, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.ValidateRequest(httptest.NewRequest(tt.method, tt.target, nil))
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.Equal(t, tt.status, rejectionStatus(err))
		})
	}

	unsigned := New()
	assert.False(t, unsigned.IsEnabled())
	_, err = unsigned.SignKey("k", time.Minute)
	assert.ErrorIs(t, err, ErrNoSecretKey)
}

func TestExtractObjectKeyPattern(t *testing.T) {
	s := New(WithURLPattern("/files/{key}/download"))

	key, err := s.ExtractObjectKey("/files/media/a.mp4/download")
	require.NoError(t, err)
	assert.Equal(t, "media/a.mp4", key)

	_, err = s.ExtractObjectKey("/blobs/media/a.mp4")
	assert.ErrorIs(t, err, ErrPathMismatch)

	bad := New(WithURLPattern("/files/"))
	_, err = bad.ExtractObjectKey("/files/x")
	assert.Error(t, err)
}
