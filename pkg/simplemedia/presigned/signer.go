// Package presigned signs and serves time-limited object URLs for blob
// stores that cannot sign URLs themselves (memory and filesystem).
package presigned

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates HMAC-signed URLs
type Signer struct {
	secretKey         []byte
	defaultExpiration time.Duration
	urlPattern        string
	baseURL           string
	now               func() time.Time
}

// New creates a new Signer with the given options
func New(opts ...Option) *Signer {
	s := &Signer{
		defaultExpiration: 15 * time.Minute,
		urlPattern:        "/blobs/{key}",
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// IsEnabled returns true if a secret key is configured
func (s *Signer) IsEnabled() bool {
	return len(s.secretKey) > 0
}

// SignKey returns a GET URL for object key valid for expiresIn. Path segments
// are escaped in the URL; the signature covers the unescaped path.
//
// Example:
//
//	url, err := signer.SignKey("media/u/video/x.mp4", 15*time.Minute)
//	// Returns: http://host/blobs/media/u/video/x.mp4?signature=ab12...&expires=1696789012
func (s *Signer) SignKey(key string, expiresIn time.Duration) (string, error) {
	if len(s.secretKey) == 0 {
		return "", ErrNoSecretKey
	}
	if expiresIn <= 0 {
		expiresIn = s.defaultExpiration
	}

	prefix, suffix, err := s.patternParts()
	if err != nil {
		return "", err
	}

	// Unix truncates, so the URL never outlives expiresIn.
	expiresAt := s.now().Add(expiresIn).Unix()
	signature := s.generateSignature(s.createPayload(http.MethodGet, prefix+key+suffix, expiresAt))

	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	escaped := prefix + strings.Join(segments, "/") + suffix

	return fmt.Sprintf("%s%s?signature=%s&expires=%d", s.baseURL, escaped, signature, expiresAt), nil
}

// ValidateRequest validates the signature and expiration of an HTTP request
func (s *Signer) ValidateRequest(r *http.Request) error {
	if len(s.secretKey) == 0 {
		return ErrNoSecretKey
	}

	query := r.URL.Query()
	signature := query.Get("signature")
	expiresStr := query.Get("expires")

	if signature == "" {
		return ErrMissingSignature
	}
	if expiresStr == "" {
		return ErrMissingExpiration
	}

	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpiration, err)
	}

	method := r.Method
	if method == http.MethodHead {
		method = http.MethodGet
	}
	return s.Validate(method, r.URL.Path, signature, expiresAt)
}

// Validate checks a signature. A URL is expired from its expires instant on.
func (s *Signer) Validate(method, path, signature string, expiresAt int64) error {
	if s.now().Unix() >= expiresAt {
		return ErrExpired
	}

	expectedSignature := s.generateSignature(s.createPayload(method, path, expiresAt))

	if !hmac.Equal([]byte(signature), []byte(expectedSignature)) {
		return ErrInvalidSignature
	}

	return nil
}

// ExtractObjectKey extracts the object key from a URL path based on the configured URL pattern
func (s *Signer) ExtractObjectKey(path string) (string, error) {
	prefix, suffix, err := s.patternParts()
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return "", ErrPathMismatch
	}
	key := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	if key == "" {
		return "", ErrPathMismatch
	}
	return key, nil
}

func (s *Signer) patternParts() (string, string, error) {
	const placeholder = "{key}"
	idx := strings.Index(s.urlPattern, placeholder)
	if idx == -1 {
		return "", "", fmt.Errorf("URL pattern %q does not contain {key} placeholder", s.urlPattern)
	}
	return s.urlPattern[:idx], s.urlPattern[idx+len(placeholder):], nil
}

// createPayload creates the signature payload: METHOD|PATH|EXPIRES
func (s *Signer) createPayload(method, path string, expiresAt int64) string {
	return fmt.Sprintf("%s|%s|%d", method, path, expiresAt)
}

func (s *Signer) generateSignature(payload string) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}
