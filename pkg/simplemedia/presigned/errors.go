package presigned

import (
	"errors"
	"net/http"
)

var (
	ErrNoSecretKey       = errors.New("presigned: no secret key configured")
	ErrMissingSignature  = errors.New("presigned: missing signature")
	ErrMissingExpiration = errors.New("presigned: missing expires")
	ErrInvalidExpiration = errors.New("presigned: malformed expires")
	ErrExpired           = errors.New("presigned: url expired")
	ErrInvalidSignature  = errors.New("presigned: signature mismatch")
	ErrPathMismatch      = errors.New("presigned: path outside url pattern")
)

// rejectionStatus maps a ValidateRequest error to a response status.
// An unsigned request is 401; a signed one that fails checks is 403.
func rejectionStatus(err error) int {
	if errors.Is(err, ErrMissingSignature) || errors.Is(err, ErrMissingExpiration) {
		return http.StatusUnauthorized
	}
	return http.StatusForbidden
}
