package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

const maxCredentialBody = 4 << 10

// Limiter decides whether another attempt for key is allowed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Window() time.Duration
}

// CredentialsRequest is the body of register and token requests
type CredentialsRequest struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

// RegisterResponse is returned after a successful registration
type RegisterResponse struct {
	UserID string `json:"userId"`
}

// TokenResponse carries an issued access token
type TokenResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// AuthHandler serves registration and login
type AuthHandler struct {
	auth    *simplemedia.AuthService
	limiter Limiter
	logger  *slog.Logger
}

// NewAuthHandler creates an AuthHandler. limiter may be nil to disable login throttling.
func NewAuthHandler(auth *simplemedia.AuthService, limiter Limiter, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: auth, limiter: limiter, logger: logger}
}

// Routes returns the routes for auth
func (h *AuthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/token", h.Token)
	return r
}

// Register creates an account
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	user, err := h.auth.Register(r.Context(), req.Handle, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, RegisterResponse{UserID: user.ID.String()})
}

// Token exchanges credentials for an access token. Attempts are throttled
// per client address and per handle.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCredentials(w, r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	keys := []string{
		"login:ip:" + clientIP(r),
		"login:handle:" + simplemedia.NormalizeHandle(req.Handle),
	}
	for _, key := range keys {
		if !h.allowLogin(w, r, key) {
			return
		}
	}

	token, err := h.auth.Authenticate(r.Context(), req.Handle, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	render.JSON(w, r, TokenResponse{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
		ExpiresAt:   token.ExpiresAt,
	})
}

func decodeCredentials(w http.ResponseWriter, r *http.Request) (*CredentialsRequest, error) {
	var req CredentialsRequest
	body := http.MaxBytesReader(w, r.Body, maxCredentialBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, badRequest("body", "must be a JSON object with handle and password")
	}
	return &req, nil
}

// allowLogin reports whether another login attempt under key may proceed
// and writes a 429 when it may not. The limiter fails open.
func (h *AuthHandler) allowLogin(w http.ResponseWriter, r *http.Request, key string) bool {
	if h.limiter == nil {
		return true
	}
	allowed, err := h.limiter.Allow(r.Context(), key)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Login rate limiter unavailable", "error", err)
		return true
	}
	if !allowed {
		h.logger.WarnContext(r.Context(), "Login throttled", "key", key)
		w.Header().Set("Retry-After", strconv.Itoa(int(h.limiter.Window().Seconds())))
		writeErrorKind(w, r, http.StatusTooManyRequests, kindRateLimited, "too many login attempts")
		return false
	}
	return true
}

// clientIP expects ClientIPResolver.Middleware to have set RemoteAddr
func clientIP(r *http.Request) string {
	return remoteHost(r.RemoteAddr)
}
