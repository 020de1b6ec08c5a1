package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tendant/simple-media/pkg/simplemedia"
)

// RouterConfig holds everything NewRouter mounts
type RouterConfig struct {
	Auth     *simplemedia.AuthService
	Content  *simplemedia.ContentService
	Delivery *simplemedia.DeliveryResolver

	// Blobs serves presigned URLs of the memory and fs backends under /blobs/*.
	Blobs http.Handler

	LoginLimiter Limiter
	// ClientIP resolves client addresses for logging and login throttling.
	// Nil trusts no proxy.
	ClientIP *ClientIPResolver

	HealthChecks   map[string]simplemedia.Pinger
	AllowedOrigins []string
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// NewRouter builds the HTTP API
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	clientIP := cfg.ClientIP
	if clientIP == nil {
		clientIP = &ClientIPResolver{}
	}

	authHandler := NewAuthHandler(cfg.Auth, cfg.LoginLimiter, logger)
	contentHandler := NewContentHandler(cfg.Content, cfg.Delivery, cfg.Auth, cfg.MaxUploadBytes, logger)
	healthHandler := NewHealthHandler(cfg.HealthChecks, logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(clientIP.Middleware)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "Range"},
		ExposedHeaders: []string{"Content-Length", "Content-Range", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/health/detailed", healthHandler.Detailed)

	r.Mount("/auth", authHandler.Routes())
	r.Mount("/content", contentHandler.Routes())
	if cfg.Blobs != nil {
		r.Handle("/blobs/*", cfg.Blobs)
	}

	return r
}
