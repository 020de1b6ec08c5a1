package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/api"
	"github.com/tendant/simple-media/pkg/simplemedia/events"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/presigned"
	"github.com/tendant/simple-media/pkg/simplemedia/ratelimit"
	"github.com/tendant/simple-media/pkg/simplemedia/reconcile"
	memoryrepo "github.com/tendant/simple-media/pkg/simplemedia/repo/memory"
	postgresrepo "github.com/tendant/simple-media/pkg/simplemedia/repo/postgres"
	fsstorage "github.com/tendant/simple-media/pkg/simplemedia/storage/fs"
	memorystorage "github.com/tendant/simple-media/pkg/simplemedia/storage/memory"
	miniostorage "github.com/tendant/simple-media/pkg/simplemedia/storage/minio"
	s3storage "github.com/tendant/simple-media/pkg/simplemedia/storage/s3"
)

// repository is what both repository implementations provide
type repository interface {
	simplemedia.UserRepository
	simplemedia.ContentRepository
	simplemedia.Pinger
}

// App is the assembled service
type App struct {
	Handler  http.Handler
	Auth     *simplemedia.AuthService
	Content  *simplemedia.ContentService
	Delivery *simplemedia.DeliveryResolver
	Gateway  *simplemedia.Gateway
	// Sweeper is nil when disabled
	Sweeper *reconcile.Sweeper

	closers []func() error
}

// Close releases connections opened by Build, in reverse order
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// pingFunc adapts a function to simplemedia.Pinger
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Build connects every configured dependency and wires the services and
// HTTP router. On error, anything already opened is closed.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	health := map[string]simplemedia.Pinger{}

	repo, err := buildRepository(ctx, cfg, app)
	if err != nil {
		return nil, err
	}
	health["database"] = repo

	signer := presigned.New(
		presigned.WithSecretKey(cfg.signingSecret()),
		presigned.WithBaseURL(cfg.Server.PublicURL),
		presigned.WithDefaultExpiration(cfg.Delivery.URLTTL),
	)
	store, err := buildStorageBackend(ctx, cfg, signer)
	if err != nil {
		return nil, err
	}
	app.Gateway = simplemedia.NewGateway(cfg.Storage.Backend, store)
	health["storage"] = app.Gateway

	var blobs http.Handler
	if cfg.Storage.Backend == "memory" || cfg.Storage.Backend == "fs" {
		blobs = presigned.NewHandler(signer, store, logger)
	}

	var (
		ledger  reconcile.Ledger = reconcile.NewMemoryLedger()
		limiter api.Limiter
	)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		app.onClose(client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		health["redis"] = pingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })

		if ledger, err = reconcile.NewRedisLedger(client, cfg.Redis.LedgerKey); err != nil {
			return nil, err
		}
		if cfg.Auth.LoginRateLimit > 0 {
			fw, err := ratelimit.NewFixedWindowLimiter(client, "", cfg.Auth.LoginRateLimit, cfg.Auth.LoginRateWindow)
			if err != nil {
				return nil, err
			}
			limiter = fw
		}
	} else {
		logger.Info("Redis not configured, orphans are tracked in memory and logins are not rate limited")
	}

	var sink simplemedia.EventSink = simplemedia.NewLogEventSink(logger)
	if cfg.AMQP.URL != "" {
		amqpSink, err := events.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		app.onClose(amqpSink.Close)
		sink = amqpSink
	}

	tokens, err := simplemedia.NewTokenIssuer([]byte(cfg.Auth.TokenSecret),
		simplemedia.WithIssuer(cfg.Auth.TokenIssuer),
		simplemedia.WithTokenTTL(cfg.Auth.TokenTTL),
	)
	if err != nil {
		return nil, err
	}

	app.Auth, err = simplemedia.NewAuthService(repo, tokens,
		simplemedia.WithPasswordPolicy(cfg.PasswordPolicy()),
		simplemedia.WithBcryptCost(cfg.Auth.BcryptCost),
		simplemedia.WithAuthLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	keys := objectkey.New()
	if cfg.Storage.KeyPrefix != "" {
		keys = objectkey.NewWithPrefix(cfg.Storage.KeyPrefix)
	}
	app.Content, err = simplemedia.NewContentService(repo, app.Gateway,
		simplemedia.WithKeyGenerator(keys),
		simplemedia.WithOrphanRecorder(ledger),
		simplemedia.WithEventSink(sink),
		simplemedia.WithThumbnailHosts(cfg.Delivery.ThumbnailHosts...),
		simplemedia.WithUploadTimeout(cfg.Server.UploadTimeout),
		simplemedia.WithContentLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	app.Delivery = simplemedia.NewDeliveryResolver(repo, app.Gateway,
		simplemedia.WithDeliveryTTL(cfg.Delivery.URLTTL),
		simplemedia.WithDeliveryLogger(logger),
	)

	if cfg.Sweeper.Enabled {
		app.Sweeper = reconcile.NewSweeper(ledger, app.Gateway,
			reconcile.WithInterval(cfg.Sweeper.Interval),
			reconcile.WithMaxAttempts(cfg.Sweeper.MaxAttempts),
			reconcile.WithLogger(logger),
		)
	}

	clientIP, err := api.NewClientIPResolver(cfg.Auth.TrustedProxies)
	if err != nil {
		return nil, err
	}

	app.Handler = api.NewRouter(api.RouterConfig{
		Auth:           app.Auth,
		Content:        app.Content,
		Delivery:       app.Delivery,
		Blobs:          blobs,
		LoginLimiter:   limiter,
		ClientIP:       clientIP,
		HealthChecks:   health,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Logger:         logger,
	})

	return app, nil
}

func buildRepository(ctx context.Context, cfg *Config, app *App) (repository, error) {
	if cfg.DatabaseType() == "memory" {
		return memoryrepo.New(), nil
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if schema := cfg.Database.Schema; schema != "" {
		poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, "SET search_path TO "+pgx.Identifier{schema}.Sanitize())
			return err
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	app.onClose(func() error { pool.Close(); return nil })

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := postgresrepo.Migrate(ctx, pool); err != nil {
			return nil, err
		}
	}
	return postgresrepo.NewWithPool(pool), nil
}

func buildStorageBackend(ctx context.Context, cfg *Config, signer *presigned.Signer) (simplemedia.BlobStore, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memorystorage.New(signer), nil
	case "fs":
		return fsstorage.New(fsstorage.Config{BaseDir: cfg.Storage.FSBaseDir}, signer)
	case "s3":
		s3 := cfg.Storage.S3
		return s3storage.New(ctx, s3storage.Config{
			Region:                 s3.Region,
			Bucket:                 s3.Bucket,
			AccessKeyID:            s3.AccessKeyID,
			SecretAccessKey:        s3.SecretAccessKey,
			Endpoint:               s3.Endpoint,
			UsePathStyle:           s3.UsePathStyle,
			EnableSSE:              s3.EnableSSE,
			SSEAlgorithm:           s3.SSEAlgorithm,
			SSEKMSKeyID:            s3.SSEKMSKeyID,
			CreateBucketIfNotExist: s3.CreateBucketIfNotExist,
		})
	case "minio":
		m := cfg.Storage.MinIO
		return miniostorage.New(ctx, miniostorage.Config{
			Endpoint:               m.Endpoint,
			AccessKeyID:            m.AccessKeyID,
			SecretAccessKey:        m.SecretAccessKey,
			Bucket:                 m.Bucket,
			Region:                 m.Region,
			UseSSL:                 m.UseSSL,
			CreateBucketIfNotExist: m.CreateBucketIfNotExist,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}
