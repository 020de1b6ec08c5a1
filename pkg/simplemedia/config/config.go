// Package config loads server settings from the environment (and an
// optional config file) and assembles the service from them.
package config

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/crypto/bcrypt"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/api"
)

// blobKeyLabel separates the derived blob URL key from the token secret
const blobKeyLabel = "simple-media blob-url v1"

// Config is the complete server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Delivery DeliveryConfig `yaml:"delivery" json:"delivery"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	AMQP     AMQPConfig     `yaml:"amqp" json:"amqp"`
	Sweeper  SweeperConfig  `yaml:"sweeper" json:"sweeper"`
}

type ServerConfig struct {
	Host           string        `yaml:"host" env:"HOST" env-default:"0.0.0.0"`
	Port           string        `yaml:"port" env:"PORT" env-default:"8080"`
	Environment    string        `yaml:"environment" env:"ENVIRONMENT" env-default:"development" env-description:"development or production; production logs JSON"`
	PublicURL      string        `yaml:"public_url" env:"PUBLIC_URL" env-description:"Scheme and host prepended to locally signed blob URLs"`
	AllowedOrigins []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-separator:","`
	MaxUploadBytes int64         `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES" env-default:"2147483648"`
	UploadTimeout  time.Duration `yaml:"upload_timeout" env:"UPLOAD_TIMEOUT" env-default:"10m"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace" env:"SHUTDOWN_GRACE" env-default:"15s"`
}

type DatabaseConfig struct {
	URL         string `yaml:"url" env:"DATABASE_URL" env-description:"Postgres URL; empty or \"memory\" keeps data in memory"`
	Schema      string `yaml:"schema" env:"DB_SCHEMA" env-description:"Optional search_path for every connection"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
}

type StorageConfig struct {
	Backend       string `yaml:"backend" env:"STORAGE_BACKEND" env-default:"memory" env-description:"memory, fs, s3 or minio"`
	SigningSecret string `yaml:"signing_secret" env:"STORAGE_SIGNING_SECRET" env-description:"HMAC key for memory and fs download URLs; derived from the token secret when empty"`
	FSBaseDir     string `yaml:"fs_base_dir" env:"FS_BASE_DIR" env-default:"./data/storage"`
	KeyPrefix     string `yaml:"key_prefix" env:"STORAGE_KEY_PREFIX"`

	S3    S3Config    `yaml:"s3"`
	MinIO MinIOConfig `yaml:"minio"`
}

type S3Config struct {
	Region                 string `yaml:"region" env:"AWS_S3_REGION" env-default:"us-east-1"`
	Bucket                 string `yaml:"bucket" env:"AWS_S3_BUCKET"`
	AccessKeyID            string `yaml:"access_key_id" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey        string `yaml:"secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	Endpoint               string `yaml:"endpoint" env:"AWS_S3_ENDPOINT"`
	UsePathStyle           bool   `yaml:"use_path_style" env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	EnableSSE              bool   `yaml:"enable_sse" env:"AWS_S3_ENABLE_SSE" env-default:"false"`
	SSEAlgorithm           string `yaml:"sse_algorithm" env:"AWS_S3_SSE_ALGORITHM" env-default:"AES256"`
	SSEKMSKeyID            string `yaml:"sse_kms_key_id" env:"AWS_S3_SSE_KMS_KEY_ID"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket" env:"AWS_S3_CREATE_BUCKET" env-default:"false"`
}

type MinIOConfig struct {
	Endpoint               string `yaml:"endpoint" env:"MINIO_ENDPOINT" env-default:"localhost:9000"`
	AccessKeyID            string `yaml:"access_key_id" env:"MINIO_ACCESS_KEY"`
	SecretAccessKey        string `yaml:"secret_access_key" env:"MINIO_SECRET_KEY"`
	Bucket                 string `yaml:"bucket" env:"MINIO_BUCKET" env-default:"media"`
	Region                 string `yaml:"region" env:"MINIO_REGION"`
	UseSSL                 bool   `yaml:"use_ssl" env:"MINIO_USE_SSL" env-default:"false"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket" env:"MINIO_CREATE_BUCKET" env-default:"true"`
}

type AuthConfig struct {
	TokenSecret     string        `yaml:"token_secret" env:"AUTH_TOKEN_SECRET" env-description:"HS256 signing key, at least 32 bytes"`
	TokenIssuer     string        `yaml:"token_issuer" env:"AUTH_TOKEN_ISSUER" env-default:"simple-media"`
	TokenTTL        time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"30m"`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"AUTH_BCRYPT_COST" env-default:"11"`
	PasswordMinLen  int           `yaml:"password_min_length" env:"AUTH_PASSWORD_MIN_LENGTH" env-default:"6"`
	PasswordUpper   bool          `yaml:"password_require_upper" env:"AUTH_PASSWORD_REQUIRE_UPPER" env-default:"false"`
	PasswordLower   bool          `yaml:"password_require_lower" env:"AUTH_PASSWORD_REQUIRE_LOWER" env-default:"false"`
	PasswordDigit   bool          `yaml:"password_require_digit" env:"AUTH_PASSWORD_REQUIRE_DIGIT" env-default:"true"`
	PasswordSymbol  bool          `yaml:"password_require_symbol" env:"AUTH_PASSWORD_REQUIRE_SYMBOL" env-default:"false"`
	LoginRateLimit  int           `yaml:"login_rate_limit" env:"AUTH_LOGIN_RATE_LIMIT" env-default:"10" env-description:"Login attempts per client per window; needs Redis"`
	LoginRateWindow time.Duration `yaml:"login_rate_window" env:"AUTH_LOGIN_RATE_WINDOW" env-default:"1m"`
	TrustedProxies  []string      `yaml:"trusted_proxies" env:"AUTH_TRUSTED_PROXIES" env-separator:"," env-description:"Proxy IPs or CIDRs whose X-Forwarded-For and X-Real-IP headers are believed"`
}

type DeliveryConfig struct {
	URLTTL         time.Duration `yaml:"url_ttl" env:"DELIVERY_URL_TTL" env-default:"15m"`
	ThumbnailHosts []string      `yaml:"thumbnail_hosts" env:"THUMBNAIL_HOSTS" env-separator:"," env-description:"Hosts trusted for external thumbnail URLs; \".example.com\" allows subdomains"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" env:"REDIS_ADDR" env-description:"Enables the shared orphan ledger and login rate limiting"`
	Password  string `yaml:"password" env:"REDIS_PASSWORD"`
	DB        int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	LedgerKey string `yaml:"ledger_key" env:"REDIS_ORPHAN_KEY" env-default:"simple-media:orphans"`
}

type AMQPConfig struct {
	URL      string `yaml:"url" env:"AMQP_URL" env-description:"Publishes content events when set"`
	Exchange string `yaml:"exchange" env:"AMQP_EXCHANGE" env-default:"simple-media.content"`
}

type SweeperConfig struct {
	Enabled     bool          `yaml:"enabled" env:"SWEEPER_ENABLED" env-default:"true"`
	Interval    time.Duration `yaml:"interval" env:"SWEEPER_INTERVAL" env-default:"1m"`
	MaxAttempts int           `yaml:"max_attempts" env:"SWEEPER_MAX_ATTEMPTS" env-default:"5"`
}

// Load reads the file named by CONFIG_PATH, if any, then the environment,
// and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Usage describes every environment variable
func Usage() string {
	var cfg Config
	desc, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return err.Error()
	}
	return desc
}

// DatabaseType is "memory" or "postgres", derived from the database URL
func (c *Config) DatabaseType() string {
	url := strings.TrimSpace(c.Database.URL)
	if url == "" || url == "memory" {
		return "memory"
	}
	return "postgres"
}

// Addr is the listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("port is required")
	}

	url := strings.TrimSpace(c.Database.URL)
	if c.DatabaseType() == "postgres" && !strings.HasPrefix(url, "postgres://") && !strings.HasPrefix(url, "postgresql://") {
		return fmt.Errorf("unsupported DATABASE_URL scheme: must be postgres:// or postgresql://")
	}

	if len(c.Auth.TokenSecret) < simplemedia.MinTokenSecretLength {
		return fmt.Errorf("AUTH_TOKEN_SECRET must be at least %d bytes", simplemedia.MinTokenSecretLength)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("AUTH_TOKEN_TTL must be positive")
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("AUTH_BCRYPT_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.Auth.PasswordMinLen < 1 {
		return errors.New("AUTH_PASSWORD_MIN_LENGTH must be at least 1")
	}
	if _, err := api.NewClientIPResolver(c.Auth.TrustedProxies); err != nil {
		return fmt.Errorf("AUTH_TRUSTED_PROXIES: %w", err)
	}
	if c.Delivery.URLTTL <= 0 {
		return errors.New("DELIVERY_URL_TTL must be positive")
	}
	if c.Server.UploadTimeout <= 0 {
		return errors.New("UPLOAD_TIMEOUT must be positive")
	}

	switch c.Storage.Backend {
	case "memory":
	case "fs":
		if c.Storage.FSBaseDir == "" {
			return errors.New("FS_BASE_DIR is required for the fs backend")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("AWS_S3_BUCKET is required for the s3 backend")
		}
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend")
		}
	default:
		return fmt.Errorf("unsupported storage backend: %s", c.Storage.Backend)
	}

	return nil
}

// PasswordPolicy returns the configured password rules
func (c *Config) PasswordPolicy() simplemedia.PasswordPolicy {
	policy := simplemedia.DefaultPasswordPolicy()
	policy.MinLength = c.Auth.PasswordMinLen
	policy.RequireUpper = c.Auth.PasswordUpper
	policy.RequireLower = c.Auth.PasswordLower
	policy.RequireDigit = c.Auth.PasswordDigit
	policy.RequireSymbol = c.Auth.PasswordSymbol
	return policy
}

// signingSecret is the key for locally signed blob URLs. Without an explicit
// one it is derived from the token secret, so blob URLs and access tokens
// never share a key.
func (c *Config) signingSecret() string {
	if c.Storage.SigningSecret != "" {
		return c.Storage.SigningSecret
	}
	mac := hmac.New(sha256.New, []byte(c.Auth.TokenSecret))
	mac.Write([]byte(blobKeyLabel))
	return hex.EncodeToString(mac.Sum(nil))
}
