package simplemedia

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the hashing cost used unless WithBcryptCost overrides it
const DefaultBcryptCost = 11

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._@+-]{2,63}$`)

// AuthService registers users and exchanges credentials for access tokens.
type AuthService struct {
	users  UserRepository
	tokens *TokenIssuer
	policy PasswordPolicy
	cost   int
	now    func() time.Time
	logger *slog.Logger

	// dummyHash is compared against when the handle is unknown so that both
	// failure paths spend the same bcrypt work.
	dummyHash []byte
}

// AuthOption configures an AuthService
type AuthOption func(*AuthService) error

// WithPasswordPolicy replaces DefaultPasswordPolicy
func WithPasswordPolicy(policy PasswordPolicy) AuthOption {
	return func(s *AuthService) error {
		if policy.MinLength < 1 {
			return errors.New("password policy min length must be at least 1")
		}
		s.policy = policy
		return nil
	}
}

// WithBcryptCost sets the bcrypt cost for new hashes
func WithBcryptCost(cost int) AuthOption {
	return func(s *AuthService) error {
		if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
			return fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
		}
		s.cost = cost
		return nil
	}
}

// WithAuthClock replaces the clock used for user timestamps
func WithAuthClock(now func() time.Time) AuthOption {
	return func(s *AuthService) error {
		s.now = now
		return nil
	}
}

// WithAuthLogger sets the logger
func WithAuthLogger(logger *slog.Logger) AuthOption {
	return func(s *AuthService) error {
		s.logger = logger
		return nil
	}
}

// NewAuthService creates an AuthService
func NewAuthService(users UserRepository, tokens *TokenIssuer, opts ...AuthOption) (*AuthService, error) {
	if users == nil {
		return nil, errors.New("user repository is required")
	}
	if tokens == nil {
		return nil, errors.New("token issuer is required")
	}

	s := &AuthService{
		users:  users,
		tokens: tokens,
		policy: DefaultPasswordPolicy(),
		cost:   DefaultBcryptCost,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate dummy password: %w", err)
	}
	// bcrypt only hashes the first 72 bytes; hex keeps the seed well under that.
	dummy, err := bcrypt.GenerateFromPassword([]byte(fmt.Sprintf("%x", seed)), s.cost)
	if err != nil {
		return nil, fmt.Errorf("generate dummy hash: %w", err)
	}
	s.dummyHash = dummy

	return s, nil
}

// NormalizeHandle folds a handle into its stored form
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func validateHandle(handle string) error {
	if !handlePattern.MatchString(handle) {
		return invalid("handle", "must be 3-64 characters of letters, digits or . _ @ + -")
	}
	return nil
}

// Register creates a user. A handle that is already registered yields
// ErrHandleTaken; the repository decides this atomically.
func (s *AuthService) Register(ctx context.Context, handle, password string) (*User, error) {
	handle = NormalizeHandle(handle)
	if err := validateHandle(handle); err != nil {
		return nil, err
	}
	if err := s.policy.Validate(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &User{
		ID:           uuid.New(),
		Handle:       handle,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrConflict) {
			s.logger.Info("Registration rejected, handle taken", "handle", handle)
			return nil, ErrHandleTaken
		}
		return nil, classifyPersistence("create user", err)
	}

	s.logger.Info("User registered", "user_id", user.ID, "handle", handle)
	return user, nil
}

// Authenticate checks credentials and issues a token. Unknown handles and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Authenticate(ctx context.Context, handle, password string) (*Token, error) {
	handle = NormalizeHandle(handle)

	user, err := s.users.GetUserByHandle(ctx, handle)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, classifyPersistence("get user", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		s.logger.Info("Authentication failed", "reason", "unknown handle")
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Info("Authentication failed", "reason", "password mismatch", "user_id", user.ID)
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("User authenticated", "user_id", user.ID, "expires_at", token.ExpiresAt)
	return token, nil
}

// Verify returns the user a bearer token belongs to. It performs no I/O.
func (s *AuthService) Verify(token string) (uuid.UUID, error) {
	return s.tokens.Verify(token)
}

// classifyPersistence keeps repository errors that already carry a kind and
// marks the rest as persistence failures.
func classifyPersistence(op string, err error) error {
	if KindOf(err) != KindInternal {
		return err
	}
	return PersistenceFailure(op, err)
}
