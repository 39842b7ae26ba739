package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accounts/internal/auth"
	"github.com/jjudge-oj/accounts/internal/events"
	"github.com/jjudge-oj/accounts/internal/metrics"
	"github.com/jjudge-oj/accounts/internal/store"
	"github.com/jjudge-oj/accounts/types"
)

// UserRepository is the persistence the identity service depends on.
type UserRepository interface {
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, nu types.NewUser) (types.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (types.User, error)
	FindByUsernameOrEmail(ctx context.Context, value string) (types.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update types.ProfileUpdate) (types.User, error)
	BumpTokenVersion(ctx context.Context, id uuid.UUID, version int32) (types.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string, version int32) error
	ListWithRoles(ctx context.Context) ([]types.UserSummary, error)
}

// PasswordHasher hashes and verifies passwords, possibly off the calling goroutine.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, password, encoded string) (bool, error)
}

// TokenCodec issues and decodes session tokens.
type TokenCodec interface {
	Issue(user types.User) (string, error)
	Decode(token string) (auth.Claims, error)
}

// Reasons reported by VerifyToken.
const (
	ReasonExpired         = "expired"
	ReasonInvalid         = "invalid"
	ReasonVersionMismatch = "token_version_mismatch"
	ReasonUserNotFound    = "user_not_found"
)

// VerifyResult is the outcome of checking a session token.
type VerifyResult struct {
	Valid  bool   `json:"valid"`
	Reason string `json:"reason,omitempty"`
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	FirstName string
	LastName  string
	Username  string
	Email     string
	Password  string
}

// IdentityService implements registration, sign-in, token verification and
// profile and password changes.
type IdentityService struct {
	repo      UserRepository
	hasher    PasswordHasher
	tokens    TokenCodec
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	version   func() (int32, error)
	now       func() time.Time
}

// Option configures an IdentityService.
type Option func(*IdentityService)

func WithPublisher(p events.Publisher) Option {
	return func(s *IdentityService) { s.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *IdentityService) { s.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *IdentityService) { s.logger = l }
}

// WithVersionSource replaces the random token version generator.
func WithVersionSource(fn func() (int32, error)) Option {
	return func(s *IdentityService) { s.version = fn }
}

func WithClock(now func() time.Time) Option {
	return func(s *IdentityService) { s.now = now }
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(repo UserRepository, hasher PasswordHasher, tokens TokenCodec, opts ...Option) *IdentityService {
	s := &IdentityService{
		repo:      repo,
		hasher:    hasher,
		tokens:    tokens,
		publisher: events.NopPublisher{},
		logger:    slog.Default(),
		version:   RandomTokenVersion,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomTokenVersion draws a token version uniformly from [1, MaxInt32].
func RandomTokenVersion() (int32, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt32))
	if err != nil {
		return 0, fmt.Errorf("token version: %w", err)
	}
	return int32(n.Int64() + 1), nil
}

// Register creates an account with token version 0 and returns it with a
// session token.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (types.User, string, error) {
	user, token, err := s.register(ctx, in)
	s.observe("register", err)
	return user, token, err
}

func (s *IdentityService) register(ctx context.Context, in RegisterInput) (types.User, string, error) {
	for _, f := range []struct{ name, value string }{
		{"username", in.Username},
		{"first_name", in.FirstName},
		{"last_name", in.LastName},
		{"email", in.Email},
	} {
		if err := validateLength(f.name, f.value); err != nil {
			return types.User{}, "", err
		}
	}

	if err := s.ensureEmailFree(ctx, in.Email); err != nil {
		return types.User{}, "", err
	}
	if err := s.ensureUsernameFree(ctx, in.Username); err != nil {
		return types.User{}, "", err
	}

	hash, err := s.hasher.Hash(ctx, in.Password)
	if err != nil {
		return types.User{}, "", s.hashFailure(ctx, "register", err)
	}

	user, err := s.repo.Insert(ctx, types.NewUser{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		TokenVersion: 0,
	})
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			return types.User{}, "", conflict
		}
		return types.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}

	s.publish(ctx, events.UserRegistered, user)
	return redact(user), token, nil
}

// SignIn authenticates by username or email, rotates the token version and
// returns a fresh token. Earlier tokens stop verifying.
func (s *IdentityService) SignIn(ctx context.Context, identifier, password string) (types.User, string, error) {
	user, token, err := s.signIn(ctx, identifier, password)
	s.observe("sign_in", err)
	return user, token, err
}

func (s *IdentityService) signIn(ctx context.Context, identifier, password string) (types.User, string, error) {
	user, err := s.repo.FindByUsernameOrEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", fmt.Errorf("find user: %w", err)
	}

	ok, err := s.hasher.Verify(ctx, password, user.PasswordHash)
	if err != nil {
		return types.User{}, "", s.hashFailure(ctx, "sign_in", err)
	}
	if !ok {
		return types.User{}, "", ErrInvalidCredentials
	}

	version, err := s.version()
	if err != nil {
		return types.User{}, "", err
	}
	user, err = s.repo.BumpTokenVersion(ctx, user.ID, version)
	if err != nil {
		return types.User{}, "", fmt.Errorf("bump token version: %w", err)
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return types.User{}, "", fmt.Errorf("issue token: %w", err)
	}

	s.publish(ctx, events.UserSignedIn, user)
	return redact(user), token, nil
}

// VerifyToken reports whether token is currently acceptable. It never fails;
// store errors are logged and reported as invalid.
func (s *IdentityService) VerifyToken(ctx context.Context, token string) VerifyResult {
	result := s.verifyToken(ctx, token)
	label := "valid"
	if !result.Valid {
		label = result.Reason
	}
	s.metrics.ObserveOperation("verify_token", label)
	return result
}

func (s *IdentityService) verifyToken(ctx context.Context, token string) VerifyResult {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return VerifyResult{Reason: ReasonExpired}
		}
		return VerifyResult{Reason: ReasonInvalid}
	}

	id, err := claims.UserID()
	if err != nil {
		return VerifyResult{Reason: ReasonInvalid}
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return VerifyResult{Reason: ReasonUserNotFound}
		}
		s.logger.ErrorContext(ctx, "verify token: load user", "user_id", id, "error", err)
		return VerifyResult{Reason: ReasonInvalid}
	}
	if user.TokenVersion != claims.TokenVersion {
		return VerifyResult{Reason: ReasonVersionMismatch}
	}
	return VerifyResult{Valid: true}
}

// UpdateProfile changes the provided profile fields of the token's owner.
// The token version is left unchanged.
func (s *IdentityService) UpdateProfile(ctx context.Context, token string, update types.ProfileUpdate) (types.User, error) {
	user, err := s.updateProfile(ctx, token, update)
	s.observe("update_profile", err)
	return user, err
}

func (s *IdentityService) updateProfile(ctx context.Context, token string, update types.ProfileUpdate) (types.User, error) {
	current, err := s.authenticate(ctx, token)
	if err != nil {
		return types.User{}, err
	}

	if update.Username != nil && *update.Username != current.Username {
		if err := s.ensureUsernameFree(ctx, *update.Username); err != nil {
			return types.User{}, err
		}
	}
	if update.Email != nil && *update.Email != current.Email {
		if err := s.ensureEmailFree(ctx, *update.Email); err != nil {
			return types.User{}, err
		}
	}

	for _, f := range []struct {
		name  string
		value *string
	}{
		{"username", update.Username},
		{"email", update.Email},
		{"first_name", update.FirstName},
		{"last_name", update.LastName},
	} {
		if f.value == nil {
			continue
		}
		if err := validateLength(f.name, *f.value); err != nil {
			return types.User{}, err
		}
	}

	user, err := s.repo.UpdateProfile(ctx, current.ID, update)
	if err != nil {
		var conflict *store.ConflictError
		switch {
		case errors.As(err, &conflict):
			return types.User{}, conflict
		case errors.Is(err, store.ErrNotFound):
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, fmt.Errorf("update profile: %w", err)
	}

	s.publish(ctx, events.UserProfileUpdated, user)
	return redact(user), nil
}

// UpdatePassword replaces the password of the token's owner and rotates the
// token version, revoking every outstanding token including this one.
func (s *IdentityService) UpdatePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	err := s.updatePassword(ctx, token, oldPassword, newPassword)
	s.observe("update_password", err)
	return err
}

func (s *IdentityService) updatePassword(ctx context.Context, token, oldPassword, newPassword string) error {
	user, err := s.authenticate(ctx, token)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Verify(ctx, oldPassword, user.PasswordHash)
	if err != nil {
		return s.hashFailure(ctx, "update_password", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	same, err := s.hasher.Verify(ctx, newPassword, user.PasswordHash)
	if err != nil {
		return s.hashFailure(ctx, "update_password", err)
	}
	if same {
		return invalid("new_password", "new password must differ from the current password")
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return s.hashFailure(ctx, "update_password", err)
	}
	version, err := s.version()
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash, version); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("update password: %w", err)
	}

	s.publish(ctx, events.UserPasswordChanged, user)
	return nil
}

// ListUsers returns every account with its role names.
func (s *IdentityService) ListUsers(ctx context.Context) ([]types.UserSummary, error) {
	users, err := s.repo.ListWithRoles(ctx)
	s.observe("list_users", err)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// authenticate decodes token and loads its owner, requiring the stored token
// version to match. Every failure is ErrInvalidToken.
func (s *IdentityService) authenticate(ctx context.Context, token string) (types.User, error) {
	claims, err := s.tokens.Decode(token)
	if err != nil {
		return types.User{}, ErrInvalidToken
	}
	id, err := claims.UserID()
	if err != nil {
		return types.User{}, ErrInvalidToken
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidToken
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	if user.TokenVersion != claims.TokenVersion {
		return types.User{}, ErrInvalidToken
	}
	return user, nil
}

func (s *IdentityService) ensureEmailFree(ctx context.Context, email string) error {
	taken, err := s.repo.EmailExists(ctx, email)
	if err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if taken {
		return &store.ConflictError{Field: "email"}
	}
	return nil
}

func (s *IdentityService) ensureUsernameFree(ctx context.Context, username string) error {
	taken, err := s.repo.UsernameExists(ctx, username)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if taken {
		return &store.ConflictError{Field: "username"}
	}
	return nil
}

func (s *IdentityService) hashFailure(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	s.logger.ErrorContext(ctx, "password hashing failed", "operation", op, "error", err)
	if errors.Is(err, ErrHashing) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrHashing, err)
}

func (s *IdentityService) publish(ctx context.Context, typ events.Type, user types.User) {
	err := s.publisher.Publish(ctx, events.Event{
		Type:       typ,
		UserID:     user.ID,
		Username:   user.Username,
		OccurredAt: s.now().UTC(),
	})
	if err != nil {
		s.logger.WarnContext(ctx, "account event not published", "type", typ, "user_id", user.ID, "error", err)
	}
}

func (s *IdentityService) observe(op string, err error) {
	s.metrics.ObserveOperation(op, outcome(err))
}

func outcome(err error) string {
	var conflict *store.ConflictError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation), errors.Is(err, store.ErrValueTooLong):
		return "invalid_input"
	case errors.As(err, &conflict):
		return "conflict"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, store.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func redact(user types.User) types.User {
	user.PasswordHash = ""
	return user
}
