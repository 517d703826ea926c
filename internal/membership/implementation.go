// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Login attempts allowed per email: a burst of 5, refilled one per minute.
const (
	loginBurst    = 5
	loginInterval = time.Minute
)

// service implements the Service interface.
type service struct {
	repo   Repository
	tokens *TokenIssuer
	logger *slog.Logger
	now    func() time.Time

	loginEvery rate.Limit
	loginBurst int
	limiters   *loginLimiters
}

// Option configures the membership service.
type Option func(*service)

// WithClock overrides time.Now for registration dates and login throttling.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// WithLoginRateLimit sets how many login attempts one email may make.
func WithLoginRateLimit(every time.Duration, burst int) Option {
	return func(s *service) {
		s.loginEvery = rate.Every(every)
		s.loginBurst = burst
	}
}

// NewService creates a new membership service instance.
func NewService(repo Repository, tokens *TokenIssuer, opts ...Option) Service {
	s := &service{
		repo:       repo,
		tokens:     tokens,
		logger:     slog.Default(),
		now:        time.Now,
		loginEvery: rate.Every(loginInterval),
		loginBurst: loginBurst,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.limiters = newLoginLimiters(s.loginEvery, s.loginBurst, maxTrackedLogins)
	return s
}

// Register creates an account with the user role.
func (s *service) Register(ctx context.Context, email, password string) (*User, error) {
	return s.create(ctx, email, password, []Role{RoleUser})
}

// CreateUser creates an account with explicit roles.
func (s *service) CreateUser(ctx context.Context, email, password string, roles []Role) (*User, error) {
	return s.create(ctx, email, password, roles)
}

func (s *service) create(ctx context.Context, email, password string, roles []Role) (*User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}
	roles, err = normalizeRoles(roles)
	if err != nil {
		return nil, err
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("register %s: %w", email, ErrEmailTaken)
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{
		ID:               uuid.New(),
		Email:            email,
		PasswordHash:     hash,
		PasswordSalt:     salt,
		Roles:            roles,
		RegistrationDate: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID.String()),
		slog.Any("roles", user.Roles),
	)
	return user, nil
}

// Login verifies credentials and issues an access token.
func (s *service) Login(ctx context.Context, email, password string) (*Token, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !s.limiters.allow(email, s.now()) {
		s.logger.WarnContext(ctx, "login rate limit exceeded", slog.String("email", email))
		return nil, ErrTooManyAttempts
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	ok, err := verifyPassword(password, user.PasswordSalt, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, nil
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// UpdateUser changes email and/or roles. Non-admins may only update
// themselves and may not touch roles.
func (s *service) UpdateUser(ctx context.Context, actor Principal, id uuid.UUID, update UserUpdate) (*User, error) {
	isAdmin := actor.HasAnyRole(RoleAdmin)
	if !isAdmin && actor.UserID != id {
		return nil, ErrNotPermitted
	}
	if !isAdmin && update.Roles != nil {
		return nil, fmt.Errorf("change roles: %w", ErrNotPermitted)
	}

	if update.Email != nil {
		email, err := normalizeEmail(*update.Email)
		if err != nil {
			return nil, err
		}
		update.Email = &email
	}
	if update.Roles != nil {
		roles, err := normalizeRoles(update.Roles)
		if err != nil {
			return nil, err
		}
		update.Roles = roles
	}

	user, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "user updated",
		slog.String("user_id", id.String()),
		slog.String("actor", actor.UserID.String()),
	)
	return user, nil
}

func (s *service) DeleteUser(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("user %s: %w", id, ErrUserNotFound)
	}
	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", id.String()))
	return nil
}

func (s *service) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrUserNotFound):
		return false, nil
	default:
		return false, err
	}
}

// EnsureAdmin creates the bootstrap administrator unless the email is taken.
func (s *service) EnsureAdmin(ctx context.Context, email, password string) (*User, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByEmail(ctx, normalized)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	return s.create(ctx, normalized, password, []Role{RoleAdmin})
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%q: %w", email, ErrInvalidEmail)
	}
	return email, nil
}

// normalizeRoles rejects unknown roles and drops duplicates.
func normalizeRoles(roles []Role) ([]Role, error) {
	if len(roles) == 0 {
		return nil, ErrInvalidRoles
	}
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if !r.valid() {
			return nil, fmt.Errorf("role %q: %w", r, ErrInvalidRoles)
		}
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out, nil
}
