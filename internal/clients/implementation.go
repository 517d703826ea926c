// internal/clients/implementation.go
package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface.
type service struct {
	repo   Repository
	users  UserLookup
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the client service.
type Option func(*service)

// WithClock overrides time.Now when judging birthdates.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *service) { s.logger = logger }
}

// NewService creates a new client service instance.
func NewService(repo Repository, users UserLookup, opts ...Option) Service {
	s := &service{
		repo:   repo,
		users:  users,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateClient registers a profile. Checks run in order: duplicate email,
// future birthdate, missing user, user already has a profile.
func (s *service) CreateClient(ctx context.Context, req NewClient) (*Client, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Surname) == "" {
		return nil, ErrEmptyName
	}
	if req.Birthdate.IsZero() {
		return nil, ErrNoBirthdate
	}

	if err := s.checkEmail(ctx, email, uuid.Nil); err != nil {
		return nil, err
	}
	if err := s.checkBirthdate(req.Birthdate); err != nil {
		return nil, err
	}

	exists, err := s.users.UserExists(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("user %s: %w", req.UserID, ErrUserNotFound)
	}

	if _, err := s.repo.GetByUserID(ctx, req.UserID); err == nil {
		return nil, fmt.Errorf("user %s: %w", req.UserID, ErrProfileExists)
	} else if !errors.Is(err, ErrClientNotFound) {
		return nil, fmt.Errorf("failed to look up profile: %w", err)
	}

	client := &Client{
		ID:         uuid.New(),
		UserID:     req.UserID,
		Email:      email,
		Name:       req.Name,
		Surname:    req.Surname,
		Patronymic: req.Patronymic,
		Birthdate:  req.Birthdate,
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "client created",
		slog.String("client_id", client.ID.String()),
		slog.String("user_id", client.UserID.String()),
	)
	return client, nil
}

func (s *service) checkEmail(ctx context.Context, email string, self uuid.UUID) error {
	existing, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != self:
		return fmt.Errorf("email %s: %w", email, ErrEmailTaken)
	case err != nil && !errors.Is(err, ErrClientNotFound):
		return fmt.Errorf("failed to look up email: %w", err)
	}
	return nil
}

// checkBirthdate rejects days after today; today itself is allowed.
func (s *service) checkBirthdate(d Date) error {
	if d.After(DateOf(s.now()).Time) {
		return fmt.Errorf("%s: %w", d, ErrFutureBirthdate)
	}
	return nil
}

func (s *service) GetClient(ctx context.Context, id uuid.UUID) (*Client, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *service) GetClientByUser(ctx context.Context, userID uuid.UUID) (*Client, error) {
	return s.repo.GetByUserID(ctx, userID)
}

func (s *service) ListClients(ctx context.Context) ([]*Client, error) {
	return s.repo.List(ctx)
}

// Search applies the first criterion that is fully set.
func (s *service) Search(ctx context.Context, criteria SearchCriteria) ([]*Client, error) {
	switch {
	case criteria.Name != "":
		return s.repo.SearchByName(ctx, criteria.Name)
	case criteria.StartBirthdate != nil && criteria.EndBirthdate != nil:
		if criteria.StartBirthdate.After(criteria.EndBirthdate.Time) {
			return nil, ErrInvalidRange
		}
		return s.repo.ListByBirthdate(ctx, *criteria.StartBirthdate, *criteria.EndBirthdate)
	default:
		return s.repo.List(ctx)
	}
}

func (s *service) UpdateClient(ctx context.Context, id uuid.UUID, update ClientUpdate) (*Client, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}

	if update.Email != nil {
		email, err := normalizeEmail(*update.Email)
		if err != nil {
			return nil, err
		}
		if err := s.checkEmail(ctx, email, id); err != nil {
			return nil, err
		}
		update.Email = &email
	}
	if update.Birthdate != nil {
		if err := s.checkBirthdate(*update.Birthdate); err != nil {
			return nil, err
		}
	}
	if (update.Name != nil && strings.TrimSpace(*update.Name) == "") ||
		(update.Surname != nil && strings.TrimSpace(*update.Surname) == "") {
		return nil, ErrEmptyName
	}

	client, err := s.repo.Update(ctx, id, update)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "client updated", slog.String("client_id", id.String()))
	return client, nil
}

func (s *service) DeleteClient(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("client %s: %w", id, ErrClientNotFound)
	}
	s.logger.InfoContext(ctx, "client deleted", slog.String("client_id", id.String()))
	return nil
}

func (s *service) ClientExists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrClientNotFound):
		return false, nil
	default:
		return false, err
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%q: %w", email, ErrInvalidEmail)
	}
	return email, nil
}
