package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/twofold/corner/internal/apperr"
)

// Store is the persistence the user service depends on.
type Store interface {
	Create(ctx context.Context, email string, displayName *string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) (*User, error)
}

// Service contains business logic for user management.
type Service struct {
	repo Store
}

// NewService creates a new user Service.
func NewService(repo Store) *Service {
	return &Service{repo: repo}
}

// Create registers a new user account.
func (s *Service) Create(ctx context.Context, email string, displayName *string) (*User, error) {
	u, err := s.repo.Create(ctx, normalizeEmail(email), displayName)
	if errors.Is(err, ErrAlreadyExists) {
		return nil, apperr.Conflict("email already registered")
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return u, nil
}

// GetByID returns a user by their UUID.
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

// GetByEmail returns a user by their email address.
func (s *Service) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

// UpdateDisplayName changes the name shown to the user's partner.
func (s *Service) UpdateDisplayName(ctx context.Context, id, displayName string) (*User, error) {
	name := strings.TrimSpace(displayName)
	if name == "" || len(name) > 80 {
		return nil, apperr.Validation("displayName must be between 1 and 80 characters")
	}
	u, err := s.repo.UpdateDisplayName(ctx, id, name)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("user not found")
	}
	return u, err
}

// IsNotFound returns true when the error indicates a user was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || apperr.Is(err, apperr.KindNotFound)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
