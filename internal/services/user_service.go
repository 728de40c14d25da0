// Package services – UserService
//
// This file implements UserService, the account layer behind the users API.
// Accounts are deliberately thin: a name, a unique email, and an active flag
// that controls digest delivery.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-paragraph-backend/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// UserRepo defines the repository contract required by UserService.
type UserRepo interface {
	// CreateUser inserts a new active user.
	CreateUser(ctx context.Context, db *gorm.DB, name, email string) (*domain.User, error)

	// GetUser returns the user by id, or gorm.ErrRecordNotFound.
	GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error)
}

// UserService manages user accounts.
type UserService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the user repository.
	Repo UserRepo
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB, r UserRepo) *UserService {
	return &UserService{DB: db, Repo: r}
}

// Create registers a new user. Name and email are trimmed; a blank value in
// either yields ErrEmptyInput. Duplicate emails surface the repository's
// ErrDuplicate unchanged so callers can map it to a conflict.
func (s *UserService) Create(ctx context.Context, name, email string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Create")
	defer span.End()

	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" {
		return nil, ErrEmptyInput
	}

	u, err := s.Repo.CreateUser(ctx, s.DB, name, email)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Get returns the user by id, or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Get",
		trace.WithAttributes(attribute.String("user.id", id)),
	)
	defer span.End()

	u, err := s.Repo.GetUser(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}
