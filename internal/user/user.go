// Package user holds the minimal account registry the lifecycle engine needs:
// identities to attribute reports, participation, transitions and chat
// messages to. Authentication itself lives at the API edge.
package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ecosweep.org/internal/domain"
	"ecosweep.org/internal/store"
)

// User is a registered community member.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u User) Key() string { return u.ID }

func (u User) Clone() User { return u }

// Service manages the user registry.
type Service struct {
	users *store.Memory[User]
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the registry on top of the given store.
func NewService(users *store.Memory[User], opts ...Option) *Service {
	s := &Service{users: users, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user. The email is the uniqueness anchor; a collision
// fails with Conflict.
func (s *Service) Register(ctx context.Context, name, email string) (User, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return User{}, fmt.Errorf("%w: name is required", domain.ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: valid email is required", domain.ErrInvalidInput)
	}

	taken, err := s.users.Find(ctx, func(u User) bool { return u.Email == email })
	if err != nil {
		return User{}, err
	}
	if len(taken) > 0 {
		return User{}, fmt.Errorf("%w: email already registered", domain.ErrConflict)
	}

	now := s.now().UTC()
	u := User{
		ID:        store.NewID(),
		Name:      name,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if _, err := s.users.Create(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return User{}, fmt.Errorf("%w: user %s", domain.ErrNotFound, id)
	}
	return u, err
}

// DisplayName resolves a user id to its display name.
func (s *Service) DisplayName(ctx context.Context, id string) (string, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}
