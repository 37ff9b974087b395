package repo

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"animehub/internal/core/kv"
	"animehub/internal/domain"
)

// UserRepo keeps every account in the users.all collection.
type UserRepo struct {
	s   kv.Store
	log *zap.Logger
}

func NewUserRepo(s kv.Store, log *zap.Logger) *UserRepo { return &UserRepo{s: s, log: log} }

func noUsers() []domain.User { return []domain.User{} }

func (r *UserRepo) List(ctx context.Context) ([]domain.User, error) {
	return load(ctx, r.s, r.log, domain.KeyUsersAll, noUsers)
}

func (r *UserRepo) FindByID(ctx context.Context, id string) (*domain.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		if strings.EqualFold(users[i].Email, email) {
			return &users[i], nil
		}
	}
	return nil, nil
}

// Create fails with ErrEmailTaken when the address is already registered,
// checked inside the same read-modify-write as the append.
func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	_, err := mutate(ctx, r.s, domain.KeyUsersAll, noUsers, func(users []domain.User) ([]domain.User, error) {
		for _, x := range users {
			if strings.EqualFold(x.Email, u.Email) {
				return nil, domain.ErrEmailTaken
			}
		}
		return append(users, *u), nil
	})
	return err
}

// Mutate applies fn to one user. An edit that collides with another
// account's email fails with ErrEmailTaken.
func (r *UserRepo) Mutate(ctx context.Context, id string, fn func(u *domain.User) error) (*domain.User, error) {
	var out *domain.User
	_, err := mutate(ctx, r.s, domain.KeyUsersAll, noUsers, func(users []domain.User) ([]domain.User, error) {
		for i := range users {
			if users[i].ID != id {
				continue
			}
			if err := fn(&users[i]); err != nil {
				if errors.Is(err, kv.ErrNoChange) {
					u := users[i]
					out = &u
				}
				return nil, err
			}
			for j := range users {
				if j != i && strings.EqualFold(users[j].Email, users[i].Email) {
					return nil, domain.ErrEmailTaken
				}
			}
			users[i].Version++
			u := users[i]
			out = &u
			return users, nil
		}
		return nil, domain.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
