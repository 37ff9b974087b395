package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"animehub/internal/core/auth"
	"animehub/internal/core/bus"
	"animehub/internal/core/kv"
	"animehub/internal/domain"
	"animehub/internal/repo"
	"animehub/pkg/utils"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type fixture struct {
	ctx        context.Context
	store      kv.Store
	clock      *clockwork.FakeClock
	events     *bus.Local
	hasher     utils.PasswordHasher
	users      *repo.UserRepo
	sessions   *SessionService
	notes      *NotificationService
	progress   *ProgressService
	moderation *ModerationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, kv.NewMemory(), clockwork.NewFakeClockAt(epoch))
}

// newFixtureOn builds one tab's services over a shared medium.
func newFixtureOn(t *testing.T, store kv.Store, clock *clockwork.FakeClock) *fixture {
	t.Helper()
	log := zap.NewNop()
	f := &fixture{
		ctx:    context.Background(),
		store:  store,
		clock:  clock,
		events: bus.NewLocal(),
		hasher: utils.BcryptHasher{Cost: bcrypt.MinCost},
		users:  repo.NewUserRepo(store, log),
	}
	jwter := &auth.JWTer{Secret: []byte("test-secret"), Issuer: "animehub-test", TTL: time.Hour, Now: clock.Now}
	f.sessions = NewSessionService(store, f.users, jwter, f.hasher, f.events, clock, log)
	f.notes = NewNotificationService(repo.NewNotificationRepo(store, log), utils.NewSnowflake(1), f.events, clock, log)
	f.progress = NewProgressService(repo.NewProgressRepo(store, log), f.notes, f.events, clock, log)
	f.moderation = NewModerationService(f.users, repo.NewSubmissionRepo(store, log), repo.NewAdminActionRepo(store, log),
		f.notes, f.sessions, f.events, clock, log)
	return f
}

// seed stores a user directly, bypassing sign-up rules.
func (f *fixture) seed(t *testing.T, id string, role domain.Role, status domain.AccountStatus) *domain.User {
	t.Helper()
	hash, err := f.hasher.Hash("secret123")
	require.NoError(t, err)
	u := &domain.User{
		ID:            id,
		Name:          id,
		Email:         id + "@example.com",
		PasswordHash:  hash,
		Role:          role,
		Level:         1,
		AccountStatus: status,
		CreatedAt:     f.clock.Now(),
	}
	require.NoError(t, f.users.Create(f.ctx, u))
	return u
}

func (f *fixture) user(t *testing.T, id string) *domain.User {
	t.Helper()
	u, err := f.users.FindByID(f.ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func ptr[T any](v T) *T { return &v }
