package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"animehub/internal/core/auth"
	"animehub/internal/core/bus"
	"animehub/internal/core/kv"
	"animehub/internal/domain"
	"animehub/pkg/utils"
)

// AuthState is the payload of auth-state-changed. Subscribers should still
// re-read through SessionService rather than keep it.
type AuthState struct {
	User    *domain.User
	Session *domain.Session
}

type SignUpInput struct {
	Name     string      `json:"name" validate:"required,min=2,max=64"`
	Email    string      `json:"email" validate:"required,email,max=191"`
	Password string      `json:"password" validate:"required,min=6,max=72"`
	Role     domain.Role `json:"role" validate:"omitempty,oneof=user critique"`
}

type ProfilePatch struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,min=2,max=64"`
	Email     *string `json:"email,omitempty" validate:"omitempty,email,max=191"`
	Password  *string `json:"password,omitempty" validate:"omitempty,min=6,max=72"`
	Bio       *string `json:"bio,omitempty" validate:"omitempty,max=500"`
	AvatarURL *string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
}

// SessionService owns the profile's current session and the user list.
type SessionService struct {
	store  kv.Store
	users  domain.UserRepository
	jwt    *auth.JWTer
	hasher utils.PasswordHasher
	events *bus.Local
	clock  clockwork.Clock
	log    *zap.Logger

	mu   sync.RWMutex
	view AuthState
}

func NewSessionService(store kv.Store, users domain.UserRepository, jwt *auth.JWTer, hasher utils.PasswordHasher,
	events *bus.Local, clock clockwork.Clock, log *zap.Logger) *SessionService {
	return &SessionService{
		store:  store,
		users:  users,
		jwt:    jwt,
		hasher: hasher,
		events: events,
		clock:  clock,
		log:    log,
	}
}

func (s *SessionService) SignUp(ctx context.Context, in SignUpInput) (*domain.User, *domain.Session, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := check(in); err != nil {
		return nil, nil, err
	}
	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}
	status := domain.AccountApproved
	if role == domain.RoleCritique {
		// critics are vetted by an admin before they can submit
		status = domain.AccountPending
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.clock.Now()
	u := &domain.User{
		ID:            utils.NewID(),
		Name:          in.Name,
		Email:         in.Email,
		PasswordHash:  hash,
		Role:          role,
		Level:         1,
		AccountStatus: status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, domain.ErrEmailTaken) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("create user: %w", err)
	}

	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("user signed up", zap.String("user_id", u.ID), zap.String("role", string(u.Role)))
	pub := u.Public()
	return &pub, sess, nil
}

func (s *SessionService) SignIn(ctx context.Context, email, password string) (*domain.User, *domain.Session, error) {
	u, err := s.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if u == nil || !s.hasher.Verify(u.PasswordHash, password) {
		s.log.Info("sign in rejected", zap.String("email", email))
		return nil, nil, domain.ErrInvalidCredentials
	}

	switch u.AccountStatus {
	case domain.AccountBanned:
		return nil, nil, domain.ErrAccountBanned
	case domain.AccountSuspended:
		if u.SuspensionEnd != nil && s.clock.Now().Before(*u.SuspensionEnd) {
			return nil, nil, domain.ErrAccountSuspended
		}
		u, err = s.users.Mutate(ctx, u.ID, func(u *domain.User) error {
			if u.AccountStatus != domain.AccountSuspended {
				return kv.ErrNoChange
			}
			u.AccountStatus = domain.AccountApproved
			u.SuspensionEnd = nil
			u.UpdatedAt = s.clock.Now()
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("lift expired suspension: %w", err)
		}
	}

	sess, err := s.issue(ctx, u)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info("user signed in", zap.String("user_id", u.ID))
	pub := u.Public()
	return &pub, sess, nil
}

// SignOut clears the current session and revokes its token. The user list
// is untouched.
func (s *SessionService) SignOut(ctx context.Context) error {
	sess, ok, err := kv.Load[domain.Session](ctx, s.store, domain.KeySessionCurrent)
	if err != nil && !errors.Is(err, kv.ErrCorrupt) {
		return fmt.Errorf("load session: %w", err)
	}
	if ok && sess.ID != "" {
		if err := s.revoke(ctx, sess.UserID, sess.ID, sess.ExpiresAt); err != nil {
			return err
		}
	}
	if err := s.store.Remove(ctx, domain.KeySessionCurrent); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	s.changed(ctx)
	return nil
}

// Revoke signs out the holder of token only. The profile's current session
// is cleared when it is that same token.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	claims, err := s.jwt.Parse(token)
	if err != nil {
		return domain.ErrNotAuthenticated
	}
	if err := s.revoke(ctx, claims.UID, claims.ID, claims.Expiry()); err != nil {
		return err
	}
	s.log.Info("session revoked", zap.String("user_id", claims.UID))

	cur, ok, err := kv.Load[domain.Session](ctx, s.store, domain.KeySessionCurrent)
	if err != nil || !ok || cur.Token != token {
		return nil
	}
	if err := s.store.Remove(ctx, domain.KeySessionCurrent); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	s.changed(ctx)
	return nil
}

// CurrentSession returns the persisted session, or nil. An expired session
// is destroyed on read.
func (s *SessionService) CurrentSession(ctx context.Context) (*domain.Session, error) {
	sess, ok, err := kv.Load[domain.Session](ctx, s.store, domain.KeySessionCurrent)
	if errors.Is(err, kv.ErrCorrupt) {
		s.log.Warn("session record unreadable, signing out", zap.Error(err))
		return nil, s.destroy(ctx)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if sess.Expired(s.clock.Now()) {
		return nil, s.destroy(ctx)
	}
	return &sess, nil
}

func (s *SessionService) CurrentUser(ctx context.Context) (*domain.User, error) {
	sess, err := s.CurrentSession(ctx)
	if err != nil || sess == nil {
		return nil, err
	}
	u, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil || u.AccountStatus == domain.AccountBanned {
		return nil, s.destroy(ctx)
	}
	pub := u.Public()
	return &pub, nil
}

// RefreshSession re-issues the current session with a new expiry.
func (s *SessionService) RefreshSession(ctx context.Context) (*domain.Session, error) {
	cur, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return s.issue(ctx, cur)
}

// UpdateProfile edits the signed-in user.
func (s *SessionService) UpdateProfile(ctx context.Context, patch ProfilePatch) (*domain.User, error) {
	cur, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, domain.ErrNotAuthenticated
	}
	return s.UpdateUser(ctx, cur.ID, patch)
}

// UpdateUser edits userID's own profile fields.
func (s *SessionService) UpdateUser(ctx context.Context, userID string, patch ProfilePatch) (*domain.User, error) {
	if err := check(patch); err != nil {
		return nil, err
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		patch.Email = &email
	}
	var hash string
	if patch.Password != nil {
		var err error
		if hash, err = s.hasher.Hash(*patch.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	u, err := s.users.Mutate(ctx, userID, func(u *domain.User) error {
		if patch.Name != nil {
			u.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Email != nil {
			u.Email = *patch.Email
		}
		if patch.Bio != nil {
			u.Bio = *patch.Bio
		}
		if patch.AvatarURL != nil {
			u.AvatarURL = *patch.AvatarURL
		}
		if hash != "" {
			u.PasswordHash = hash
		}
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.changed(ctx)
	pub := u.Public()
	return &pub, nil
}

// Reissue signs a fresh session for userID, replacing the current one.
func (s *SessionService) Reissue(ctx context.Context, userID string) (*domain.Session, error) {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if u.AccountStatus == domain.AccountBanned {
		return nil, domain.ErrAccountBanned
	}
	return s.issue(ctx, u)
}

// Authenticate resolves a bearer token to its user.
func (s *SessionService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	u, _, err := s.Inspect(ctx, token)
	return u, err
}

// Inspect is Authenticate that also returns the session the token stands
// for. Revoked tokens are rejected.
func (s *SessionService) Inspect(ctx context.Context, token string) (*domain.User, *domain.Session, error) {
	claims, err := s.jwt.Parse(token)
	if err != nil {
		return nil, nil, domain.ErrNotAuthenticated
	}
	revoked, err := s.revoked(ctx, claims.UID, claims.ID)
	if err != nil {
		return nil, nil, err
	}
	if revoked {
		return nil, nil, domain.ErrNotAuthenticated
	}
	u, err := s.users.FindByID(ctx, claims.UID)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, nil, domain.ErrNotAuthenticated
	}
	if u.AccountStatus == domain.AccountBanned {
		return nil, nil, domain.ErrAccountBanned
	}
	pub := u.Public()
	return &pub, sessionOf(token, claims), nil
}

// AwardXP adds amount to the user's xp and recomputes the level.
func (s *SessionService) AwardXP(ctx context.Context, userID string, amount int) (*domain.User, error) {
	if amount <= 0 {
		return s.GetUser(ctx, userID)
	}
	u, err := s.users.Mutate(ctx, userID, func(u *domain.User) error {
		u.XP += amount
		u.Level = domain.LevelForXP(u.XP)
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.changed(ctx)
	pub := u.Public()
	return &pub, nil
}

func (s *SessionService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrNotFound
	}
	pub := u.Public()
	return &pub, nil
}

func (s *SessionService) ListUsers(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.User, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// State is the last derived view; cheap and never touches the store.
func (s *SessionService) State() AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// HandleChange re-derives the view when another tab touched identity keys.
func (s *SessionService) HandleChange(ctx context.Context, key string) {
	if key != domain.KeySessionCurrent && key != domain.KeyUsersAll {
		return
	}
	s.changed(ctx)
}

func (s *SessionService) issue(ctx context.Context, u *domain.User) (*domain.Session, error) {
	token, claims, err := s.jwt.Issue(u.ID, string(u.Role))
	if err != nil {
		return nil, err
	}
	sess := sessionOf(token, claims)
	if err := kv.Save(ctx, s.store, domain.KeySessionCurrent, sess); err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}
	s.changed(ctx)
	return sess, nil
}

func sessionOf(token string, c *auth.Claims) *domain.Session {
	return &domain.Session{
		ID:        c.ID,
		Token:     token,
		UserID:    c.UID,
		IssuedAt:  c.Issued(),
		ExpiresAt: c.Expiry(),
	}
}

func (s *SessionService) revoke(ctx context.Context, userID, tokenID string, expires time.Time) error {
	now := s.clock.Now()
	if expires.IsZero() {
		expires = now.Add(s.jwt.TTL)
	}
	cutoff := now.Add(-auth.Leeway)
	_, err := kv.UpdateJSON(ctx, s.store, domain.SessionsKey(userID), func(r *domain.Revocations, _ bool) error {
		if r.Tokens == nil {
			r.Tokens = map[string]time.Time{}
		}
		r.Prune(cutoff)
		r.Tokens[tokenID] = expires
		return nil
	})
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *SessionService) revoked(ctx context.Context, userID, tokenID string) (bool, error) {
	r, ok, err := kv.Load[domain.Revocations](ctx, s.store, domain.SessionsKey(userID))
	if errors.Is(err, kv.ErrCorrupt) {
		s.log.Warn("revocation record unreadable", zap.String("user_id", userID), zap.Error(err))
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load revocations: %w", err)
	}
	return ok && r.Revoked(tokenID), nil
}

func (s *SessionService) destroy(ctx context.Context) error {
	if err := s.store.Remove(ctx, domain.KeySessionCurrent); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	s.setView(AuthState{})
	return nil
}

// changed refreshes the local view and raises auth-state-changed.
func (s *SessionService) changed(ctx context.Context) {
	var st AuthState
	u, err := s.CurrentUser(ctx)
	if err != nil {
		s.log.Warn("refresh auth state", zap.Error(err))
	}
	if u != nil {
		st.User = u
		st.Session, _ = s.CurrentSession(ctx)
	}
	s.setView(st)
	s.events.Publish(domain.TopicAuthStateChanged, st)
}

func (s *SessionService) setView(st AuthState) {
	s.mu.Lock()
	s.view = st
	s.mu.Unlock()
}
