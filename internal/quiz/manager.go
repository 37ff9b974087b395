package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"animehub/internal/core/kv"
	"animehub/internal/core/metrics"
	"animehub/internal/domain"
)

type XPAwarder interface {
	AwardXP(ctx context.Context, userID string, amount int) (*domain.User, error)
}

type Notifier interface {
	Create(ctx context.Context, in domain.NotificationInput) (*domain.Notification, error)
}

const (
	minTimeLimit = 5 * time.Second
	maxTimeLimit = 2 * time.Hour
)

type ManagerOptions struct {
	Bank         *Bank
	Store        kv.Store
	XP           XPAwarder
	Notes        Notifier
	Rewards      RewardTable
	DefaultLimit time.Duration
	Tick         time.Duration
	Clock        clockwork.Clock
	Logger       *zap.Logger
}

type sessionKey struct{ user, quiz string }

// Manager keeps at most one live session per user and quiz, so coming back
// to a quiz resumes it instead of restarting the clock.
type Manager struct {
	opts   ManagerOptions
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	live   map[sessionKey]*Session
	closed bool
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 5 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{opts: opts, ctx: ctx, cancel: cancel, live: make(map[sessionKey]*Session)}
}

func (m *Manager) Quizzes() []*Quiz { return m.opts.Bank.List() }

func (m *Manager) Quiz(id string) (*Quiz, error) {
	q, ok := m.opts.Bank.Get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return q, nil
}

// Begin returns the user's running session for quizID or starts a new one.
// A zero limit uses the user's saved limit, then the quiz's, then the
// default. A non-zero limit is saved for next time.
func (m *Manager) Begin(ctx context.Context, userID, quizID string, limit time.Duration) (*Session, error) {
	if userID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	q, err := m.Quiz(quizID)
	if err != nil {
		return nil, err
	}

	k := sessionKey{userID, quizID}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: manager closed", domain.ErrQuizState)
	}
	if s, ok := m.live[k]; ok && s.State() == InProgress {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	if limit != 0 {
		if err := m.SetTimeLimit(ctx, userID, limit); err != nil {
			return nil, err
		}
	} else if limit, err = m.limitFor(ctx, userID, q); err != nil {
		return nil, err
	}

	s := NewSession(q, userID, m.opts.Clock, m.opts.Tick, m.opts.Rewards, m.credit)
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.live[k]; ok && cur.State() == InProgress {
		// lost a race with a concurrent Begin
		return cur, nil
	}
	if err := s.Start(limit); err != nil {
		return nil, err
	}
	m.live[k] = s
	m.opts.Logger.Info("quiz started",
		zap.String("user_id", userID),
		zap.String("quiz_id", quizID),
		zap.Duration("limit", limit))
	return s, nil
}

// Session returns the most recent session of the user for quizID.
func (m *Manager) Session(userID, quizID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.live[sessionKey{userID, quizID}]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

// Abandon closes the session without scoring it.
func (m *Manager) Abandon(userID, quizID string) error {
	m.mu.Lock()
	k := sessionKey{userID, quizID}
	s, ok := m.live[k]
	delete(m.live, k)
	m.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
	s.Close()
	return nil
}

func (m *Manager) TimeLimit(ctx context.Context, userID string) (time.Duration, error) {
	secs, ok, err := kv.Load[int](ctx, m.opts.Store, domain.QuizTimeLimitKey(userID))
	switch {
	case errors.Is(err, kv.ErrCorrupt):
		m.opts.Logger.Warn("quiz: unreadable time limit", zap.String("user_id", userID), zap.Error(err))
		return 0, nil
	case err != nil:
		return 0, err
	case !ok:
		return 0, nil
	}
	return time.Duration(secs) * time.Second, nil
}

func (m *Manager) SetTimeLimit(ctx context.Context, userID string, limit time.Duration) error {
	if limit < minTimeLimit || limit > maxTimeLimit {
		return domain.Invalid("timeLimit", fmt.Sprintf("must be between %s and %s", minTimeLimit, maxTimeLimit))
	}
	return kv.Save(ctx, m.opts.Store, domain.QuizTimeLimitKey(userID), int(limit/time.Second))
}

// Close abandons every running session and stops all countdowns.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := make([]*Session, 0, len(m.live))
	for _, s := range m.live {
		sessions = append(sessions, s)
	}
	m.live = make(map[sessionKey]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	m.cancel()
}

func (m *Manager) limitFor(ctx context.Context, userID string, q *Quiz) (time.Duration, error) {
	saved, err := m.TimeLimit(ctx, userID)
	if err != nil {
		return 0, err
	}
	switch {
	case saved > 0:
		return saved, nil
	case q.TimeLimit() > 0:
		return q.TimeLimit(), nil
	}
	return m.opts.DefaultLimit, nil
}

// credit pays out a finished session.
func (m *Manager) credit(res Result) {
	log := m.opts.Logger.With(zap.String("user_id", res.UserID), zap.String("quiz_id", res.QuizID))
	metrics.QuizCompletions.WithLabelValues(res.Outcome.String(), string(res.Tier)).Inc()
	log.Info("quiz finished",
		zap.Stringer("outcome", res.Outcome),
		zap.Int("score", res.Score),
		zap.Int("total", res.Total),
		zap.Int("reward", res.Reward))

	if res.Reward > 0 && m.opts.XP != nil {
		if _, err := m.opts.XP.AwardXP(m.ctx, res.UserID, res.Reward); err != nil {
			log.Warn("quiz: award xp", zap.Error(err))
		}
	}
	if m.opts.Notes != nil {
		_, err := m.opts.Notes.Create(m.ctx, domain.NotificationInput{
			UserID:  res.UserID,
			Kind:    domain.NotifyQuizReward,
			Title:   "Quiz complete",
			Message: fmt.Sprintf("You scored %d/%d and earned %d XP.", res.Score, res.Total, res.Reward),
			Link:    "/quiz/" + res.QuizID,
		})
		if err != nil {
			log.Warn("quiz: reward notification", zap.Error(err))
		}
	}
}
