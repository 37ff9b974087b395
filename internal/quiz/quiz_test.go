package quiz

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"animehub/internal/core/config"
	"animehub/internal/core/kv"
	"animehub/internal/domain"
)

func sampleQuiz() *Quiz {
	opts := []string{"A", "B", "C"}
	return &Quiz{
		ID:    "q1",
		Title: "Sample",
		Questions: []Question{
			{Prompt: "one", Options: opts, Correct: "A"},
			{Prompt: "two", Options: opts, Correct: "C"},
			{Prompt: "three", Options: opts, Correct: "B"},
		},
	}
}

// startSession starts a session and waits for its ticker to be armed.
func startSession(t *testing.T, clock *clockwork.FakeClock, limit time.Duration, onFinish func(Result)) *Session {
	t.Helper()
	s := NewSession(sampleQuiz(), "u1", clock, time.Second, DefaultRewards(), onFinish)
	require.NoError(t, s.Start(limit))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	t.Cleanup(s.Close)
	return s
}

func TestLoadBank_ConfigFile(t *testing.T) {
	b, err := LoadBank("../../configs/quizzes.yaml")
	require.NoError(t, err)
	q, ok := b.Get("shonen-basics")
	require.True(t, ok)
	assert.Equal(t, 120*time.Second, q.TimeLimit())
	assert.Len(t, q.Questions, 3)
	assert.Len(t, b.List(), 1)

	raw, err := json.Marshal(q)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct")
}

func TestParseBank_Rejects(t *testing.T) {
	_, err := ParseBank([]byte("quizzes:\n  - id: a\n    questions:\n      - prompt: p\n        options: [x, y]\n        correct: z\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = ParseBank([]byte("quizzes:\n  - id: a\n    questions: []\n"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	dup := "quizzes:\n" +
		"  - id: a\n    questions:\n      - {prompt: p, options: [x], correct: x}\n" +
		"  - id: a\n    questions:\n      - {prompt: p, options: [x], correct: x}\n"
	_, err = ParseBank([]byte(dup))
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = ParseBank([]byte("quizzes: ["))
	assert.Error(t, err)
}

func TestRewardTable_Evaluate(t *testing.T) {
	r := DefaultRewards()
	require.NoError(t, r.Validate())
	cases := []struct {
		pct    float64
		tier   Tier
		reward int
	}{
		{0, TierNone, 10},
		{39.9, TierNone, 10},
		{40, TierLow, 30},
		{66.7, TierMid, 60},
		{80, TierHigh, 110},
		{100, TierHigh, 110},
	}
	for _, c := range cases {
		tier, reward := r.Evaluate(c.pct)
		assert.Equal(t, c.tier, tier, "pct %v", c.pct)
		assert.Equal(t, c.reward, reward, "pct %v", c.pct)
	}

	bad := r
	bad.MidMinPct = 90
	assert.ErrorIs(t, bad.Validate(), domain.ErrValidation)
}

func TestRewardsFromConfig(t *testing.T) {
	r := RewardsFromConfig(config.Rewards{ParticipationBase: 5, TierLowMinPct: 30, TierMidMinPct: 50, TierHighMinPct: 90, TierHighBonus: 7})
	tier, reward := r.Evaluate(95)
	assert.Equal(t, TierHigh, tier)
	assert.Equal(t, 12, reward)
}

func TestScore_TwoOfThreeIsMidTier(t *testing.T) {
	res := Score(sampleQuiz(), map[int]string{0: "A", 1: "C", 2: "A"}, DefaultRewards())
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 3, res.Total)
	assert.InDelta(t, 66.7, res.Percentage, 0.05)
	assert.Equal(t, TierMid, res.Tier)
	assert.Equal(t, 60, res.Reward)
}

func TestSession_SubmitScoresOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls int
	s := startSession(t, clock, time.Minute, func(Result) { calls++ })

	require.NoError(t, s.Answer(0, "B"))
	require.NoError(t, s.Answer(0, "A"))
	require.NoError(t, s.Answer(1, "C"))

	first, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, Submitted, first.Outcome)
	assert.Equal(t, 2, first.Score)

	again, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, 1, calls)

	assert.ErrorIs(t, s.Answer(2, "B"), domain.ErrQuizState)
}

func TestSession_TimeoutAutoSubmits(t *testing.T) {
	clock := clockwork.NewFakeClock()
	results := make(chan Result, 2)
	s := startSession(t, clock, 5*time.Second, func(r Result) { results <- r })

	require.NoError(t, s.Answer(0, "A"))
	require.NoError(t, s.Answer(2, "C"))
	want := Score(sampleQuiz(), map[int]string{0: "A", 2: "C"}, DefaultRewards())

	clock.Advance(5 * time.Second)
	var got Result
	select {
	case got = <-results:
	case <-time.After(time.Second):
		t.Fatal("timeout did not finish the session")
	}
	assert.Equal(t, TimedOut, got.Outcome)
	assert.Equal(t, want.Score, got.Score)
	assert.Equal(t, want.Tier, got.Tier)
	assert.Equal(t, want.Reward, got.Reward)
	assert.Equal(t, want.Answers, got.Answers)
	assert.Equal(t, TimedOut, s.State())
	assert.Zero(t, s.Remaining())

	after, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, got, after)
	assert.Empty(t, results)
}

func TestSession_RemainingFollowsWallClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := startSession(t, clock, time.Minute, nil)

	clock.Advance(20 * time.Second)
	assert.Equal(t, 40*time.Second, s.Remaining())
	assert.Equal(t, 40, s.View().TimeRemainingSec)
	assert.Equal(t, InProgress, s.State())
}

func TestSession_SubmitAfterDeadlineCountsAsTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	results := make(chan Result, 2)
	s := startSession(t, clock, 3*time.Second, func(r Result) { results <- r })

	clock.Advance(10 * time.Second)
	res, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, TimedOut, res.Outcome)

	require.Eventually(t, func() bool { return len(results) == 1 }, time.Second, 5*time.Millisecond)
}

func TestSession_CloseAbandons(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls int
	s := startSession(t, clock, 5*time.Second, func(Result) { calls++ })
	require.NoError(t, s.Answer(0, "A"))

	s.Close()
	clock.Advance(time.Minute)
	assert.Equal(t, Abandoned, s.State())
	_, err := s.Submit()
	assert.ErrorIs(t, err, domain.ErrQuizState)
	assert.Zero(t, calls)
}

func TestSession_Guards(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewSession(sampleQuiz(), "u1", clock, time.Second, DefaultRewards(), nil)
	assert.ErrorIs(t, s.Answer(0, "A"), domain.ErrQuizState)
	_, err := s.Submit()
	assert.ErrorIs(t, err, domain.ErrQuizState)
	assert.ErrorIs(t, s.Start(0), domain.ErrValidation)

	require.NoError(t, s.Start(time.Minute))
	defer s.Close()
	assert.ErrorIs(t, s.Start(time.Minute), domain.ErrQuizState)
	assert.ErrorIs(t, s.Answer(3, "A"), domain.ErrValidation)
	assert.ErrorIs(t, s.Answer(0, "Z"), domain.ErrValidation)

	i, err := s.Prev()
	require.NoError(t, err)
	assert.Equal(t, 0, i)
	for range 5 {
		i, err = s.Next()
		require.NoError(t, err)
	}
	assert.Equal(t, 2, i)
}

type recorder struct {
	mu    sync.Mutex
	xp    map[string]int
	notes []domain.NotificationInput
}

func (r *recorder) AwardXP(_ context.Context, userID string, amount int) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.xp == nil {
		r.xp = map[string]int{}
	}
	r.xp[userID] += amount
	return &domain.User{ID: userID, XP: r.xp[userID]}, nil
}

func (r *recorder) Create(_ context.Context, in domain.NotificationInput) (*domain.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, in)
	return &domain.Notification{UserID: in.UserID, Kind: in.Kind}, nil
}

func newManager(t *testing.T) (*Manager, *clockwork.FakeClock, *recorder, kv.Store) {
	t.Helper()
	b, err := LoadBank("../../configs/quizzes.yaml")
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	rec := &recorder{}
	store := kv.NewMemory()
	m := NewManager(ManagerOptions{
		Bank:    b,
		Store:   store,
		XP:      rec,
		Notes:   rec,
		Rewards: DefaultRewards(),
		Tick:    time.Second,
		Clock:   clock,
		Logger:  zap.NewNop(),
	})
	t.Cleanup(m.Close)
	return m, clock, rec, store
}

func TestManager_ResumesRunningSession(t *testing.T) {
	m, clock, _, _ := newManager(t)
	ctx := context.Background()

	first, err := m.Begin(ctx, "u1", "shonen-basics", 0)
	require.NoError(t, err)
	assert.Equal(t, 120, first.View().TimeLimitSec)

	clock.Advance(30 * time.Second)
	second, err := m.Begin(ctx, "u1", "shonen-basics", 0)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 90*time.Second, second.Remaining())

	_, err = m.Begin(ctx, "u1", "missing", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = m.Begin(ctx, "", "shonen-basics", 0)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestManager_PersistsTimeLimit(t *testing.T) {
	m, _, _, store := newManager(t)
	ctx := context.Background()

	_, err := m.Begin(ctx, "u1", "shonen-basics", time.Second)
	assert.ErrorIs(t, err, domain.ErrValidation)

	s, err := m.Begin(ctx, "u1", "shonen-basics", 45*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, s.Remaining())

	raw, ok, err := store.Get(ctx, domain.QuizTimeLimitKey("u1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, "45")

	require.NoError(t, m.Abandon("u1", "shonen-basics"))
	assert.Equal(t, Abandoned, s.State())

	next, err := m.Begin(ctx, "u1", "shonen-basics", 0)
	require.NoError(t, err)
	assert.NotSame(t, s, next)
	assert.Equal(t, 45*time.Second, next.Remaining())
}

func TestManager_CreditsReward(t *testing.T) {
	m, _, rec, _ := newManager(t)
	ctx := context.Background()

	s, err := m.Begin(ctx, "u1", "shonen-basics", 0)
	require.NoError(t, err)
	require.NoError(t, s.Answer(0, "Straw Hat Pirates"))
	require.NoError(t, s.Answer(1, "Leaf"))
	require.NoError(t, s.Answer(2, "Eiichiro Oda"))

	res, err := s.Submit()
	require.NoError(t, err)
	assert.Equal(t, TierMid, res.Tier)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 60, rec.xp["u1"])
	require.Len(t, rec.notes, 1)
	assert.Equal(t, domain.NotifyQuizReward, rec.notes[0].Kind)

	got, err := m.Session("u1", "shonen-basics")
	require.NoError(t, err)
	assert.Equal(t, Submitted, got.State())
}

func TestManager_CloseStopsTimers(t *testing.T) {
	m, clock, rec, _ := newManager(t)
	s, err := m.Begin(context.Background(), "u1", "shonen-basics", 10*time.Second)
	require.NoError(t, err)

	m.Close()
	clock.Advance(time.Minute)
	assert.Equal(t, Abandoned, s.State())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.notes)

	_, err = m.Begin(context.Background(), "u1", "shonen-basics", 0)
	assert.ErrorIs(t, err, domain.ErrQuizState)
}
