package quiz

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"animehub/internal/domain"
)

type State int

const (
	NotStarted State = iota
	InProgress
	Submitted
	TimedOut
	// Abandoned is a session closed before it finished. It is never scored.
	Abandoned
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Submitted:
		return "submitted"
	case TimedOut:
		return "timed_out"
	case Abandoned:
		return "abandoned"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for st := NotStarted; st <= Abandoned; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown quiz state %q", b)
}

func (s State) Terminal() bool { return s == Submitted || s == TimedOut || s == Abandoned }

type Result struct {
	QuizID     string         `json:"quizId"`
	UserID     string         `json:"userId"`
	Outcome    State          `json:"outcome"`
	Score      int            `json:"score"`
	Total      int            `json:"total"`
	Percentage float64        `json:"percentage"`
	Tier       Tier           `json:"tier"`
	Reward     int            `json:"reward"`
	Answers    map[int]string `json:"answers"`
	FinishedAt time.Time      `json:"finishedAt"`
}

// View is a point-in-time copy of a session.
type View struct {
	QuizID           string         `json:"quizId"`
	UserID           string         `json:"userId"`
	State            State          `json:"state"`
	CurrentQuestion  int            `json:"currentQuestion"`
	Answers          map[int]string `json:"answers"`
	TimeLimitSec     int            `json:"timeLimitSec"`
	TimeRemainingSec int            `json:"timeRemainingSec"`
	StartedAt        *time.Time     `json:"startedAt,omitempty"`
	Result           *Result        `json:"result,omitempty"`
}

// Session is one user's attempt at one quiz. Remaining time is always
// derived from the start timestamp, so a stalled ticker cannot stretch it.
type Session struct {
	quiz     *Quiz
	userID   string
	clock    clockwork.Clock
	tick     time.Duration
	rewards  RewardTable
	onFinish func(Result)

	mu        sync.Mutex
	state     State
	answers   map[int]string
	current   int
	limit     time.Duration
	startedAt time.Time
	left      time.Duration
	result    *Result

	stopOnce sync.Once
	stop     chan struct{}
	loopDone chan struct{}
}

// NewSession prepares a session. onFinish runs exactly once, after the
// session is scored, on whichever goroutine finished it.
func NewSession(q *Quiz, userID string, clock clockwork.Clock, tick time.Duration, rewards RewardTable, onFinish func(Result)) *Session {
	if tick <= 0 {
		tick = time.Second
	}
	return &Session{
		quiz:     q,
		userID:   userID,
		clock:    clock,
		tick:     tick,
		rewards:  rewards,
		onFinish: onFinish,
		answers:  make(map[int]string),
		stop:     make(chan struct{}),
		loopDone: make(chan struct{}),
	}
}

func (s *Session) Start(limit time.Duration) error {
	if limit < time.Second {
		return domain.Invalid("timeLimit", "must be at least one second")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != NotStarted {
		return fmt.Errorf("%w: start in %s", domain.ErrQuizState, s.state)
	}
	s.state = InProgress
	s.limit = limit
	s.startedAt = s.clock.Now()
	go s.run()
	return nil
}

// Answer records value for question index. A later answer replaces an
// earlier one.
func (s *Session) Answer(index int, value string) error {
	if index < 0 || index >= len(s.quiz.Questions) {
		return domain.Invalid("index", "no such question")
	}
	if !slices.Contains(s.quiz.Questions[index].Options, value) {
		return domain.Invalid("value", "not one of the options")
	}

	s.mu.Lock()
	if res, ok := s.expireLocked(); ok {
		s.mu.Unlock()
		s.finished(res)
		return fmt.Errorf("%w: time is up", domain.ErrQuizState)
	}
	defer s.mu.Unlock()
	if s.state != InProgress {
		return fmt.Errorf("%w: answer in %s", domain.ErrQuizState, s.state)
	}
	s.answers[index] = value
	return nil
}

func (s *Session) Next() (int, error) { return s.move(1) }
func (s *Session) Prev() (int, error) { return s.move(-1) }

func (s *Session) move(step int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != InProgress {
		return s.current, fmt.Errorf("%w: navigate in %s", domain.ErrQuizState, s.state)
	}
	s.current = min(max(s.current+step, 0), len(s.quiz.Questions)-1)
	return s.current, nil
}

// Submit scores the session. After a timeout or an earlier submit it
// returns the result already computed.
func (s *Session) Submit() (Result, error) {
	s.mu.Lock()
	if s.result != nil {
		res := *s.result
		s.mu.Unlock()
		return res, nil
	}
	if s.state != InProgress {
		st := s.state
		s.mu.Unlock()
		return Result{}, fmt.Errorf("%w: submit in %s", domain.ErrQuizState, st)
	}
	res, ok := s.expireLocked()
	if !ok {
		res = s.finishLocked(Submitted)
	}
	s.mu.Unlock()

	s.finished(res)
	return res, nil
}

// Remaining is the time left, never negative.
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remainingLocked()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := View{
		QuizID:           s.quiz.ID,
		UserID:           s.userID,
		State:            s.state,
		CurrentQuestion:  s.current,
		Answers:          cloneAnswers(s.answers),
		TimeLimitSec:     int(s.limit / time.Second),
		TimeRemainingSec: int((s.remainingLocked() + time.Second - 1) / time.Second),
	}
	if s.state != NotStarted {
		t := s.startedAt
		v.StartedAt = &t
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	return v
}

// Close stops the countdown. An unfinished session becomes Abandoned and
// is not scored.
func (s *Session) Close() {
	s.mu.Lock()
	started := s.state != NotStarted
	if !s.state.Terminal() {
		s.left = s.remainingLocked()
		s.state = Abandoned
	}
	s.mu.Unlock()

	s.stopOnce.Do(func() { close(s.stop) })
	if started {
		<-s.loopDone
	}
}

func (s *Session) run() {
	defer close(s.loopDone)
	t := s.clock.NewTicker(s.tick)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.Chan():
			s.mu.Lock()
			res, expired := s.expireLocked()
			done := s.state.Terminal()
			s.mu.Unlock()
			if expired {
				s.finished(res)
			}
			if done {
				return
			}
		}
	}
}

func (s *Session) remainingLocked() time.Duration {
	switch s.state {
	case NotStarted:
		return s.limit
	case InProgress:
		return max(s.limit-s.clock.Since(s.startedAt), 0)
	}
	return s.left
}

// expireLocked times the session out if its deadline has passed.
func (s *Session) expireLocked() (Result, bool) {
	if s.state != InProgress || s.remainingLocked() > 0 {
		return Result{}, false
	}
	return s.finishLocked(TimedOut), true
}

func (s *Session) finishLocked(outcome State) Result {
	s.left = s.remainingLocked()
	s.state = outcome
	res := Score(s.quiz, s.answers, s.rewards)
	res.UserID = s.userID
	res.Outcome = outcome
	res.FinishedAt = s.clock.Now()
	s.result = &res
	return res
}

func (s *Session) finished(res Result) {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.onFinish != nil {
		s.onFinish(res)
	}
}

// Score compares answers with the correct options and applies rewards.
func Score(q *Quiz, answers map[int]string, rewards RewardTable) Result {
	res := Result{
		QuizID:  q.ID,
		Total:   len(q.Questions),
		Answers: cloneAnswers(answers),
	}
	for i, qq := range q.Questions {
		if answers[i] == qq.Correct {
			res.Score++
		}
	}
	if res.Total > 0 {
		res.Percentage = float64(res.Score) * 100 / float64(res.Total)
	}
	res.Tier, res.Reward = rewards.Evaluate(res.Percentage)
	return res
}

func cloneAnswers(m map[int]string) map[int]string {
	out := make(map[int]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
