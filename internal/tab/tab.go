// Package tab wires one context of a profile: one view of the shared
// medium, one in-tab bus, one cross-tab endpoint and every service.
package tab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"animehub/internal/core/auth"
	"animehub/internal/core/bus"
	"animehub/internal/core/config"
	"animehub/internal/core/kv"
	"animehub/internal/domain"
	"animehub/internal/quiz"
	"animehub/internal/repo"
	"animehub/internal/service"
	"animehub/pkg/utils"
)

type Options struct {
	// Medium is shared by every tab of the profile.
	Medium kv.Store
	// Channel is this tab's own endpoint; Tab closes it.
	Channel bus.CrossTab

	JWT     *auth.JWTer
	Hasher  utils.PasswordHasher
	Bank    *quiz.Bank
	Rewards quiz.RewardTable
	Polling config.Polling

	QuizDefaultLimit time.Duration
	// NodeID seeds notification ids; tabs sharing a medium need distinct ids.
	NodeID int64

	Clock  clockwork.Clock
	Logger *zap.Logger
}

type Tab struct {
	Store  kv.Store
	Events *bus.Local

	Sessions      *service.SessionService
	Progress      *service.ProgressService
	Notifications *service.NotificationService
	Moderation    *service.ModerationService
	Quizzes       *quiz.Manager

	channel   bus.CrossTab
	watcher   *service.Watcher
	handlers  []service.ChangeHandler
	ctx       context.Context
	cancel    context.CancelFunc
	stop      func()
	closeOnce sync.Once
	log       *zap.Logger
}

func Open(ctx context.Context, opts Options) (*Tab, error) {
	if opts.Medium == nil || opts.Channel == nil {
		return nil, errors.New("tab: medium and channel are required")
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Hasher == nil {
		opts.Hasher = utils.BcryptHasher{}
	}
	if opts.JWT == nil {
		return nil, errors.New("tab: jwt signer is required")
	}
	if opts.JWT.Now == nil {
		opts.JWT.Now = opts.Clock.Now
	}
	if opts.Bank == nil {
		opts.Bank = &quiz.Bank{}
	}
	if opts.Rewards == (quiz.RewardTable{}) {
		opts.Rewards = quiz.DefaultRewards()
	}
	if err := opts.Rewards.Validate(); err != nil {
		return nil, err
	}

	log := opts.Logger.With(zap.String("tab", opts.Channel.Origin()))
	store := kv.NewAnnouncing(opts.Medium, opts.Channel)
	events := bus.NewLocal()
	clock := opts.Clock

	users := repo.NewUserRepo(store, log)
	t := &Tab{
		Store:   store,
		Events:  events,
		channel: opts.Channel,
		log:     log,
	}
	t.ctx, t.cancel = context.WithCancel(ctx)

	t.Sessions = service.NewSessionService(store, users, opts.JWT, opts.Hasher, events, clock, log)
	t.Notifications = service.NewNotificationService(repo.NewNotificationRepo(store, log), utils.NewSnowflake(opts.NodeID), events, clock, log)
	t.Progress = service.NewProgressService(repo.NewProgressRepo(store, log), t.Notifications, events, clock, log)
	t.Moderation = service.NewModerationService(users, repo.NewSubmissionRepo(store, log), repo.NewAdminActionRepo(store, log),
		t.Notifications, t.Sessions, events, clock, log)
	t.Quizzes = quiz.NewManager(quiz.ManagerOptions{
		Bank:         opts.Bank,
		Store:        store,
		XP:           t.Sessions,
		Notes:        t.Notifications,
		Rewards:      opts.Rewards,
		DefaultLimit: opts.QuizDefaultLimit,
		Tick:         opts.Polling.QuizTick,
		Clock:        clock,
		Logger:       log,
	})
	t.handlers = []service.ChangeHandler{t.Sessions, t.Progress, t.Notifications, t.Moderation}

	t.stop = opts.Channel.Listen(t.onChange)
	t.watcher = service.NewWatcher(t.ctx, clock, log)
	t.watcher.Every("notifications", opts.Polling.Notifications, t.pollNotifications)
	t.watcher.Every("stats", opts.Polling.Stats, t.pollStats)

	// derive the initial auth view from whatever the profile already holds
	t.Sessions.HandleChange(t.ctx, domain.KeySessionCurrent)
	log.Debug("tab opened")
	return t, nil
}

func (t *Tab) Origin() string { return t.channel.Origin() }

// CurrentUserID is empty when the tab is signed out.
func (t *Tab) CurrentUserID() string {
	if u := t.Sessions.State().User; u != nil {
		return u.ID
	}
	return ""
}

// Close stops listeners, pollers and live quiz timers, then leaves the
// cross-tab channel.
func (t *Tab) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.stop()
		t.watcher.Stop()
		t.Quizzes.Close()
		t.cancel()
		err = t.channel.Close()
		t.log.Debug("tab closed")
	})
	return err
}

func (t *Tab) onChange(c bus.Change) {
	if t.ctx.Err() != nil {
		return
	}
	for _, h := range t.handlers {
		h.HandleChange(t.ctx, c.Key)
	}
}

func (t *Tab) pollNotifications(ctx context.Context) error {
	ids := t.Notifications.Tracked()
	if uid := t.CurrentUserID(); uid != "" {
		ids = append(ids, uid)
	}
	seen := make(map[string]bool, len(ids))
	var errs []error
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		errs = append(errs, t.Notifications.Refresh(ctx, id))
	}
	return errors.Join(errs...)
}

func (t *Tab) pollStats(ctx context.Context) error {
	uid := t.CurrentUserID()
	if uid == "" {
		return nil
	}
	_, err := t.Progress.UpdateUserStats(ctx, uid)
	return err
}
