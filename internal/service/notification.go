package service

import (
	"context"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"animehub/internal/core/bus"
	"animehub/internal/core/kv"
	"animehub/internal/core/metrics"
	"animehub/internal/domain"
	"animehub/pkg/utils"
)

// Notifier is the write side other services depend on.
type Notifier interface {
	Create(ctx context.Context, in domain.NotificationInput) (*domain.Notification, error)
}

// NotificationService keeps one append-only log per user.
type NotificationService struct {
	repo   domain.NotificationRepository
	ids    *utils.Snowflake
	events *bus.Local
	clock  clockwork.Clock
	log    *zap.Logger
	views  *views[[]domain.Notification]
}

func NewNotificationService(repo domain.NotificationRepository, ids *utils.Snowflake, events *bus.Local,
	clock clockwork.Clock, log *zap.Logger) *NotificationService {
	return &NotificationService{
		repo:   repo,
		ids:    ids,
		events: events,
		clock:  clock,
		log:    log,
		views:  newViews[[]domain.Notification](),
	}
}

func (s *NotificationService) Create(ctx context.Context, in domain.NotificationInput) (*domain.Notification, error) {
	if in.UserID == "" {
		return nil, domain.Invalid("userId", "required")
	}
	if strings.TrimSpace(in.Message) == "" {
		return nil, domain.Invalid("message", "required")
	}
	if in.Kind == "" {
		in.Kind = domain.NotifySystem
	}
	n := domain.Notification{
		ID:        s.ids.Next(),
		UserID:    in.UserID,
		Kind:      in.Kind,
		Title:     in.Title,
		Message:   in.Message,
		Link:      in.Link,
		CreatedAt: s.clock.Now(),
	}
	all, err := s.repo.Mutate(ctx, in.UserID, func(log []domain.Notification) ([]domain.Notification, error) {
		return append(log, n), nil
	})
	if err != nil {
		return nil, err
	}
	metrics.NotificationsCreated.WithLabelValues(string(n.Kind)).Inc()
	s.commit(in.UserID, all)
	return &n, nil
}

// GetUserNotifications returns the log newest first.
func (s *NotificationService) GetUserNotifications(ctx context.Context, userID string) ([]domain.Notification, error) {
	if userID == "" {
		return []domain.Notification{}, nil
	}
	all, err := s.views.cached(ctx, userID, s.loader(userID))
	if err != nil {
		return nil, err
	}
	return newestFirst(all), nil
}

func (s *NotificationService) GetUnreadCount(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	all, err := s.views.cached(ctx, userID, s.loader(userID))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, x := range all {
		if !x.IsRead {
			n++
		}
	}
	return n, nil
}

// MarkAsRead flips one notification to read. Already read is a no-op.
func (s *NotificationService) MarkAsRead(ctx context.Context, userID, id string) error {
	if userID == "" {
		return nil
	}
	all, err := s.repo.Mutate(ctx, userID, func(log []domain.Notification) ([]domain.Notification, error) {
		i := slices.IndexFunc(log, func(n domain.Notification) bool { return n.ID == id })
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		if log[i].IsRead {
			return nil, kv.ErrNoChange
		}
		now := s.clock.Now()
		log[i].IsRead = true
		log[i].ReadAt = &now
		return log, nil
	})
	if err != nil {
		return err
	}
	s.commit(userID, all)
	return nil
}

// MarkAllAsRead returns how many notifications changed.
func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, nil
	}
	changed := 0
	all, err := s.repo.Mutate(ctx, userID, func(log []domain.Notification) ([]domain.Notification, error) {
		changed = 0
		now := s.clock.Now()
		for i := range log {
			if log[i].IsRead {
				continue
			}
			log[i].IsRead = true
			log[i].ReadAt = &now
			changed++
		}
		if changed == 0 {
			return nil, kv.ErrNoChange
		}
		return log, nil
	})
	if err != nil {
		return 0, err
	}
	s.commit(userID, all)
	return changed, nil
}

// Refresh re-reads a user's log from the store.
func (s *NotificationService) Refresh(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	_, err := s.views.reload(ctx, userID, true, s.loader(userID))
	if err != nil {
		return err
	}
	s.events.Publish(domain.TopicNotificationsChanged, userID)
	return nil
}

// HandleChange refreshes a tracked log written by another tab.
func (s *NotificationService) HandleChange(ctx context.Context, key string) {
	userID, ok := domain.UserFromNotificationsKey(key)
	if !ok || !s.views.tracked(userID) {
		return
	}
	if err := s.Refresh(ctx, userID); err != nil {
		s.log.Warn("refresh notifications", zap.String("user_id", userID), zap.Error(err))
	}
}

// Tracked lists the users whose logs this tab holds a view of.
func (s *NotificationService) Tracked() []string { return s.views.ids() }

func (s *NotificationService) loader(userID string) func(context.Context) ([]domain.Notification, error) {
	return func(ctx context.Context) ([]domain.Notification, error) {
		return s.repo.Load(ctx, userID)
	}
}

func (s *NotificationService) commit(userID string, all []domain.Notification) {
	s.views.set(userID, all)
	s.events.Publish(domain.TopicNotificationsChanged, userID)
}

func newestFirst(all []domain.Notification) []domain.Notification {
	out := slices.Clone(all)
	slices.Reverse(out)
	slices.SortStableFunc(out, func(a, b domain.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}
