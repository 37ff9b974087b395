package repo

import (
	"context"

	"go.uber.org/zap"

	"animehub/internal/core/kv"
	"animehub/internal/domain"
)

type NotificationRepo struct {
	s   kv.Store
	log *zap.Logger
}

func NewNotificationRepo(s kv.Store, log *zap.Logger) *NotificationRepo {
	return &NotificationRepo{s: s, log: log}
}

func noNotifications() []domain.Notification { return []domain.Notification{} }

func (r *NotificationRepo) Load(ctx context.Context, userID string) ([]domain.Notification, error) {
	return load(ctx, r.s, r.log, domain.NotificationsKey(userID), noNotifications)
}

func (r *NotificationRepo) Mutate(ctx context.Context, userID string, fn func(log []domain.Notification) ([]domain.Notification, error)) ([]domain.Notification, error) {
	return mutate(ctx, r.s, domain.NotificationsKey(userID), noNotifications, fn)
}
