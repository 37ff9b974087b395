package repo

import (
	"context"

	"go.uber.org/zap"

	"animehub/internal/core/kv"
	"animehub/internal/domain"
)

type AdminActionRepo struct {
	s   kv.Store
	log *zap.Logger
}

func NewAdminActionRepo(s kv.Store, log *zap.Logger) *AdminActionRepo {
	return &AdminActionRepo{s: s, log: log}
}

func noActions() []domain.AdminAction { return []domain.AdminAction{} }

func (r *AdminActionRepo) List(ctx context.Context, userID string) ([]domain.AdminAction, error) {
	return load(ctx, r.s, r.log, domain.AdminActionsKey(userID), noActions)
}

func (r *AdminActionRepo) Append(ctx context.Context, a domain.AdminAction) error {
	_, err := mutate(ctx, r.s, domain.AdminActionsKey(a.UserID), noActions, func(all []domain.AdminAction) ([]domain.AdminAction, error) {
		return append(all, a), nil
	})
	return err
}
