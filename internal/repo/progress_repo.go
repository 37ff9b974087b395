package repo

import (
	"context"

	"go.uber.org/zap"

	"animehub/internal/core/kv"
	"animehub/internal/domain"
)

type ProgressRepo struct {
	s   kv.Store
	log *zap.Logger
}

func NewProgressRepo(s kv.Store, log *zap.Logger) *ProgressRepo { return &ProgressRepo{s: s, log: log} }

func (r *ProgressRepo) Load(ctx context.Context, userID string) (*domain.UserProgress, error) {
	p, err := load(ctx, r.s, r.log, domain.ProgressKey(userID), func() *domain.UserProgress {
		return domain.NewUserProgress(userID)
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = domain.NewUserProgress(userID)
	}
	p.Normalize(userID)
	return p, nil
}

func (r *ProgressRepo) Mutate(ctx context.Context, userID string, fn func(p *domain.UserProgress) error) (*domain.UserProgress, error) {
	empty := func() *domain.UserProgress { return domain.NewUserProgress(userID) }
	return mutate(ctx, r.s, domain.ProgressKey(userID), empty, func(p *domain.UserProgress) (*domain.UserProgress, error) {
		if p == nil {
			p = empty()
		}
		p.Normalize(userID)
		if err := fn(p); err != nil {
			return p, err
		}
		return p, nil
	})
}
