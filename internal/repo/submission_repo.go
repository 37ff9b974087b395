package repo

import (
	"context"

	"go.uber.org/zap"

	"animehub/internal/core/kv"
	"animehub/internal/domain"
)

type SubmissionRepo struct {
	s   kv.Store
	log *zap.Logger
}

func NewSubmissionRepo(s kv.Store, log *zap.Logger) *SubmissionRepo {
	return &SubmissionRepo{s: s, log: log}
}

func noSubmissions() []domain.Submission { return []domain.Submission{} }

func (r *SubmissionRepo) List(ctx context.Context) ([]domain.Submission, error) {
	return load(ctx, r.s, r.log, domain.KeySubmissionsAll, noSubmissions)
}

func (r *SubmissionRepo) Mutate(ctx context.Context, fn func(all []domain.Submission) ([]domain.Submission, error)) ([]domain.Submission, error) {
	return mutate(ctx, r.s, domain.KeySubmissionsAll, noSubmissions, fn)
}
