package domain

import (
	"context"
	"time"
)

type SubmissionType string

const (
	SubmissionAnimeReview   SubmissionType = "anime_review"
	SubmissionMangaReview   SubmissionType = "manga_review"
	SubmissionEpisodeReview SubmissionType = "episode_review"
	SubmissionVlog          SubmissionType = "vlog"
)

func (t SubmissionType) Valid() bool {
	switch t {
	case SubmissionAnimeReview, SubmissionMangaReview, SubmissionEpisodeReview, SubmissionVlog:
		return true
	}
	return false
}

type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// EditRequestPrefix marks rejection notes that ask the author to revise.
const EditRequestPrefix = "[edit requested] "

type Submission struct {
	ID         string           `json:"id"`
	CriticID   string           `json:"criticId"`
	Type       SubmissionType   `json:"type"`
	Title      string           `json:"title"`
	Content    string           `json:"content"`
	ContentID  string           `json:"contentId,omitempty"`
	Rating     *float64         `json:"rating,omitempty"`
	VideoURL   string           `json:"videoUrl,omitempty"`
	Status     SubmissionStatus `json:"status"`
	AdminNotes string           `json:"adminNotes,omitempty"`
	DecidedBy  string           `json:"decidedBy,omitempty"`
	DecidedAt  *time.Time       `json:"decidedAt,omitempty"`
	Published  bool             `json:"published"`
	Views      int              `json:"views"`
	Likes      int              `json:"likes"`
	Comments   int              `json:"comments"`
	CreatedAt  time.Time        `json:"createdAt"`
	Version    int64            `json:"version"`
}

func (s *Submission) Decided() bool { return s.Status != SubmissionPending }

type SubmissionInput struct {
	Type      SubmissionType `json:"type"`
	Title     string         `json:"title"`
	Content   string         `json:"content"`
	ContentID string         `json:"contentId,omitempty"`
	Rating    *float64       `json:"rating,omitempty"`
	VideoURL  string         `json:"videoUrl,omitempty"`
}

type SubmissionFilter struct {
	Status   SubmissionStatus
	CriticID string
	Type     SubmissionType
}

func (f SubmissionFilter) Match(s *Submission) bool {
	if f.Status != "" && s.Status != f.Status {
		return false
	}
	if f.CriticID != "" && s.CriticID != f.CriticID {
		return false
	}
	if f.Type != "" && s.Type != f.Type {
		return false
	}
	return true
}

type SubmissionRepository interface {
	List(ctx context.Context) ([]Submission, error)
	Mutate(ctx context.Context, fn func(all []Submission) ([]Submission, error)) ([]Submission, error)
}
