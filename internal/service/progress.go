package service

import (
	"context"
	"fmt"
	"slices"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"animehub/internal/core/bus"
	"animehub/internal/core/kv"
	"animehub/internal/domain"
)

// ProgressService owns progress.<user_id>. Every operation with an empty
// user id is a no-op returning an empty result.
type ProgressService struct {
	repo   domain.ProgressRepository
	notes  Notifier
	events *bus.Local
	clock  clockwork.Clock
	log    *zap.Logger
	views  *views[*domain.UserProgress]
}

func NewProgressService(repo domain.ProgressRepository, notes Notifier, events *bus.Local,
	clock clockwork.Clock, log *zap.Logger) *ProgressService {
	return &ProgressService{
		repo:   repo,
		notes:  notes,
		events: events,
		clock:  clock,
		log:    log,
		views:  newViews[*domain.UserProgress](),
	}
}

func (s *ProgressService) UpdateAnimeProgress(ctx context.Context, userID, contentID string, patch domain.AnimePatch) (*domain.AnimeProgress, error) {
	if userID == "" {
		return nil, nil
	}
	if contentID == "" {
		return nil, domain.Invalid("contentId", "required")
	}
	if err := validateAnimePatch(patch); err != nil {
		return nil, err
	}

	var before domain.ProgressStatus
	var out domain.AnimeProgress
	_, err := s.mutate(ctx, userID, func(p *domain.UserProgress) error {
		cur := p.Anime[contentID]
		if cur == nil {
			cur = &domain.AnimeProgress{UserID: userID, ContentID: contentID}
		}
		before = cur.Status
		next := *cur
		if err := applyAnime(&next, patch); err != nil {
			return err
		}
		next.LastUpdated = s.clock.Now()
		p.Anime[contentID] = &next
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if before != domain.StatusCompleted && out.Status == domain.StatusCompleted {
		s.completed(ctx, userID, domain.KindAnime, contentID, fmt.Sprintf("You finished all %d episodes.", out.TotalEpisodes))
	}
	return &out, nil
}

func (s *ProgressService) UpdateMangaProgress(ctx context.Context, userID, contentID string, patch domain.MangaPatch) (*domain.MangaProgress, error) {
	if userID == "" {
		return nil, nil
	}
	if contentID == "" {
		return nil, domain.Invalid("contentId", "required")
	}
	if err := validateMangaPatch(patch); err != nil {
		return nil, err
	}

	var before domain.ProgressStatus
	var out domain.MangaProgress
	_, err := s.mutate(ctx, userID, func(p *domain.UserProgress) error {
		cur := p.Manga[contentID]
		if cur == nil {
			cur = &domain.MangaProgress{UserID: userID, ContentID: contentID}
		}
		before = cur.Status
		next := *cur
		if err := applyManga(&next, patch); err != nil {
			return err
		}
		next.LastUpdated = s.clock.Now()
		p.Manga[contentID] = &next
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	if before != domain.StatusCompleted && out.Status == domain.StatusCompleted {
		s.completed(ctx, userID, domain.KindManga, contentID, fmt.Sprintf("You finished all %d chapters.", out.TotalChaps))
	}
	return &out, nil
}

// RemoveProgress forgets one entry. Removing an absent entry is a no-op.
func (s *ProgressService) RemoveProgress(ctx context.Context, userID string, kind domain.ContentKind, contentID string) error {
	if userID == "" {
		return nil
	}
	_, err := s.mutate(ctx, userID, func(p *domain.UserProgress) error {
		switch kind {
		case domain.KindAnime:
			if _, ok := p.Anime[contentID]; !ok {
				return kv.ErrNoChange
			}
			delete(p.Anime, contentID)
		case domain.KindManga:
			if _, ok := p.Manga[contentID]; !ok {
				return kv.ErrNoChange
			}
			delete(p.Manga, contentID)
		default:
			return domain.Invalid("kind", "must be anime or manga")
		}
		return nil
	})
	return err
}

func (s *ProgressService) AddToWatchlist(ctx context.Context, userID, contentID string) ([]string, error) {
	return s.membership(ctx, userID, contentID, func(p *domain.UserProgress) *[]string { return &p.Watchlist }, true)
}

func (s *ProgressService) RemoveFromWatchlist(ctx context.Context, userID, contentID string) ([]string, error) {
	return s.membership(ctx, userID, contentID, func(p *domain.UserProgress) *[]string { return &p.Watchlist }, false)
}

func (s *ProgressService) AddToBookmarks(ctx context.Context, userID, contentID string) ([]string, error) {
	return s.membership(ctx, userID, contentID, func(p *domain.UserProgress) *[]string { return &p.Bookmarks }, true)
}

func (s *ProgressService) RemoveFromBookmarks(ctx context.Context, userID, contentID string) ([]string, error) {
	return s.membership(ctx, userID, contentID, func(p *domain.UserProgress) *[]string { return &p.Bookmarks }, false)
}

// UpdateUserStats recomputes and stores the aggregate.
func (s *ProgressService) UpdateUserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	if userID == "" {
		return nil, nil
	}
	p, err := s.mutate(ctx, userID, func(p *domain.UserProgress) error {
		st := ComputeStats(p, s.clock.Now())
		p.Stats = &st
		return nil
	})
	if err != nil {
		return nil, err
	}
	st := *p.Stats
	return &st, nil
}

// GetUserStats returns the last computed aggregate without recomputing.
// It is nil until UpdateUserStats ran once.
func (s *ProgressService) GetUserStats(ctx context.Context, userID string) (*domain.UserStats, error) {
	if userID == "" {
		return nil, nil
	}
	p, err := s.views.cached(ctx, userID, s.loader(userID))
	if err != nil || p.Stats == nil {
		return nil, err
	}
	st := *p.Stats
	return &st, nil
}

func (s *ProgressService) GetUserProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	if userID == "" {
		return domain.NewUserProgress(""), nil
	}
	p, err := s.views.cached(ctx, userID, s.loader(userID))
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Refresh re-reads a user's record from the store.
func (s *ProgressService) Refresh(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if _, err := s.views.reload(ctx, userID, true, s.loader(userID)); err != nil {
		return err
	}
	s.events.Publish(domain.TopicProgressChanged, userID)
	return nil
}

// HandleChange refreshes a tracked record written by another tab.
func (s *ProgressService) HandleChange(ctx context.Context, key string) {
	userID, ok := domain.UserFromProgressKey(key)
	if !ok || !s.views.tracked(userID) {
		return
	}
	if err := s.Refresh(ctx, userID); err != nil {
		s.log.Warn("refresh progress", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *ProgressService) membership(ctx context.Context, userID, contentID string, set func(*domain.UserProgress) *[]string, add bool) ([]string, error) {
	if userID == "" {
		return []string{}, nil
	}
	if contentID == "" {
		return nil, domain.Invalid("contentId", "required")
	}
	p, err := s.mutate(ctx, userID, func(p *domain.UserProgress) error {
		ids := set(p)
		i := slices.Index(*ids, contentID)
		switch {
		case add && i >= 0, !add && i < 0:
			return kv.ErrNoChange
		case add:
			*ids = append(*ids, contentID)
		default:
			*ids = slices.Delete(*ids, i, i+1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(*set(p)), nil
}

func (s *ProgressService) mutate(ctx context.Context, userID string, fn func(p *domain.UserProgress) error) (*domain.UserProgress, error) {
	p, err := s.repo.Mutate(ctx, userID, fn)
	if err != nil {
		return nil, err
	}
	s.views.set(userID, p)
	s.events.Publish(domain.TopicProgressChanged, userID)
	return p, nil
}

func (s *ProgressService) loader(userID string) func(context.Context) (*domain.UserProgress, error) {
	return func(ctx context.Context) (*domain.UserProgress, error) {
		return s.repo.Load(ctx, userID)
	}
}

func (s *ProgressService) completed(ctx context.Context, userID string, kind domain.ContentKind, contentID, msg string) {
	_, err := s.notes.Create(ctx, domain.NotificationInput{
		UserID:  userID,
		Kind:    domain.NotifyProgressCompleted,
		Title:   "Completed",
		Message: msg,
		Link:    "/" + string(kind) + "/" + contentID,
	})
	if err != nil {
		s.log.Warn("completion notification", zap.String("user_id", userID), zap.Error(err))
	}
}

func validateAnimePatch(p domain.AnimePatch) error {
	if p.Status != nil && !slices.Contains(animeStatuses, *p.Status) {
		return domain.Invalid("status", "unknown anime status")
	}
	if err := nonNegative("episodesWatched", p.EpisodesWatched); err != nil {
		return err
	}
	if err := nonNegative("totalEpisodes", p.TotalEpisodes); err != nil {
		return err
	}
	if p.AddMinutes < 0 {
		return domain.Invalid("addMinutes", "must not be negative")
	}
	return validRating(p.Rating)
}

func validateMangaPatch(p domain.MangaPatch) error {
	if p.Status != nil && !slices.Contains(mangaStatuses, *p.Status) {
		return domain.Invalid("status", "unknown manga status")
	}
	if err := nonNegative("chaptersRead", p.ChaptersRead); err != nil {
		return err
	}
	if err := nonNegative("currentPage", p.CurrentPage); err != nil {
		return err
	}
	if err := nonNegative("totalChapters", p.TotalChapters); err != nil {
		return err
	}
	if p.AddMinutes < 0 {
		return domain.Invalid("addMinutes", "must not be negative")
	}
	return validRating(p.Rating)
}

var (
	animeStatuses = []domain.ProgressStatus{domain.StatusWatching, domain.StatusCompleted, domain.StatusPaused, domain.StatusDropped, domain.StatusPlanToWatch}
	mangaStatuses = []domain.ProgressStatus{domain.StatusReading, domain.StatusCompleted, domain.StatusPaused, domain.StatusDropped, domain.StatusPlanToRead}
)

func nonNegative(field string, v *int) error {
	if v != nil && *v < 0 {
		return domain.Invalid(field, "must not be negative")
	}
	return nil
}

func validRating(r *float64) error {
	if r != nil && (*r < 0 || *r > 10) {
		return domain.Invalid("rating", "must be between 0 and 10")
	}
	return nil
}

func applyAnime(a *domain.AnimeProgress, p domain.AnimePatch) error {
	if p.TotalEpisodes != nil {
		a.TotalEpisodes = *p.TotalEpisodes
	}
	if p.EpisodesWatched != nil {
		a.EpisodesWatched = advance(a.EpisodesWatched, *p.EpisodesWatched, p.Reset)
	}
	if p.Rating != nil {
		r := *p.Rating
		a.Rating = &r
	}
	a.WatchMinutes += p.AddMinutes

	status, done, err := settle(a.Status, p.Status, a.EpisodesWatched, a.TotalEpisodes, domain.StatusWatching, domain.StatusPlanToWatch)
	if err != nil {
		return err
	}
	a.Status, a.EpisodesWatched = status, done
	return nil
}

func applyManga(m *domain.MangaProgress, p domain.MangaPatch) error {
	if p.TotalChapters != nil {
		m.TotalChaps = *p.TotalChapters
	}
	if p.ChaptersRead != nil {
		prev := m.ChaptersRead
		m.ChaptersRead = advance(m.ChaptersRead, *p.ChaptersRead, p.Reset)
		if m.ChaptersRead != prev {
			m.CurrentPage = 0
		}
	}
	if p.CurrentPage != nil {
		m.CurrentPage = *p.CurrentPage
	}
	if p.Rating != nil {
		r := *p.Rating
		m.Rating = &r
	}
	m.ReadMinutes += p.AddMinutes

	status, done, err := settle(m.Status, p.Status, m.ChaptersRead, m.TotalChaps, domain.StatusReading, domain.StatusPlanToRead)
	if err != nil {
		return err
	}
	m.Status, m.ChaptersRead = status, done
	return nil
}

// advance keeps a position from moving backwards unless reset is set.
func advance(cur, next int, reset bool) int {
	if next < cur && !reset {
		return cur
	}
	return next
}

// settle clamps done to total and derives the status. completed holds
// exactly when done >= total > 0.
func settle(cur domain.ProgressStatus, want *domain.ProgressStatus, done, total int,
	active, planned domain.ProgressStatus) (domain.ProgressStatus, int, error) {
	if want != nil && *want == domain.StatusCompleted {
		if total <= 0 {
			return cur, done, domain.Invalid("status", "completed needs a known total")
		}
		done = total
	}
	if total > 0 && done > total {
		done = total
	}
	if total > 0 && done >= total {
		return domain.StatusCompleted, done, nil
	}

	switch {
	case want != nil:
		return *want, done, nil
	case cur == domain.StatusCompleted, cur == "" && done > 0, cur == planned && done > 0:
		return active, done, nil
	case cur == "":
		return planned, done, nil
	}
	return cur, done, nil
}
