package domain

import (
	"context"
	"time"
)

type ProgressStatus string

const (
	StatusWatching    ProgressStatus = "watching"
	StatusReading     ProgressStatus = "reading"
	StatusCompleted   ProgressStatus = "completed"
	StatusPaused      ProgressStatus = "paused"
	StatusDropped     ProgressStatus = "dropped"
	StatusPlanToWatch ProgressStatus = "plan_to_watch"
	StatusPlanToRead  ProgressStatus = "plan_to_read"
)

type ContentKind string

const (
	KindAnime ContentKind = "anime"
	KindManga ContentKind = "manga"
)

type AnimeProgress struct {
	UserID          string         `json:"userId"`
	ContentID       string         `json:"contentId"`
	Status          ProgressStatus `json:"status"`
	EpisodesWatched int            `json:"episodesWatched"`
	TotalEpisodes   int            `json:"totalEpisodes"`
	WatchMinutes    int            `json:"watchMinutes"`
	Rating          *float64       `json:"rating,omitempty"`
	LastUpdated     time.Time      `json:"lastUpdated"`
}

type MangaProgress struct {
	UserID       string         `json:"userId"`
	ContentID    string         `json:"contentId"`
	Status       ProgressStatus `json:"status"`
	ChaptersRead int            `json:"chaptersRead"`
	CurrentPage  int            `json:"currentPage"`
	TotalChaps   int            `json:"totalChapters"`
	ReadMinutes  int            `json:"readMinutes"`
	Rating       *float64       `json:"rating,omitempty"`
	LastUpdated  time.Time      `json:"lastUpdated"`
}

// AnimePatch carries the fields a caller wants to change. Nil fields are kept.
type AnimePatch struct {
	Status          *ProgressStatus `json:"status,omitempty"`
	EpisodesWatched *int            `json:"episodesWatched,omitempty"`
	TotalEpisodes   *int            `json:"totalEpisodes,omitempty"`
	AddMinutes      int             `json:"addMinutes,omitempty"`
	Rating          *float64        `json:"rating,omitempty"`
	// Reset allows the position to move backwards.
	Reset bool `json:"reset,omitempty"`
}

type MangaPatch struct {
	Status        *ProgressStatus `json:"status,omitempty"`
	ChaptersRead  *int            `json:"chaptersRead,omitempty"`
	CurrentPage   *int            `json:"currentPage,omitempty"`
	TotalChapters *int            `json:"totalChapters,omitempty"`
	AddMinutes    int             `json:"addMinutes,omitempty"`
	Rating        *float64        `json:"rating,omitempty"`
	Reset         bool            `json:"reset,omitempty"`
}

type UserStats struct {
	TotalAnime      int       `json:"totalAnime"`
	TotalManga      int       `json:"totalManga"`
	AnimeCompleted  int       `json:"animeCompleted"`
	MangaCompleted  int       `json:"mangaCompleted"`
	EpisodesWatched int       `json:"episodesWatched"`
	ChaptersRead    int       `json:"chaptersRead"`
	WatchMinutes    int       `json:"watchMinutes"`
	ReadMinutes     int       `json:"readMinutes"`
	CurrentStreak   int       `json:"currentStreak"`
	LongestStreak   int       `json:"longestStreak"`
	MeanRating      float64   `json:"meanRating"`
	WatchlistSize   int       `json:"watchlistSize"`
	BookmarkCount   int       `json:"bookmarkCount"`
	ComputedAt      time.Time `json:"computedAt"`
}

// UserProgress is everything persisted under progress.<user_id>.
type UserProgress struct {
	UserID    string                    `json:"userId"`
	Anime     map[string]*AnimeProgress `json:"anime"`
	Manga     map[string]*MangaProgress `json:"manga"`
	Watchlist []string                  `json:"watchlist"`
	Bookmarks []string                  `json:"bookmarks"`
	Stats     *UserStats                `json:"stats,omitempty"`
}

func NewUserProgress(userID string) *UserProgress {
	return &UserProgress{
		UserID:    userID,
		Anime:     map[string]*AnimeProgress{},
		Manga:     map[string]*MangaProgress{},
		Watchlist: []string{},
		Bookmarks: []string{},
	}
}

// Normalize fills nil collections left by older or partial records.
func (p *UserProgress) Normalize(userID string) {
	if p.UserID == "" {
		p.UserID = userID
	}
	if p.Anime == nil {
		p.Anime = map[string]*AnimeProgress{}
	}
	if p.Manga == nil {
		p.Manga = map[string]*MangaProgress{}
	}
	if p.Watchlist == nil {
		p.Watchlist = []string{}
	}
	if p.Bookmarks == nil {
		p.Bookmarks = []string{}
	}
}

// Clone returns a deep copy so views never share maps with callers.
func (p *UserProgress) Clone() *UserProgress {
	out := NewUserProgress(p.UserID)
	for k, v := range p.Anime {
		c := *v
		out.Anime[k] = &c
	}
	for k, v := range p.Manga {
		c := *v
		out.Manga[k] = &c
	}
	out.Watchlist = append(out.Watchlist, p.Watchlist...)
	out.Bookmarks = append(out.Bookmarks, p.Bookmarks...)
	if p.Stats != nil {
		s := *p.Stats
		out.Stats = &s
	}
	return out
}

type ProgressRepository interface {
	Load(ctx context.Context, userID string) (*UserProgress, error)
	Mutate(ctx context.Context, userID string, fn func(p *UserProgress) error) (*UserProgress, error)
}
