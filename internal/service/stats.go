package service

import (
	"slices"
	"time"

	"animehub/internal/domain"
)

// ComputeStats folds a progress record into its aggregate. It depends only
// on p and now.
func ComputeStats(p *domain.UserProgress, now time.Time) domain.UserStats {
	st := domain.UserStats{
		TotalAnime:    len(p.Anime),
		TotalManga:    len(p.Manga),
		WatchlistSize: len(p.Watchlist),
		BookmarkCount: len(p.Bookmarks),
		ComputedAt:    now,
	}

	var days []int64
	var ratingSum float64
	var rated int
	for _, a := range p.Anime {
		st.EpisodesWatched += a.EpisodesWatched
		st.WatchMinutes += a.WatchMinutes
		if a.Status == domain.StatusCompleted {
			st.AnimeCompleted++
		}
		if a.Rating != nil {
			ratingSum += *a.Rating
			rated++
		}
		if !a.LastUpdated.IsZero() {
			days = append(days, dayNumber(a.LastUpdated))
		}
	}
	for _, m := range p.Manga {
		st.ChaptersRead += m.ChaptersRead
		st.ReadMinutes += m.ReadMinutes
		if m.Status == domain.StatusCompleted {
			st.MangaCompleted++
		}
		if m.Rating != nil {
			ratingSum += *m.Rating
			rated++
		}
		if !m.LastUpdated.IsZero() {
			days = append(days, dayNumber(m.LastUpdated))
		}
	}
	if rated > 0 {
		st.MeanRating = ratingSum / float64(rated)
	}
	st.CurrentStreak, st.LongestStreak = streaks(days, dayNumber(now))
	return st
}

func dayNumber(t time.Time) int64 {
	return t.UTC().Unix() / int64(24*time.Hour/time.Second)
}

// streaks counts runs of consecutive active days. The current streak only
// counts if its last day is today or yesterday.
func streaks(days []int64, today int64) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}
	slices.Sort(days)
	days = slices.Compact(days)

	run := 1
	longest = 1
	for i := 1; i < len(days); i++ {
		if days[i] == days[i-1]+1 {
			run++
		} else {
			run = 1
		}
		longest = max(longest, run)
	}
	if last := days[len(days)-1]; last == today || last == today-1 {
		current = run
	}
	return current, longest
}
