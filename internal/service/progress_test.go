package service

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animehub/internal/domain"
)

func TestWatchlist_MembershipIsIdempotent(t *testing.T) {
	f := newFixture(t)

	once, err := f.progress.AddToWatchlist(f.ctx, "u1", "a1")
	require.NoError(t, err)
	twice, err := f.progress.AddToWatchlist(f.ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, []string{"a1"}, twice)

	after, err := f.progress.RemoveFromWatchlist(f.ctx, "u1", "absent")
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, after)

	after, err = f.progress.RemoveFromWatchlist(f.ctx, "u1", "a1")
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestBookmarks_MembershipIsIdempotent(t *testing.T) {
	f := newFixture(t)
	for range 3 {
		_, err := f.progress.AddToBookmarks(f.ctx, "u1", "m1")
		require.NoError(t, err)
	}
	p, err := f.progress.GetUserProgress(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, p.Bookmarks)
	assert.Empty(t, p.Watchlist)

	got, err := f.progress.RemoveFromBookmarks(f.ctx, "u1", "m1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAnimeProgress_Monotonic(t *testing.T) {
	f := newFixture(t)
	rng := rand.New(rand.NewPCG(1, 2))

	_, err := f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{TotalEpisodes: ptr(24)})
	require.NoError(t, err)

	last := 0
	for range 200 {
		ep := rng.IntN(30)
		got, err := f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{EpisodesWatched: ptr(ep)})
		require.NoError(t, err)
		require.GreaterOrEqual(t, got.EpisodesWatched, last)
		require.LessOrEqual(t, got.EpisodesWatched, 24)
		require.Equal(t, got.EpisodesWatched >= got.TotalEpisodes, got.Status == domain.StatusCompleted)
		last = got.EpisodesWatched
	}
}

func TestAnimeProgress_ResetMovesBackwards(t *testing.T) {
	f := newFixture(t)
	_, err := f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{TotalEpisodes: ptr(12), EpisodesWatched: ptr(12)})
	require.NoError(t, err)

	got, err := f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{EpisodesWatched: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, 12, got.EpisodesWatched)

	got, err = f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{EpisodesWatched: ptr(3), Reset: true})
	require.NoError(t, err)
	assert.Equal(t, 3, got.EpisodesWatched)
	assert.Equal(t, domain.StatusWatching, got.Status)
}

func TestAnimeProgress_StatusRules(t *testing.T) {
	f := newFixture(t)

	got, err := f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{TotalEpisodes: ptr(10)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPlanToWatch, got.Status)

	got, err = f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{EpisodesWatched: ptr(2), AddMinutes: 48})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusWatching, got.Status)
	assert.Equal(t, 48, got.WatchMinutes)
	assert.Equal(t, f.clock.Now(), got.LastUpdated)

	got, err = f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{Status: ptr(domain.StatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, 10, got.EpisodesWatched)

	_, err = f.progress.UpdateAnimeProgress(f.ctx, "u1", "a2", domain.AnimePatch{Status: ptr(domain.StatusCompleted)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.progress.UpdateAnimeProgress(f.ctx, "u1", "a2", domain.AnimePatch{Status: ptr(domain.StatusReading)})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.progress.UpdateAnimeProgress(f.ctx, "u1", "a2", domain.AnimePatch{Rating: ptr(11.0)})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestProgress_CompletionNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	_, err := f.progress.UpdateMangaProgress(f.ctx, "u1", "m1", domain.MangaPatch{TotalChapters: ptr(5), ChaptersRead: ptr(5)})
	require.NoError(t, err)
	_, err = f.progress.UpdateMangaProgress(f.ctx, "u1", "m1", domain.MangaPatch{AddMinutes: 10})
	require.NoError(t, err)

	notes, err := f.notes.GetUserNotifications(f.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyProgressCompleted, notes[0].Kind)
	assert.Equal(t, "/manga/m1", notes[0].Link)
}

func TestMangaProgress_PageResetsOnNewChapter(t *testing.T) {
	f := newFixture(t)
	got, err := f.progress.UpdateMangaProgress(f.ctx, "u1", "m1", domain.MangaPatch{ChaptersRead: ptr(3), CurrentPage: ptr(14)})
	require.NoError(t, err)
	assert.Equal(t, 14, got.CurrentPage)
	assert.Equal(t, domain.StatusReading, got.Status)

	got, err = f.progress.UpdateMangaProgress(f.ctx, "u1", "m1", domain.MangaPatch{ChaptersRead: ptr(4)})
	require.NoError(t, err)
	assert.Equal(t, 0, got.CurrentPage)
}

func TestProgress_EmptyUserIsNoop(t *testing.T) {
	f := newFixture(t)

	a, err := f.progress.UpdateAnimeProgress(f.ctx, "", "a1", domain.AnimePatch{EpisodesWatched: ptr(1)})
	require.NoError(t, err)
	assert.Nil(t, a)
	ids, err := f.progress.AddToWatchlist(f.ctx, "", "a1")
	require.NoError(t, err)
	assert.Empty(t, ids)
	st, err := f.progress.UpdateUserStats(f.ctx, "")
	require.NoError(t, err)
	assert.Nil(t, st)

	keys, err := f.store.Keys(f.ctx, "progress.")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestUserStats_ExplicitRecompute(t *testing.T) {
	f := newFixture(t)
	st, err := f.progress.GetUserStats(f.ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, st)

	_, err = f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{TotalEpisodes: ptr(2), EpisodesWatched: ptr(2), Rating: ptr(8.0)})
	require.NoError(t, err)
	_, err = f.progress.UpdateMangaProgress(f.ctx, "u1", "m1", domain.MangaPatch{ChaptersRead: ptr(7), Rating: ptr(6.0)})
	require.NoError(t, err)

	st, err = f.progress.UpdateUserStats(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalAnime)
	assert.Equal(t, 1, st.AnimeCompleted)
	assert.Equal(t, 7, st.ChaptersRead)
	assert.InDelta(t, 7.0, st.MeanRating, 1e-9)

	_, err = f.progress.AddToWatchlist(f.ctx, "u1", "a9")
	require.NoError(t, err)
	cached, err := f.progress.GetUserStats(f.ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, cached.WatchlistSize)
}

func TestComputeStats_Streaks(t *testing.T) {
	now := epoch
	day := 24 * time.Hour
	p := domain.NewUserProgress("u1")
	p.Anime["a"] = &domain.AnimeProgress{LastUpdated: now.Add(-10 * day)}
	p.Anime["b"] = &domain.AnimeProgress{LastUpdated: now.Add(-2 * day)}
	p.Manga["c"] = &domain.MangaProgress{LastUpdated: now.Add(-day)}
	p.Manga["d"] = &domain.MangaProgress{LastUpdated: now}
	p.Manga["e"] = &domain.MangaProgress{LastUpdated: now}

	st := ComputeStats(p, now)
	assert.Equal(t, 3, st.CurrentStreak)
	assert.Equal(t, 3, st.LongestStreak)

	st = ComputeStats(p, now.Add(5*day))
	assert.Equal(t, 0, st.CurrentStreak)
	assert.Equal(t, 3, st.LongestStreak)
}

func TestRemoveProgress(t *testing.T) {
	f := newFixture(t)
	_, err := f.progress.UpdateAnimeProgress(f.ctx, "u1", "a1", domain.AnimePatch{EpisodesWatched: ptr(1)})
	require.NoError(t, err)

	require.NoError(t, f.progress.RemoveProgress(f.ctx, "u1", domain.KindAnime, "a1"))
	require.NoError(t, f.progress.RemoveProgress(f.ctx, "u1", domain.KindAnime, "a1"))
	assert.ErrorIs(t, f.progress.RemoveProgress(f.ctx, "u1", "novel", "a1"), domain.ErrValidation)

	p, err := f.progress.GetUserProgress(f.ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, p.Anime)
}

func TestProgress_CrossTabConvergence(t *testing.T) {
	a := newFixture(t)
	b := newFixtureOn(t, a.store, a.clock)

	before, err := b.progress.GetUserProgress(b.ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, before.Anime)

	_, err = a.progress.UpdateAnimeProgress(a.ctx, "u1", "a1", domain.AnimePatch{EpisodesWatched: ptr(4)})
	require.NoError(t, err)

	var heard []any
	b.events.Subscribe(domain.TopicProgressChanged, func(p any) { heard = append(heard, p) })
	b.progress.HandleChange(b.ctx, domain.ProgressKey("u1"))

	after, err := b.progress.GetUserProgress(b.ctx, "u1")
	require.NoError(t, err)
	require.Contains(t, after.Anime, "a1")
	assert.Equal(t, 4, after.Anime["a1"].EpisodesWatched)
	assert.Equal(t, []any{"u1"}, heard)
}
