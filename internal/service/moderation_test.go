package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"animehub/internal/domain"
	"animehub/internal/repo"
)

func newModerationFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.seed(t, "admin", domain.RoleAdmin, domain.AccountApproved)
	f.seed(t, "critic", domain.RoleCritique, domain.AccountApproved)
	f.seed(t, "reader", domain.RoleUser, domain.AccountApproved)
	return f
}

func (f *fixture) submit(t *testing.T, title string) *domain.Submission {
	t.Helper()
	sub, err := f.moderation.CreateSubmission(f.ctx, "critic", domain.SubmissionInput{
		Type:    domain.SubmissionAnimeReview,
		Title:   title,
		Content: "Long form thoughts.",
		Rating:  ptr(8.5),
	})
	require.NoError(t, err)
	return sub
}

func TestCreateSubmission_Rules(t *testing.T) {
	f := newModerationFixture(t)
	f.seed(t, "pending", domain.RoleCritique, domain.AccountPending)

	sub := f.submit(t, "Frieren ep 1")
	assert.Equal(t, domain.SubmissionPending, sub.Status)
	assert.False(t, sub.Published)

	in := domain.SubmissionInput{Type: domain.SubmissionVlog, Title: "t", Content: "c"}
	_, err := f.moderation.CreateSubmission(f.ctx, "reader", in)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.moderation.CreateSubmission(f.ctx, "pending", in)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.moderation.CreateSubmission(f.ctx, "critic", in)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.moderation.CreateSubmission(f.ctx, "critic", domain.SubmissionInput{Type: domain.SubmissionMangaReview, Title: "  "})
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.moderation.CreateSubmission(f.ctx, "ghost", in)
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
}

func TestSubmission_TerminalGate(t *testing.T) {
	f := newModerationFixture(t)
	approved := f.submit(t, "one")
	rejected := f.submit(t, "two")

	got, err := f.moderation.ApproveSubmission(f.ctx, "admin", approved.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionApproved, got.Status)
	assert.True(t, got.Published)
	assert.Equal(t, "admin", got.DecidedBy)

	_, err = f.moderation.RejectSubmission(f.ctx, "admin", rejected.ID, "off topic")
	require.NoError(t, err)

	for _, id := range []string{approved.ID, rejected.ID} {
		_, err = f.moderation.ApproveSubmission(f.ctx, "admin", id, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyDecided)
		_, err = f.moderation.RejectSubmission(f.ctx, "admin", id, "again")
		assert.ErrorIs(t, err, domain.ErrAlreadyDecided)
		_, err = f.moderation.RequestEdit(f.ctx, "admin", id, "again")
		assert.ErrorIs(t, err, domain.ErrAlreadyDecided)
	}

	_, err = f.moderation.ApproveSubmission(f.ctx, "admin", "missing", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	published, err := f.moderation.PublishedSubmissions(f.ctx)
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, approved.ID, published[0].ID)

	notes, err := f.notes.GetUserNotifications(f.ctx, "critic")
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, domain.NotifySubmissionRejected, notes[0].Kind)
	assert.Equal(t, domain.NotifySubmissionApproved, notes[1].Kind)
}

func TestRejectSubmission_RequiresReason(t *testing.T) {
	f := newModerationFixture(t)
	sub := f.submit(t, "one")

	_, err := f.moderation.RejectSubmission(f.ctx, "admin", sub.ID, "   ")
	assert.ErrorIs(t, err, domain.ErrRejectionReasonRequired)
	assert.ErrorIs(t, err, domain.ErrValidation)

	got, err := f.moderation.GetSubmission(f.ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionPending, got.Status)
}

func TestRequestEdit_PrefixesNotes(t *testing.T) {
	f := newModerationFixture(t)
	sub := f.submit(t, "one")

	got, err := f.moderation.RequestEdit(f.ctx, "admin", sub.ID, "add spoiler tags")
	require.NoError(t, err)
	assert.Equal(t, domain.SubmissionRejected, got.Status)
	assert.Equal(t, domain.EditRequestPrefix+"add spoiler tags", got.AdminNotes)
	assert.False(t, got.Published)

	notes, err := f.notes.GetUserNotifications(f.ctx, "critic")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, domain.NotifyEditRequested, notes[0].Kind)
}

func TestModeration_RequiresAdmin(t *testing.T) {
	f := newModerationFixture(t)
	sub := f.submit(t, "one")

	_, err := f.moderation.ApproveSubmission(f.ctx, "reader", sub.ID, "")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.moderation.WarnUser(f.ctx, "critic", "reader", "spam")
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.moderation.BanUser(f.ctx, "", "reader", "spam")
	assert.ErrorIs(t, err, domain.ErrNotAuthenticated)
	_, err = f.moderation.BanUser(f.ctx, "admin", "admin", "oops")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestAccountActions(t *testing.T) {
	f := newModerationFixture(t)

	u, err := f.moderation.WarnUser(f.ctx, "admin", "reader", "spoilers")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Warnings)
	assert.Equal(t, domain.AccountApproved, u.AccountStatus)

	_, err = f.moderation.SuspendUser(f.ctx, "admin", "reader", "spoilers again", 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
	u, err = f.moderation.SuspendUser(f.ctx, "admin", "reader", "spoilers again", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountSuspended, u.AccountStatus)
	assert.True(t, f.clock.Now().Add(72*time.Hour).Equal(*u.SuspensionEnd))

	u, err = f.moderation.RestoreUser(f.ctx, "admin", "reader", "")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountApproved, u.AccountStatus)
	assert.Equal(t, 1, u.Warnings)

	_, err = f.moderation.RestoreUser(f.ctx, "admin", "reader", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	history, err := f.moderation.AdminHistory(f.ctx, "admin", "reader")
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.ActionWarning, history[0].Kind)
	assert.Equal(t, domain.ActionSuspension, history[1].Kind)
	assert.Equal(t, domain.ActionRestore, history[2].Kind)

	notes, err := f.notes.GetUserNotifications(f.ctx, "reader")
	require.NoError(t, err)
	assert.Len(t, notes, 3)
}

func TestBan_SupersedesSuspend(t *testing.T) {
	f := newModerationFixture(t)
	_, err := f.moderation.BanUser(f.ctx, "admin", "reader", "abuse")
	require.NoError(t, err)

	_, err = f.moderation.SuspendUser(f.ctx, "admin", "reader", "more", 7)
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyBanned)
	_, err = f.moderation.BanUser(f.ctx, "admin", "reader", "again")
	assert.ErrorIs(t, err, domain.ErrAccountAlreadyBanned)

	assert.Equal(t, domain.AccountBanned, f.user(t, "reader").AccountStatus)

	history, err := f.moderation.AdminHistory(f.ctx, "admin", "reader")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestApproveAccount(t *testing.T) {
	f := newModerationFixture(t)
	f.seed(t, "newcritic", domain.RoleCritique, domain.AccountPending)

	u, err := f.moderation.ApproveAccount(f.ctx, "admin", "newcritic")
	require.NoError(t, err)
	assert.Equal(t, domain.AccountApproved, u.AccountStatus)

	_, err = f.moderation.ApproveAccount(f.ctx, "admin", "newcritic")
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.moderation.CreateSubmission(f.ctx, "newcritic", domain.SubmissionInput{
		Type: domain.SubmissionMangaReview, Title: "Vagabond", Content: "Ink.",
	})
	assert.NoError(t, err)
}

func TestRecordEngagement(t *testing.T) {
	f := newModerationFixture(t)
	sub := f.submit(t, "one")

	_, err := f.moderation.RecordEngagement(f.ctx, sub.ID, 1, 0, 0)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.moderation.ApproveSubmission(f.ctx, "admin", sub.ID, "great")
	require.NoError(t, err)
	got, err := f.moderation.RecordEngagement(f.ctx, sub.ID, 10, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Views)
	assert.Equal(t, 2, got.Likes)
	assert.Equal(t, 1, got.Comments)

	_, err = f.moderation.RecordEngagement(f.ctx, sub.ID, -1, 0, 0)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestListSubmissions_Filter(t *testing.T) {
	f := newModerationFixture(t)
	first := f.submit(t, "one")
	f.clock.Advance(time.Minute)
	second := f.submit(t, "two")
	_, err := f.moderation.ApproveSubmission(f.ctx, "admin", first.ID, "")
	require.NoError(t, err)

	pending, err := f.moderation.ListSubmissions(f.ctx, domain.SubmissionFilter{Status: domain.SubmissionPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	all, err := f.moderation.ListSubmissions(f.ctx, domain.SubmissionFilter{CriticID: "critic"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, second.ID, all[0].ID)
}

func TestModeration_HandleChangeRefreshesView(t *testing.T) {
	a := newModerationFixture(t)
	b := newFixtureOn(t, a.store, a.clock)

	list, err := b.moderation.ListSubmissions(b.ctx, domain.SubmissionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	a.submit(t, "one")
	b.moderation.HandleChange(b.ctx, domain.KeySubmissionsAll)

	list, err = b.moderation.ListSubmissions(b.ctx, domain.SubmissionFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type brokenHistory struct{}

func (brokenHistory) List(context.Context, string) ([]domain.AdminAction, error) { return nil, nil }
func (brokenHistory) Append(context.Context, domain.AdminAction) error {
	return errors.New("write admin history: disk full")
}

func TestAccountAction_HistoryFailureStillNotifies(t *testing.T) {
	f := newModerationFixture(t)
	log := zap.NewNop()
	mod := NewModerationService(f.users, repo.NewSubmissionRepo(f.store, log), brokenHistory{},
		f.notes, f.sessions, f.events, f.clock, log)

	u, err := mod.WarnUser(f.ctx, "admin", "reader", "spoilers in titles")
	require.NoError(t, err)
	assert.Equal(t, 1, u.Warnings)
	assert.Equal(t, 1, f.user(t, "reader").Warnings)

	inbox, err := f.notes.GetUserNotifications(f.ctx, "reader")
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, domain.NotifyAccountWarning, inbox[0].Kind)
}
