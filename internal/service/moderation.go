package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"animehub/internal/core/bus"
	"animehub/internal/core/kv"
	"animehub/internal/core/metrics"
	"animehub/internal/domain"
	"animehub/pkg/utils"
)

// ChangeHandler is implemented by services that re-read a key after it
// changed underneath them.
type ChangeHandler interface {
	HandleChange(ctx context.Context, key string)
}

// ModerationService runs the submission workflow and account actions.
type ModerationService struct {
	users    domain.UserRepository
	subs     domain.SubmissionRepository
	actions  domain.AdminActionRepository
	notes    Notifier
	identity ChangeHandler
	events   *bus.Local
	clock    clockwork.Clock
	log      *zap.Logger

	sf   singleflight.Group
	mu   sync.RWMutex
	view []domain.Submission
}

func NewModerationService(users domain.UserRepository, subs domain.SubmissionRepository, actions domain.AdminActionRepository,
	notes Notifier, identity ChangeHandler, events *bus.Local, clock clockwork.Clock, log *zap.Logger) *ModerationService {
	return &ModerationService{
		users:    users,
		subs:     subs,
		actions:  actions,
		notes:    notes,
		identity: identity,
		events:   events,
		clock:    clock,
		log:      log,
	}
}

// CreateSubmission files a pending submission for an approved critic.
func (s *ModerationService) CreateSubmission(ctx context.Context, criticID string, in domain.SubmissionInput) (*domain.Submission, error) {
	critic, err := s.users.FindByID(ctx, criticID)
	if err != nil {
		return nil, err
	}
	if critic == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if critic.Role != domain.RoleCritique {
		return nil, domain.ErrForbidden
	}
	switch critic.AccountStatus {
	case domain.AccountApproved:
	case domain.AccountBanned:
		return nil, domain.ErrAccountBanned
	case domain.AccountSuspended:
		return nil, domain.ErrAccountSuspended
	default:
		return nil, domain.ErrForbidden
	}
	if err := validateSubmission(&in); err != nil {
		return nil, err
	}

	sub := domain.Submission{
		ID:        utils.NewID(),
		CriticID:  criticID,
		Type:      in.Type,
		Title:     in.Title,
		Content:   in.Content,
		ContentID: in.ContentID,
		Rating:    in.Rating,
		VideoURL:  in.VideoURL,
		Status:    domain.SubmissionPending,
		CreatedAt: s.clock.Now(),
		Version:   1,
	}
	all, err := s.subs.Mutate(ctx, func(all []domain.Submission) ([]domain.Submission, error) {
		return append(all, sub), nil
	})
	if err != nil {
		return nil, fmt.Errorf("append submission: %w", err)
	}
	s.commit(all)
	s.log.Info("submission created", zap.String("submission_id", sub.ID), zap.String("critic_id", criticID))
	return &sub, nil
}

func (s *ModerationService) ApproveSubmission(ctx context.Context, adminID, id, notes string) (*domain.Submission, error) {
	return s.decide(ctx, adminID, id, domain.SubmissionApproved, strings.TrimSpace(notes), domain.NotifySubmissionApproved)
}

// RejectSubmission requires a reason; the submission stays pending without one.
func (s *ModerationService) RejectSubmission(ctx context.Context, adminID, id, notes string) (*domain.Submission, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, domain.ErrRejectionReasonRequired
	}
	return s.decide(ctx, adminID, id, domain.SubmissionRejected, notes, domain.NotifySubmissionRejected)
}

// RequestEdit rejects with notes marked as a revision request. The author
// files a new submission; this one stays rejected.
func (s *ModerationService) RequestEdit(ctx context.Context, adminID, id, notes string) (*domain.Submission, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, domain.ErrRejectionReasonRequired
	}
	return s.decide(ctx, adminID, id, domain.SubmissionRejected, domain.EditRequestPrefix+notes, domain.NotifyEditRequested)
}

func (s *ModerationService) decide(ctx context.Context, adminID, id string, status domain.SubmissionStatus,
	notes string, kind domain.NotificationKind) (*domain.Submission, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}

	var out domain.Submission
	all, err := s.subs.Mutate(ctx, func(all []domain.Submission) ([]domain.Submission, error) {
		i := slices.IndexFunc(all, func(x domain.Submission) bool { return x.ID == id })
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		if all[i].Decided() {
			return nil, domain.ErrAlreadyDecided
		}
		now := s.clock.Now()
		all[i].Status = status
		all[i].Published = status == domain.SubmissionApproved
		all[i].AdminNotes = notes
		all[i].DecidedBy = adminID
		all[i].DecidedAt = &now
		all[i].Version++
		out = all[i]
		return all, nil
	})
	if err != nil {
		return nil, err
	}
	s.commit(all)
	metrics.ModerationDecisions.WithLabelValues(string(kind)).Inc()
	s.log.Info("submission decided",
		zap.String("submission_id", id),
		zap.String("status", string(status)),
		zap.String("admin_id", adminID))

	s.notify(ctx, domain.NotificationInput{
		UserID:  out.CriticID,
		Kind:    kind,
		Title:   decisionTitle(kind),
		Message: decisionMessage(out),
		Link:    "/submissions/" + out.ID,
	})
	return &out, nil
}

func (s *ModerationService) ListSubmissions(ctx context.Context, f domain.SubmissionFilter) ([]domain.Submission, error) {
	all, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(all))
	for i := range all {
		if f.Match(&all[i]) {
			out = append(out, all[i])
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Submission) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// PublishedSubmissions is the reader-facing listing: approved entries only.
func (s *ModerationService) PublishedSubmissions(ctx context.Context) ([]domain.Submission, error) {
	all, err := s.ListSubmissions(ctx, domain.SubmissionFilter{Status: domain.SubmissionApproved})
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(x domain.Submission) bool { return !x.Published }), nil
}

func (s *ModerationService) GetSubmission(ctx context.Context, id string) (*domain.Submission, error) {
	all, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			sub := all[i]
			return &sub, nil
		}
	}
	return nil, domain.ErrNotFound
}

// RecordEngagement adds reader counters to a published submission.
func (s *ModerationService) RecordEngagement(ctx context.Context, id string, views, likes, comments int) (*domain.Submission, error) {
	if views < 0 || likes < 0 || comments < 0 {
		return nil, domain.Invalid("engagement", "counters must not be negative")
	}
	var out domain.Submission
	all, err := s.subs.Mutate(ctx, func(all []domain.Submission) ([]domain.Submission, error) {
		i := slices.IndexFunc(all, func(x domain.Submission) bool { return x.ID == id })
		if i < 0 {
			return nil, domain.ErrNotFound
		}
		if !all[i].Published {
			return nil, domain.ErrForbidden
		}
		if views == 0 && likes == 0 && comments == 0 {
			out = all[i]
			return nil, kv.ErrNoChange
		}
		all[i].Views += views
		all[i].Likes += likes
		all[i].Comments += comments
		all[i].Version++
		out = all[i]
		return all, nil
	})
	if err != nil {
		return nil, err
	}
	s.commit(all)
	return &out, nil
}

// WarnUser bumps the warning counter. The account status is unchanged.
func (s *ModerationService) WarnUser(ctx context.Context, adminID, userID, reason string) (*domain.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid("reason", "required")
	}
	return s.accountAction(ctx, adminID, userID, domain.ActionWarning, reason, nil, func(u *domain.User) error {
		u.Warnings++
		return nil
	})
}

// SuspendUser fails with ErrAccountAlreadyBanned on a banned account.
func (s *ModerationService) SuspendUser(ctx context.Context, adminID, userID, reason string, days int) (*domain.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid("reason", "required")
	}
	if days < 1 {
		return nil, domain.Invalid("days", "must be at least 1")
	}
	end := s.clock.Now().Add(time.Duration(days) * 24 * time.Hour)
	return s.accountAction(ctx, adminID, userID, domain.ActionSuspension, reason, &end, func(u *domain.User) error {
		if u.AccountStatus == domain.AccountBanned {
			return domain.ErrAccountAlreadyBanned
		}
		u.AccountStatus = domain.AccountSuspended
		u.SuspensionEnd = &end
		return nil
	})
}

func (s *ModerationService) BanUser(ctx context.Context, adminID, userID, reason string) (*domain.User, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, domain.Invalid("reason", "required")
	}
	return s.accountAction(ctx, adminID, userID, domain.ActionBan, reason, nil, func(u *domain.User) error {
		if u.AccountStatus == domain.AccountBanned {
			return domain.ErrAccountAlreadyBanned
		}
		u.AccountStatus = domain.AccountBanned
		u.SuspensionEnd = nil
		return nil
	})
}

// RestoreUser lifts a suspension or ban. Warnings are kept.
func (s *ModerationService) RestoreUser(ctx context.Context, adminID, userID, reason string) (*domain.User, error) {
	return s.accountAction(ctx, adminID, userID, domain.ActionRestore, strings.TrimSpace(reason), nil, func(u *domain.User) error {
		if u.AccountStatus != domain.AccountSuspended && u.AccountStatus != domain.AccountBanned {
			return domain.Invalid("accountStatus", "account is not suspended or banned")
		}
		u.AccountStatus = domain.AccountApproved
		u.SuspensionEnd = nil
		return nil
	})
}

// ApproveAccount moves a pending account, typically a critic, to approved.
func (s *ModerationService) ApproveAccount(ctx context.Context, adminID, userID string) (*domain.User, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	u, err := s.users.Mutate(ctx, userID, func(u *domain.User) error {
		if u.AccountStatus != domain.AccountPending {
			return domain.Invalid("accountStatus", "account is not pending")
		}
		u.AccountStatus = domain.AccountApproved
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.identity.HandleChange(ctx, domain.KeyUsersAll)
	metrics.ModerationDecisions.WithLabelValues("account_approved").Inc()
	s.notify(ctx, domain.NotificationInput{
		UserID:  userID,
		Kind:    domain.NotifySystem,
		Title:   "Account approved",
		Message: "Your account has been approved. You can now submit content.",
	})
	pub := u.Public()
	return &pub, nil
}

func (s *ModerationService) AdminHistory(ctx context.Context, adminID, userID string) ([]domain.AdminAction, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.actions.List(ctx, userID)
}

// Refresh re-reads submissions.all.
func (s *ModerationService) Refresh(ctx context.Context) error {
	s.sf.Forget(domain.KeySubmissionsAll)
	if _, err := s.load(ctx); err != nil {
		return err
	}
	s.events.Publish(domain.TopicSubmissionsChanged, nil)
	return nil
}

func (s *ModerationService) HandleChange(ctx context.Context, key string) {
	if key != domain.KeySubmissionsAll {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("refresh submissions", zap.Error(err))
	}
}

func (s *ModerationService) accountAction(ctx context.Context, adminID, userID string, kind domain.AdminActionKind,
	reason string, end *time.Time, fn func(u *domain.User) error) (*domain.User, error) {
	if _, err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if adminID == userID {
		return nil, domain.ErrForbidden
	}
	u, err := s.users.Mutate(ctx, userID, func(u *domain.User) error {
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = s.clock.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.identity.HandleChange(ctx, domain.KeyUsersAll)

	action := domain.AdminAction{
		ID:            utils.NewID(),
		UserID:        userID,
		Kind:          kind,
		Reason:        reason,
		IssuedBy:      adminID,
		IssuedAt:      s.clock.Now(),
		SuspensionEnd: end,
	}
	// the status change already landed
	if err := s.actions.Append(ctx, action); err != nil {
		s.log.Error("record admin action",
			zap.String("kind", string(kind)),
			zap.String("user_id", userID),
			zap.Error(err))
	}
	metrics.ModerationDecisions.WithLabelValues(string(kind)).Inc()
	s.log.Info("account action",
		zap.String("kind", string(kind)),
		zap.String("user_id", userID),
		zap.String("admin_id", adminID))

	s.notify(ctx, accountNotice(action))
	pub := u.Public()
	return &pub, nil
}

func (s *ModerationService) requireAdmin(ctx context.Context, adminID string) (*domain.User, error) {
	if adminID == "" {
		return nil, domain.ErrNotAuthenticated
	}
	u, err := s.users.FindByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrNotAuthenticated
	}
	if u.Role != domain.RoleAdmin || u.AccountStatus == domain.AccountBanned {
		return nil, domain.ErrForbidden
	}
	return u, nil
}

func (s *ModerationService) current(ctx context.Context) ([]domain.Submission, error) {
	s.mu.RLock()
	v := s.view
	s.mu.RUnlock()
	if v != nil {
		return slices.Clone(v), nil
	}
	all, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return slices.Clone(all), nil
}

func (s *ModerationService) load(ctx context.Context) ([]domain.Submission, error) {
	r, err, _ := s.sf.Do(domain.KeySubmissionsAll, func() (any, error) {
		all, err := s.subs.List(ctx)
		if err != nil {
			return nil, err
		}
		s.setView(all)
		return all, nil
	})
	if err != nil {
		return nil, err
	}
	return r.([]domain.Submission), nil
}

func (s *ModerationService) commit(all []domain.Submission) {
	s.setView(all)
	s.events.Publish(domain.TopicSubmissionsChanged, nil)
}

func (s *ModerationService) setView(all []domain.Submission) {
	s.mu.Lock()
	s.view = all
	s.mu.Unlock()
}

func (s *ModerationService) notify(ctx context.Context, in domain.NotificationInput) {
	if _, err := s.notes.Create(ctx, in); err != nil {
		s.log.Warn("moderation notification", zap.String("user_id", in.UserID), zap.Error(err))
	}
}

func validateSubmission(in *domain.SubmissionInput) error {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	switch {
	case !in.Type.Valid():
		return domain.Invalid("type", "unknown submission type")
	case in.Title == "":
		return domain.Invalid("title", "required")
	case len(in.Title) > 200:
		return domain.Invalid("title", "at most 200 characters")
	case in.Content == "":
		return domain.Invalid("content", "required")
	case in.Type == domain.SubmissionVlog && in.VideoURL == "":
		return domain.Invalid("videoUrl", "required for vlogs")
	}
	if in.VideoURL != "" {
		if err := validate.Var(in.VideoURL, "url"); err != nil {
			return domain.Invalid("videoUrl", "must be a url")
		}
	}
	return validRating(in.Rating)
}

func decisionTitle(kind domain.NotificationKind) string {
	switch kind {
	case domain.NotifySubmissionApproved:
		return "Submission approved"
	case domain.NotifyEditRequested:
		return "Edit requested"
	}
	return "Submission rejected"
}

func decisionMessage(sub domain.Submission) string {
	msg := fmt.Sprintf("%q was %s.", sub.Title, sub.Status)
	if sub.AdminNotes != "" {
		msg += " Notes: " + sub.AdminNotes
	}
	return msg
}

func accountNotice(a domain.AdminAction) domain.NotificationInput {
	in := domain.NotificationInput{UserID: a.UserID, Message: a.Reason}
	switch a.Kind {
	case domain.ActionWarning:
		in.Kind, in.Title = domain.NotifyAccountWarning, "You received a warning"
	case domain.ActionSuspension:
		in.Kind, in.Title = domain.NotifyAccountSuspended, "Your account is suspended"
		in.Message = fmt.Sprintf("%s (until %s)", a.Reason, a.SuspensionEnd.UTC().Format(time.DateOnly))
	case domain.ActionBan:
		in.Kind, in.Title = domain.NotifyAccountBanned, "Your account is banned"
	case domain.ActionRestore:
		in.Kind, in.Title = domain.NotifyAccountRestored, "Your account is restored"
	}
	if in.Message == "" {
		in.Message = in.Title
	}
	return in
}
