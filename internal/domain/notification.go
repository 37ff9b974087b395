package domain

import (
	"context"
	"time"
)

type NotificationKind string

const (
	NotifySubmissionApproved NotificationKind = "submission_approved"
	NotifySubmissionRejected NotificationKind = "submission_rejected"
	NotifyEditRequested      NotificationKind = "edit_requested"
	NotifyAccountWarning     NotificationKind = "account_warning"
	NotifyAccountSuspended   NotificationKind = "account_suspended"
	NotifyAccountBanned      NotificationKind = "account_banned"
	NotifyAccountRestored    NotificationKind = "account_restored"
	NotifyProgressCompleted  NotificationKind = "progress_completed"
	NotifyQuizReward         NotificationKind = "quiz_reward"
	NotifySystem             NotificationKind = "system"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Kind      NotificationKind `json:"kind"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Link      string           `json:"link,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	IsRead    bool             `json:"isRead"`
	ReadAt    *time.Time       `json:"readAt,omitempty"`
}

type NotificationInput struct {
	UserID  string           `json:"userId"`
	Kind    NotificationKind `json:"kind"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	Link    string           `json:"link,omitempty"`
}

type NotificationRepository interface {
	Load(ctx context.Context, userID string) ([]Notification, error)
	Mutate(ctx context.Context, userID string, fn func(log []Notification) ([]Notification, error)) ([]Notification, error)
}
