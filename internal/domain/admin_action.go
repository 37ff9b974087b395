package domain

import (
	"context"
	"time"
)

type AdminActionKind string

const (
	ActionWarning    AdminActionKind = "warning"
	ActionSuspension AdminActionKind = "suspension"
	ActionBan        AdminActionKind = "ban"
	ActionRestore    AdminActionKind = "restore"
)

// AdminAction is one disciplinary record against an account.
type AdminAction struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Kind          AdminActionKind `json:"kind"`
	Reason        string          `json:"reason"`
	IssuedBy      string          `json:"issuedBy"`
	IssuedAt      time.Time       `json:"issuedAt"`
	SuspensionEnd *time.Time      `json:"suspensionEnd,omitempty"`
}

type AdminActionRepository interface {
	List(ctx context.Context, userID string) ([]AdminAction, error)
	Append(ctx context.Context, a AdminAction) error
}
