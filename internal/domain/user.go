package domain

import (
	"context"
	"time"
)

type Role string

const (
	RoleUser     Role = "user"
	RoleCritique Role = "critique"
	RoleAdmin    Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleCritique, RoleAdmin:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountPending   AccountStatus = "pending"
	AccountApproved  AccountStatus = "approved"
	AccountSuspended AccountStatus = "suspended"
	AccountBanned    AccountStatus = "banned"
)

// XPPerLevel is the amount of xp between two levels.
const XPPerLevel = 1000

type User struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Email            string        `json:"email"`
	PasswordHash     string        `json:"passwordHash,omitempty"`
	Role             Role          `json:"role"`
	XP               int           `json:"xp"`
	Level            int           `json:"level"`
	Premium          bool          `json:"premium"`
	PremiumExpiresAt *time.Time    `json:"premiumExpiresAt,omitempty"`
	AccountStatus    AccountStatus `json:"accountStatus"`
	Warnings         int           `json:"warnings"`
	SuspensionEnd    *time.Time    `json:"suspensionEnd,omitempty"`
	Bio              string        `json:"bio,omitempty"`
	AvatarURL        string        `json:"avatarUrl,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	Version          int64         `json:"version"`
}

// LevelForXP maps accumulated xp to a level starting at 1.
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// IsPremium reports whether the premium flag is active at now.
func (u *User) IsPremium(now time.Time) bool {
	if !u.Premium {
		return false
	}
	return u.PremiumExpiresAt == nil || now.Before(*u.PremiumExpiresAt)
}

// Public is the user without credential material.
func (u User) Public() User {
	u.PasswordHash = ""
	return u
}

type UserRepository interface {
	List(ctx context.Context) ([]User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	// Mutate applies fn to the stored user and persists the result.
	Mutate(ctx context.Context, id string, fn func(u *User) error) (*User, error)
}
