package domain

import "strings"

// Persisted key layout. Every entity lives under exactly one key.
const (
	KeySessionCurrent = "session.current"
	KeyUsersAll       = "users.all"
	KeySubmissionsAll = "submissions.all"

	prefixProgress      = "progress."
	prefixNotifications = "notifications."
	prefixAdminActions  = "adminActions."
	prefixQuizTimeLimit = "quiz.timeLimit."
	prefixSessions      = "sessions."
)

// In-tab topics.
const (
	TopicAuthStateChanged     = "auth-state-changed"
	TopicProgressChanged      = "progress-changed"
	TopicNotificationsChanged = "notifications-changed"
	TopicSubmissionsChanged   = "submissions-changed"
)

func ProgressKey(userID string) string      { return prefixProgress + userID }
func NotificationsKey(userID string) string { return prefixNotifications + userID }
func AdminActionsKey(userID string) string  { return prefixAdminActions + userID }
func QuizTimeLimitKey(userID string) string { return prefixQuizTimeLimit + userID }
func SessionsKey(userID string) string      { return prefixSessions + userID }

// UserFromProgressKey returns the user id of a progress key.
func UserFromProgressKey(key string) (string, bool) {
	return cutPrefix(key, prefixProgress)
}

// UserFromNotificationsKey returns the user id of a notifications key.
func UserFromNotificationsKey(key string) (string, bool) {
	return cutPrefix(key, prefixNotifications)
}

func cutPrefix(key, prefix string) (string, bool) {
	id, ok := strings.CutPrefix(key, prefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
