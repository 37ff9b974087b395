package domain

import "time"

// Session is the single active session of a profile.
type Session struct {
	ID        string    `json:"id,omitempty"`
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// Revocations holds the signed-out token ids of one user, each kept until
// the token would have expired anyway.
type Revocations struct {
	Tokens map[string]time.Time `json:"tokens"`
}

func (r Revocations) Revoked(tokenID string) bool {
	_, ok := r.Tokens[tokenID]
	return ok
}

// Prune drops entries whose token expired before cutoff.
func (r *Revocations) Prune(cutoff time.Time) {
	for id, exp := range r.Tokens {
		if exp.Before(cutoff) {
			delete(r.Tokens, id)
		}
	}
}
