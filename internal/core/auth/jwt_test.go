package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTer_Roundtrip(t *testing.T) {
	j := &JWTer{Secret: []byte("secret"), Issuer: "animehub", TTL: time.Hour}

	tok, claims, err := j.Issue("u1", "critique")
	require.NoError(t, err)
	assert.NotEmpty(t, claims.ID)

	got, err := j.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UID)
	assert.Equal(t, "critique", got.Role)
	assert.Equal(t, claims.ID, got.ID)
}

func TestJWTer_TokensAreUnique(t *testing.T) {
	j := &JWTer{Secret: []byte("secret"), Issuer: "animehub", TTL: time.Hour}
	a, _, err := j.Issue("u1", "user")
	require.NoError(t, err)
	b, _, err := j.Issue("u1", "user")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestJWTer_RejectsForeignSecretAndIssuer(t *testing.T) {
	j := &JWTer{Secret: []byte("secret"), Issuer: "animehub", TTL: time.Hour}
	tok, _, err := j.Issue("u1", "user")
	require.NoError(t, err)

	_, err = (&JWTer{Secret: []byte("other"), Issuer: "animehub"}).Parse(tok)
	assert.Error(t, err)

	_, err = (&JWTer{Secret: []byte("secret"), Issuer: "someone-else"}).Parse(tok)
	assert.Error(t, err)
}

func TestJWTer_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	j := &JWTer{Secret: []byte("secret"), Issuer: "animehub", TTL: time.Hour, Now: func() time.Time { return now }}
	tok, _, err := j.Issue("u1", "user")
	require.NoError(t, err)

	now = now.Add(time.Hour + 30*time.Second)
	_, err = j.Parse(tok)
	assert.NoError(t, err, "within leeway")

	now = now.Add(2 * time.Minute)
	_, err = j.Parse(tok)
	assert.Error(t, err)
}
