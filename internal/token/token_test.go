package token

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestIssueAndVerify(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	iss, err := NewIssuer("s3cret", 0, WithClock(fixedClock(now)))
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, iss.TTL())

	raw, err := iss.Issue("91900000001", "wamid.A")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(raw, "."), "compact JWS has three segments")

	claims, err := iss.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, "91900000001", claims.Subject)
	assert.Equal(t, "wamid.A", claims.MessageID)
	assert.Equal(t, now.UnixMilli(), claims.Timestamp)
	assert.True(t, claims.IssuedAt.Equal(now))
	assert.True(t, claims.ExpiresAt.Equal(now.Add(30*24*time.Hour)))
}

func TestTokensAreUniquePerMessage(t *testing.T) {
	now := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)
	iss, err := NewIssuer("s3cret", 0, WithClock(fixedClock(now)))
	require.NoError(t, err)

	a, err := iss.Issue("91900000001", "msgA")
	require.NoError(t, err)
	b, err := iss.Issue("91900000001", "msgB")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVerifyExpired(t *testing.T) {
	issuedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := issuedAt
	iss, err := NewIssuer("s3cret", 0, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	raw, err := iss.Issue("91900000001", "wamid.A")
	require.NoError(t, err)

	clock = issuedAt.Add(29 * 24 * time.Hour)
	_, err = iss.Verify(raw)
	require.NoError(t, err)

	clock = issuedAt.Add(31 * 24 * time.Hour)
	_, err = iss.Verify(raw)
	assert.True(t, errors.Is(err, ErrExpired), "got %v", err)
}

func TestVerifyForged(t *testing.T) {
	iss, err := NewIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	other, err := NewIssuer("other", time.Hour)
	require.NoError(t, err)

	raw, err := other.Issue("91900000001", "wamid.A")
	require.NoError(t, err)

	_, err = iss.Verify(raw)
	assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)

	_, err = iss.Verify("not-a-token")
	assert.True(t, errors.Is(err, ErrInvalidToken))

	good, err := iss.Issue("91900000001", "wamid.A")
	require.NoError(t, err)
	parts := strings.Split(good, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "xx"
	_, err = iss.Verify(strings.Join(parts, "."))
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	_, err := NewIssuer("", 0)
	assert.Error(t, err)
}
