// Package token issues and verifies conversation correlation tokens.
//
// A token is an HS256-signed JWT carrying the user's phone number as the
// subject, the inbound message id, and the issuance time in milliseconds. It is
// threaded through the flow as flow_token and used as the primary key of the
// conversation record.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwt"
)

// DefaultTTL is the validity window of an issued token.
const DefaultTTL = 30 * 24 * time.Hour

const (
	claimMessageID = "message_id"
	claimTimestamp = "timestamp"
)

var (
	// ErrInvalidToken is returned by Verify for malformed or forged tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpired is returned by Verify for correctly signed tokens past their expiry.
	ErrExpired = errors.New("token expired")
)

// Claims is the decoded content of a token.
type Claims struct {
	Subject   string
	MessageID string
	// Timestamp is the issuance time in Unix milliseconds.
	Timestamp int64
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Issuer signs and verifies tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer returns an Issuer. A zero ttl means DefaultTTL.
func NewIssuer(secret string, ttl time.Duration, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// TTL returns the configured validity window.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue returns a signed token for subject and messageID.
func (i *Issuer) Issue(subject, messageID string) (string, error) {
	now := i.now()
	tok, err := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(now).
		Expiration(now.Add(i.ttl)).
		Claim(claimMessageID, messageID).
		Claim(claimTimestamp, now.UnixMilli()).
		Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256(), i.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// Verify checks the signature and expiry of raw and returns its claims.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	tok, err := jwt.ParseString(raw,
		jwt.WithKey(jwa.HS256(), i.secret),
		jwt.WithClock(jwt.ClockFunc(i.now)),
	)
	if err != nil {
		if errors.Is(err, jwt.TokenExpiredError()) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	c := &Claims{}
	c.Subject, _ = tok.Subject()
	c.IssuedAt, _ = tok.IssuedAt()
	c.ExpiresAt, _ = tok.Expiration()
	if err := tok.Get(claimMessageID, &c.MessageID); err != nil {
		return nil, fmt.Errorf("%w: missing %s", ErrInvalidToken, claimMessageID)
	}
	var ts float64
	if err := tok.Get(claimTimestamp, &ts); err == nil {
		c.Timestamp = int64(ts)
	}
	return c, nil
}
