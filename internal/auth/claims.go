package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	emailClaim = "email"
	nameClaim  = "name"
)

// Claims is the shopper identity carried by an access token.
type Claims struct {
	UserID string
	Email  string
	Name   string
}

func claimsFromToken(tok jwt.Token) (Claims, error) {
	if tok.Subject() == "" {
		return Claims{}, errors.New("auth: token missing subject")
	}
	c := Claims{UserID: tok.Subject()}
	if raw, ok := tok.Get(emailClaim); ok {
		c.Email, _ = raw.(string)
	}
	if raw, ok := tok.Get(nameClaim); ok {
		c.Name, _ = raw.(string)
	}
	return c, nil
}

// claimRules are the checks applied to a token whose signature already verified.
type claimRules struct {
	issuer    string
	audience  string
	skew      time.Duration
	algorithm jwa.SignatureAlgorithm
}

func (r claimRules) check(tok jwt.Token, alg jwa.SignatureAlgorithm, now time.Time) error {
	switch {
	case tok == nil:
		return errors.New("auth: token is nil")
	case alg != r.algorithm:
		return fmt.Errorf("auth: unexpected token algorithm %q", alg)
	case tok.Expiration().IsZero():
		return errors.New("auth: token has no expiry")
	}
	return jwt.Validate(tok,
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(r.skew),
		jwt.WithIssuer(r.issuer),
		jwt.WithAudience(r.audience),
	)
}
