package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/storefront/internal/common"
)

// VerifierConfig configures access token verification.
type VerifierConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
}

// Verifier checks HS256 access tokens issued by the storefront identity service.
type Verifier struct {
	secret []byte
	rules  claimRules
	now    func() time.Time
}

// NewVerifier builds a verifier. The secret is required.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("auth: JWT secret is required")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = "storefront"
	}
	audience := strings.TrimSpace(cfg.Audience)
	if audience == "" {
		audience = "storefront-web"
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	return &Verifier{
		secret: []byte(secret),
		rules:  claimRules{issuer: issuer, audience: audience, skew: skew, algorithm: jwa.HS256},
		now:    time.Now,
	}, nil
}

// WithNow overrides the verifier clock.
func (v *Verifier) WithNow(now func() time.Time) {
	if now != nil {
		v.now = now
	}
}

// Parse validates the token and returns its claims.
func (v *Verifier) Parse(token string) (Claims, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return Claims{}, common.NewAppError("UNAUTHORIZED", "missing token", http.StatusUnauthorized, nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return Claims{}, invalidToken(err)
	}
	if algorithm != v.rules.algorithm {
		return Claims{}, invalidToken(fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return Claims{}, invalidToken(err)
	}
	if err := v.rules.check(parsed, algorithm, v.now()); err != nil {
		return Claims{}, invalidToken(err)
	}
	claims, err := claimsFromToken(parsed)
	if err != nil {
		return Claims{}, invalidToken(err)
	}
	return claims, nil
}

// Sign issues an access token for the given shopper. The identity service owns issuance in
// production; the API uses this for local tooling and tests.
func (v *Verifier) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(claims.UserID).
		Issuer(v.rules.issuer).
		Audience([]string{v.rules.audience}).
		IssuedAt(now).
		NotBefore(now.Add(-v.rules.skew)).
		Expiration(now.Add(ttl))
	if claims.Email != "" {
		builder = builder.Claim(emailClaim, claims.Email)
	}
	token, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func invalidToken(err error) error {
	return common.NewAppError("UNAUTHORIZED", "invalid token", http.StatusUnauthorized, err)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
		} else if algorithm != alg {
			return "", fmt.Errorf("auth: mixed token algorithms detected")
		}
	}
	return algorithm, nil
}
