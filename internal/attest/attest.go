// Package attest issues signed receipts for verification outcomes. A
// receipt lets a downstream gate (e.g. a merge check) accept a recent
// verification without re-running it, while the signature and expiry keep
// the receipt from being forged or replayed indefinitely.
package attest

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/blackroad/shainfinity/internal/digest"
)

// Claims are the JWT claims of a verification receipt.
type Claims struct {
	jwt.RegisteredClaims
	Verdict string `json:"verdict"`
	Digest  string `json:"digest"` // "algorithm:hex" form of the verified value
}

// Signer issues and verifies receipts signed with HS256.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewSigner creates a Signer.
//
//	issuer — the "iss" claim value; typically the service's base URL.
//	ttl    — receipt lifetime (default: 15 minutes).
func NewSigner(secret []byte, issuer string, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("attest: empty signing secret")
	}
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &Signer{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Attest issues a signed receipt stating that subject was verified with
// the given verdict and digest.
func (s *Signer) Attest(subject, verdict string, d digest.Digest) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
		Verdict: verdict,
		Digest:  d.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign receipt: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a receipt, returning its claims on success.
func (s *Signer) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify receipt: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid receipt claims")
	}
	return claims, nil
}

// TTL returns the configured receipt lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }
