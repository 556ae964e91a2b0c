// Package provenance mints and verifies the short-lived token C6's batch
// snapshot job carries as proof that PAPI, not an arbitrary caller,
// authorized the commit+push it performs (spec §6's PAPI_PROVENANCE_TOKEN
// environment variable). The original source stamps a static provenance
// token onto every Nomad snapshot job var; this package upgrades that to
// a per-job signed claim so a downstream verifier (the Registry's
// pre-push hook, or an operator debugging a stuck batch job) can check
// who the job belongs to and that it hasn't expired, without needing a
// lookup back to PAPI.
package provenance

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TTL bounds how long a minted token is valid for: long enough to cover
// a slow snapshot batch job, short enough that a leaked token is not a
// standing credential.
const TTL = 2 * time.Hour

// Claims identifies the job a provenance token was minted for.
type Claims struct {
	Subject string `json:"sub"`
	VO      string `json:"vo"`
	JobUUID string `json:"job_uuid"`
	jwt.RegisteredClaims
}

// Mint signs a provenance token for one job, using secret (the process's
// PAPI_PROVENANCE_TOKEN) as the HMAC key.
func Mint(secret, subject, vo, jobUUID string) (string, error) {
	now := time.Now()
	claims := Claims{
		Subject: subject,
		VO:      vo,
		JobUUID: jobUUID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TTL)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("provenance: sign: %w", err)
	}
	return signed, nil
}

// Verify checks a token's signature and expiry and returns its claims.
func Verify(secret, token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("provenance: unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("provenance: verify: %w", err)
	}
	return &claims, nil
}
