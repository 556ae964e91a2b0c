// Package authn verifies inbound bearer tokens against the configured
// OIDC issuers (spec §6) and exposes the resulting claim set to handlers.
// The teacher has no auth layer of its own — PAPI's source repo assumed
// a verified claim set is handed to it — so this is new code, built in
// the teacher's handler-factory style (a constructor closing over
// dependencies, returning an echo.MiddlewareFunc/HandlerFunc).
package authn

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/labstack/echo/v4"

	"github.com/ai4os/papi/pkg/apierrors"
)

// Claims is the verified identity PAPI extracts from a bearer token,
// matching spec §1's "{subject, email, VOs, entitlements}".
type Claims struct {
	Subject      string   `json:"sub"`
	Email        string   `json:"email"`
	Name         string   `json:"name"`
	VOs          []string `json:"eduperson_entitlement"`
	Entitlements []string `json:"entitlements"`
}

// HasVO reports whether the caller is a member of vo.
func (c Claims) HasVO(vo string) bool {
	for _, v := range c.VOs {
		if v == vo {
			return true
		}
	}
	return false
}

const claimsContextKey = "papi.authn.claims"

// FromContext retrieves the Claims a prior Middleware call attached to c.
func FromContext(c echo.Context) Claims {
	v, _ := c.Get(claimsContextKey).(Claims)
	return v
}

// verifier is the subset of oidc.IDTokenVerifier this package needs,
// letting tests substitute a fake instead of running a discovery
// round-trip against a real issuer.
type verifier interface {
	Verify(ctx context.Context, rawToken string) (*oidc.IDToken, error)
}

// Issuer pairs one OIDC provider's verifier with the audience PAPI
// expects tokens from it to carry.
type Issuer struct {
	Name     string
	Audience string
	verifier verifier
}

// NewIssuer performs OIDC discovery against issuerURL and builds a
// verifier checking the given audience, the ecosystem-standard pairing
// of coreos/go-oidc with golang.org/x/oauth2 (already an indirect
// teacher dependency).
func NewIssuer(ctx context.Context, issuerURL, audience string) (*Issuer, error) {
	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("authn: discover issuer %s: %w", issuerURL, err)
	}
	v := provider.Verifier(&oidc.Config{ClientID: audience, SkipClientIDCheck: audience == ""})
	return &Issuer{Name: issuerURL, Audience: audience, verifier: v}, nil
}

// allowedVOs is the process-wide VO allow-list a token's claims must
// intersect (spec §6: "the claims must include at least one VO in the
// configured allow-list. Non-member tokens receive 403").
type Verifier struct {
	mu              sync.RWMutex
	issuers         []*Issuer
	allowed         map[string]bool
	adminEntitlement string
}

func NewVerifier(issuers []*Issuer, allowedVOs []string) *Verifier {
	allowed := make(map[string]bool, len(allowedVOs))
	for _, vo := range allowedVOs {
		allowed[vo] = true
	}
	return &Verifier{issuers: issuers, allowed: allowed}
}

// WithAdminEntitlement sets the single entitlement string a caller's
// token must carry to pass Admin middleware, and returns v for chaining
// at construction time.
func (v *Verifier) WithAdminEntitlement(entitlement string) *Verifier {
	v.adminEntitlement = entitlement
	return v
}

func (c Claims) hasEntitlement(e string) bool {
	for _, v := range c.Entitlements {
		if v == e {
			return true
		}
	}
	return false
}

// verify tries every configured issuer in turn; OIDC tokens are opaque
// to everyone but their own issuer's JWKS, so there is no cheaper way to
// pick the right one than to ask each verifier.
func (v *Verifier) verify(ctx context.Context, rawToken string) (Claims, error) {
	v.mu.RLock()
	issuers := v.issuers
	v.mu.RUnlock()

	var lastErr error
	for _, iss := range issuers {
		tok, err := iss.verifier.Verify(ctx, rawToken)
		if err != nil {
			lastErr = err
			continue
		}
		var claims Claims
		if err := tok.Claims(&claims); err != nil {
			return Claims{}, fmt.Errorf("authn: decode claims: %w", err)
		}
		if claims.Subject == "" {
			claims.Subject = tok.Subject
		}
		return claims, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no OIDC issuers configured")
	}
	return Claims{}, lastErr
}

func (v *Verifier) hasAllowedVO(claims Claims) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, vo := range claims.VOs {
		if v.allowed[vo] {
			return true
		}
	}
	return false
}

func bearerToken(req *http.Request) (string, bool) {
	h := req.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(h, prefix)), true
}

// Required builds middleware rejecting requests without a valid bearer
// token carrying at least one allow-listed VO, and attaching the
// resulting Claims for downstream handlers to read via FromContext.
func (v *Verifier) Required() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return apierrors.AuthFailed("missing bearer token")
			}
			claims, err := v.verify(c.Request().Context(), raw)
			if err != nil {
				return apierrors.AuthFailed("invalid token", apierrors.WithError(err))
			}
			if !v.hasAllowedVO(claims) {
				return apierrors.New(apierrors.KindForbidden, "caller is not a member of any allow-listed VO")
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}

// Admin wraps Required with an additional entitlement check, for the one
// route (cache invalidation) that is operator-only rather than
// per-VO-member. If no admin entitlement is configured, every call is
// rejected rather than silently left open.
func (v *Verifier) Admin() echo.MiddlewareFunc {
	required := v.Required()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := required(func(c echo.Context) error {
			if v.adminEntitlement == "" || !FromContext(c).hasEntitlement(v.adminEntitlement) {
				return apierrors.Forbidden("caller lacks the admin entitlement")
			}
			return next(c)
		})
		return guarded
	}
}

// LowBar builds middleware for the try-me surface (spec §6: "yes (low
// bar)"): a valid token of any kind is enough, VO membership is not
// required, matching the source's try_me router comment that it is
// "meant to be public for everyone authenticated ... no VO membership
// required."
func (v *Verifier) LowBar() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request())
			if !ok {
				return apierrors.AuthFailed("missing bearer token")
			}
			claims, err := v.verify(c.Request().Context(), raw)
			if err != nil {
				return apierrors.AuthFailed("invalid token", apierrors.WithError(err))
			}
			c.Set(claimsContextKey, claims)
			return next(c)
		}
	}
}
