package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/storefront-checkout/internal/checkout"
	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the bearer token body. UserID falls back to the subject.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
	Admin  bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller.
type Principal struct {
	User  checkout.User
	Admin bool
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Authenticator verifies HS256 bearer tokens.
type Authenticator struct {
	Secret []byte
	Now    func() time.Time
}

func (a *Authenticator) parse(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(a.Now))
	}
	var c Claims
	tok, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) { return a.Secret, nil }, opts...)
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if c.UserID == "" {
		c.UserID = c.Subject
	}
	if c.UserID == "" {
		return nil, errors.New("token has no user")
	}
	return &c, nil
}

// Issue signs a token for u. Used by tooling and tests.
func (a *Authenticator) Issue(u checkout.User, admin bool, ttl time.Duration) (string, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	c := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Admin:  admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now()),
			ExpiresAt: jwt.NewNumericDate(now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(a.Secret)
}

// Middleware rejects requests without a valid bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "authorization header is missing")
			return
		}
		c, err := a.parse(strings.TrimSpace(raw))
		if err != nil {
			writeProblem(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}
		p := Principal{User: checkout.User{ID: c.UserID, Email: c.Email}, Admin: c.Admin}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// RequireAdmin must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok || !p.Admin {
			writeProblem(w, http.StatusForbidden, "forbidden", "operator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
