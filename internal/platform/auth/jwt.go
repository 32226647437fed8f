package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/example/animefan/internal/platform/api"
	"github.com/example/animefan/internal/platform/httpserver"
)

var (
	ErrNoToken  = errors.New("auth: no bearer token")
	ErrBadToken = errors.New("auth: invalid token")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
}

type ctxKeyPrincipal struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKeyPrincipal{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKeyPrincipal{}).(Principal)
	return p, ok && p.UserID != ""
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	return p.UserID, ok
}

func RoleFromContext(ctx context.Context) (string, bool) {
	p, _ := ctx.Value(ctxKeyPrincipal{}).(Principal)
	return p.Role, p.Role != ""
}

// WithUserID sets the caller's id and keeps any role already present.
func WithUserID(ctx context.Context, uid string) context.Context {
	p, _ := ctx.Value(ctxKeyPrincipal{}).(Principal)
	p.UserID = uid
	return WithPrincipal(ctx, p)
}

func WithRole(ctx context.Context, role string) context.Context {
	p, _ := ctx.Value(ctxKeyPrincipal{}).(Principal)
	p.Role = role
	return WithPrincipal(ctx, p)
}

type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// JWTVerifier checks HS256 tokens. Issuer is enforced when set; Leeway
// tolerates clock skew on exp/nbf.
type JWTVerifier struct {
	Secret []byte
	Issuer string
	Leeway time.Duration
}

func (v JWTVerifier) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.Leeway))
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.Secret, nil
	}, opts...)
	if err != nil {
		return nil, errors.Join(ErrBadToken, err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrBadToken
	}
	return claims, nil
}

// Authenticate resolves the request's bearer token to a principal.
func (v JWTVerifier) Authenticate(r *http.Request) (Principal, error) {
	raw, ok := bearer(r)
	if !ok {
		return Principal{}, ErrNoToken
	}
	claims, err := v.Parse(raw)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: claims.Subject, Role: strings.TrimSpace(claims.Role)}, nil
}

func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RequireUser rejects requests without a valid bearer token.
func RequireUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := verifier.Authenticate(r)
			if err != nil {
				rid := httpserver.RequestIDFromContext(r.Context())
				if errors.Is(err, ErrNoToken) {
					api.Unauthorized(w, "UNAUTHENTICATED", "authentication required", rid)
				} else {
					api.Unauthorized(w, "INVALID_TOKEN", "token is invalid or expired", rid)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// OptionalUser attaches the caller when a valid token is present. Anonymous
// and invalid-token requests pass through unauthenticated.
func OptionalUser(verifier JWTVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, err := verifier.Authenticate(r); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	}
}
