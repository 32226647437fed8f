package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret-key-32-bytes-long!!!")

func makeToken(t *testing.T, subject, role string, exp time.Time, mutate ...func(*Claims)) string {
	t.Helper()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		Role: role,
	}
	for _, m := range mutate {
		m(&claims)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func newVerifier() JWTVerifier { return JWTVerifier{Secret: testSecret} }

func TestParse(t *testing.T) {
	hour := time.Now().Add(time.Hour)
	tests := []struct {
		name    string
		v       JWTVerifier
		token   func(t *testing.T) string
		wantErr bool
	}{
		{"valid", newVerifier(), func(t *testing.T) string { return makeToken(t, "user-1", "user", hour) }, false},
		{"expired", newVerifier(), func(t *testing.T) string { return makeToken(t, "user-1", "user", time.Now().Add(-time.Hour)) }, true},
		{"expired within leeway", JWTVerifier{Secret: testSecret, Leeway: time.Minute}, func(t *testing.T) string {
			return makeToken(t, "user-1", "", time.Now().Add(-10*time.Second))
		}, false},
		{"wrong secret", JWTVerifier{Secret: []byte("other")}, func(t *testing.T) string { return makeToken(t, "user-1", "", hour) }, true},
		{"malformed", newVerifier(), func(*testing.T) string { return "not.a.valid.token" }, true},
		{"missing subject", newVerifier(), func(t *testing.T) string { return makeToken(t, " ", "admin", hour) }, true},
		{"issuer enforced", JWTVerifier{Secret: testSecret, Issuer: "animefan"}, func(t *testing.T) string {
			return makeToken(t, "user-1", "", hour, func(c *Claims) { c.Issuer = "someone-else" })
		}, true},
		{"issuer matches", JWTVerifier{Secret: testSecret, Issuer: "animefan"}, func(t *testing.T) string {
			return makeToken(t, "user-1", "", hour, func(c *Claims) { c.Issuer = "animefan" })
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.v.Parse(tt.token(t))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadToken)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_RejectsNoneAlgorithm(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}, Role: "admin"}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = newVerifier().Parse(tok)
	assert.Error(t, err)
}

func TestParse_TamperedPayload(t *testing.T) {
	tok := makeToken(t, "user-1", "user", time.Now().Add(time.Hour))
	parts := strings.Split(tok, ".")
	require.Len(t, parts, 3)
	other := strings.Split(makeToken(t, "user-1", "admin", time.Now().Add(time.Hour)), ".")
	_, err := newVerifier().Parse(parts[0] + "." + other[1] + "." + parts[2])
	assert.Error(t, err)
}

func serve(mw func(http.Handler) http.Handler, header string) (*httptest.ResponseRecorder, Principal, bool) {
	var got Principal
	var ok bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr, got, ok
}

func TestRequireUser(t *testing.T) {
	valid := makeToken(t, "user-1", "admin", time.Now().Add(time.Hour))

	rr, p, ok := serve(RequireUser(newVerifier()), "Bearer "+valid)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	require.True(t, ok)
	assert.Equal(t, Principal{UserID: "user-1", Role: "admin"}, p)

	rr, _, _ = serve(RequireUser(newVerifier()), "bearer  "+valid)
	assert.Equal(t, http.StatusNoContent, rr.Code, "scheme is case-insensitive")

	for _, header := range []string{"", "Basic abc", "Bearer", "Bearer garbage"} {
		rr, _, _ := serve(RequireUser(newVerifier()), header)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, header)
		assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")
	}
}

func TestOptionalUser(t *testing.T) {
	valid := makeToken(t, "user-2", "", time.Now().Add(time.Hour))

	rr, p, ok := serve(OptionalUser(newVerifier()), "Bearer "+valid)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, ok)
	assert.Equal(t, "user-2", p.UserID)

	rr, _, ok = serve(OptionalUser(newVerifier()), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, ok)

	rr, _, ok = serve(OptionalUser(newVerifier()), "Bearer garbage")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.False(t, ok)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		role string
		want int
	}{
		{"admin", http.StatusNoContent},
		{"ADMIN", http.StatusNoContent},
		{"user", http.StatusForbidden},
		{"", http.StatusForbidden},
	}
	for _, tt := range tests {
		h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(WithRole(WithUserID(req.Context(), "u"), tt.role))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, tt.want, rr.Code, tt.role)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithRole(context.Background(), "admin")
	_, ok := UserIDFromContext(ctx)
	assert.False(t, ok, "role alone is not an authenticated caller")

	ctx = WithUserID(ctx, "user-9")
	uid, ok := UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "user-9", uid)
	assert.True(t, IsAdmin(ctx))
}
