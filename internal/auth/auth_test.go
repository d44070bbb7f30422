// ABOUTME: Tests for JWT verification and the HTTP auth middleware
// ABOUTME: Covers claim extraction, expiry, malformed tokens, header and query credentials

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifier(t *testing.T) *JWTVerifier {
	t.Helper()
	v, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)
	return v
}

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := newVerifier(t)

	token, err := v.Generate(Identity{UserID: "u1", Role: "consumer"}, time.Hour)
	require.NoError(t, err)

	identity, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, "consumer", identity.Role)
}

func TestJWTVerifier_ExpiredToken(t *testing.T) {
	v := newVerifier(t)

	token, err := v.Generate(Identity{UserID: "u1", Role: "admin"}, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTVerifier_WrongSecret(t *testing.T) {
	v := newVerifier(t)
	other, err := NewJWTVerifier([]byte("other-secret"))
	require.NoError(t, err)

	token, err := other.Generate(Identity{UserID: "u1", Role: "admin"}, time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTVerifier_MissingRoleClaim(t *testing.T) {
	v := newVerifier(t)

	raw := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token, err := raw.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.ErrorIs(t, err, ErrMissingClaim)
}

func TestJWTVerifier_GarbageToken(t *testing.T) {
	v := newVerifier(t)

	_, err := v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewJWTVerifier_EmptySecret(t *testing.T) {
	_, err := NewJWTVerifier(nil)
	assert.Error(t, err)
}

func TestMiddleware_BearerHeader(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Generate(Identity{UserID: "u1", Role: "creator"}, time.Hour)
	require.NoError(t, err)

	var got *Identity
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "creator", got.Role)
}

func TestMiddleware_QueryToken(t *testing.T) {
	v := newVerifier(t)
	token, err := v.Generate(Identity{UserID: "u2", Role: "consumer"}, time.Hour)
	require.NoError(t, err)

	var got *Identity
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "u2", got.UserID)
}

func TestMiddleware_RejectsMissingAndInvalidCredentials(t *testing.T) {
	v := newVerifier(t)
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	cases := []struct {
		name   string
		header string
		target string
	}{
		{name: "no credentials", target: "/api/conversations"},
		{name: "malformed header", header: "Token abc", target: "/api/conversations"},
		{name: "bad token", header: "Bearer garbage", target: "/api/conversations"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}
