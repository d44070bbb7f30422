// ABOUTME: HTTP middleware for JWT authentication on API and socket endpoints
// ABOUTME: Extracts the token from the Authorization header (or query for websockets)

package auth

import (
	"net/http"
	"strings"
)

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// TokenFromRequest pulls the credential from the Authorization header, falling
// back to the "token" query parameter for transports that cannot set headers
// (browser websocket handshakes). Returns the token and an error message.
func TokenFromRequest(r *http.Request) (string, string) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		return extractBearerToken(authHeader)
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, ""
	}
	return "", "missing credentials"
}

// Middleware creates an HTTP middleware that verifies the request token and
// adds the resulting Identity to the request context via WithIdentity.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := TokenFromRequest(r)
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
