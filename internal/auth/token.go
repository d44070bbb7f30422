// ABOUTME: JWT token verification for authenticating gateway connections
// ABOUTME: Uses HS256 signing with configurable secret; tokens carry user ID and role

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrMissingClaim = errors.New("missing required claim")
)

// Identity is the verified identity carried by a token: the subject user and
// their role classifier. Authentication itself (credential checks, token
// issuance flows) lives outside the gateway; this package only verifies.
type Identity struct {
	UserID string
	Role   string
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// JWTVerifier implements TokenVerifier using HS256 signed JWTs
type JWTVerifier struct {
	secret []byte
}

// NewJWTVerifier creates a new JWT verifier with the given secret
func NewJWTVerifier(secret []byte) (*JWTVerifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &JWTVerifier{secret: secret}, nil
}

// Verify validates the token and extracts the identity from the "sub" and
// "role" claims.
func (v *JWTVerifier) Verify(tokenString string) (*Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method is HS256
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})

	if err != nil {
		// Check if it's specifically an expiration error
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return nil, fmt.Errorf("%w: role", ErrMissingClaim)
	}

	return &Identity{UserID: sub, Role: role}, nil
}

// Generate creates a new JWT token for the given identity with expiration
func (v *JWTVerifier) Generate(identity Identity, expiresIn time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  identity.UserID,
		"role": identity.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(expiresIn).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
