package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types. Session tokens are a separate trust domain from QR signatures;
// the two secrets must never be shared.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

type Claims struct {
	UserID    string `json:"userId"`
	Role      string `json:"role,omitempty"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// NewAccessToken mints a short-lived access token carrying the principal's
// primary role.
func NewAccessToken(secret, issuer, userID, role string, ttl time.Duration) (string, error) {
	return newToken(secret, issuer, Claims{UserID: userID, Role: role, TokenType: TypeAccess}, ttl)
}

// NewRefreshToken mints a long-lived refresh token carrying only the
// principal id and the type discriminator.
func NewRefreshToken(secret, issuer, userID string, ttl time.Duration) (string, error) {
	return newToken(secret, issuer, Claims{UserID: userID, TokenType: TypeRefresh}, ttl)
}

func newToken(secret, issuer string, claims Claims, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies the signature and the type discriminator. An access
// token is never accepted where a refresh token is required, and vice versa.
func ParseToken(secret, tokenString, wantType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != wantType {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// BearerToken extracts the token from an Authorization header. A missing or
// malformed scheme yields "" ("no principal"), not an error; callers decide
// whether authentication is mandatory.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
