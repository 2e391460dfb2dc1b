package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// RoomClaims is the payload of a room token minted by the external
// scheduler. The coordinator never issues tokens; it only verifies them.
// The interviewer flag gates the privileged end-for-all operation.
type RoomClaims struct {
	RoomID      string `json:"room_id"`
	Interviewer bool   `json:"interviewer"`
	jwt.RegisteredClaims
}

// TokenVerifier validates room tokens. A zero-secret verifier accepts
// nothing; callers treat a nil verifier as "verification disabled".
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier returns a verifier for the shared secret, or nil when
// the secret is empty (verification disabled).
func NewTokenVerifier(secret string) *TokenVerifier {
	if secret == "" {
		return nil
	}
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify parses and validates a room token.
func (v *TokenVerifier) Verify(tokenString string) (*RoomClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &RoomClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid room token: %w", err)
	}

	claims, ok := token.Claims.(*RoomClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid room token claims")
	}
	return claims, nil
}

// NewAuthMiddleware returns Gin middleware that requires a valid room token
// in the Authorization header. With verification disabled it passes all
// requests through.
func NewAuthMiddleware(verifier *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := verifier.Verify(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("room_claims", claims)
		c.Next()
	}
}
