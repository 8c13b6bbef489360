package middleware

import (
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// Context keys set by Auth
const (
	OwnerKey = "owner"
	TokenKey = "token"
)

// Auth requires a backend token and derives the owner key that scopes form
// sessions. The token itself is forwarded to the backend unchanged, which is
// where it is authorized. jwtSecret may be empty; see OwnerOf.
func Auth(jwtSecret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		headerParts := strings.Fields(authHeader)
		if len(headerParts) != 2 || (headerParts[0] != "Token" && headerParts[0] != "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
			c.Abort()
			return
		}

		token := headerParts[1]
		owner := OwnerOf(token, jwtSecret)
		logger.Debug("Request authenticated", zap.String("owner", owner))

		c.Set(OwnerKey, owner)
		c.Set(TokenKey, token)
		c.Next()
	}
}

// OwnerOf returns a stable key for the user behind token. Claims are only
// used when token is a JWT whose signature verifies against jwtSecret; any
// other token, including an unverifiable JWT, is keyed by its hash.
func OwnerOf(token, jwtSecret string) string {
	if claims, err := verifiedClaims(token, jwtSecret); err == nil {
		if sub, ok := claims["sub"].(string); ok && sub != "" {
			return "sub:" + sub
		}
		if uid := cast.ToString(claims["user_id"]); uid != "" {
			return "uid:" + uid
		}
	}
	sum := blake2b.Sum256([]byte(token))
	return "tok:" + hex.EncodeToString(sum[:16])
}

func verifiedClaims(tokenString, jwtSecret string) (jwt.MapClaims, error) {
	if jwtSecret == "" {
		return nil, errors.New("no JWT secret configured")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	return claims, nil
}
