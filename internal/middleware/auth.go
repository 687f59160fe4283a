package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextOwnerKey gin context key holding the authenticated owner id.
const ContextOwnerKey = "user_id"

func bearerToken(c *gin.Context) string {
	ah := c.GetHeader("Authorization")
	if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[7:])
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   "Unauthorized",
		"message": msg,
	})
}

// ParseOwner verifies an HS256 token and returns the owner id from
// user_id (preferred) or sub. exp/nbf/iat are enforced when present.
func ParseOwner(token, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret not configured")
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuedAt())
	if err != nil {
		return "", err
	}
	for _, key := range []string{"user_id", "sub"} {
		id, err := claimString(claims[key])
		if err != nil {
			return "", fmt.Errorf("%s claim: %w", key, err)
		}
		if id != "" {
			return id, nil
		}
	}
	return "", errors.New("token has no subject")
}

// maxExactID float64 以上的整数不再精确
const maxExactID = 1 << 53

func claimString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case float64:
		if t != math.Trunc(t) || math.Abs(t) > maxExactID {
			return "", errors.New("numeric id must be an exact integer")
		}
		return strconv.FormatInt(int64(t), 10), nil
	case nil:
		return "", nil
	default:
		return fmt.Sprint(t), nil
	}
}

// AuthMiddleware enforces Authorization: Bearer <jwt> on owner routes and
// injects the owner id under ContextOwnerKey.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			unauthorized(c, "missing bearer token")
			return
		}
		owner, err := ParseOwner(token, secret)
		if err != nil {
			unauthorized(c, err.Error())
			return
		}
		c.Set(ContextOwnerKey, owner)
		c.Next()
	}
}

// OwnerID returns the authenticated owner, "" when absent.
func OwnerID(c *gin.Context) string {
	return c.GetString(ContextOwnerKey)
}

// CronAuth protects scheduler endpoints with a shared bearer secret.
// An empty secret rejects every request.
func CronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if secret == "" || token == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			unauthorized(c, "invalid cron secret")
			return
		}
		c.Next()
	}
}
