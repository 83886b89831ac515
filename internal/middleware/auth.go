package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/calliopehq/persona-backend/internal/logger"
)

const (
	ContextKeyUserID      = "user_id"
	ContextKeyWorkspaceID = "workspace_id"
)

// AuthMiddleware is an opaque identity gate: it turns a bearer token
// into (user id, workspace id) and nothing more. Authorization policy
// lives elsewhere.
type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, jwtSecret string) *AuthMiddleware {
	middlewareLog := log.With("middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLog, secret: []byte(jwtSecret)}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		claims := jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return am.secret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}

		userID, errUser := claimUUID(claims, "user_id")
		workspaceID, errWs := claimUUID(claims, "workspace_id")
		if errUser != nil || errWs != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(ContextKeyUserID, userID)
		c.Set(ContextKeyWorkspaceID, workspaceID)
		c.Next()
	}
}

// Identity reads the ids RequireAuth stored on the request.
func Identity(c *gin.Context) (userID, workspaceID uuid.UUID, ok bool) {
	u, okUser := c.Get(ContextKeyUserID)
	w, okWs := c.Get(ContextKeyWorkspaceID)
	if !okUser || !okWs {
		return uuid.Nil, uuid.Nil, false
	}
	userID, okUser = u.(uuid.UUID)
	workspaceID, okWs = w.(uuid.UUID)
	return userID, workspaceID, okUser && okWs
}

func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

func claimUUID(claims jwt.MapClaims, key string) (uuid.UUID, error) {
	raw, ok := claims[key].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("claim %s missing", key)
	}
	return uuid.Parse(raw)
}
