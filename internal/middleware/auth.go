package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ActorClaims is what the session layer mints. Chat only consumes the actor
// id; roles and permissions stay on the other side of this boundary.
type ActorClaims struct {
	ActorID string `json:"actor_id"`
	jwt.RegisteredClaims
}

const actorContextKey = "actorID"

var errInvalidToken = errors.New("invalid token")

// ActorAuth validates the bearer token and stores the actor id in the
// request context.
func ActorAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if h == "" || !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		actorID, err := ActorFromToken(strings.TrimPrefix(h, "Bearer "), jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(actorContextKey, actorID)
		c.Next()
	}
}

// ActorFromToken parses and validates a token, returning the actor id. Used
// by the middleware and by the websocket endpoint, which carries the token
// as a query parameter because browsers cannot set headers on upgrade.
func ActorFromToken(tokenStr, jwtSecret string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &ActorClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errInvalidToken
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return "", errInvalidToken
	}

	claims, ok := token.Claims.(*ActorClaims)
	if !ok || claims.ActorID == "" {
		return "", errInvalidToken
	}
	return claims.ActorID, nil
}

// MustActorID returns the actor id set by ActorAuth.
func MustActorID(c *gin.Context) string {
	v, _ := c.Get(actorContextKey)
	id, _ := v.(string)
	return id
}
