package webserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// SessionMiddleware validates the session JWT minted by the external
// identity service and resolves the voter id from its subject.
func SessionMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		tok, err := jwt.Parse(h[7:],
			func(t *jwt.Token) (interface{}, error) { return secret, nil },
			jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !tok.Valid {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		claims, _ := tok.Claims.(jwt.MapClaims)
		sub, _ := claims["sub"].(string)
		id, err := strconv.ParseUint(sub, 10, 64)
		if err != nil || id == 0 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Set("voterID", id)
		c.Next()
	}
}

func voterID(c *gin.Context) uint64 {
	v, _ := c.Get("voterID")
	id, _ := v.(uint64)
	return id
}

// clientFingerprint is what the suggestion token binds the shown event to.
// Clients that send a stable fingerprint header get a token that survives
// IP churn; others fall back to IP + user agent.
func clientFingerprint(c *gin.Context) string {
	if fp := c.GetHeader("X-Client-Fingerprint"); fp != "" {
		return fp
	}
	return c.ClientIP() + "|" + c.Request.UserAgent()
}
