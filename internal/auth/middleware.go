package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexalabs/nexa/internal/database"
)

const (
	contextUserKey    = "auth.user"
	contextSessionKey = "auth.session"

	// SessionCookie is the fallback token transport for browser clients.
	SessionCookie = "nexa_session"
)

// Authenticated rejects requests without a live session. The token is taken
// from the Authorization bearer header, falling back to the session cookie.
func (s *Service) Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			challenge(c, "missing bearer token")
			return
		}
		user, session, err := s.Verify(token)
		if err != nil {
			challenge(c, err.Error())
			return
		}
		c.Set(contextUserKey, user)
		c.Set(contextSessionKey, session)
		c.Next()
	}
}

// Administrator additionally requires the admin role. Use after
// Authenticated.
func (s *Service) Administrator() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			challenge(c, "missing bearer token")
			return
		}
		if !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "administrator role required",
			})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user set by the middleware.
func CurrentUser(c *gin.Context) *database.User {
	if v, ok := c.Get(contextUserKey); ok {
		if user, ok := v.(*database.User); ok {
			return user
		}
	}
	return nil
}

// CurrentSession returns the authenticated session set by the middleware.
func CurrentSession(c *gin.Context) *database.Session {
	if v, ok := c.Get(contextSessionKey); ok {
		if session, ok := v.(*database.Session); ok {
			return session
		}
	}
	return nil
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}
	return ""
}

// challenge answers 401 with the RFC 6750 bearer challenge.
func challenge(c *gin.Context, description string) {
	c.Header("WWW-Authenticate",
		`Bearer error="invalid_token", error_description="`+description+`"`)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": description})
}
