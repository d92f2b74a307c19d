package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"confreg/internal/csrf"
	"confreg/internal/dto"
	"confreg/internal/session"
)

func LoggingMiddleware() gin.HandlerFunc {
	return func(c *ginext.Context) {
		start := time.Now()
		c.Next()

		ev := zlog.Logger.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = zlog.Logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Session resolves the session cookie or bearer token to an actor. Requests
// without a valid session continue anonymously.
func Session(store session.Store, cookieName string) gin.HandlerFunc {
	return func(c *ginext.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			token, _ = c.Cookie(cookieName)
		}
		if token == "" {
			c.Next()
			return
		}

		actor, err := store.Get(c.Request.Context(), token)
		if err != nil {
			if !errors.Is(err, session.ErrNotFound) {
				zlog.Logger.Error().Err(err).Msg("failed to read session")
				dto.InternalServerError(c)
				return
			}
			c.Next()
			return
		}
		session.SetActor(c, actor)
		c.Next()
	}
}

func RequireActor() gin.HandlerFunc {
	return func(c *ginext.Context) {
		if session.ActorFrom(c) == nil {
			dto.UnauthenticatedError(c)
			return
		}
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *ginext.Context) {
		actor := session.ActorFrom(c)
		if actor == nil {
			dto.UnauthenticatedError(c)
			return
		}
		if !actor.IsAdmin() {
			dto.UnauthorizedError(c)
			return
		}
		c.Next()
	}
}

// CSRF guards state-changing requests with the anti-forgery token check.
func CSRF(tokens *csrf.Tokens) gin.HandlerFunc {
	return func(c *ginext.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}
		if err := tokens.Check(c.Request); err != nil {
			zlog.Logger.Warn().Err(err).Str("path", c.Request.URL.Path).Str("origin", c.GetHeader("Origin")).Msg("rejected forged request")
			dto.ForgedRequestError(c, err.Error())
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
