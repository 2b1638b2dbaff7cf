package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/jwtutil"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
)

const (
	userIDKey = "user_id"
	claimsKey = "claims"
)

// TokenValidator parses session tokens
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwtutil.UserClaims, error)
}

func bearerToken(c echo.Context) (string, bool) {
	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return "", false
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setClaims(c echo.Context, claims *jwtutil.UserClaims) {
	c.Set(userIDKey, claims.UserID)
	c.Set(claimsKey, claims)
	log := logger.FromEcho(c).With(zap.Uint("user_id", claims.UserID))
	logger.SetEcho(c, log)
}

// Auth validates the Bearer token and stores the caller in the context
func Auth(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			log := logger.FromEcho(c)

			if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
				log.Warn("Missing Authorization header")
				return httpx.Error(c, apperr.Unauthorized("missing authorization token"))
			}
			tokenString, ok := bearerToken(c)
			if !ok {
				log.Warn("Invalid Authorization header format")
				return httpx.Error(c, apperr.Unauthorized("invalid authorization format, expected Bearer token"))
			}

			claims, err := tokens.ValidateToken(tokenString)
			if err != nil {
				log.Warn("Invalid or expired token", zap.Error(err))
				return httpx.Error(c, apperr.Unauthorized("invalid or expired token"))
			}

			setClaims(c, claims)
			return next(c)
		}
	}
}

// OptionalAuth stores the caller when a valid token is present and lets
// anonymous requests through
func OptionalAuth(tokens TokenValidator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if tokenString, ok := bearerToken(c); ok {
				if claims, err := tokens.ValidateToken(tokenString); err == nil {
					setClaims(c, claims)
				}
			}
			return next(c)
		}
	}
}

// RequireAdmin rejects callers without the is_admin claim. Must run after Auth.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		claims, ok := ClaimsFromContext(c)
		if !ok || !claims.IsAdmin {
			logger.FromEcho(c).Warn("Admin route denied")
			return httpx.Error(c, apperr.Forbidden("admin access required"))
		}
		return next(c)
	}
}

// GetUserIDFromContext returns the authenticated user id
// Returns 0, false for anonymous requests
func GetUserIDFromContext(c echo.Context) (uint, bool) {
	userID, ok := c.Get(userIDKey).(uint)
	return userID, ok
}

// ClaimsFromContext returns the token claims of the caller
func ClaimsFromContext(c echo.Context) (*jwtutil.UserClaims, bool) {
	claims, ok := c.Get(claimsKey).(*jwtutil.UserClaims)
	return claims, ok
}
