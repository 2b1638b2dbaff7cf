package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/apperr"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/config"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/httpx"
	"github.com/norbi4050/misiones-arrienda-sub010/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Paths that never count against the per-IP budget
var rateLimitExempt = []string{"/health", "/metrics", "/api/payments/webhook"}

// IPRateLimiter limits requests per client IP. A non positive rate
// disables it.
func IPRateLimiter(cfg *config.RateLimitConfig) echo.MiddlewareFunc {
	if cfg.RequestsPerSecond <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = int(cfg.RequestsPerSecond) + 1
	}

	return echomw.RateLimiterWithConfig(echomw.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			for _, p := range rateLimitExempt {
				if path == p || strings.HasPrefix(path, p+"/") {
					return true
				}
			}
			return false
		},
		Store: echomw.NewRateLimiterMemoryStoreWithConfig(echomw.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RequestsPerSecond),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return httpx.Error(c, apperr.Forbidden("unable to identify client"))
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			logger.FromEcho(c).Warn("Rate limit exceeded", zap.String("ip", identifier))
			c.Response().Header().Set("Retry-After", "1")
			return httpx.Error(c, apperr.TooManyRequests("too many requests"))
		},
	})
}
