package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/andresgm/shop-auth/internal/config"
)

// NewFixedWindow returns a fixed-window rate limiter keyed by client IP and
// route, intended for the credential endpoints where an attacker probes
// passwords or replays tokens.  Counters live in Redis (INCR + EXPIRE) so
// the window survives restarts and holds across instances.  When the
// limiter is disabled or Redis is unavailable it passes everything through.
func NewFixedWindow(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			window := time.Now().Unix() / int64(cfg.Window.Seconds())
			key := fmt.Sprintf("%s:%s:%s:%d", cfg.Prefix, c.Path(), c.RealIP(), window)

			ctx := c.Request().Context()
			n, err := rdb.Incr(ctx, key).Result()
			if err != nil {
				// Redis trouble must not take the auth endpoints down.
				return next(c)
			}
			if n == 1 {
				_ = rdb.Expire(ctx, key, cfg.Window).Err()
			}
			if n > int64(cfg.Limit) {
				retry := cfg.Window - time.Duration(time.Now().Unix()%int64(cfg.Window.Seconds()))*time.Second
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many requests"})
			}
			return next(c)
		}
	}
}
