package middleware // middleware provides reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/andresgm/shop-auth/internal/auth"
)

// Context keys set by RequireAuth for downstream handlers.
const (
	CtxUserID      = "user_id"
	CtxRole        = "role"
	CtxAccessToken = "access_token"
)

// RequireAuth returns an Echo middleware that validates a Bearer access
// token against the issuer (signature, expiry and denylist) and injects the
// resolved identity into the request context.  Handlers behind it read the
// user via c.Get(CtxUserID) and never re-resolve identity themselves.
func RequireAuth(issuer *auth.Issuer) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := issuer.Verify(c.Request().Context(), raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}

			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxRole, claims.Role)
			// The raw token is kept around so logout can denylist it.
			c.Set(CtxAccessToken, raw)
			return next(c)
		}
	}
}

// BearerToken extracts the raw bearer token from the request, or "" when
// none is present.  Used by endpoints that accept but do not require an
// access token (logout, failed refresh).
func BearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}
