// Package router wires handlers and middleware onto the Echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/andresgm/shop-auth/internal/auth"
	"github.com/andresgm/shop-auth/internal/handler"
	"github.com/andresgm/shop-auth/internal/middleware"
)

// RegisterRoutes registers routes that need no dependencies.  Currently
// only the health check used by load balancers.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth mounts the session endpoints under /v1.
//
// The credential endpoints (register, login, refresh) carry the rate
// limiter.  Logout is deliberately outside RequireAuth: it must accept an
// already-invalidated access token and still answer success, otherwise a
// second logout would 401 instead of being idempotent.  The handler parses
// the bearer token itself, leniently.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, issuer *auth.Issuer, limiter echo.MiddlewareFunc) {
	v1 := e.Group("/v1")
	v1.POST("/register", a.Register, limiter)
	v1.POST("/login", a.Login, limiter)
	v1.POST("/refresh", a.Refresh, limiter)
	v1.POST("/logout", a.Logout)

	protected := e.Group("/v1", middleware.RequireAuth(issuer))
	protected.POST("/me", a.Me)
	protected.PUT("/me", a.Update)
	protected.PATCH("/me", a.Update)
}
