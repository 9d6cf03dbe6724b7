package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/andresgm/shop-auth/internal/config"
	"github.com/andresgm/shop-auth/internal/middleware"
	"github.com/andresgm/shop-auth/internal/repository"
	"github.com/andresgm/shop-auth/internal/service"
	"github.com/andresgm/shop-auth/internal/utils"
)

const refreshCookieName = "refresh_token"

// AuthHandler bundles dependencies for the auth endpoints.
type AuthHandler struct {
	Cfg  config.Config
	Auth *service.AuthService
}

func NewAuthHandler(cfg config.Config, a *service.AuthService) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Auth: a}
}

// Register: create the user (optionally with avatar) and open a session.
func (h *AuthHandler) Register(c echo.Context) error {
	in, ok := h.readRegister(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validateRegister(in, h.Cfg.MaxImageBytes); len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"errors": errs})
	}

	// Generous bound: the transaction may include an object storage upload,
	// which carries its own tighter timeout inside the service.
	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	res, err := h.Auth.Register(ctx, service.RegisterInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Image:    in.Image,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"errors": echo.Map{"email": "already in use"}})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not register user"})
	}

	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusCreated, echo.Map{
		"message":      "user created",
		"user_id":      res.UserID,
		"access_token": res.AccessToken,
		"image_url":    res.ImageURL,
	})
}

// Login: verify credentials and open a session.  The error body never says
// whether the email or the password was wrong.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validateLogin(req); len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"errors": errs})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrBadCredentials) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, echo.Map{"access_token": res.AccessToken})
}

// Refresh: rotate the refresh token carried in the HttpOnly cookie.  An
// invalid or already-rotated token terminates the session instead of
// returning a bare error, which is the anti-replay behavior.
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	res, err := h.Auth.Refresh(ctx, cookie.Value)
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			// Forced logout: a replayed or stolen token ends the session.
			h.Auth.ForceLogout(ctx, middleware.BearerToken(c))
			h.clearRefreshCookie(c)
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session expired"})
		}
		// The old token is already consumed; fail closed.
		h.clearRefreshCookie(c)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}

	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, echo.Map{"access_token": res.AccessToken})
}

// Logout: invalidate the access token, revoke the refresh token from the
// cookie and clear it.  Garbage or missing tokens are treated as already
// logged out, so the endpoint never fails loudly and stays idempotent.
func (h *AuthHandler) Logout(c echo.Context) error {
	var refreshRaw string
	if cookie, err := c.Cookie(refreshCookieName); err == nil {
		refreshRaw = cookie.Value
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	h.Auth.Logout(ctx, middleware.BearerToken(c), refreshRaw)
	h.clearRefreshCookie(c)
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// Me: session introspection for the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, ok := c.Get(middleware.CtxUserID).(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	s, err := h.Auth.GetSession(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load session"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"name":      s.Name,
		"email":     s.Email,
		"image_url": s.ImageURL,
	})
}

// Update: partial profile update.  Absent fields stay untouched; the avatar
// replacement is best effort and never fails the request.
func (h *AuthHandler) Update(c echo.Context) error {
	uid, ok := c.Get(middleware.CtxUserID).(uint64)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	in, parsed := h.readUpdate(c)
	if !parsed {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if errs := validateUpdate(in, h.Cfg.MaxImageBytes); len(errs) > 0 {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"errors": errs})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 20*time.Second)
	defer cancel()

	err := h.Auth.UpdateProfile(ctx, uid, service.UpdateInput{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Image:    in.Image,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"errors": echo.Map{"email": "already in use"}})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update profile"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "profile updated"})
}

// ----- cookie helpers -----

// setRefreshCookie attaches the raw refresh token as an HttpOnly,
// SameSite=Strict cookie.  Secure is environment-dependent: on in prod,
// off in local development without TLS.
func (h *AuthHandler) setRefreshCookie(c echo.Context, tok utils.RefreshToken) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    tok.Raw,
		Path:     "/",
		Expires:  tok.Exp,
		MaxAge:   int(time.Until(tok.Exp).Seconds()),
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure(),
		SameSite: http.SameSiteStrictMode,
	})
}

// clearRefreshCookie overwrites the cookie with an expired empty value.
func (h *AuthHandler) clearRefreshCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Cfg.CookieSecure(),
		SameSite: http.SameSiteStrictMode,
	})
}
