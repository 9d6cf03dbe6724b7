package handler

// forms.go parses request bodies for the endpoints that accept either
// multipart/form-data (required when an image file rides along) or plain
// JSON.  Update parsing must distinguish "field absent" from "field empty",
// hence the pointer fields.

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type registerInput struct {
	Name                 string
	Email                string
	Password             string
	PasswordConfirmation string
	Image                []byte
}

type loginReq struct {
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

type updateInput struct {
	Name                 *string
	Email                *string
	Password             *string
	PasswordConfirmation *string
	Image                []byte
}

type registerJSON struct {
	Name                 string `json:"name"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

type updateJSON struct {
	Name                 *string `json:"name"`
	Email                *string `json:"email"`
	Password             *string `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

func isForm(c echo.Context) bool {
	ctype := c.Request().Header.Get(echo.HeaderContentType)
	return strings.HasPrefix(ctype, echo.MIMEMultipartForm) ||
		strings.HasPrefix(ctype, echo.MIMEApplicationForm)
}

// readRegister binds the registration payload.  The second return value is
// false when the body could not be parsed at all.
func (h *AuthHandler) readRegister(c echo.Context) (registerInput, bool) {
	if isForm(c) {
		img, ok := h.readImageFile(c)
		if !ok {
			return registerInput{}, false
		}
		return registerInput{
			Name:                 c.FormValue("name"),
			Email:                c.FormValue("email"),
			Password:             c.FormValue("password"),
			PasswordConfirmation: c.FormValue("password_confirmation"),
			Image:                img,
		}, true
	}
	var req registerJSON
	if err := c.Bind(&req); err != nil {
		return registerInput{}, false
	}
	return registerInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	}, true
}

// readUpdate binds the partial update payload, preserving which fields were
// actually present.
func (h *AuthHandler) readUpdate(c echo.Context) (updateInput, bool) {
	if isForm(c) {
		params, err := c.FormParams()
		if err != nil {
			return updateInput{}, false
		}
		img, ok := h.readImageFile(c)
		if !ok {
			return updateInput{}, false
		}
		in := updateInput{Image: img}
		if v, present := params["name"]; present && len(v) > 0 {
			in.Name = &v[0]
		}
		if v, present := params["email"]; present && len(v) > 0 {
			in.Email = &v[0]
		}
		if v, present := params["password"]; present && len(v) > 0 {
			in.Password = &v[0]
		}
		if v, present := params["password_confirmation"]; present && len(v) > 0 {
			in.PasswordConfirmation = &v[0]
		}
		return in, true
	}
	var req updateJSON
	if err := c.Bind(&req); err != nil {
		return updateInput{}, false
	}
	return updateInput{
		Name:                 req.Name,
		Email:                req.Email,
		Password:             req.Password,
		PasswordConfirmation: req.PasswordConfirmation,
	}, true
}

// readImageFile extracts the optional "image" multipart file.  A missing
// part is not an error; a present but unreadable one is.  Reads are capped
// slightly above the ceiling so validation can tell "too large" apart from
// a truncated payload.
func (h *AuthHandler) readImageFile(c echo.Context) ([]byte, bool) {
	fh, err := c.FormFile("image")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, true
		}
		return nil, false
	}
	f, err := fh.Open()
	if err != nil {
		return nil, false
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, h.Cfg.MaxImageBytes+1))
	if err != nil {
		return nil, false
	}
	return data, true
}
