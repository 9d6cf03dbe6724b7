package handler

// validate.go implements the field-level validation rules.  Failures are
// collected per field and surfaced as a 422, so the client can resubmit
// with corrections.

import (
	"bytes"
	"image"
	"net/mail"
	"strings"

	// Registered decoders determine which image formats count as decodable.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

const (
	nameMin     = 2
	nameMax     = 100
	emailMin    = 10
	emailMax    = 75
	passwordMin = 10
)

func validateRegister(in registerInput, maxImage int64) map[string]string {
	errs := map[string]string{}
	checkName(errs, in.Name)
	checkEmail(errs, in.Email)
	checkPassword(errs, in.Password, in.PasswordConfirmation)
	if in.Image != nil {
		checkImage(errs, in.Image, maxImage)
	}
	return errs
}

func validateLogin(req loginReq) map[string]string {
	errs := map[string]string{}
	checkEmail(errs, req.Email)
	if len(req.Password) < passwordMin {
		errs["password"] = "must be at least 10 characters"
	}
	return errs
}

func validateUpdate(in updateInput, maxImage int64) map[string]string {
	errs := map[string]string{}
	if in.Name != nil {
		checkName(errs, *in.Name)
	}
	if in.Email != nil {
		checkEmail(errs, *in.Email)
	}
	if in.Password != nil {
		confirm := ""
		if in.PasswordConfirmation != nil {
			confirm = *in.PasswordConfirmation
		}
		checkPassword(errs, *in.Password, confirm)
	}
	if in.Image != nil {
		checkImage(errs, in.Image, maxImage)
	}
	return errs
}

func checkName(errs map[string]string, name string) {
	n := len(strings.TrimSpace(name))
	if n < nameMin || n > nameMax {
		errs["name"] = "must be between 2 and 100 characters"
	}
}

func checkEmail(errs map[string]string, email string) {
	email = strings.TrimSpace(email)
	if len(email) < emailMin || len(email) > emailMax {
		errs["email"] = "must be between 10 and 75 characters"
		return
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs["email"] = "must be a valid email address"
	}
}

func checkPassword(errs map[string]string, password, confirmation string) {
	if len(password) < passwordMin {
		errs["password"] = "must be at least 10 characters"
		return
	}
	if password != confirmation {
		errs["password"] = "confirmation does not match"
	}
}

// checkImage enforces the size ceiling and requires a payload the
// registered decoders recognize.  DecodeConfig reads only the header, so
// oversized-but-valid files still fail fast on the size check.
func checkImage(errs map[string]string, data []byte, maxImage int64) {
	if int64(len(data)) > maxImage {
		errs["image"] = "must not exceed 2MB"
		return
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		errs["image"] = "must be a valid image"
	}
}
