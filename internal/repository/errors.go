// Package repository implements persistence over database/sql.  Sentinel
// errors defined here let the service layer map storage outcomes onto the
// HTTP error taxonomy without inspecting driver errors.
package repository

import "errors"

// ErrEmailExists is returned when an insert or update would violate the
// unique index on users.email.  Handlers surface it as a validation-shaped
// 422 so the response matches a failed `unique` rule.
var ErrEmailExists = errors.New("email already exists")

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrTokenInvalid is returned when a refresh token cannot be consumed:
// unknown hash, already revoked, or past its expiry.  The three cases are
// deliberately indistinguishable to callers.
var ErrTokenInvalid = errors.New("refresh token invalid")
