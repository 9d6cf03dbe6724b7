package model

import "time"

// RefreshToken models a row of the `refresh_tokens` rotation ledger.  Each
// token belongs to a user.  The plain token is never stored; only its
// SHA-256 hex digest.  Rows are revoked, never deleted, so the ledger
// doubles as an audit trail.
//
// A row is exchangeable exactly while revoked=false and expires_at is in
// the future.  Rotation flips revoked in the same statement that checks it,
// so a stolen, already-rotated token can never be replayed.
type RefreshToken struct {
	ID        uint64
	UserID    uint64
	TokenHash string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
