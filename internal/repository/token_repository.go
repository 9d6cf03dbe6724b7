package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo persists the refresh-token rotation ledger (hashed tokens only).
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, revoked, expires_at) VALUES (?,?,0,?)",
		userID, tokenHash, exp)
	return err
}

// StoreRefreshTx is StoreRefresh inside the caller's transaction, used when
// token creation must commit or roll back together with a user mutation.
func (r *TokenRepo) StoreRefreshTx(ctx context.Context, tx *sql.Tx, userID uint64, tokenHash string, exp time.Time) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, revoked, expires_at) VALUES (?,?,0,?)",
		userID, tokenHash, exp)
	return err
}

// Consume atomically spends a refresh token: the conditional UPDATE both
// checks validity (unrevoked, unexpired) and revokes the row, so two
// concurrent calls with the same token see exactly one success.  On success
// the owning user id is returned; otherwise ErrTokenInvalid.
func (r *TokenRepo) Consume(ctx context.Context, tokenHash string) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE token_hash=? AND revoked=0 AND expires_at>?",
		tokenHash, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, ErrTokenInvalid
	}
	var userID uint64
	err = r.DB.QueryRowContext(ctx,
		"SELECT user_id FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID)
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// RevokeByHash marks a token as revoked if it is still active.  Used by
// logout, where an unknown or already-revoked token is not an error.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE token_hash=? AND revoked=0 AND expires_at>?",
		tokenHash, time.Now().UTC())
	return err
}

// RevokeAllForUser revokes every active token the user owns.  Supports the
// user-deletion cascade; no current endpoint drives it.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked=1 WHERE user_id=? AND revoked=0",
		userID)
	return err
}
