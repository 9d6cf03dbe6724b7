package repository

import (
	"context"
	"database/sql"

	"github.com/andresgm/shop-auth/internal/model"
)

// ImageRepo persists attachment rows linking remote assets to their owning
// entity via the (owner_type, owner_id) pair.
type ImageRepo struct{ DB *sql.DB }

func NewImageRepo(db *sql.DB) *ImageRepo { return &ImageRepo{DB: db} }

// AttachTx inserts an attachment row within the caller's transaction.
func (r *ImageRepo) AttachTx(ctx context.Context, tx *sql.Tx, img *model.Image) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO images (public_id, url, owner_type, owner_id) VALUES (?,?,?,?)",
		img.PublicID, img.URL, img.OwnerType, img.OwnerID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	img.ID = uint64(id)
	return nil
}

// Attach inserts an attachment row outside any transaction.  Used by the
// best-effort avatar replacement on profile update.
func (r *ImageRepo) Attach(ctx context.Context, img *model.Image) error {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO images (public_id, url, owner_type, owner_id) VALUES (?,?,?,?)",
		img.PublicID, img.URL, img.OwnerType, img.OwnerID)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	img.ID = uint64(id)
	return nil
}

// GetByOwner returns the owner's active attachment, or ErrNotFound when the
// owner has none.  Current flows keep at most one row per owner, enforced
// by the replace-before-attach ordering in the service layer.
func (r *ImageRepo) GetByOwner(ctx context.Context, ownerType string, ownerID uint64) (model.Image, error) {
	var img model.Image
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, public_id, url, owner_type, owner_id, created_at FROM images WHERE owner_type=? AND owner_id=? ORDER BY id DESC LIMIT 1",
		ownerType, ownerID).Scan(&img.ID, &img.PublicID, &img.URL, &img.OwnerType, &img.OwnerID, &img.CreatedAt)
	if err == sql.ErrNoRows {
		return img, ErrNotFound
	}
	return img, err
}

// Delete removes an attachment row by id.
func (r *ImageRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM images WHERE id=?", id)
	return err
}
