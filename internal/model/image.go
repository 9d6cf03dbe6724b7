package model

import "time"

// Owner kinds for the polymorphic images table.  Only users carry images in
// the current flows; the discriminator keeps the table reusable for other
// entities.
const (
	OwnerUser = "user"
)

// Image is a stored reference to an externally hosted binary asset.  The
// asset itself lives in the object store; PublicID is the remote identifier
// used for deletion and URL is the public address served to clients.
//
// An owner has at most one active image in the current flows: replacing an
// avatar destroys the previous remote object and deletes its row before the
// new one is attached.
type Image struct {
	ID        uint64
	PublicID  string
	URL       string
	OwnerType string
	OwnerID   uint64
	CreatedAt time.Time
}
