// Package storage is the gateway to the external object store holding
// profile images.  The service talks to it through the ObjectStorage
// interface; the production implementation targets any S3-compatible
// endpoint (MinIO in development).
package storage

import "context"

// UploadResult identifies a stored asset: PublicID is the remote key used
// for later deletion, URL the address clients fetch the asset from.
type UploadResult struct {
	PublicID string
	URL      string
}

// ObjectStorage uploads binary payloads under a folder scope and deletes
// them by identifier.  Both calls may fail with a plain I/O error; the
// caller decides whether that failure is fatal.
type ObjectStorage interface {
	Upload(ctx context.Context, data []byte, folder string) (UploadResult, error)
	Destroy(ctx context.Context, publicID string) error
}
