package storage

import (
	"context"
	"io"
)

// ObjectStorage archives raw supplier uploads so a scan can be re-parsed or
// audited after the fact.
type ObjectStorage interface {
	// Upload uploads an object to storage
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download downloads an object from storage
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)
}

// UploadKey builds the canonical object key for a tenant's upload.
func UploadKey(tenantID, jobID, filename string) string {
	return tenantID + "/" + jobID + "/" + filename
}
