// Package blob stores original uploaded files and exposes public URLs for
// them.
package blob

import "context"

// Store persists raw file bytes under a caller-chosen path.
type Store interface {
	// Upload writes data under path and returns the public URL of the blob.
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
	// PublicURL returns the URL a blob at path is served from.
	PublicURL(path string) string
	// Remove deletes the blob at path. Removing a missing blob is not an error.
	Remove(ctx context.Context, path string) error
}
