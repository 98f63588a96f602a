package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore implements Store on the local filesystem. Blobs live under root
// and are served by the HTTP server at baseURL + "/files/".
type DiskStore struct {
	root    string
	baseURL string
}

// NewDiskStore creates the root directory if needed.
func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &DiskStore{root: root, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload writes data to root/path, creating intermediate directories.
func (d *DiskStore) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	full, err := d.resolve(path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write blob %s: %w", path, err)
	}
	return d.PublicURL(path), nil
}

// PublicURL returns the serving URL for a blob path.
func (d *DiskStore) PublicURL(path string) string {
	return d.baseURL + "/files/" + strings.TrimLeft(path, "/")
}

// Remove deletes the blob. A missing blob is treated as already removed.
func (d *DiskStore) Remove(_ context.Context, path string) error {
	full, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", path, err)
	}
	return nil
}

// Root returns the directory blobs are stored under, for the file server.
func (d *DiskStore) Root() string { return d.root }

// resolve joins path under the root and rejects traversal outside it.
func (d *DiskStore) resolve(path string) (string, error) {
	clean := filepath.Clean(strings.TrimLeft(path, "/"))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return filepath.Join(d.root, clean), nil
}
