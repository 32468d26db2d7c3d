package render

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Asset is a rendered image on disk. The caller owns it and must call Cleanup once done.
type Asset struct {
	Path   string
	Width  int
	Height int
}

// Bytes reads the encoded image.
func (a *Asset) Bytes() ([]byte, error) {
	return os.ReadFile(a.Path)
}

// CopyTo copies the image to dir/name and returns the new path.
func (a *Asset) CopyTo(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}

	src, err := os.Open(a.Path)
	if err != nil {
		return "", fmt.Errorf("failed to open asset: %w", err)
	}
	defer src.Close()

	target := filepath.Join(dir, name)
	dst, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return "", fmt.Errorf("failed to copy asset: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("failed to close %s: %w", target, err)
	}
	return target, nil
}

// Cleanup removes the file. Removing an already deleted asset is not an error.
func (a *Asset) Cleanup() error {
	if a == nil || a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
