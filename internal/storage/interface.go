package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when no object exists at a path
var ErrNotFound = errors.New("object not found")

// Object describes one stored file
type Object struct {
	Path string
	Size int64
}

// BlobStorage stores the emulator's flash contents: GIFs and OTA images
type BlobStorage interface {
	// Store saves content at the given path and returns the bytes written.
	// A failed or cancelled write leaves no object behind.
	Store(ctx context.Context, path string, content io.Reader) (int64, error)

	// Retrieve gets content from the given path
	Retrieve(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes content at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if content exists at the given path
	Exists(ctx context.Context, path string) (bool, error)

	// GetSize returns the size of content at the given path
	GetSize(ctx context.Context, path string) (int64, error)

	// List returns objects under the prefix
	List(ctx context.Context, prefix string) ([]Object, error)
}
