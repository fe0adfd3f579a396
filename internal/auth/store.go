package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// TokenStore persists the device token in a single file readable only by
// its owner
type TokenStore struct {
	path string
}

// NewTokenStore returns a store backed by path. The file is created on the
// first Save.
func NewTokenStore(path string) *TokenStore {
	return &TokenStore{path: path}
}

// Path returns the backing file
func (ts *TokenStore) Path() string {
	return ts.path
}

// Load returns the stored token, or "" when nothing is stored
func (ts *TokenStore) Load() (string, error) {
	data, err := os.ReadFile(ts.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save replaces the stored token
func (ts *TokenStore) Save(token string) error {
	dir := filepath.Dir(ts.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(ts.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to restrict token file: %w", err)
	}
	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), ts.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}

	log.Debug().Str("path", ts.path).Msg("token saved")
	return nil
}

// Clear removes the stored token. Clearing an empty store is not an error.
func (ts *TokenStore) Clear() error {
	if err := os.Remove(ts.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	return nil
}
