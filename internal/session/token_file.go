package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenFile stores the refresh token in a small YAML document readable only
// by the owner.
type TokenFile struct {
	Path string
}

type tokenDocument struct {
	RefreshToken string    `yaml:"refresh_token"`
	SavedAt      time.Time `yaml:"saved_at"`
}

// NewTokenFile returns a TokenFile at path.
func NewTokenFile(path string) *TokenFile {
	return &TokenFile{Path: path}
}

// Load returns the saved refresh token. A missing file is not an error.
func (f *TokenFile) Load() (string, error) {
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session file: %w", err)
	}
	var doc tokenDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("decode session file: %w", err)
	}
	return doc.RefreshToken, nil
}

// Save writes the token atomically with mode 0600.
func (f *TokenFile) Save(refreshToken string) error {
	raw, err := yaml.Marshal(tokenDocument{RefreshToken: refreshToken, SavedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.Path)
}

// Delete removes the file. A missing file is not an error.
func (f *TokenFile) Delete() error {
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
