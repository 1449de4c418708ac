// Package files stores uploaded document bytes behind opaque storage pointers.
package files

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/kycscan/internal/domain"
)

// Store reads and writes document bytes.
type Store interface {
	Read(ctx context.Context, pointer string) ([]byte, error)
	Write(ctx context.Context, customerID, name string, data []byte) (string, error)
}

// Local keeps files under Root. Pointers are slash-separated paths relative
// to Root and can never escape it.
type Local struct {
	Root string
}

// NewLocal creates the root directory if needed.
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create file root %s: %w", root, err)
	}
	return &Local{Root: root}, nil
}

func (l *Local) resolve(pointer string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(pointer))
	if pointer == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid storage pointer %q", pointer)
	}
	return filepath.Join(l.Root, clean), nil
}

// Read implements Store. Missing files wrap domain.ErrNotFound.
func (l *Local) Read(ctx context.Context, pointer string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.resolve(pointer)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is confined to Root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("file %q: %w", pointer, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w", pointer, err)
	}
	return data, nil
}

// Write implements Store and returns the pointer of the new file.
func (l *Local) Write(ctx context.Context, customerID, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	base := filepath.Base(filepath.Clean(name))
	if base == "." || base == string(filepath.Separator) || base == ".." {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	if customerID == "" || strings.ContainsAny(customerID, `/\`) || customerID == ".." {
		return "", fmt.Errorf("invalid customer id %q", customerID)
	}
	pointer := customerID + "/" + base
	path, err := l.resolve(pointer)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create customer dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write %s: %w", pointer, err)
	}
	return pointer, nil
}
