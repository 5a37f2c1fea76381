// Package storage exposes the shared file namespace as a flat set of named
// entries.
//
// # Overview
//
// Storage is the capability every command handler works against: list,
// existence checks, metadata, streaming reads and writes, delete, plus the
// create-only Rename and Copy. Writes never overwrite an existing entry and
// names are validated with ValidateName before they reach the backend.
//
// # Implementations
//
//   - LocalStorage: a single directory on disk
//   - S3Storage: a bucket (optionally under a key prefix) on any
//     S3-compatible service
//
// Errors are the sentinels from internal/common: ErrorNotFound,
// ErrorAlreadyExists and ErrorInvalidName. Anything else is an I/O failure of
// the backend, wrapped with context.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
)

// MaxNameLength is the longest accepted entry name in bytes.
const MaxNameLength = 255

// Entry describes one stored blob.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Storage is the shared, flat file namespace.
type Storage interface {
	// List returns all entries in backend enumeration order.
	List(ctx context.Context) ([]Entry, error)

	// Exists reports whether name is taken.
	Exists(ctx context.Context, name string) (bool, error)

	// Stat returns size and modification time of name.
	Stat(ctx context.Context, name string) (Entry, error)

	// Write stores r under name. It fails with ErrorAlreadyExists if the
	// name is taken and never replaces existing content.
	Write(ctx context.Context, name string, r io.Reader) (Entry, error)

	// Read opens name for streaming. The caller closes the reader.
	Read(ctx context.Context, name string) (io.ReadCloser, error)

	// Delete removes name.
	Delete(ctx context.Context, name string) error

	// Rename moves from to to. The target must not exist.
	Rename(ctx context.Context, from, to string) error

	// Copy duplicates from as to. The target must not exist.
	Copy(ctx context.Context, from, to string) error
}

// Size returns the size of name in bytes.
func Size(ctx context.Context, s Storage, name string) (int64, error) {
	e, err := s.Stat(ctx, name)
	if err != nil {
		return 0, err
	}
	return e.Size, nil
}

// LastModified returns the modification time of name.
func LastModified(ctx context.Context, s Storage, name string) (time.Time, error) {
	e, err := s.Stat(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	return e.ModTime, nil
}

// ValidateName checks that name is usable as a single entry in a flat
// namespace: non-empty, at most MaxNameLength bytes of valid UTF-8, no path
// separators, no control characters, no leading dot and no surrounding
// whitespace.
func ValidateName(name string) error {
	invalid := func(reason string) error {
		return fmt.Errorf("%w: %q %s", common.ErrorInvalidName, name, reason)
	}

	switch {
	case name == "":
		return invalid("is empty")
	case len(name) > MaxNameLength:
		return invalid("is too long")
	case !utf8.ValidString(name):
		return invalid("is not valid UTF-8")
	case strings.HasPrefix(name, "."):
		return invalid("starts with a dot")
	case strings.ContainsAny(name, `/\`):
		return invalid("contains a path separator")
	case strings.TrimSpace(name) != name:
		return invalid("has surrounding whitespace")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return invalid("contains a control character")
		}
	}

	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
