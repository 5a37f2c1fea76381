package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/filex"
	"github.com/google/uuid"
)

// stagingDir holds uploads in progress. It lives inside the storage
// directory so publishing is a same-filesystem hard link.
const stagingDir = ".staging"

// link publishes a staged file under its final name.
var link = os.Link

// LocalStorage keeps entries as regular files in one directory.
//
// Writes are staged in a hidden subdirectory and published with os.Link,
// which fails if the target exists. That makes "create exclusively" atomic
// and a partially written upload is never visible under its final name.
//
// On filesystems without hard links (FAT, some FUSE and SMB mounts) the
// staged file is copied into a target opened with O_EXCL instead. Names are
// still never overwritten, but a reader may see a partially copied entry.
//
// A directory must be served by one process at a time: leftovers in the
// staging directory are removed on open.
type LocalStorage struct {
	dir     string
	staging string
}

// NewLocalStorage creates dir if needed and returns a backend rooted there.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("storage dir: %w", err)
	}

	staging, err := filex.EnsureDir(filepath.Join(abs, stagingDir))
	if err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}

	if err := sweep(staging); err != nil {
		return nil, fmt.Errorf("staging dir: %w", err)
	}

	return &LocalStorage{dir: abs, staging: staging}, nil
}

// Dir returns the absolute storage directory.
func (s *LocalStorage) Dir() string {
	return s.dir
}

func (s *LocalStorage) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

func (s *LocalStorage) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	result := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		if strings.HasPrefix(de.Name(), ".") || !de.Type().IsRegular() {
			continue
		}

		info, err := de.Info()
		if err != nil {
			// removed between ReadDir and Info
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", de.Name(), err)
		}

		result = append(result, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}

	return result, nil
}

func (s *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.path(name)
	if err != nil {
		return false, err
	}

	_, err = s.Stat(ctx, name)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrorNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *LocalStorage) Stat(ctx context.Context, name string) (Entry, error) {
	p, err := s.path(name)
	if err != nil {
		return Entry{}, err
	}

	info, err := os.Lstat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, common.ErrorNotFound
		}
		return Entry{}, fmt.Errorf("stat %s: %w", name, err)
	}

	if !info.Mode().IsRegular() {
		return Entry{}, common.ErrorNotFound
	}

	return Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (s *LocalStorage) Write(ctx context.Context, name string, r io.Reader) (Entry, error) {
	p, err := s.path(name)
	if err != nil {
		return Entry{}, err
	}

	if err := checkFree(p, name); err != nil {
		return Entry{}, err
	}

	tmp, err := os.OpenFile(filepath.Join(s.staging, uuid.NewString()), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return Entry{}, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, ctxReader{ctx: ctx, r: r}); err != nil {
		tmp.Close()
		return Entry{}, fmt.Errorf("write %s: %w", name, err)
	}

	if err := tmp.Close(); err != nil {
		return Entry{}, fmt.Errorf("close %s: %w", name, err)
	}

	if err := publish(tmp.Name(), p); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Entry{}, conflict(p, name)
		}
		return Entry{}, fmt.Errorf("publish %s: %w", name, err)
	}

	return s.Stat(ctx, name)
}

func (s *LocalStorage) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	if _, err := s.Stat(ctx, name); err != nil {
		return nil, err
	}

	p, _ := s.path(name)
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}

	return f, nil
}

func (s *LocalStorage) Delete(ctx context.Context, name string) error {
	if _, err := s.Stat(ctx, name); err != nil {
		return err
	}

	p, _ := s.path(name)
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("remove %s: %w", name, err)
	}

	return nil
}

func (s *LocalStorage) Rename(ctx context.Context, from, to string) error {
	if _, err := s.Stat(ctx, from); err != nil {
		return err
	}

	dst, err := s.path(to)
	if err != nil {
		return err
	}

	src, _ := s.path(from)
	if err := publish(src, dst); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return conflict(dst, to)
		}
		return fmt.Errorf("link %s: %w", to, err)
	}

	if err := os.Remove(src); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", from, err)
	}

	return nil
}

func (s *LocalStorage) Copy(ctx context.Context, from, to string) error {
	if err := ValidateName(to); err != nil {
		return err
	}

	src, err := s.Read(ctx, from)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = s.Write(ctx, to, src)
	return err
}

// checkFree reports whether name can be created. A directory or other
// non-file entry holding the name is not listed, so it is reported as an
// invalid name rather than as an existing file.
func checkFree(p, name string) error {
	info, err := os.Lstat(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat %s: %w", name, err)
	case info.Mode().IsRegular():
		return common.ErrorAlreadyExists
	default:
		return fmt.Errorf("%w: %s is taken by something other than a file", common.ErrorInvalidName, name)
	}
}

// conflict explains a failed exclusive create of p.
func conflict(p, name string) error {
	if err := checkFree(p, name); err != nil {
		return err
	}
	return common.ErrorAlreadyExists
}

// publish makes src visible as dst without ever replacing dst.
func publish(src, dst string) error {
	err := link(src, dst)
	if err == nil || !linkUnsupported(err) {
		return err
	}
	return copyExclusive(src, dst)
}

func linkUnsupported(err error) bool {
	return errors.Is(err, errors.ErrUnsupported) || errors.Is(err, syscall.EPERM)
}

func copyExclusive(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}

	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return nil
}

// sweep removes uploads left behind by an interrupted process.
func sweep(staging string) error {
	entries, err := os.ReadDir(staging)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(staging, e.Name())); err != nil {
			return err
		}
	}

	return nil
}
