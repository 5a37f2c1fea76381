// Package services implements the file lifecycle on top of a storage
// backend: uploads that never overwrite, downloads, deletes, aggregate
// statistics and retention cleanup.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"github.com/dmitrijs2005/cloudkeeper/internal/logging"
	"github.com/dmitrijs2005/cloudkeeper/internal/progress"
	"github.com/dmitrijs2005/cloudkeeper/internal/storage"
)

// RetentionPeriod is how long a file is kept before Cleanup removes it.
// Files exactly this old are kept.
const RetentionPeriod = 30 * 24 * time.Hour

// Stats summarises the storage contents.
type Stats struct {
	Count      int
	TotalBytes int64
}

// CleanupResult reports what a Cleanup pass did.
type CleanupResult struct {
	Deleted    int
	FreedBytes int64
	Failed     int
}

type FileService struct {
	store     storage.Storage
	log       logging.Logger
	now       func() time.Time
	retention time.Duration
}

func NewFileService(store storage.Storage, log logging.Logger) *FileService {
	return &FileService{
		store:     store,
		log:       log,
		now:       time.Now,
		retention: RetentionPeriod,
	}
}

// WithClock replaces time.Now, for tests.
func (s *FileService) WithClock(now func() time.Time) *FileService {
	s.now = now
	return s
}

// Upload stores r as name. size is the expected length, 0 if unknown, and
// is only used for progress reporting.
func (s *FileService) Upload(ctx context.Context, name string, r io.Reader, size int64, rep progress.Reporter) (storage.Entry, error) {
	if err := storage.ValidateName(name); err != nil {
		return storage.Entry{}, err
	}

	exists, err := s.store.Exists(ctx, name)
	if err != nil {
		return storage.Entry{}, fmt.Errorf("check %s: %w", name, err)
	}
	if exists {
		return storage.Entry{}, common.ErrorAlreadyExists
	}

	progress.Notify(ctx, s.log, rep, 0, size)

	pr := progress.NewReader(ctx, r, size, rep, s.log)
	entry, err := s.store.Write(ctx, name, pr)
	if err != nil {
		return storage.Entry{}, err
	}

	// size may have been unknown or wrong; close the bar at what was stored
	progress.Notify(ctx, s.log, rep, entry.Size, entry.Size)

	s.log.Info(ctx, "file uploaded", "name", entry.Name, "size", entry.Size)
	return entry, nil
}

// Open returns the content and metadata of name. The caller closes the
// reader.
func (s *FileService) Open(ctx context.Context, name string) (io.ReadCloser, storage.Entry, error) {
	entry, err := s.store.Stat(ctx, name)
	if err != nil {
		return nil, storage.Entry{}, err
	}

	rc, err := s.store.Read(ctx, name)
	if err != nil {
		return nil, storage.Entry{}, err
	}

	return rc, entry, nil
}

func (s *FileService) Delete(ctx context.Context, name string) error {
	if err := s.store.Delete(ctx, name); err != nil {
		return err
	}
	s.log.Info(ctx, "file deleted", "name", name)
	return nil
}

// Exists reports whether name is taken. It validates the name first.
func (s *FileService) Exists(ctx context.Context, name string) (bool, error) {
	if err := storage.ValidateName(name); err != nil {
		return false, err
	}
	return s.store.Exists(ctx, name)
}

func (s *FileService) List(ctx context.Context) ([]storage.Entry, error) {
	return s.store.List(ctx)
}

func (s *FileService) Stats(ctx context.Context) (Stats, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Count: len(entries)}
	for _, e := range entries {
		st.TotalBytes += e.Size
	}
	return st, nil
}

func (s *FileService) Rename(ctx context.Context, from, to string) error {
	if err := s.store.Rename(ctx, from, to); err != nil {
		return err
	}
	s.log.Info(ctx, "file renamed", "from", from, "to", to)
	return nil
}

func (s *FileService) Copy(ctx context.Context, from, to string) error {
	if err := s.store.Copy(ctx, from, to); err != nil {
		return err
	}
	s.log.Info(ctx, "file copied", "from", from, "to", to)
	return nil
}

// Cleanup deletes every file older than the retention period. The listing
// is taken once; files that disappear before their turn are skipped, and a
// failed delete is counted and logged without stopping the sweep.
func (s *FileService) Cleanup(ctx context.Context, rep progress.Reporter) (CleanupResult, error) {
	entries, err := s.store.List(ctx)
	if err != nil {
		return CleanupResult{}, err
	}

	now := s.now()
	var res CleanupResult
	total := int64(len(entries))

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if now.Sub(e.ModTime) > s.retention {
			err := s.store.Delete(ctx, e.Name)
			switch {
			case err == nil:
				res.Deleted++
				res.FreedBytes += e.Size
				s.log.Debug(ctx, "expired file removed", "name", e.Name, "mod_time", e.ModTime)
			case errors.Is(err, common.ErrorNotFound):
				// removed by someone else since the listing
			default:
				res.Failed++
				s.log.Error(ctx, "cleanup delete failed", "name", e.Name, "error", err)
			}
		}

		progress.Notify(ctx, s.log, rep, int64(i+1), total)
	}

	s.log.Info(ctx, "cleanup finished", "deleted", res.Deleted, "freed_bytes", res.FreedBytes, "failed", res.Failed)
	return res, nil
}
