// Package artifacts owns the on-disk artifact store: content-addressed-ish
// flat directory of files named by random IDs, registered in the database,
// served through signed download tokens, and swept by a cron GC.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// Store writes artifact bytes under dir and records them via db. Disk and
// database stay consistent: a failed row insert unlinks the file.
type Store struct {
	dir string
	db  store.Store
}

func New(dir string, db store.Store) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create outputs dir: %w", err)
	}
	return &Store{dir: dir, db: db}, nil
}

// Dir returns the outputs directory root.
func (s *Store) Dir() string { return s.dir }

// Path returns the absolute disk path for a file ID.
func (s *Store) Path(fileID string) string {
	return filepath.Join(s.dir, fileID)
}

// Register streams r to disk under a fresh file ID and inserts the record.
// Identical content registered twice yields two IDs; artifacts are never
// deduplicated.
func (s *Store) Register(ctx context.Context, rec store.FileRecord, r io.Reader) (*store.FileRecord, error) {
	rec.FileID = NewFileID(rec.Filename)
	dst := s.Path(rec.FileID)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp: %w", err)
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("write artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return nil, fmt.Errorf("place artifact: %w", err)
	}
	rec.SizeBytes = n

	if err := s.db.InsertFile(ctx, rec); err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("record artifact: %w", err)
	}
	slog.Debug("artifact.registered", "file_id", rec.FileID, "bytes", n, "team_id", rec.TeamID)
	return &rec, nil
}

// RegisterPath registers an already-written workspace file by copying it
// into the store. The source stays in place.
func (s *Store) RegisterPath(ctx context.Context, rec store.FileRecord, srcPath string) (*store.FileRecord, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	rec.SourcePath = srcPath
	return s.Register(ctx, rec, f)
}

// Open returns a reader over the stored bytes, verifying the record exists
// and belongs to teamID first.
func (s *Store) Open(ctx context.Context, teamID int64, fileID string) (*store.FileRecord, io.ReadCloser, error) {
	rec, err := s.db.GetFile(ctx, fileID)
	if err != nil {
		return nil, nil, err
	}
	if rec.TeamID != teamID {
		return nil, nil, store.ErrNotFound
	}
	f, err := s.OpenFile(fileID)
	if err != nil {
		return nil, nil, err
	}
	return rec, f, nil
}

// OpenFile opens the disk object for an already-authorized file ID.
func (s *Store) OpenFile(fileID string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

// Delete removes the record and the disk object.
func (s *Store) Delete(ctx context.Context, teamID int64, fileID string) error {
	if err := s.db.DeleteFile(ctx, teamID, fileID); err != nil {
		return err
	}
	if err := os.Remove(s.Path(fileID)); err != nil && !os.IsNotExist(err) {
		slog.Warn("artifact.unlink_failed", "file_id", fileID, "error", err)
	}
	return nil
}
