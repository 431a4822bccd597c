package sqldb

import (
	"context"
	"database/sql"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

func (d *DB) InsertFile(ctx context.Context, rec store.FileRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO file_records (file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.FileID, rec.Kind, rec.Filename, rec.ContentType, rec.SizeBytes,
		rec.TeamID, rec.ProjectID, nullIfEmpty(rec.SessionID), rec.SourcePath, rec.CreatedAt)
	return err
}

// GetFile is intentionally not team-scoped: downloads authorize via signed
// tokens that carry the team binding, and the handler compares team IDs.
func (d *DB) GetFile(ctx context.Context, fileID string) (*store.FileRecord, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at
		 FROM file_records WHERE file_id = $1`,
		fileID)
	return scanFile(row)
}

func (d *DB) DeleteFile(ctx context.Context, teamID int64, fileID string) error {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM file_records WHERE file_id = $1 AND team_id = $2`,
		fileID, teamID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	_, err = d.db.ExecContext(ctx,
		`DELETE FROM message_attachments WHERE file_id = $1`, fileID)
	return err
}

func (d *DB) ListFiles(ctx context.Context, teamID int64, limit int) ([]store.FileRecord, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at
		 FROM file_records WHERE team_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// PruneExpiredFiles deletes records older than cutoff that no message still
// references and returns their IDs for disk cleanup.
func (d *DB) PruneExpiredFiles(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`DELETE FROM file_records
		 WHERE created_at < $1
		   AND file_id NOT IN (SELECT file_id FROM message_attachments)
		 RETURNING file_id`,
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LiveFileIDs returns every file_id the database still knows about; the GC
// sweep removes disk objects missing from this set once past the TTL.
func (d *DB) LiveFileIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT file_id FROM file_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	live := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		live[id] = true
	}
	return live, rows.Err()
}

func scanFile(row rowScanner) (*store.FileRecord, error) {
	var f store.FileRecord
	var projectID sql.NullInt64
	var sessionID, sourcePath sql.NullString
	err := row.Scan(&f.FileID, &f.Kind, &f.Filename, &f.ContentType, &f.SizeBytes,
		&f.TeamID, &projectID, &sessionID, &sourcePath, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		f.ProjectID = &projectID.Int64
	}
	f.SessionID = sessionID.String
	f.SourcePath = sourcePath.String
	return &f, nil
}
