package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

// CommitTurn persists one completed turn atomically: session upsert, the
// turn's messages with monotonically assigned ordinals, file records, and
// message↔file links.
func (d *DB) CommitTurn(ctx context.Context, tc store.TurnCommit) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	s := tc.Session
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chat_sessions (session_id, team_id, user_id, project_id, role, provider, model, last_summary, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (session_id) DO UPDATE SET
		   role = EXCLUDED.role,
		   provider = EXCLUDED.provider,
		   model = EXCLUDED.model,
		   last_summary = EXCLUDED.last_summary,
		   updated_at = EXCLUDED.updated_at`,
		s.SessionID, s.TeamID, s.UserID, s.ProjectID, s.Role, s.Provider, s.Model, s.LastSummary, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}

	var ordinal int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ordinal), 0) FROM chat_messages WHERE session_id = $1`,
		s.SessionID).Scan(&ordinal)
	if err != nil {
		return fmt.Errorf("max ordinal: %w", err)
	}

	var lastMessageID int64
	var firstMessageID int64
	for i, m := range tc.Messages {
		ordinal++
		created := m.CreatedAt
		if created.IsZero() {
			created = now
		}
		var toolCalls, eventsJSON any
		if len(m.ToolCalls) > 0 {
			toolCalls = string(m.ToolCalls)
		}
		if len(m.EventsJSON) > 0 {
			eventsJSON = string(m.EventsJSON)
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO chat_messages (session_id, team_id, ordinal, role, content, tool_calls, tool_call_id, events_json, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			 RETURNING id`,
			s.SessionID, s.TeamID, ordinal, m.Role, m.Content, toolCalls, nullIfEmpty(m.ToolCallID), eventsJSON, created,
		).Scan(&lastMessageID)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		if i == 0 {
			firstMessageID = lastMessageID
		}
	}

	for _, id := range tc.InputFileIDs {
		if firstMessageID == 0 {
			break
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO message_attachments (message_id, file_id, direction) VALUES ($1, $2, $3)`,
			firstMessageID, id, store.DirInput); err != nil {
			return fmt.Errorf("link input file: %w", err)
		}
	}

	for _, f := range tc.Files {
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO file_records (file_id, kind, filename, content_type, size_bytes, team_id, project_id, session_id, source_path, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 ON CONFLICT (file_id) DO NOTHING`,
			f.FileID, f.Kind, f.Filename, f.ContentType, f.SizeBytes, f.TeamID, f.ProjectID, nullIfEmpty(f.SessionID), f.SourcePath, f.CreatedAt); err != nil {
			return fmt.Errorf("insert file record: %w", err)
		}
		if lastMessageID != 0 {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO message_attachments (message_id, file_id, direction) VALUES ($1, $2, $3)`,
				lastMessageID, f.FileID, store.DirOutput); err != nil {
				return fmt.Errorf("link output file: %w", err)
			}
		}
	}

	return tx.Commit()
}

func (d *DB) GetSession(ctx context.Context, teamID int64, sessionID string) (*store.Session, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT session_id, team_id, user_id, project_id, role, provider, model, last_summary, created_at, updated_at
		 FROM chat_sessions WHERE session_id = $1 AND team_id = $2`,
		sessionID, teamID)
	return scanSession(row)
}

func (d *DB) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx,
		`SELECT 1 FROM chat_sessions WHERE session_id = $1`, sessionID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *DB) ListSessions(ctx context.Context, teamID, userID int64, limit int) ([]store.Session, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT session_id, team_id, user_id, project_id, role, provider, model, last_summary, created_at, updated_at
		 FROM chat_sessions
		 WHERE team_id = $1 AND user_id = $2
		 ORDER BY updated_at DESC
		 LIMIT $3`,
		teamID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (d *DB) DeleteSession(ctx context.Context, teamID int64, sessionID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM chat_sessions WHERE session_id = $1 AND team_id = $2`,
		sessionID, teamID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM message_attachments WHERE message_id IN
		   (SELECT id FROM chat_messages WHERE session_id = $1 AND team_id = $2)`,
		sessionID, teamID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE session_id = $1 AND team_id = $2`,
		sessionID, teamID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListMessages returns the most recent limit messages in ordinal order.
func (d *DB) ListMessages(ctx context.Context, teamID int64, sessionID string, limit int) ([]store.Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, session_id, team_id, ordinal, role, content, tool_calls, tool_call_id, events_json, created_at
		 FROM (
		   SELECT * FROM chat_messages
		   WHERE session_id = $1 AND team_id = $2
		   ORDER BY ordinal DESC LIMIT $3
		 ) recent
		 ORDER BY ordinal ASC`,
		sessionID, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		var m store.Message
		var toolCalls, toolCallID, eventsJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.SessionID, &m.TeamID, &m.Ordinal, &m.Role, &m.Content,
			&toolCalls, &toolCallID, &eventsJSON, &m.CreatedAt); err != nil {
			return nil, err
		}
		if toolCalls.Valid {
			m.ToolCalls = []byte(toolCalls.String)
		}
		m.ToolCallID = toolCallID.String
		if eventsJSON.Valid {
			m.EventsJSON = []byte(eventsJSON.String)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*store.Session, error) {
	var s store.Session
	var projectID sql.NullInt64
	var summary sql.NullString
	err := row.Scan(&s.SessionID, &s.TeamID, &s.UserID, &projectID, &s.Role, &s.Provider, &s.Model, &summary, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		s.ProjectID = &projectID.Int64
	}
	s.LastSummary = summary.String
	return &s, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
