package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

func (d *DB) CreateRequirement(ctx context.Context, r *store.Requirement) error {
	now := time.Now().UTC()
	r.CreatedAt, r.UpdatedAt = now, now
	if r.Status == "" {
		r.Status = "todo"
	}
	return d.db.QueryRowContext(ctx,
		`INSERT INTO team_requirements (team_id, project_id, title, description, status, priority, source_team, delivery_state, delivery_from_team_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		r.TeamID, r.ProjectID, r.Title, r.Description, r.Status, r.Priority,
		nullIfEmpty(r.SourceTeam), nullIfEmpty(r.DeliveryState), r.DeliveryFromTeamID,
		r.CreatedAt, r.UpdatedAt).Scan(&r.ID)
}

func (d *DB) ListRequirements(ctx context.Context, teamID int64, status string, limit int) ([]store.Requirement, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id, team_id, project_id, title, description, status, priority, source_team, delivery_state, delivery_from_team_id, created_at, updated_at
	      FROM team_requirements WHERE team_id = $1
	      ORDER BY updated_at DESC LIMIT $2`
	args := []any{teamID, limit}
	if status != "" {
		q = `SELECT id, team_id, project_id, title, description, status, priority, source_team, delivery_state, delivery_from_team_id, created_at, updated_at
		     FROM team_requirements WHERE team_id = $1 AND status = $2
		     ORDER BY updated_at DESC LIMIT $3`
		args = []any{teamID, status, limit}
	}
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Requirement
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// DeliverRequirement creates the requirement on the target team only, marked
// pending, recording the sending team. The sender keeps no copy.
func (d *DB) DeliverRequirement(ctx context.Context, fromTeamID, toTeamID int64, r *store.Requirement) error {
	from, err := d.GetTeam(ctx, fromTeamID)
	if err != nil {
		return fmt.Errorf("source team: %w", err)
	}
	if _, err := d.GetTeam(ctx, toTeamID); err != nil {
		return fmt.Errorf("target team: %w", err)
	}
	r.TeamID = toTeamID
	r.Status = "incoming"
	r.SourceTeam = from.Name
	r.DeliveryState = store.DeliveryPending
	r.DeliveryFromTeamID = &fromTeamID
	return d.CreateRequirement(ctx, r)
}

// SetDeliveryState moves a pending delivery to accepted or rejected. An
// accepted requirement becomes a normal todo; a rejected one stays visible
// with its state for the audit trail.
func (d *DB) SetDeliveryState(ctx context.Context, teamID, reqID int64, state string) error {
	if state != store.DeliveryAccepted && state != store.DeliveryRejected {
		return fmt.Errorf("invalid delivery state %q", state)
	}
	status := "todo"
	if state == store.DeliveryRejected {
		status = "blocked"
	}
	res, err := d.db.ExecContext(ctx,
		`UPDATE team_requirements
		 SET delivery_state = $1, status = $2, updated_at = $3
		 WHERE id = $4 AND team_id = $5 AND delivery_state = $6`,
		state, status, time.Now().UTC(), reqID, teamID, store.DeliveryPending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (d *DB) SetRequirementStatus(ctx context.Context, teamID, reqID int64, status string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE team_requirements SET status = $1, updated_at = $2
		 WHERE id = $3 AND team_id = $4`,
		status, time.Now().UTC(), reqID, teamID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanRequirement(row rowScanner) (*store.Requirement, error) {
	var r store.Requirement
	var projectID, fromTeam sql.NullInt64
	var sourceTeam, deliveryState sql.NullString
	err := row.Scan(&r.ID, &r.TeamID, &projectID, &r.Title, &r.Description, &r.Status,
		&r.Priority, &sourceTeam, &deliveryState, &fromTeam, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		r.ProjectID = &projectID.Int64
	}
	if fromTeam.Valid {
		r.DeliveryFromTeamID = &fromTeam.Int64
	}
	r.SourceTeam = sourceTeam.String
	r.DeliveryState = deliveryState.String
	return &r, nil
}
