package sqldb

import (
	"context"
	"database/sql"

	"github.com/BetaStreetOmnis/CoDeskTeam/internal/store"
)

func (d *DB) GetTeam(ctx context.Context, teamID int64) (*store.Team, error) {
	var t store.Team
	var ws sql.NullString
	err := d.db.QueryRowContext(ctx,
		`SELECT id, name, workspace_path, created_at FROM teams WHERE id = $1`,
		teamID).Scan(&t.ID, &t.Name, &ws, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.WorkspacePath = ws.String
	return &t, nil
}

func (d *DB) GetMembership(ctx context.Context, userID, teamID int64) (*store.Membership, error) {
	var m store.Membership
	err := d.db.QueryRowContext(ctx,
		`SELECT user_id, team_id, role FROM memberships WHERE user_id = $1 AND team_id = $2`,
		userID, teamID).Scan(&m.UserID, &m.TeamID, &m.Role)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *DB) GetProject(ctx context.Context, teamID, projectID int64) (*store.Project, error) {
	var p store.Project
	err := d.db.QueryRowContext(ctx,
		`SELECT id, team_id, name, slug, path, enabled
		 FROM team_projects WHERE id = $1 AND team_id = $2`,
		projectID, teamID).Scan(&p.ID, &p.TeamID, &p.Name, &p.Slug, &p.Path, &p.Enabled)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListSkills returns skills in insertion order; the prompt assembler relies
// on this being stable.
func (d *DB) ListSkills(ctx context.Context, teamID int64, enabledOnly bool) ([]store.Skill, error) {
	q := `SELECT id, team_id, name, description, content, enabled
	      FROM team_skills WHERE team_id = $1 ORDER BY id ASC`
	if enabledOnly {
		q = `SELECT id, team_id, name, description, content, enabled
		     FROM team_skills WHERE team_id = $1 AND enabled ORDER BY id ASC`
	}
	rows, err := d.db.QueryContext(ctx, q, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Skill
	for rows.Next() {
		var s store.Skill
		if err := rows.Scan(&s.ID, &s.TeamID, &s.Name, &s.Description, &s.Content, &s.Enabled); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
