// Package store defines the durable persistence surface: teams, projects,
// skills, requirements, chat sessions/messages, and file records. All
// business rows carry team_id; reads are always scoped by it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound covers unknown rows and team-mismatched reads alike: a row
// owned by another team is reported as absent, never as forbidden.
var ErrNotFound = errors.New("not found")

type Team struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	WorkspacePath string    `json:"workspace_path,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type Membership struct {
	UserID int64  `json:"user_id"`
	TeamID int64  `json:"team_id"`
	Role   string `json:"role"` // owner | admin | member
}

type Project struct {
	ID      int64  `json:"id"`
	TeamID  int64  `json:"team_id"`
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Path    string `json:"path"`
	Enabled bool   `json:"enabled"`
}

type Skill struct {
	ID          int64  `json:"id"`
	TeamID      int64  `json:"team_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Content     string `json:"content"`
	Enabled     bool   `json:"enabled"`
}

// Requirement delivery states for cross-team transfer. A delivered
// requirement exists only on the target team.
const (
	DeliveryPending  = "pending"
	DeliveryAccepted = "accepted"
	DeliveryRejected = "rejected"
)

type Requirement struct {
	ID                 int64      `json:"id"`
	TeamID             int64      `json:"team_id"`
	ProjectID          *int64     `json:"project_id,omitempty"`
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	Status             string     `json:"status"` // incoming|todo|in_progress|done|blocked
	Priority           string     `json:"priority"`
	SourceTeam         string     `json:"source_team,omitempty"`
	DeliveryState      string     `json:"delivery_state,omitempty"`
	DeliveryFromTeamID *int64     `json:"delivery_from_team_id,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type Session struct {
	SessionID   string    `json:"session_id"`
	TeamID      int64     `json:"team_id"`
	UserID      int64     `json:"user_id"`
	ProjectID   *int64    `json:"project_id,omitempty"`
	Role        string    `json:"role"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	LastSummary string    `json:"last_summary,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Message struct {
	ID         int64           `json:"id"`
	SessionID  string          `json:"session_id"`
	TeamID     int64           `json:"team_id"`
	Ordinal    int             `json:"ordinal"`
	Role       string          `json:"role"` // user | assistant | tool
	Content    string          `json:"content"`
	ToolCalls  json.RawMessage `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	EventsJSON json.RawMessage `json:"events_json,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Attachment kinds.
const (
	FileKindImage     = "image"
	FileKindFile      = "file"
	FileKindGenerated = "generated"
)

type FileRecord struct {
	FileID      string    `json:"file_id"`
	Kind        string    `json:"kind"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	TeamID      int64     `json:"team_id"`
	ProjectID   *int64    `json:"project_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	SourcePath  string    `json:"source_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Attachment link directions.
const (
	DirInput  = "input"
	DirOutput = "output"
)

type MessageAttachment struct {
	MessageID int64  `json:"message_id"`
	FileID    string `json:"file_id"`
	Direction string `json:"direction"`
}

// TurnCommit is everything one completed turn persists atomically: the
// session upsert, the appended messages in order, and artifact links.
// Either all of it commits or none of it does.
type TurnCommit struct {
	Session  Session
	Messages []Message // ordinals assigned by the store, in slice order

	// Files produced this turn; linked (direction=output) to the terminal
	// assistant message.
	Files []FileRecord

	// InputFileIDs are pre-existing attachments referenced by the user
	// message; linked with direction=input.
	InputFileIDs []string
}

// Store is the durable persistence interface. Implementations live in
// sqldb (shared SQL over pgx stdlib or modernc sqlite).
type Store interface {
	// Sessions and messages.
	CommitTurn(ctx context.Context, tc TurnCommit) error
	GetSession(ctx context.Context, teamID int64, sessionID string) (*Session, error)
	// SessionExists reports whether any team owns this session ID. Used to
	// refuse recreating an ID that belongs elsewhere.
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	ListSessions(ctx context.Context, teamID, userID int64, limit int) ([]Session, error)
	DeleteSession(ctx context.Context, teamID int64, sessionID string) error
	ListMessages(ctx context.Context, teamID int64, sessionID string, limit int) ([]Message, error)

	// File records.
	InsertFile(ctx context.Context, rec FileRecord) error
	GetFile(ctx context.Context, fileID string) (*FileRecord, error)
	DeleteFile(ctx context.Context, teamID int64, fileID string) error
	ListFiles(ctx context.Context, teamID int64, limit int) ([]FileRecord, error)
	// PruneExpiredFiles removes rows older than cutoff that no live message
	// references, returning the removed file IDs so disk objects can go too.
	PruneExpiredFiles(ctx context.Context, cutoff time.Time) ([]string, error)
	LiveFileIDs(ctx context.Context) (map[string]bool, error)

	// Teams, memberships, projects, skills.
	GetTeam(ctx context.Context, teamID int64) (*Team, error)
	GetMembership(ctx context.Context, userID, teamID int64) (*Membership, error)
	GetProject(ctx context.Context, teamID, projectID int64) (*Project, error)
	ListSkills(ctx context.Context, teamID int64, enabledOnly bool) ([]Skill, error)

	// Requirements with cross-team delivery.
	CreateRequirement(ctx context.Context, r *Requirement) error
	ListRequirements(ctx context.Context, teamID int64, status string, limit int) ([]Requirement, error)
	DeliverRequirement(ctx context.Context, fromTeamID, toTeamID int64, r *Requirement) error
	SetDeliveryState(ctx context.Context, teamID, reqID int64, state string) error
	SetRequirementStatus(ctx context.Context, teamID, reqID int64, status string) error

	Close() error
}
