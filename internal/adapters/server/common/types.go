// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed or rejected transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrConflict reports a request that clashes with the current drag session state.
var ErrConflict = errors.New("conflict")

// ErrUnavailable reports a missing backing service.
var ErrUnavailable = errors.New("pipeline service unavailable")

// Lead is one lead card as seen by transport callers.
type Lead struct {
	ID             string     `json:"id"`
	StageID        string     `json:"stage_id"`
	Position       int        `json:"position"`
	Name           string     `json:"name"`
	Email          string     `json:"email,omitempty"`
	Phone          string     `json:"phone,omitempty"`
	Score          int        `json:"score"`
	Notes          string     `json:"notes,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	Source         string     `json:"source,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StageChangedAt *time.Time `json:"stage_changed_at,omitempty"`
}

// Stage is one pipeline column with its leads in display order.
type Stage struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Position int    `json:"position"`
	Leads    []Lead `json:"leads"`
}

// DragState describes the active drag session.
type DragState struct {
	Kind     string `json:"kind"`
	SourceID string `json:"source_id"`
	OverKind string `json:"over_kind,omitempty"`
	OverID   string `json:"over_id,omitempty"`
}

// Board is the full pipeline snapshot. Version changes on every committed
// board mutation.
type Board struct {
	Version     uint64     `json:"version"`
	ReorderMode bool       `json:"reorder_mode"`
	Drag        *DragState `json:"drag,omitempty"`
	Selected    []string   `json:"selected"`
	Stages      []Stage    `json:"stages"`
}

// DragRequest names a drag payload or hover target.
type DragRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

// DragResult reports whether a drag step changed the board.
type DragResult struct {
	Changed bool   `json:"changed"`
	Version uint64 `json:"version"`
}

// ReorderModeRequest toggles stage dragging.
type ReorderModeRequest struct {
	Enabled bool `json:"enabled"`
}

// MoveLeadRequest places one lead at Index within StageID.
type MoveLeadRequest struct {
	LeadID  string `json:"lead_id,omitempty"`
	StageID string `json:"stage_id"`
	Index   int    `json:"index"`
}

// ReorderStagesRequest moves SourceID into TargetID's slot.
type ReorderStagesRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// ToggleSelectionRequest flips one lead's selection.
type ToggleSelectionRequest struct {
	LeadID string `json:"lead_id"`
}

// SelectAllRequest replaces the selection with LeadIDs, or with every lead in
// StageID when LeadIDs is empty.
type SelectAllRequest struct {
	StageID string   `json:"stage_id,omitempty"`
	LeadIDs []string `json:"lead_ids,omitempty"`
}

// Selection reports the selection after a selection request.
type Selection struct {
	Selected []string `json:"selected"`
	Toggled  *bool    `json:"toggled,omitempty"`
	Cleared  int      `json:"cleared,omitempty"`
}

// BulkRequest applies Action ("move", "assign_owner", "remove") to the selection.
type BulkRequest struct {
	Action  string `json:"action"`
	StageID string `json:"stage_id,omitempty"`
	Owner   string `json:"owner,omitempty"`
}

// BulkResult reports which selected leads a bulk action touched.
type BulkResult struct {
	Action  string   `json:"action"`
	Applied []string `json:"applied"`
	Skipped []string `json:"skipped,omitempty"`
}

// CreateLeadRequest appends a new lead to the end of StageID.
type CreateLeadRequest struct {
	StageID string   `json:"stage_id"`
	Name    string   `json:"name"`
	Email   string   `json:"email,omitempty"`
	Phone   string   `json:"phone,omitempty"`
	Score   int      `json:"score"`
	Notes   string   `json:"notes,omitempty"`
	Owner   string   `json:"owner,omitempty"`
	Source  string   `json:"source,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// UpdateLeadRequest edits a lead's record fields. Nil fields keep their value;
// stage and position are changed through moves only.
type UpdateLeadRequest struct {
	LeadID string    `json:"lead_id,omitempty"`
	Name   *string   `json:"name,omitempty"`
	Email  *string   `json:"email,omitempty"`
	Phone  *string   `json:"phone,omitempty"`
	Score  *int      `json:"score,omitempty"`
	Notes  *string   `json:"notes,omitempty"`
	Tags   *[]string `json:"tags,omitempty"`
}

// CreateStageRequest appends a stage after the last one.
type CreateStageRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// ChangeEvent is one persisted board change.
type ChangeEvent struct {
	ID         int64             `json:"id"`
	SubjectID  string            `json:"subject_id"`
	Operation  string            `json:"operation"`
	ActorID    string            `json:"actor_id"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// PipelineService is the transport-facing pipeline contract.
type PipelineService interface {
	Board(context.Context) (Board, error)
	StartDrag(context.Context, DragRequest) error
	DragOver(context.Context, DragRequest) (DragResult, error)
	EndDrag(context.Context) (DragResult, error)
	CancelDrag(context.Context) (DragResult, error)
	SetReorderMode(context.Context, ReorderModeRequest) error
	MoveLead(context.Context, MoveLeadRequest) (Lead, error)
	ReorderStages(context.Context, ReorderStagesRequest) ([]Stage, error)
	ToggleSelection(context.Context, ToggleSelectionRequest) (Selection, error)
	SelectAll(context.Context, SelectAllRequest) (Selection, error)
	ClearSelection(context.Context) (Selection, error)
	ApplyBulk(context.Context, BulkRequest) (BulkResult, error)
	ListChanges(context.Context, int) ([]ChangeEvent, error)
	CreateLead(context.Context, CreateLeadRequest) (Lead, error)
	GetLead(context.Context, string) (Lead, error)
	UpdateLead(context.Context, UpdateLeadRequest) (Lead, error)
	CreateStage(context.Context, CreateStageRequest) (Stage, error)
	ListStages(context.Context) ([]Stage, error)
}
