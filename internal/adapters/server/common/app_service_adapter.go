package common

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/board"
	"github.com/hylla/leadflow/internal/domain"
	"github.com/hylla/leadflow/internal/drag"
	"github.com/hylla/leadflow/internal/selection"
)

// AppServiceAdapter maps transport contracts onto app.Service pipeline APIs.
type AppServiceAdapter struct {
	service *app.Service
}

// NewAppServiceAdapter builds one common adapter over an app.Service instance.
func NewAppServiceAdapter(service *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{service: service}
}

// Board returns the current pipeline snapshot.
func (a *AppServiceAdapter) Board(ctx context.Context) (Board, error) {
	if err := a.ready(); err != nil {
		return Board{}, err
	}
	view, err := a.service.Board(ctx)
	if err != nil {
		return Board{}, mapAppError("board", err)
	}
	return mapBoardView(view), nil
}

// StartDrag opens a drag session.
func (a *AppServiceAdapter) StartDrag(ctx context.Context, in DragRequest) error {
	if err := a.ready(); err != nil {
		return err
	}
	kind, err := parseKind(in.Kind)
	if err != nil {
		return err
	}
	if err := a.service.StartDrag(ctx, kind, in.ID); err != nil {
		return mapAppError("start drag", err)
	}
	return nil
}

// DragOver reports the hovered lead or stage.
func (a *AppServiceAdapter) DragOver(ctx context.Context, in DragRequest) (DragResult, error) {
	if err := a.ready(); err != nil {
		return DragResult{}, err
	}
	kind, err := parseKind(in.Kind)
	if err != nil {
		return DragResult{}, err
	}
	out, err := a.service.DragOver(ctx, kind, in.ID)
	if err != nil {
		return DragResult{}, mapAppError("drag over", err)
	}
	return DragResult(out), nil
}

// EndDrag settles the active drag session.
func (a *AppServiceAdapter) EndDrag(ctx context.Context) (DragResult, error) {
	if err := a.ready(); err != nil {
		return DragResult{}, err
	}
	out, err := a.service.EndDrag(ctx)
	if err != nil {
		return DragResult{}, mapAppError("end drag", err)
	}
	return DragResult(out), nil
}

// CancelDrag aborts the active drag session.
func (a *AppServiceAdapter) CancelDrag(ctx context.Context) (DragResult, error) {
	if err := a.ready(); err != nil {
		return DragResult{}, err
	}
	out, err := a.service.CancelDrag(ctx)
	if err != nil {
		return DragResult{}, mapAppError("cancel drag", err)
	}
	return DragResult(out), nil
}

// SetReorderMode toggles stage dragging.
func (a *AppServiceAdapter) SetReorderMode(ctx context.Context, in ReorderModeRequest) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.service.SetReorderMode(ctx, in.Enabled); err != nil {
		return mapAppError("set reorder mode", err)
	}
	return nil
}

// MoveLead places one lead at an index within a stage.
func (a *AppServiceAdapter) MoveLead(ctx context.Context, in MoveLeadRequest) (Lead, error) {
	if err := a.ready(); err != nil {
		return Lead{}, err
	}
	leadID := strings.TrimSpace(in.LeadID)
	if leadID == "" {
		return Lead{}, fmt.Errorf("move lead: lead_id is required: %w", ErrInvalidRequest)
	}
	if strings.TrimSpace(in.StageID) == "" {
		return Lead{}, fmt.Errorf("move lead: stage_id is required: %w", ErrInvalidRequest)
	}
	lead, err := a.service.MoveLead(ctx, leadID, in.StageID, in.Index)
	if err != nil {
		return Lead{}, mapAppError("move lead", err)
	}
	return mapLead(lead), nil
}

// ReorderStages moves one stage into another stage's slot.
func (a *AppServiceAdapter) ReorderStages(ctx context.Context, in ReorderStagesRequest) ([]Stage, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	stages, err := a.service.ReorderStages(ctx, in.SourceID, in.TargetID)
	if err != nil {
		return nil, mapAppError("reorder stages", err)
	}
	out := make([]Stage, 0, len(stages))
	for _, stage := range stages {
		out = append(out, mapStage(stage, nil))
	}
	return out, nil
}

// ToggleSelection flips one lead's selection.
func (a *AppServiceAdapter) ToggleSelection(ctx context.Context, in ToggleSelectionRequest) (Selection, error) {
	if err := a.ready(); err != nil {
		return Selection{}, err
	}
	leadID := strings.TrimSpace(in.LeadID)
	if leadID == "" {
		return Selection{}, fmt.Errorf("toggle selection: lead_id is required: %w", ErrInvalidRequest)
	}
	selected, err := a.service.ToggleSelection(ctx, leadID)
	if err != nil {
		return Selection{}, mapAppError("toggle selection", err)
	}
	view, err := a.service.Board(ctx)
	if err != nil {
		return Selection{}, mapAppError("toggle selection", err)
	}
	return Selection{Selected: nonNil(view.Selected), Toggled: &selected}, nil
}

// SelectAll replaces the selection.
func (a *AppServiceAdapter) SelectAll(ctx context.Context, in SelectAllRequest) (Selection, error) {
	if err := a.ready(); err != nil {
		return Selection{}, err
	}
	if len(in.LeadIDs) == 0 && strings.TrimSpace(in.StageID) == "" {
		return Selection{}, fmt.Errorf("select all: stage_id or lead_ids is required: %w", ErrInvalidRequest)
	}
	ids, err := a.service.SelectAll(ctx, in.StageID, in.LeadIDs)
	if err != nil {
		return Selection{}, mapAppError("select all", err)
	}
	return Selection{Selected: nonNil(ids)}, nil
}

// ClearSelection empties the selection.
func (a *AppServiceAdapter) ClearSelection(ctx context.Context) (Selection, error) {
	if err := a.ready(); err != nil {
		return Selection{}, err
	}
	n, err := a.service.ClearSelection(ctx)
	if err != nil {
		return Selection{}, mapAppError("clear selection", err)
	}
	return Selection{Selected: []string{}, Cleared: n}, nil
}

// ApplyBulk applies one bulk action to the selection.
func (a *AppServiceAdapter) ApplyBulk(ctx context.Context, in BulkRequest) (BulkResult, error) {
	if err := a.ready(); err != nil {
		return BulkResult{}, err
	}
	res, err := a.service.ApplyBulk(ctx, app.BulkInput{
		Action:  in.Action,
		StageID: in.StageID,
		Owner:   in.Owner,
	})
	if err != nil {
		return BulkResult{}, mapAppError("apply bulk", err)
	}
	return mapBulkResult(res), nil
}

// ListChanges returns the newest change events first.
func (a *AppServiceAdapter) ListChanges(ctx context.Context, limit int) ([]ChangeEvent, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, fmt.Errorf("list changes: limit must be >= 0: %w", ErrInvalidRequest)
	}
	events, err := a.service.ListChangeEvents(ctx, limit)
	if err != nil {
		return nil, mapAppError("list changes", err)
	}
	out := make([]ChangeEvent, 0, len(events))
	for _, event := range events {
		out = append(out, ChangeEvent{
			ID:         event.ID,
			SubjectID:  event.SubjectID,
			Operation:  string(event.Operation),
			ActorID:    event.ActorID,
			Metadata:   event.Metadata,
			OccurredAt: event.OccurredAt,
		})
	}
	return out, nil
}

// CreateLead appends a lead to a stage.
func (a *AppServiceAdapter) CreateLead(ctx context.Context, in CreateLeadRequest) (Lead, error) {
	if err := a.ready(); err != nil {
		return Lead{}, err
	}
	if strings.TrimSpace(in.StageID) == "" {
		return Lead{}, fmt.Errorf("create lead: stage_id is required: %w", ErrInvalidRequest)
	}
	lead, err := a.service.CreateLead(ctx, app.CreateLeadInput{
		StageID: in.StageID,
		Name:    in.Name,
		Email:   in.Email,
		Phone:   in.Phone,
		Score:   in.Score,
		Notes:   in.Notes,
		Owner:   in.Owner,
		Source:  in.Source,
		Tags:    in.Tags,
	})
	if err != nil {
		return Lead{}, mapAppError("create lead", err)
	}
	return mapLead(lead), nil
}

// GetLead returns one stored lead.
func (a *AppServiceAdapter) GetLead(ctx context.Context, leadID string) (Lead, error) {
	if err := a.ready(); err != nil {
		return Lead{}, err
	}
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return Lead{}, fmt.Errorf("get lead: lead_id is required: %w", ErrInvalidRequest)
	}
	lead, err := a.service.GetLead(ctx, leadID)
	if err != nil {
		return Lead{}, mapAppError("get lead", err)
	}
	return mapLead(lead), nil
}

// UpdateLead merges the set fields of in into the stored lead.
func (a *AppServiceAdapter) UpdateLead(ctx context.Context, in UpdateLeadRequest) (Lead, error) {
	current, err := a.GetLead(ctx, in.LeadID)
	if err != nil {
		return Lead{}, err
	}
	patch := app.UpdateLeadInput{
		LeadID: current.ID,
		Name:   current.Name,
		Email:  current.Email,
		Phone:  current.Phone,
		Score:  current.Score,
		Notes:  current.Notes,
		Tags:   current.Tags,
	}
	if in.Name != nil {
		patch.Name = *in.Name
	}
	if in.Email != nil {
		patch.Email = *in.Email
	}
	if in.Phone != nil {
		patch.Phone = *in.Phone
	}
	if in.Score != nil {
		patch.Score = *in.Score
	}
	if in.Notes != nil {
		patch.Notes = *in.Notes
	}
	if in.Tags != nil {
		patch.Tags = *in.Tags
	}
	lead, err := a.service.UpdateLead(ctx, patch)
	if err != nil {
		return Lead{}, mapAppError("update lead", err)
	}
	return mapLead(lead), nil
}

// CreateStage appends a stage.
func (a *AppServiceAdapter) CreateStage(ctx context.Context, in CreateStageRequest) (Stage, error) {
	if err := a.ready(); err != nil {
		return Stage{}, err
	}
	stage, err := a.service.CreateStage(ctx, in.Name, in.Color)
	if err != nil {
		return Stage{}, mapAppError("create stage", err)
	}
	return mapStage(stage, nil), nil
}

// ListStages returns stages by position without their leads.
func (a *AppServiceAdapter) ListStages(ctx context.Context) ([]Stage, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	stages, err := a.service.ListStages(ctx)
	if err != nil {
		return nil, mapAppError("list stages", err)
	}
	out := make([]Stage, 0, len(stages))
	for _, stage := range stages {
		out = append(out, mapStage(stage, nil))
	}
	return out, nil
}

func (a *AppServiceAdapter) ready() error {
	if a == nil || a.service == nil {
		return fmt.Errorf("app service adapter is not configured: %w", ErrUnavailable)
	}
	return nil
}

// parseKind accepts the core kinds plus the "lead" and "stage" aliases.
func parseKind(raw string) (drag.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "lead":
		return drag.KindItem, nil
	case "stage":
		return drag.KindContainer, nil
	}
	kind, err := drag.ParseKind(raw)
	if err != nil {
		return "", errors.Join(ErrInvalidRequest, err)
	}
	return kind, nil
}

func mapBoardView(view app.BoardView) Board {
	out := Board{
		Version:     view.Version,
		ReorderMode: view.ReorderMode,
		Selected:    nonNil(view.Selected),
		Stages:      make([]Stage, 0, len(view.Stages)),
	}
	if view.Drag != nil {
		out.Drag = &DragState{
			Kind:     string(view.Drag.Kind),
			SourceID: view.Drag.SourceID,
			OverKind: string(view.Drag.OverKind),
			OverID:   view.Drag.OverID,
		}
	}
	for _, sv := range view.Stages {
		out.Stages = append(out.Stages, mapStage(sv.Stage, sv.Leads))
	}
	return out
}

func mapStage(stage domain.Stage, leads []domain.Lead) Stage {
	out := Stage{
		ID:       stage.ID,
		Name:     stage.Name,
		Color:    stage.Color,
		Position: stage.Position,
		Leads:    make([]Lead, 0, len(leads)),
	}
	for _, lead := range leads {
		out.Leads = append(out.Leads, mapLead(lead))
	}
	return out
}

func mapLead(lead domain.Lead) Lead {
	return Lead{
		ID:             lead.ID,
		StageID:        lead.StageID,
		Position:       lead.Position,
		Name:           lead.Name,
		Email:          lead.Email,
		Phone:          lead.Phone,
		Score:          lead.Score,
		Notes:          lead.Notes,
		Owner:          lead.Owner,
		Source:         lead.Source,
		Tags:           append([]string(nil), lead.Tags...),
		CreatedAt:      lead.CreatedAt,
		UpdatedAt:      lead.UpdatedAt,
		StageChangedAt: lead.StageChangedAt,
	}
}

func mapBulkResult(res selection.Result) BulkResult {
	return BulkResult{
		Action:  res.Mutation,
		Applied: nonNil(res.Applied),
		Skipped: res.Skipped,
	}
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

// mapAppError maps app and core errors into transport-facing error categories.
func mapAppError(operation string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return fmt.Errorf("%s: %w", operation, err)
	case errors.Is(err, app.ErrNotFound),
		errors.Is(err, board.ErrItemNotFound):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrNotFound, err))
	case errors.Is(err, drag.ErrSessionActive),
		errors.Is(err, drag.ErrNoSession),
		errors.Is(err, drag.ErrModeMismatch):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrConflict, err))
	case errors.Is(err, board.ErrInvalidTarget),
		errors.Is(err, board.ErrInvalidID),
		errors.Is(err, drag.ErrInvalidKind),
		errors.Is(err, selection.ErrInvalidMutation),
		errors.Is(err, selection.ErrNoOwnerStore),
		errors.Is(err, app.ErrInvalidBulkSpec),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidName),
		errors.Is(err, domain.ErrInvalidColor),
		errors.Is(err, domain.ErrInvalidPosition),
		errors.Is(err, domain.ErrInvalidStageID),
		errors.Is(err, domain.ErrInvalidScore),
		errors.Is(err, domain.ErrInvalidEmail):
		return fmt.Errorf("%s: %w", operation, errors.Join(ErrInvalidRequest, err))
	default:
		return fmt.Errorf("%s: %w", operation, err)
	}
}
