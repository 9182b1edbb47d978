package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/leadflow/internal/board"
	"github.com/hylla/leadflow/internal/domain"
	"github.com/hylla/leadflow/internal/drag"
	"github.com/hylla/leadflow/internal/selection"
)

// BoardView is a read-only snapshot of the pipeline board.
type BoardView struct {
	Version     uint64
	ReorderMode bool
	Drag        *DragView
	Selected    []string
	Stages      []StageView
}

// StageView is one stage with its leads in display order.
type StageView struct {
	Stage domain.Stage
	Leads []domain.Lead
}

// DragView describes the active drag session.
type DragView struct {
	Kind     drag.Kind
	SourceID string
	OverKind drag.Kind
	OverID   string
}

// DragResult reports the board after one drag gesture.
type DragResult struct {
	Changed bool
	Version uint64
}

// BulkInput selects the bulk mutation applied to the current selection.
type BulkInput struct {
	Action  string
	StageID string
	Owner   string
}

// Reload discards the in-memory board and rebuilds it from the repository.
// Any active drag session and the selection are dropped.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reloadLocked(ctx)
}

// Board returns the current board snapshot.
func (s *Service) Board(ctx context.Context) (BoardView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return BoardView{}, err
	}
	return s.viewLocked(), nil
}

// StartDrag opens a drag session for a lead (KindItem) or a stage (KindContainer).
func (s *Service) StartDrag(ctx context.Context, kind drag.Kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	payload, err := drag.NewPayload(kind, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	return s.drag.Start(payload)
}

// DragOver reports the hovered lead or stage. Cross-stage hovers move the
// dragged lead in memory; the store is written when the session ends.
func (s *Service) DragOver(ctx context.Context, kind drag.Kind, id string) (DragResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return DragResult{}, err
	}
	target, err := drag.NewTarget(kind, strings.TrimSpace(id))
	if err != nil {
		return DragResult{}, err
	}
	out, err := s.drag.Over(target)
	if errors.Is(err, board.ErrInvalidTarget) {
		s.logger.Warn("drag over unknown target", "kind", kind, "id", id)
	}
	return DragResult(out), err
}

// EndDrag settles the session and persists every resulting change.
func (s *Service) EndDrag(ctx context.Context) (DragResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return DragResult{}, err
	}
	out, err := s.drag.End()
	if err != nil {
		return DragResult(out), err
	}
	if err := s.syncLocked(ctx); err != nil {
		return DragResult{}, err
	}
	return DragResult{Changed: out.Changed, Version: s.board.Version()}, nil
}

// CancelDrag closes the session. Hover moves made so far are persisted unless
// the service restores on cancel.
func (s *Service) CancelDrag(ctx context.Context) (DragResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return DragResult{}, err
	}
	out, err := s.drag.Cancel()
	if err != nil {
		return DragResult(out), err
	}
	if err := s.syncLocked(ctx); err != nil {
		return DragResult{}, err
	}
	return DragResult{Changed: out.Changed, Version: s.board.Version()}, nil
}

// SetReorderMode toggles stage dragging.
func (s *Service) SetReorderMode(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	return s.drag.SetReorderMode(enabled)
}

// MoveLead places a lead at index within stageID.
func (s *Service) MoveLead(ctx context.Context, leadID, stageID string, index int) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIdleLocked(ctx); err != nil {
		return domain.Lead{}, err
	}
	leadID = strings.TrimSpace(leadID)
	if _, ok := s.board.Item(leadID); !ok {
		return domain.Lead{}, fmt.Errorf("lead %q: %w", leadID, ErrNotFound)
	}
	if err := s.board.MoveItem(leadID, strings.TrimSpace(stageID), index); err != nil {
		return domain.Lead{}, err
	}
	if err := s.syncLocked(ctx); err != nil {
		return domain.Lead{}, err
	}
	return s.leads[leadID], nil
}

// ReorderStages moves sourceID into targetID's slot.
func (s *Service) ReorderStages(ctx context.Context, sourceID, targetID string) ([]domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIdleLocked(ctx); err != nil {
		return nil, err
	}
	if err := s.board.ReorderContainers(strings.TrimSpace(sourceID), strings.TrimSpace(targetID)); err != nil {
		return nil, err
	}
	if err := s.syncLocked(ctx); err != nil {
		return nil, err
	}
	return s.orderedStagesLocked(), nil
}

// ToggleSelection flips one lead's selection and reports the new state.
func (s *Service) ToggleSelection(ctx context.Context, leadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return false, err
	}
	return s.selection.Toggle(leadID), nil
}

// SelectAll replaces the selection with leadIDs, or with every lead of
// stageID when leadIDs is empty.
func (s *Service) SelectAll(ctx context.Context, stageID string, leadIDs []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return nil, err
	}
	if len(leadIDs) == 0 {
		stageID = strings.TrimSpace(stageID)
		if _, ok := s.board.Container(stageID); !ok {
			return nil, fmt.Errorf("stage %q: %w", stageID, board.ErrInvalidTarget)
		}
		leadIDs = s.board.IDsIn(stageID)
	}
	s.selection.SelectAll(leadIDs)
	return s.selection.IDs(), nil
}

// ClearSelection empties the selection and returns how many ids it held.
func (s *Service) ClearSelection(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return 0, err
	}
	return s.selection.Clear(), nil
}

// ApplyBulk applies one mutation to every selected lead.
func (s *Service) ApplyBulk(ctx context.Context, in BulkInput) (selection.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIdleLocked(ctx); err != nil {
		return selection.Result{}, err
	}
	owner := in.Owner
	if strings.TrimSpace(owner) == "" {
		owner = s.defaultOwner
	}
	writer := &ownerWriter{ctx: ctx, service: s}
	mutation, err := selection.ParseMutation(in.Action, in.StageID, owner, writer)
	if err != nil {
		return selection.Result{}, errors.Join(ErrInvalidBulkSpec, err)
	}

	res, err := s.selection.Apply(s.board, mutation)
	if len(res.Skipped) > 0 {
		s.logger.Debug("bulk mutation skipped stale leads", "action", res.Mutation, "skipped", res.Skipped)
	}
	if err != nil {
		return res, err
	}
	if err := s.syncLocked(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// ownerWriter persists owner reassignment for the selection package.
type ownerWriter struct {
	ctx     context.Context
	service *Service
}

// SetOwners writes the new owner for every id in one repository call.
func (w *ownerWriter) SetOwners(ids []string, owner string) error {
	s := w.service
	now := s.clock()
	updated := make([]domain.Lead, 0, len(ids))
	for _, id := range ids {
		lead, ok := s.leads[id]
		if !ok {
			continue
		}
		lead.AssignOwner(owner, now)
		updated = append(updated, lead)
	}
	if err := s.repo.UpdateLeads(w.ctx, updated); err != nil {
		return err
	}
	for _, lead := range updated {
		s.leads[lead.ID] = lead
	}
	return nil
}

func (s *Service) ensureLoadedLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	return s.reloadLocked(ctx)
}

// ensureIdleLocked loads the board and refuses mutations outside the drag
// gesture while a session is open. A cancel that restores the drag-start board
// would otherwise undo them.
func (s *Service) ensureIdleLocked(ctx context.Context) error {
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return err
	}
	if s.drag.State() == drag.StateDragging {
		return drag.ErrSessionActive
	}
	return nil
}

func (s *Service) reloadLocked(ctx context.Context) error {
	stages, err := s.repo.ListStages(ctx)
	if err != nil {
		return err
	}
	leads, err := s.repo.ListLeads(ctx)
	if err != nil {
		return err
	}
	stages = sortStages(stages)
	stagePos := make(map[string]int, len(stages))
	containers := make([]board.Container, 0, len(stages))
	for idx, stage := range stages {
		stagePos[stage.ID] = idx
		containers = append(containers, board.Container{ID: stage.ID, Label: stage.Name, Order: idx})
	}
	slices.SortStableFunc(leads, func(a, b domain.Lead) int {
		if c := cmp.Compare(stagePos[a.StageID], stagePos[b.StageID]); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	items := make([]board.Item, 0, len(leads))
	cached := make(map[string]domain.Lead, len(leads))
	for _, lead := range leads {
		if _, ok := stagePos[lead.StageID]; !ok {
			s.logger.Warn("lead references missing stage", "lead_id", lead.ID, "stage_id", lead.StageID)
			continue
		}
		items = append(items, board.Item{ID: lead.ID, ContainerID: lead.StageID})
		cached[lead.ID] = lead
	}

	b, err := board.New(containers, items, board.WithContainerChangeHook(s.onStageChange))
	if err != nil {
		return fmt.Errorf("build board: %w", err)
	}

	s.stages = make(map[string]domain.Stage, len(stages))
	for _, stage := range stages {
		s.stages[stage.ID] = stage
	}
	s.leads = cached
	s.board = b
	s.drag = drag.NewController(b, drag.WithRestoreOnCancel(s.restoreOnCancel))
	s.selection.Clear()
	s.loaded = true
	s.logger.Debug("loaded pipeline board", "stages", len(stages), "leads", len(items))
	return nil
}

func (s *Service) onStageChange(change board.ContainerChange) {
	s.logger.Debug("lead changed stage", "lead_id", change.ItemID, "from", change.From, "to", change.To)
}

// syncLocked writes stage positions, lead positions and removals that differ
// between the board and the cached records. On failure the board is reloaded
// from the store so memory and storage agree again.
func (s *Service) syncLocked(ctx context.Context) error {
	now := s.clock()

	var stages []domain.Stage
	for _, c := range s.board.Containers() {
		stage := s.stages[c.ID]
		if stage.Position == c.Order {
			continue
		}
		if err := stage.SetPosition(c.Order, now); err != nil {
			return err
		}
		stages = append(stages, stage)
	}

	var leads []domain.Lead
	onBoard := make(map[string]struct{}, s.board.Len())
	for _, c := range s.board.Containers() {
		idx := 0
		for it := range s.board.ItemsIn(c.ID) {
			onBoard[it.ID] = struct{}{}
			lead := s.leads[it.ID]
			if lead.StageID != c.ID || lead.Position != idx {
				if err := lead.Move(c.ID, idx, now); err != nil {
					return err
				}
				leads = append(leads, lead)
			}
			idx++
		}
	}

	var removed []string
	for id := range s.leads {
		if _, ok := onBoard[id]; !ok {
			removed = append(removed, id)
		}
	}
	slices.Sort(removed)

	if err := s.writeLocked(ctx, stages, leads, removed); err != nil {
		s.logger.Error("persist board changes failed", "err", err)
		if reloadErr := s.reloadLocked(ctx); reloadErr != nil {
			return errors.Join(fmt.Errorf("%w: %w", ErrPersistFailed, err), reloadErr)
		}
		return fmt.Errorf("%w: %w", ErrPersistFailed, err)
	}

	for _, stage := range stages {
		s.stages[stage.ID] = stage
	}
	for _, lead := range leads {
		s.leads[lead.ID] = lead
	}
	for _, id := range removed {
		delete(s.leads, id)
	}
	return nil
}

func (s *Service) writeLocked(ctx context.Context, stages []domain.Stage, leads []domain.Lead, removed []string) error {
	if len(stages) > 0 {
		if err := s.repo.UpdateStages(ctx, stages); err != nil {
			return fmt.Errorf("update stages: %w", err)
		}
	}
	if len(leads) > 0 {
		if err := s.repo.UpdateLeads(ctx, leads); err != nil {
			return fmt.Errorf("update leads: %w", err)
		}
	}
	if len(removed) > 0 {
		if err := s.repo.DeleteLeads(ctx, removed); err != nil {
			return fmt.Errorf("delete leads: %w", err)
		}
	}
	return nil
}

func (s *Service) orderedStagesLocked() []domain.Stage {
	containers := s.board.Containers()
	out := make([]domain.Stage, 0, len(containers))
	for _, c := range containers {
		out = append(out, s.stages[c.ID])
	}
	return out
}

func (s *Service) viewLocked() BoardView {
	view := BoardView{
		Version:     s.board.Version(),
		ReorderMode: s.drag.ReorderMode(),
		Selected:    s.selection.IDs(),
	}
	if session, ok := s.drag.Session(); ok {
		dv := &DragView{Kind: session.Payload.Kind(), SourceID: session.Payload.ID()}
		if session.Over != nil {
			dv.OverKind = session.Over.Kind()
			dv.OverID = session.Over.ID()
		}
		view.Drag = dv
	}
	for _, stage := range s.orderedStagesLocked() {
		sv := StageView{Stage: stage}
		for it := range s.board.ItemsIn(stage.ID) {
			lead := s.leads[it.ID]
			lead.StageID = it.ContainerID
			lead.Position = len(sv.Leads)
			sv.Leads = append(sv.Leads, lead)
		}
		view.Stages = append(view.Stages, sv)
	}
	return view
}
