package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hylla/leadflow/internal/domain"
	"github.com/hylla/leadflow/internal/drag"
)

// SnapshotVersion identifies the export format.
const SnapshotVersion = "leadflow.snapshot.v1"

// Snapshot is a portable copy of the whole pipeline.
type Snapshot struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Stages     []SnapshotStage `json:"stages"`
	Leads      []SnapshotLead  `json:"leads"`
}

// SnapshotStage is one exported stage.
type SnapshotStage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	Position  int       `json:"position"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SnapshotLead is one exported lead.
type SnapshotLead struct {
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
	Tags           []string   `json:"tags"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	StageChangedAt *time.Time `json:"stage_changed_at,omitempty"`
}

// ExportSnapshot copies every stage and lead out of the store.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages, err := s.repo.ListStages(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	leads, err := s.repo.ListLeads(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Stages:     make([]SnapshotStage, 0, len(stages)),
		Leads:      make([]SnapshotLead, 0, len(leads)),
	}
	for _, stage := range stages {
		snap.Stages = append(snap.Stages, snapshotStageFromDomain(stage))
	}
	for _, lead := range leads {
		snap.Leads = append(snap.Leads, snapshotLeadFromDomain(lead))
	}
	snap.sort()
	return snap, nil
}

// ImportSnapshot upserts every stage and lead in snap. Records missing from
// snap are left alone. The board is reloaded on next use.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	snap.sort()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drag != nil && s.drag.State() == drag.StateDragging {
		return drag.ErrSessionActive
	}

	existing, err := s.repo.ListStages(ctx)
	if err != nil {
		return err
	}
	stageIDs := map[string]struct{}{}
	for _, stage := range existing {
		stageIDs[stage.ID] = struct{}{}
	}
	updates := make([]domain.Stage, 0, len(snap.Stages))
	for _, stage := range snap.Stages {
		ds := stage.toDomain()
		if _, ok := stageIDs[ds.ID]; ok {
			updates = append(updates, ds)
			continue
		}
		if err := s.repo.CreateStage(ctx, ds); err != nil {
			return err
		}
	}
	if len(updates) > 0 {
		if err := s.repo.UpdateStages(ctx, updates); err != nil {
			return err
		}
	}

	leadUpdates := make([]domain.Lead, 0, len(snap.Leads))
	for _, lead := range snap.Leads {
		dl := lead.toDomain()
		if _, err := s.repo.GetLead(ctx, dl.ID); err == nil {
			leadUpdates = append(leadUpdates, dl)
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if err := s.repo.CreateLead(ctx, dl); err != nil {
			return err
		}
	}
	if len(leadUpdates) > 0 {
		if err := s.repo.UpdateLeads(ctx, leadUpdates); err != nil {
			return err
		}
	}

	s.loaded = false
	s.logger.Info("imported snapshot", "stages", len(snap.Stages), "leads", len(snap.Leads))
	return nil
}

// Validate checks ids, references and field ranges.
func (s *Snapshot) Validate() error {
	if s.Version != "" && s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version: %q", s.Version)
	}

	stageIDs := map[string]struct{}{}
	for i, stage := range s.Stages {
		if strings.TrimSpace(stage.ID) == "" {
			return fmt.Errorf("stages[%d].id is required", i)
		}
		if strings.TrimSpace(stage.Name) == "" {
			return fmt.Errorf("stages[%d].name is required", i)
		}
		if stage.Position < 0 {
			return fmt.Errorf("stages[%d].position must be >= 0", i)
		}
		if stage.CreatedAt.IsZero() || stage.UpdatedAt.IsZero() {
			return fmt.Errorf("stages[%d] timestamps are required", i)
		}
		if _, exists := stageIDs[stage.ID]; exists {
			return fmt.Errorf("duplicate stage id: %q", stage.ID)
		}
		stageIDs[stage.ID] = struct{}{}
	}

	leadIDs := map[string]struct{}{}
	for i, lead := range s.Leads {
		if strings.TrimSpace(lead.ID) == "" {
			return fmt.Errorf("leads[%d].id is required", i)
		}
		if strings.TrimSpace(lead.Name) == "" {
			return fmt.Errorf("leads[%d].name is required", i)
		}
		if _, ok := stageIDs[lead.StageID]; !ok {
			return fmt.Errorf("leads[%d] references unknown stage_id %q", i, lead.StageID)
		}
		if lead.Position < 0 {
			return fmt.Errorf("leads[%d].position must be >= 0", i)
		}
		if lead.Score < 0 || lead.Score > domain.MaxScore {
			return fmt.Errorf("leads[%d].score must be between 0 and %d", i, domain.MaxScore)
		}
		if lead.CreatedAt.IsZero() || lead.UpdatedAt.IsZero() {
			return fmt.Errorf("leads[%d] timestamps are required", i)
		}
		if _, exists := leadIDs[lead.ID]; exists {
			return fmt.Errorf("duplicate lead id: %q", lead.ID)
		}
		leadIDs[lead.ID] = struct{}{}
	}
	return nil
}

// sort orders stages by position and leads by stage then position.
func (s *Snapshot) sort() {
	sort.Slice(s.Stages, func(i, j int) bool {
		a, b := s.Stages[i], s.Stages[j]
		if a.Position == b.Position {
			return a.ID < b.ID
		}
		return a.Position < b.Position
	})
	sort.Slice(s.Leads, func(i, j int) bool {
		a, b := s.Leads[i], s.Leads[j]
		if a.StageID == b.StageID {
			if a.Position == b.Position {
				return a.ID < b.ID
			}
			return a.Position < b.Position
		}
		return a.StageID < b.StageID
	})
}

func snapshotStageFromDomain(st domain.Stage) SnapshotStage {
	return SnapshotStage{
		ID:        st.ID,
		Name:      st.Name,
		Color:     st.Color,
		Position:  st.Position,
		CreatedAt: st.CreatedAt,
		UpdatedAt: st.UpdatedAt,
	}
}

func snapshotLeadFromDomain(l domain.Lead) SnapshotLead {
	return SnapshotLead{
		ID:             l.ID,
		StageID:        l.StageID,
		Position:       l.Position,
		Name:           l.Name,
		Email:          l.Email,
		Phone:          l.Phone,
		Score:          l.Score,
		Notes:          l.Notes,
		Owner:          l.Owner,
		Source:         l.Source,
		Tags:           append([]string{}, l.Tags...),
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
		StageChangedAt: copyTimePtr(l.StageChangedAt),
	}
}

func (st SnapshotStage) toDomain() domain.Stage {
	return domain.Stage{
		ID:        strings.TrimSpace(st.ID),
		Name:      strings.TrimSpace(st.Name),
		Color:     strings.TrimSpace(st.Color),
		Position:  st.Position,
		CreatedAt: st.CreatedAt.UTC(),
		UpdatedAt: st.UpdatedAt.UTC(),
	}
}

func (l SnapshotLead) toDomain() domain.Lead {
	return domain.Lead{
		ID:             strings.TrimSpace(l.ID),
		StageID:        strings.TrimSpace(l.StageID),
		Position:       l.Position,
		Name:           strings.TrimSpace(l.Name),
		Email:          strings.TrimSpace(l.Email),
		Phone:          strings.TrimSpace(l.Phone),
		Score:          l.Score,
		Notes:          l.Notes,
		Owner:          strings.TrimSpace(l.Owner),
		Source:         strings.TrimSpace(l.Source),
		Tags:           append([]string(nil), l.Tags...),
		CreatedAt:      l.CreatedAt.UTC(),
		UpdatedAt:      l.UpdatedAt.UTC(),
		StageChangedAt: copyTimePtr(l.StageChangedAt),
	}
}

func copyTimePtr(in *time.Time) *time.Time {
	if in == nil {
		return nil
	}
	out := in.UTC()
	return &out
}
