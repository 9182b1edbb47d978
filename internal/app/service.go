package app

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/hylla/leadflow/internal/board"
	"github.com/hylla/leadflow/internal/domain"
	"github.com/hylla/leadflow/internal/drag"
	"github.com/hylla/leadflow/internal/selection"
)

// ServiceConfig holds configuration for service.
type ServiceConfig struct {
	StageTemplates  []StageTemplate
	RestoreOnCancel bool
	DefaultOwner    string
	Logger          *log.Logger
}

// StageTemplate describes one stage created by EnsureDefaultPipeline.
type StageTemplate struct {
	ID       string
	Name     string
	Color    string
	Position int
}

// IDGenerator returns unique identifiers for new entities.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// Service owns one pipeline board, its drag controller and selection set,
// and writes committed changes through to the repository. Calls are
// serialized.
type Service struct {
	mu sync.Mutex

	repo            Repository
	idGen           IDGenerator
	clock           Clock
	logger          *log.Logger
	stageTemplates  []StageTemplate
	restoreOnCancel bool
	defaultOwner    string

	loaded    bool
	stages    map[string]domain.Stage
	leads     map[string]domain.Lead
	board     *board.Board
	drag      *drag.Controller
	selection *selection.Set
}

// NewService constructs a service. The board is loaded lazily on first use.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	templates := sanitizeStageTemplates(cfg.StageTemplates)
	if len(templates) == 0 {
		templates = defaultStageTemplates()
	}

	return &Service{
		repo:            repo,
		idGen:           idGen,
		clock:           clock,
		logger:          logger,
		stageTemplates:  templates,
		restoreOnCancel: cfg.RestoreOnCancel,
		defaultOwner:    strings.TrimSpace(cfg.DefaultOwner),
		selection:       selection.NewSet(),
	}
}

// EnsureDefaultPipeline creates the template stages when the store has none.
func (s *Service) EnsureDefaultPipeline(ctx context.Context) ([]domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stages, err := s.repo.ListStages(ctx)
	if err != nil {
		return nil, err
	}
	if len(stages) > 0 {
		return sortStages(stages), nil
	}

	now := s.clock()
	out := make([]domain.Stage, 0, len(s.stageTemplates))
	for idx, tpl := range s.stageTemplates {
		id := tpl.ID
		if id == "" {
			id = s.idGen()
		}
		stage, err := domain.NewStage(id, tpl.Name, tpl.Color, idx, now)
		if err != nil {
			return nil, fmt.Errorf("create default stage %q: %w", tpl.Name, err)
		}
		if err := s.repo.CreateStage(ctx, stage); err != nil {
			return nil, fmt.Errorf("persist default stage %q: %w", tpl.Name, err)
		}
		out = append(out, stage)
	}
	s.logger.Info("created default pipeline", "stages", len(out))
	s.loaded = false
	return out, nil
}

// CreateStage appends a stage after the current last one. The id is the
// slug of name unless another stage already holds it.
func (s *Service) CreateStage(ctx context.Context, name, color string) (domain.Stage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIdleLocked(ctx); err != nil {
		return domain.Stage{}, err
	}

	position := 0
	for _, c := range s.board.Containers() {
		position = max(position, c.Order+1)
	}
	id := normalizeStageID(name)
	if _, taken := s.stages[id]; id == "" || taken {
		id = s.idGen()
	}
	stage, err := domain.NewStage(id, name, color, position, s.clock())
	if err != nil {
		return domain.Stage{}, err
	}
	if err := s.repo.CreateStage(ctx, stage); err != nil {
		return domain.Stage{}, err
	}
	if err := s.board.AddContainer(board.Container{ID: stage.ID, Label: stage.Name, Order: position}); err != nil {
		return domain.Stage{}, err
	}
	s.stages[stage.ID] = stage
	s.logger.Info("created stage", "stage_id", stage.ID, "position", position)
	return stage, nil
}

// CreateLeadInput holds input values for create lead operations.
type CreateLeadInput struct {
	StageID string
	Name    string
	Email   string
	Phone   string
	Score   int
	Notes   string
	Owner   string
	Source  string
	Tags    []string
}

// CreateLead appends a lead to the end of its stage.
func (s *Service) CreateLead(ctx context.Context, in CreateLeadInput) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureIdleLocked(ctx); err != nil {
		return domain.Lead{}, err
	}
	if _, ok := s.stages[strings.TrimSpace(in.StageID)]; !ok {
		return domain.Lead{}, fmt.Errorf("stage %q: %w", in.StageID, board.ErrInvalidTarget)
	}
	owner := in.Owner
	if strings.TrimSpace(owner) == "" {
		owner = s.defaultOwner
	}

	stageID := strings.TrimSpace(in.StageID)
	lead, err := domain.NewLead(domain.LeadInput{
		ID:       s.idGen(),
		StageID:  stageID,
		Position: len(s.board.IDsIn(stageID)),
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Score:    in.Score,
		Notes:    in.Notes,
		Owner:    owner,
		Source:   in.Source,
		Tags:     in.Tags,
	}, s.clock())
	if err != nil {
		return domain.Lead{}, err
	}
	if err := s.repo.CreateLead(ctx, lead); err != nil {
		return domain.Lead{}, err
	}
	if err := s.board.AddItem(board.Item{ID: lead.ID, ContainerID: lead.StageID}); err != nil {
		return domain.Lead{}, err
	}
	s.leads[lead.ID] = lead
	s.logger.Debug("created lead", "lead_id", lead.ID, "stage_id", lead.StageID)
	return lead, nil
}

// UpdateLeadInput holds input values for update lead operations.
type UpdateLeadInput struct {
	LeadID string
	Name   string
	Email  string
	Phone  string
	Score  int
	Notes  string
	Tags   []string
}

// UpdateLead replaces a lead's record fields. Stage and position are left alone.
func (s *Service) UpdateLead(ctx context.Context, in UpdateLeadInput) (domain.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureLoadedLocked(ctx); err != nil {
		return domain.Lead{}, err
	}
	lead, ok := s.leads[strings.TrimSpace(in.LeadID)]
	if !ok {
		return domain.Lead{}, fmt.Errorf("lead %q: %w", in.LeadID, ErrNotFound)
	}
	if err := lead.UpdateDetails(in.Name, in.Email, in.Phone, in.Notes, in.Score, in.Tags, s.clock()); err != nil {
		return domain.Lead{}, err
	}
	if err := s.repo.UpdateLeads(ctx, []domain.Lead{lead}); err != nil {
		return domain.Lead{}, err
	}
	s.leads[lead.ID] = lead
	return lead, nil
}

// GetLead returns one lead from the store.
func (s *Service) GetLead(ctx context.Context, leadID string) (domain.Lead, error) {
	return s.repo.GetLead(ctx, strings.TrimSpace(leadID))
}

// ListStages returns stages sorted by position.
func (s *Service) ListStages(ctx context.Context) ([]domain.Stage, error) {
	stages, err := s.repo.ListStages(ctx)
	if err != nil {
		return nil, err
	}
	return sortStages(stages), nil
}

// ListChangeEvents returns the newest change events first.
func (s *Service) ListChangeEvents(ctx context.Context, limit int) ([]domain.ChangeEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListChangeEvents(ctx, limit)
}

func sortStages(stages []domain.Stage) []domain.Stage {
	out := slices.Clone(stages)
	slices.SortFunc(out, func(a, b domain.Stage) int {
		if a.Position == b.Position {
			return strings.Compare(a.ID, b.ID)
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

// defaultStageTemplates returns the clinic pipeline used when config names none.
func defaultStageTemplates() []StageTemplate {
	return []StageTemplate{
		{ID: "new", Name: "New", Color: "#7aa2f7", Position: 0},
		{ID: "contacted", Name: "Contacted", Color: "#e0af68", Position: 1},
		{ID: "booked", Name: "Booked", Color: "#9ece6a", Position: 2},
		{ID: "treated", Name: "Treated", Color: "#bb9af7", Position: 3},
		{ID: "lost", Name: "Lost", Color: "#f7768e", Position: 4},
	}
}

// sanitizeStageTemplates trims, derives missing ids, drops duplicates and
// sorts by position.
func sanitizeStageTemplates(in []StageTemplate) []StageTemplate {
	if len(in) == 0 {
		return nil
	}
	out := make([]StageTemplate, 0, len(in))
	seen := map[string]struct{}{}
	for idx, stage := range in {
		stage.Name = strings.TrimSpace(stage.Name)
		stage.ID = strings.TrimSpace(strings.ToLower(stage.ID))
		stage.Color = strings.TrimSpace(stage.Color)
		if stage.Name == "" {
			continue
		}
		if stage.ID == "" {
			stage.ID = normalizeStageID(stage.Name)
		}
		if _, ok := seen[stage.ID]; ok {
			continue
		}
		seen[stage.ID] = struct{}{}
		if stage.Position < 0 {
			stage.Position = idx
		}
		out = append(out, stage)
	}
	slices.SortStableFunc(out, func(a, b StageTemplate) int {
		return cmp.Compare(a.Position, b.Position)
	})
	return out
}

// normalizeStageID derives a slug id from a stage name.
func normalizeStageID(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}
