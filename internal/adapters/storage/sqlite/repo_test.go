package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/domain"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "leadflow.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func seedStages(t *testing.T, repo *Repository, now time.Time, ids ...string) []domain.Stage {
	t.Helper()
	out := make([]domain.Stage, 0, len(ids))
	for idx, id := range ids {
		stage, err := domain.NewStage(id, id, "", idx, now)
		if err != nil {
			t.Fatalf("NewStage() error = %v", err)
		}
		if err := repo.CreateStage(context.Background(), stage); err != nil {
			t.Fatalf("CreateStage() error = %v", err)
		}
		out = append(out, stage)
	}
	return out
}

func TestRepository_StageLeadLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	seedStages(t, repo, now, "new", "booked")

	lead, err := domain.NewLead(domain.LeadInput{
		ID:      "l1",
		StageID: "new",
		Name:    "Ada",
		Email:   "ada@example.com",
		Score:   55,
		Notes:   "prefers mornings",
		Source:  "web-form",
		Tags:    []string{"botox", "filler"},
	}, now)
	if err != nil {
		t.Fatalf("NewLead() error = %v", err)
	}
	if err := repo.CreateLead(ctx, lead); err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}

	loaded, err := repo.GetLead(ctx, "l1")
	if err != nil {
		t.Fatalf("GetLead() error = %v", err)
	}
	if diff := cmp.Diff(lead, loaded); diff != "" {
		t.Fatalf("lead round trip mismatch (-want +got):\n%s", diff)
	}

	later := now.Add(time.Hour)
	if err := lead.Move("booked", 0, later); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if err := repo.UpdateLeads(ctx, []domain.Lead{lead}); err != nil {
		t.Fatalf("UpdateLeads() error = %v", err)
	}
	leads, err := repo.ListLeads(ctx)
	if err != nil {
		t.Fatalf("ListLeads() error = %v", err)
	}
	if len(leads) != 1 || leads[0].StageID != "booked" || !leads[0].StageChangedAt.Equal(later) {
		t.Fatalf("unexpected leads %#v", leads)
	}

	if err := repo.DeleteLeads(ctx, []string{"l1"}); err != nil {
		t.Fatalf("DeleteLeads() error = %v", err)
	}
	if _, err := repo.GetLead(ctx, "l1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	events, err := repo.ListChangeEvents(ctx, 10)
	if err != nil {
		t.Fatalf("ListChangeEvents() error = %v", err)
	}
	var ops []domain.ChangeOperation
	for _, e := range events {
		ops = append(ops, e.Operation)
	}
	want := []domain.ChangeOperation{domain.ChangeOperationDelete, domain.ChangeOperationMove, domain.ChangeOperationCreate}
	if diff := cmp.Diff(want, ops); diff != "" {
		t.Fatalf("operations mismatch (-want +got):\n%s", diff)
	}
	move := events[1]
	if move.Metadata["from_stage_id"] != "new" || move.Metadata["to_stage_id"] != "booked" {
		t.Fatalf("unexpected move metadata %#v", move.Metadata)
	}
	if move.ActorID != defaultActorID {
		t.Fatalf("expected default actor, got %q", move.ActorID)
	}
}

func TestRepository_UpdateLeadsIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	seedStages(t, repo, now, "new", "booked")

	lead, err := domain.NewLead(domain.LeadInput{ID: "l1", StageID: "new", Name: "Ada"}, now)
	if err != nil {
		t.Fatalf("NewLead() error = %v", err)
	}
	if err := repo.CreateLead(ctx, lead); err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	moved := lead
	if err := moved.Move("booked", 0, now.Add(time.Minute)); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	ghost := lead
	ghost.ID = "ghost"

	if err := repo.UpdateLeads(ctx, []domain.Lead{moved, ghost}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := repo.GetLead(ctx, "l1")
	if err != nil {
		t.Fatalf("GetLead() error = %v", err)
	}
	if got.StageID != "new" {
		t.Fatalf("failed batch must roll back, got stage %q", got.StageID)
	}
}

func TestRepository_UpdateStagesRecordsReorder(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	now := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)
	stages := seedStages(t, repo, now, "p", "q", "r")

	later := now.Add(time.Minute)
	_ = stages[0].SetPosition(1, later)
	_ = stages[1].SetPosition(2, later)
	_ = stages[2].SetPosition(0, later)
	if err := repo.UpdateStages(ctx, stages); err != nil {
		t.Fatalf("UpdateStages() error = %v", err)
	}
	listed, err := repo.ListStages(ctx)
	if err != nil {
		t.Fatalf("ListStages() error = %v", err)
	}
	var ids []string
	for _, s := range listed {
		ids = append(ids, s.ID)
	}
	if diff := cmp.Diff([]string{"r", "p", "q"}, ids); diff != "" {
		t.Fatalf("stage order mismatch (-want +got):\n%s", diff)
	}
	events, err := repo.ListChangeEvents(ctx, 0)
	if err != nil {
		t.Fatalf("ListChangeEvents() error = %v", err)
	}
	if len(events) != 3 || events[0].Operation != domain.ChangeOperationReorder {
		t.Fatalf("unexpected events %#v", events)
	}

	missing := stages[0]
	missing.ID = "zz"
	if err := repo.UpdateStages(ctx, []domain.Stage{missing}); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRepository_ServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	n := 0
	svc := app.NewService(repo, func() string {
		n++
		return fmt.Sprintf("lead-%d", n)
	}, nil, app.ServiceConfig{})
	if _, err := svc.EnsureDefaultPipeline(ctx); err != nil {
		t.Fatalf("EnsureDefaultPipeline() error = %v", err)
	}
	lead, err := svc.CreateLead(ctx, app.CreateLeadInput{StageID: "new", Name: "Ada"})
	if err != nil {
		t.Fatalf("CreateLead() error = %v", err)
	}
	if _, err := svc.MoveLead(ctx, lead.ID, "contacted", 0); err != nil {
		t.Fatalf("MoveLead() error = %v", err)
	}

	fresh := app.NewService(repo, nil, nil, app.ServiceConfig{})
	view, err := fresh.Board(ctx)
	if err != nil {
		t.Fatalf("Board() error = %v", err)
	}
	for _, sv := range view.Stages {
		if sv.Stage.ID == "contacted" {
			if len(sv.Leads) != 1 || sv.Leads[0].ID != lead.ID {
				t.Fatalf("unexpected contacted leads %#v", sv.Leads)
			}
			return
		}
	}
	t.Fatal("contacted stage missing")
}
