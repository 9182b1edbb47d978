package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewStageValidation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name     string
		id       string
		stage    string
		color    string
		position int
		want     error
	}{
		{name: "missing id", id: " ", stage: "New", want: ErrInvalidID},
		{name: "missing name", id: "s1", stage: "  ", want: ErrInvalidName},
		{name: "negative position", id: "s1", stage: "New", position: -1, want: ErrInvalidPosition},
		{name: "bad color", id: "s1", stage: "New", color: "blue", want: ErrInvalidColor},
		{name: "bad hex", id: "s1", stage: "New", color: "#12345g", want: ErrInvalidColor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewStage(tc.id, tc.stage, tc.color, tc.position, now); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestStageMutations(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.FixedZone("x", 3600))
	s, err := NewStage(" s1 ", " New ", "#A1B2C3", 0, now)
	if err != nil {
		t.Fatalf("NewStage() error = %v", err)
	}
	if s.ID != "s1" || s.Name != "New" || s.Color != "#a1b2c3" {
		t.Fatalf("unexpected stage %#v", s)
	}
	if s.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamps, got %v", s.CreatedAt.Location())
	}
	if err := s.Rename("  Contacted ", now.Add(time.Minute)); err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if s.Name != "Contacted" {
		t.Fatalf("unexpected stage name %q", s.Name)
	}
	if err := s.SetPosition(-2, now); err != ErrInvalidPosition {
		t.Fatalf("expected ErrInvalidPosition, got %v", err)
	}
	if err := s.SetPosition(4, now.Add(2*time.Minute)); err != nil {
		t.Fatalf("SetPosition() error = %v", err)
	}
	if s.Position != 4 {
		t.Fatalf("unexpected position %d", s.Position)
	}
}

func TestNewLeadValidation(t *testing.T) {
	now := time.Now()
	base := LeadInput{ID: "l1", StageID: "s1", Name: "Ada"}

	in := base
	in.ID = ""
	if _, err := NewLead(in, now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	in = base
	in.StageID = " "
	if _, err := NewLead(in, now); err != ErrInvalidStageID {
		t.Fatalf("expected ErrInvalidStageID, got %v", err)
	}
	in = base
	in.Score = MaxScore + 1
	if _, err := NewLead(in, now); err != ErrInvalidScore {
		t.Fatalf("expected ErrInvalidScore, got %v", err)
	}
	in = base
	in.Email = "not-an-email"
	if _, err := NewLead(in, now); err != ErrInvalidEmail {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestNewLeadNormalizes(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l, err := NewLead(LeadInput{
		ID:      "l1",
		StageID: "s1",
		Name:    "  Ada Lovelace ",
		Email:   "Ada <ADA@Example.com>",
		Score:   70,
		Tags:    []string{" Botox", "botox", "", "Filler"},
	}, now)
	if err != nil {
		t.Fatalf("NewLead() error = %v", err)
	}
	if l.Name != "Ada Lovelace" || l.Email != "ada@example.com" {
		t.Fatalf("unexpected lead %#v", l)
	}
	if len(l.Tags) != 2 || l.Tags[0] != "botox" || l.Tags[1] != "filler" {
		t.Fatalf("unexpected tags %#v", l.Tags)
	}
	if l.StageChangedAt == nil || !l.StageChangedAt.Equal(now) {
		t.Fatalf("expected stage_changed_at at creation, got %v", l.StageChangedAt)
	}
}

func TestLeadMoveStampsStageChange(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	l, err := NewLead(LeadInput{ID: "l1", StageID: "s1", Name: "Ada"}, now)
	if err != nil {
		t.Fatalf("NewLead() error = %v", err)
	}

	later := now.Add(time.Hour)
	if err := l.Move("s1", 3, later); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if !l.StageChangedAt.Equal(now) {
		t.Fatalf("same-stage move must keep stage_changed_at, got %v", l.StageChangedAt)
	}
	if l.Position != 3 || !l.UpdatedAt.Equal(later) {
		t.Fatalf("unexpected lead after reorder %#v", l)
	}

	latest := later.Add(time.Hour)
	if err := l.Move("s2", 0, latest); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	if l.StageID != "s2" || !l.StageChangedAt.Equal(latest) {
		t.Fatalf("unexpected lead after stage change %#v", l)
	}
	if err := l.Move("", 0, latest); err != ErrInvalidStageID {
		t.Fatalf("expected ErrInvalidStageID, got %v", err)
	}
}

func TestLeadUpdateDetailsAndOwner(t *testing.T) {
	now := time.Now()
	l, err := NewLead(LeadInput{ID: "l1", StageID: "s1", Name: "Ada"}, now)
	if err != nil {
		t.Fatalf("NewLead() error = %v", err)
	}
	if err := l.UpdateDetails("", "", "", "", 0, nil, now); err != ErrInvalidName {
		t.Fatalf("expected ErrInvalidName, got %v", err)
	}
	if err := l.UpdateDetails("Ada", "ada@example.com", " 555 ", "call back", 40, []string{"laser"}, now); err != nil {
		t.Fatalf("UpdateDetails() error = %v", err)
	}
	if l.Phone != "555" || l.Notes != "call back" || l.Score != 40 {
		t.Fatalf("unexpected lead %#v", l)
	}
	l.AssignOwner("  dr-kim ", now)
	if l.Owner != "dr-kim" {
		t.Fatalf("unexpected owner %q", l.Owner)
	}
}
