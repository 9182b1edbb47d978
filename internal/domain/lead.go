package domain

import (
	"net/mail"
	"slices"
	"strings"
	"time"
)

// MaxScore bounds the lead qualification score.
const MaxScore = 100

// Lead is a prospective clinic patient tracked through the pipeline.
type Lead struct {
	ID             string
	StageID        string
	Position       int
	Name           string
	Email          string
	Phone          string
	Score          int
	Notes          string
	Owner          string
	Source         string
	Tags           []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StageChangedAt *time.Time
}

// LeadInput holds the caller-supplied fields for NewLead.
type LeadInput struct {
	ID       string
	StageID  string
	Position int
	Name     string
	Email    string
	Phone    string
	Score    int
	Notes    string
	Owner    string
	Source   string
	Tags     []string
}

// NewLead validates and constructs a lead.
func NewLead(in LeadInput, now time.Time) (Lead, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.StageID = strings.TrimSpace(in.StageID)
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Notes = strings.TrimSpace(in.Notes)
	in.Owner = strings.TrimSpace(in.Owner)
	in.Source = strings.TrimSpace(in.Source)

	if in.ID == "" {
		return Lead{}, ErrInvalidID
	}
	if in.StageID == "" {
		return Lead{}, ErrInvalidStageID
	}
	if in.Name == "" {
		return Lead{}, ErrInvalidName
	}
	if in.Position < 0 {
		return Lead{}, ErrInvalidPosition
	}
	if in.Score < 0 || in.Score > MaxScore {
		return Lead{}, ErrInvalidScore
	}
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return Lead{}, err
	}

	ts := now.UTC()
	return Lead{
		ID:             in.ID,
		StageID:        in.StageID,
		Position:       in.Position,
		Name:           in.Name,
		Email:          email,
		Phone:          in.Phone,
		Score:          in.Score,
		Notes:          in.Notes,
		Owner:          in.Owner,
		Source:         in.Source,
		Tags:           normalizeTags(in.Tags),
		CreatedAt:      ts,
		UpdatedAt:      ts,
		StageChangedAt: &ts,
	}, nil
}

// Move places the lead at position within stageID. StageChangedAt is only
// stamped when the stage actually changes.
func (l *Lead) Move(stageID string, position int, now time.Time) error {
	stageID = strings.TrimSpace(stageID)
	if stageID == "" {
		return ErrInvalidStageID
	}
	if position < 0 {
		return ErrInvalidPosition
	}
	ts := now.UTC()
	if stageID != l.StageID {
		l.StageChangedAt = &ts
	}
	l.StageID = stageID
	l.Position = position
	l.UpdatedAt = ts
	return nil
}

// AssignOwner sets or clears the owning staff member.
func (l *Lead) AssignOwner(owner string, now time.Time) {
	l.Owner = strings.TrimSpace(owner)
	l.UpdatedAt = now.UTC()
}

// UpdateDetails replaces the lead's record fields.
func (l *Lead) UpdateDetails(name, email, phone, notes string, score int, tags []string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	if score < 0 || score > MaxScore {
		return ErrInvalidScore
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	l.Name = name
	l.Email = email
	l.Phone = strings.TrimSpace(phone)
	l.Notes = strings.TrimSpace(notes)
	l.Score = score
	l.Tags = normalizeTags(tags)
	l.UpdatedAt = now.UTC()
	return nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}
