package domain

import (
	"strings"
	"time"
)

// Stage is one column of the lead pipeline.
type Stage struct {
	ID        string
	Name      string
	Color     string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStage validates and constructs a stage.
func NewStage(id, name, color string, position int, now time.Time) (Stage, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)
	color, err := normalizeColor(color)
	if err != nil {
		return Stage{}, err
	}
	if id == "" {
		return Stage{}, ErrInvalidID
	}
	if name == "" {
		return Stage{}, ErrInvalidName
	}
	if position < 0 {
		return Stage{}, ErrInvalidPosition
	}

	return Stage{
		ID:        id,
		Name:      name,
		Color:     color,
		Position:  position,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Rename sets a new display name.
func (s *Stage) Rename(name string, now time.Time) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrInvalidName
	}
	s.Name = name
	s.UpdatedAt = now.UTC()
	return nil
}

// SetPosition handles set position.
func (s *Stage) SetPosition(position int, now time.Time) error {
	if position < 0 {
		return ErrInvalidPosition
	}
	s.Position = position
	s.UpdatedAt = now.UTC()
	return nil
}

// normalizeColor accepts "", "#rgb" or "#rrggbb" and lowercases hex digits.
func normalizeColor(raw string) (string, error) {
	color := strings.ToLower(strings.TrimSpace(raw))
	if color == "" {
		return "", nil
	}
	if !strings.HasPrefix(color, "#") || (len(color) != 4 && len(color) != 7) {
		return "", ErrInvalidColor
	}
	for _, r := range color[1:] {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return "", ErrInvalidColor
		}
	}
	return color, nil
}
