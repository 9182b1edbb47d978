// Package selection tracks multi-selected items and applies one bulk mutation
// to all of them.
package selection

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hylla/leadflow/internal/board"
)

// ErrNoOwnerStore reports an owner mutation without an OwnerStore.
var ErrNoOwnerStore = errors.New("owner store is not configured")

// Set is an unordered set of selected item ids. The zero value is empty and
// ready to use.
type Set struct {
	ids map[string]struct{}
}

// NewSet returns an empty set.
func NewSet() *Set {
	return &Set{ids: map[string]struct{}{}}
}

// Toggle adds or removes id and reports whether it is selected afterwards.
func (s *Set) Toggle(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	if s.ids == nil {
		s.ids = map[string]struct{}{}
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// SelectAll replaces the selection with ids.
func (s *Set) SelectAll(ids []string) {
	s.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s.ids[id] = struct{}{}
		}
	}
}

// Clear empties the set and returns how many ids were dropped.
func (s *Set) Clear() int {
	n := len(s.ids)
	s.ids = map[string]struct{}{}
	return n
}

// Contains reports whether id is selected.
func (s *Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids.
func (s *Set) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids sorted.
func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Result reports which selected ids a bulk mutation touched.
type Result struct {
	Mutation string
	Applied  []string
	Skipped  []string
}

// Apply runs m against every selected id in board order. Ids no longer on
// the board are skipped. Board mutations commit as one batch. The selection is
// cleared afterwards, including when m fails validation, unless m names a
// container that does not exist.
func (s *Set) Apply(b *board.Board, m Mutation) (Result, error) {
	if m == nil {
		return Result{}, fmt.Errorf("%w: nil mutation", ErrInvalidMutation)
	}
	if err := m.validate(b); err != nil {
		if !errors.Is(err, board.ErrInvalidTarget) {
			s.Clear()
		}
		return Result{Mutation: m.Name()}, err
	}

	ordered, stale := s.partition(b)
	res := Result{Mutation: m.Name(), Skipped: stale}
	err := b.Batch(func(work *board.Board) error {
		for _, id := range ordered {
			if err := m.apply(work, id); err != nil {
				return fmt.Errorf("%s %q: %w", m.Name(), id, err)
			}
		}
		return nil
	})
	if err == nil {
		err = m.commit(ordered)
	}
	if err == nil {
		res.Applied = ordered
	}
	s.Clear()
	return res, err
}

// partition splits the selection into ids on the board, in board order, and
// stale ids, sorted.
func (s *Set) partition(b *board.Board) ([]string, []string) {
	var ordered []string
	for _, c := range b.Containers() {
		for it := range b.ItemsIn(c.ID) {
			if s.Contains(it.ID) {
				ordered = append(ordered, it.ID)
			}
		}
	}
	var stale []string
	for _, id := range s.IDs() {
		if _, ok := b.Item(id); !ok {
			stale = append(stale, id)
		}
	}
	return ordered, stale
}
