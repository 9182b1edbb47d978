package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hylla/leadflow/internal/board"
)

// ErrInvalidMutation reports a mutation that cannot be built.
var ErrInvalidMutation = errors.New("invalid bulk mutation")

// Mutation is one bulk action. The set of implementations is closed.
type Mutation interface {
	Name() string
	validate(*board.Board) error
	apply(*board.Board, string) error
	commit([]string) error
}

// OwnerStore persists lead ownership outside the board.
type OwnerStore interface {
	SetOwners(ids []string, owner string) error
}

// ReassignContainer moves every selected item to the end of ContainerID.
type ReassignContainer struct {
	ContainerID string
}

// Name returns "move".
func (ReassignContainer) Name() string { return "move" }

func (m ReassignContainer) validate(b *board.Board) error {
	if _, ok := b.Container(m.ContainerID); !ok {
		return fmt.Errorf("%w: container %q", board.ErrInvalidTarget, m.ContainerID)
	}
	return nil
}

func (m ReassignContainer) apply(b *board.Board, id string) error {
	return b.MoveItem(id, m.ContainerID, b.Len())
}

func (ReassignContainer) commit([]string) error { return nil }

// ReassignOwner hands every selected item to Owner through Store. The board
// itself is untouched.
type ReassignOwner struct {
	Owner string
	Store OwnerStore
}

// Name returns "assign_owner".
func (ReassignOwner) Name() string { return "assign_owner" }

func (m ReassignOwner) validate(*board.Board) error {
	if m.Store == nil {
		return ErrNoOwnerStore
	}
	if strings.TrimSpace(m.Owner) == "" {
		return fmt.Errorf("%w: owner is empty", ErrInvalidMutation)
	}
	return nil
}

func (ReassignOwner) apply(*board.Board, string) error { return nil }

func (m ReassignOwner) commit(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return m.Store.SetOwners(ids, strings.TrimSpace(m.Owner))
}

// Remove deletes every selected item from the board.
type Remove struct{}

// Name returns "remove".
func (Remove) Name() string { return "remove" }

func (Remove) validate(*board.Board) error { return nil }

func (Remove) apply(b *board.Board, id string) error {
	return b.RemoveItem(id)
}

func (Remove) commit([]string) error { return nil }

// ParseMutation builds a mutation from its wire name.
func ParseMutation(name, containerID, owner string, store OwnerStore) (Mutation, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "move":
		return ReassignContainer{ContainerID: strings.TrimSpace(containerID)}, nil
	case "assign_owner":
		return ReassignOwner{Owner: owner, Store: store}, nil
	case "remove":
		return Remove{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidMutation, name)
	}
}
