package drag

import (
	"fmt"

	"github.com/hylla/leadflow/internal/board"
)

// applyHover runs the cross-container move for an item hovering target.
// It reports whether the board changed.
func applyHover(b *board.Board, draggedID string, target Target) (bool, error) {
	dragged, ok := b.Item(draggedID)
	if !ok {
		return false, fmt.Errorf("%w: %q", board.ErrItemNotFound, draggedID)
	}
	if target.ID() == draggedID {
		return false, nil
	}
	before := b.Version()

	switch t := target.(type) {
	case ItemTarget:
		over, ok := b.Item(t.ItemID)
		if !ok {
			return false, fmt.Errorf("%w: item %q", board.ErrInvalidTarget, t.ItemID)
		}
		if over.ContainerID == dragged.ContainerID {
			return false, nil
		}
		if err := b.PlaceBefore(draggedID, over.ID); err != nil {
			return false, err
		}
	case ContainerTarget:
		if _, ok := b.Container(t.ContainerID); !ok {
			return false, fmt.Errorf("%w: container %q", board.ErrInvalidTarget, t.ContainerID)
		}
		if t.ContainerID == dragged.ContainerID {
			return false, nil
		}
		if hasItems(b, t.ContainerID) {
			if err := b.AssignContainer(draggedID, t.ContainerID); err != nil {
				return false, err
			}
		} else if err := b.AppendItem(draggedID, t.ContainerID); err != nil {
			return false, err
		}
	}
	return b.Version() != before, nil
}

// settleItem array-moves draggedID into the final over item's slot when both
// share a container.
func settleItem(b *board.Board, draggedID string, over Target) (bool, error) {
	t, ok := over.(ItemTarget)
	if !ok || t.ItemID == draggedID {
		return false, nil
	}
	dragged, ok := b.Item(draggedID)
	if !ok {
		return false, fmt.Errorf("%w: %q", board.ErrItemNotFound, draggedID)
	}
	target, ok := b.Item(t.ItemID)
	if !ok {
		return false, fmt.Errorf("%w: item %q", board.ErrInvalidTarget, t.ItemID)
	}
	if target.ContainerID != dragged.ContainerID {
		return false, nil
	}
	before := b.Version()
	if err := b.MoveOnto(draggedID, t.ItemID); err != nil {
		return false, err
	}
	return b.Version() != before, nil
}

func hasItems(b *board.Board, containerID string) bool {
	for range b.ItemsIn(containerID) {
		return true
	}
	return false
}
