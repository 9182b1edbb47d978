package drag

import (
	"fmt"

	"github.com/hylla/leadflow/internal/board"
)

// resolveContainer maps a hover target onto the container it sits in.
func resolveContainer(b *board.Board, target Target) (string, error) {
	switch t := target.(type) {
	case ContainerTarget:
		if _, ok := b.Container(t.ContainerID); !ok {
			return "", fmt.Errorf("%w: container %q", board.ErrInvalidTarget, t.ContainerID)
		}
		return t.ContainerID, nil
	case ItemTarget:
		it, ok := b.Item(t.ItemID)
		if !ok {
			return "", fmt.Errorf("%w: item %q", board.ErrInvalidTarget, t.ItemID)
		}
		return it.ContainerID, nil
	}
	return "", board.ErrInvalidTarget
}

// applyReorder moves sourceID into the slot of the container under over.
func applyReorder(b *board.Board, sourceID string, over Target) (bool, error) {
	targetID, err := resolveContainer(b, over)
	if err != nil {
		return false, err
	}
	if targetID == sourceID {
		return false, nil
	}
	before := b.Version()
	if err := b.ReorderContainers(sourceID, targetID); err != nil {
		return false, err
	}
	return b.Version() != before, nil
}
