// Package board holds the ordered multi-container model: containers sorted by
// Order and one global item sequence whose filtered views are the columns.
package board

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
)

// Item is a draggable card. Its position is implicit in the global sequence.
type Item struct {
	ID          string
	ContainerID string
}

// Container is a column that items are grouped into.
type Container struct {
	ID    string
	Label string
	Order int
}

// ContainerChange describes one item whose container id changed in a commit.
type ContainerChange struct {
	ItemID string
	From   string
	To     string
}

// ContainerChangeHook observes committed container reassignments.
type ContainerChangeHook func(ContainerChange)

// Option configures a Board.
type Option func(*Board)

// WithContainerChangeHook registers a hook fired after every commit that
// reassigns at least one item.
func WithContainerChangeHook(hook ContainerChangeHook) Option {
	return func(b *Board) {
		b.hook = hook
	}
}

// Board owns the containers and the global item sequence. It is not safe for
// concurrent use; callers serialize access.
type Board struct {
	containers []Container
	items      []Item
	itemIndex  map[string]int
	version    uint64
	hook       ContainerChangeHook
}

// New validates the inputs and builds a board. Containers are sorted by Order;
// items keep the given sequence.
func New(containers []Container, items []Item, opts ...Option) (*Board, error) {
	b := &Board{
		containers: slices.Clone(containers),
		items:      slices.Clone(items),
	}
	for i := range b.containers {
		b.containers[i].ID = strings.TrimSpace(b.containers[i].ID)
	}
	for i := range b.items {
		b.items[i].ID = strings.TrimSpace(b.items[i].ID)
		b.items[i].ContainerID = strings.TrimSpace(b.items[i].ContainerID)
	}
	slices.SortStableFunc(b.containers, func(a, c Container) int {
		return cmp.Compare(a.Order, c.Order)
	})
	if err := b.Validate(); err != nil {
		return nil, err
	}
	b.reindex()
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b, nil
}

// Validate checks the partition invariant: unique ids, unique container
// orders and every item referencing exactly one existing container.
func (b *Board) Validate() error {
	containerIDs := make(map[string]struct{}, len(b.containers))
	orders := make(map[int]string, len(b.containers))
	for _, c := range b.containers {
		if c.ID == "" {
			return fmt.Errorf("%w: container id is empty", ErrInvalidID)
		}
		if _, ok := containerIDs[c.ID]; ok {
			return fmt.Errorf("%w: container %q", ErrDuplicateID, c.ID)
		}
		if other, ok := orders[c.Order]; ok {
			return fmt.Errorf("%w: containers %q and %q share order %d", ErrInvalidBoard, other, c.ID, c.Order)
		}
		containerIDs[c.ID] = struct{}{}
		orders[c.Order] = c.ID
	}
	itemIDs := make(map[string]struct{}, len(b.items))
	for _, it := range b.items {
		if it.ID == "" {
			return fmt.Errorf("%w: item id is empty", ErrInvalidID)
		}
		if _, ok := itemIDs[it.ID]; ok {
			return fmt.Errorf("%w: item %q", ErrDuplicateID, it.ID)
		}
		if _, ok := containerIDs[it.ContainerID]; !ok {
			return fmt.Errorf("%w: item %q references container %q", ErrInvalidTarget, it.ID, it.ContainerID)
		}
		itemIDs[it.ID] = struct{}{}
	}
	return nil
}

// Version returns a counter bumped once per committed mutation.
func (b *Board) Version() uint64 {
	return b.version
}

// Len returns the number of items on the board.
func (b *Board) Len() int {
	return len(b.items)
}

// Containers returns the containers sorted by Order.
func (b *Board) Containers() []Container {
	return slices.Clone(b.containers)
}

// Container returns the container with id.
func (b *Board) Container(id string) (Container, bool) {
	idx := b.containerPos(id)
	if idx < 0 {
		return Container{}, false
	}
	return b.containers[idx], true
}

// Items returns the global item sequence.
func (b *Board) Items() []Item {
	return slices.Clone(b.items)
}

// Item returns the item with id.
func (b *Board) Item(id string) (Item, bool) {
	idx, ok := b.itemIndex[id]
	if !ok {
		return Item{}, false
	}
	return b.items[idx], true
}

// ItemsIn yields the items of containerID in sequence order. The sequence can
// be ranged over repeatedly; each pass reads the board as it is at that time.
func (b *Board) ItemsIn(containerID string) iter.Seq[Item] {
	return func(yield func(Item) bool) {
		items := b.items
		for _, it := range items {
			if it.ContainerID != containerID {
				continue
			}
			if !yield(it) {
				return
			}
		}
	}
}

// IDsIn collects the ids of containerID's items in order.
func (b *Board) IDsIn(containerID string) []string {
	var out []string
	for it := range b.ItemsIn(containerID) {
		out = append(out, it.ID)
	}
	return out
}

// IndexIn reports an item's container and its index among that container's items.
func (b *Board) IndexIn(itemID string) (string, int, bool) {
	pos, ok := b.itemIndex[itemID]
	if !ok {
		return "", 0, false
	}
	containerID := b.items[pos].ContainerID
	idx := 0
	for _, it := range b.items[:pos] {
		if it.ContainerID == containerID {
			idx++
		}
	}
	return containerID, idx, true
}

// Clone returns an independent copy without the change hook.
func (b *Board) Clone() *Board {
	out := &Board{
		containers: slices.Clone(b.containers),
		items:      slices.Clone(b.items),
		version:    b.version,
	}
	out.reindex()
	return out
}

// Restore replaces the board contents with snapshot's and counts as one mutation.
func (b *Board) Restore(snapshot *Board) {
	if snapshot == nil {
		return
	}
	b.commit(slices.Clone(snapshot.containers), slices.Clone(snapshot.items))
}

// Batch runs fn against a clone and commits the clone's state only when fn
// returns nil. Observers see one commit for the whole batch.
func (b *Board) Batch(fn func(*Board) error) error {
	work := b.Clone()
	if err := fn(work); err != nil {
		return err
	}
	if work.version == b.version {
		return nil
	}
	b.commit(work.containers, work.items)
	return nil
}

// MoveItem reassigns itemID to targetContainerID and places it at targetIndex
// among its new siblings. Indexes past the end append; negative indexes clamp
// to zero. Moving an item onto its current slot is a no-op.
func (b *Board) MoveItem(itemID, targetContainerID string, targetIndex int) error {
	pos, ok := b.itemIndex[itemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	if b.containerPos(targetContainerID) < 0 {
		return fmt.Errorf("%w: container %q", ErrInvalidTarget, targetContainerID)
	}
	moving := b.items[pos]
	rest := slices.Delete(slices.Clone(b.items), pos, pos+1)

	var siblings []int
	for i, it := range rest {
		if it.ContainerID == targetContainerID {
			siblings = append(siblings, i)
		}
	}
	targetIndex = min(max(targetIndex, 0), len(siblings))
	if moving.ContainerID == targetContainerID {
		if _, current, _ := b.IndexIn(itemID); current == targetIndex {
			return nil
		}
	}

	insertAt := pos
	switch {
	case targetIndex < len(siblings):
		insertAt = siblings[targetIndex]
	case len(siblings) > 0:
		insertAt = siblings[len(siblings)-1] + 1
	}
	moving.ContainerID = targetContainerID
	b.commit(b.containers, slices.Insert(rest, insertAt, moving))
	return nil
}

// AssignContainer changes an item's container without moving it in the sequence.
func (b *Board) AssignContainer(itemID, containerID string) error {
	pos, ok := b.itemIndex[itemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	if b.containerPos(containerID) < 0 {
		return fmt.Errorf("%w: container %q", ErrInvalidTarget, containerID)
	}
	if b.items[pos].ContainerID == containerID {
		return nil
	}
	items := slices.Clone(b.items)
	items[pos].ContainerID = containerID
	b.commit(b.containers, items)
	return nil
}

// PlaceBefore moves itemID immediately before anchorID in the sequence and
// adopts the anchor's container.
func (b *Board) PlaceBefore(itemID, anchorID string) error {
	pos, ok := b.itemIndex[itemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	anchorPos, ok := b.itemIndex[anchorID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, anchorID)
	}
	if itemID == anchorID {
		return nil
	}
	moving := b.items[pos]
	moving.ContainerID = b.items[anchorPos].ContainerID
	if pos == anchorPos-1 && b.items[pos].ContainerID == moving.ContainerID {
		return nil
	}
	rest := slices.Delete(slices.Clone(b.items), pos, pos+1)
	if pos < anchorPos {
		anchorPos--
	}
	b.commit(b.containers, slices.Insert(rest, anchorPos, moving))
	return nil
}

// MoveOnto array-moves itemID into overID's slot of the global sequence;
// items in between shift toward the vacated slot.
func (b *Board) MoveOnto(itemID, overID string) error {
	from, ok := b.itemIndex[itemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	to, ok := b.itemIndex[overID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, overID)
	}
	if from == to {
		return nil
	}
	b.commit(b.containers, arrayMove(b.items, from, to))
	return nil
}

// AppendItem moves itemID to the end of the sequence inside containerID.
func (b *Board) AppendItem(itemID, containerID string) error {
	pos, ok := b.itemIndex[itemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	if b.containerPos(containerID) < 0 {
		return fmt.Errorf("%w: container %q", ErrInvalidTarget, containerID)
	}
	last := len(b.items) - 1
	if pos == last && b.items[pos].ContainerID == containerID {
		return nil
	}
	items := arrayMove(b.items, pos, last)
	items[last].ContainerID = containerID
	b.commit(b.containers, items)
	return nil
}

// AddItem appends a new item to the end of the sequence.
func (b *Board) AddItem(item Item) error {
	item.ID = strings.TrimSpace(item.ID)
	if item.ID == "" {
		return ErrInvalidID
	}
	if _, ok := b.itemIndex[item.ID]; ok {
		return fmt.Errorf("%w: item %q", ErrDuplicateID, item.ID)
	}
	if b.containerPos(item.ContainerID) < 0 {
		return fmt.Errorf("%w: container %q", ErrInvalidTarget, item.ContainerID)
	}
	b.commit(b.containers, append(slices.Clone(b.items), item))
	return nil
}

// RemoveItem deletes itemID from the board.
func (b *Board) RemoveItem(itemID string) error {
	pos, ok := b.itemIndex[itemID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	b.commit(b.containers, slices.Delete(slices.Clone(b.items), pos, pos+1))
	return nil
}

// AddContainer appends a container after the current last one.
func (b *Board) AddContainer(c Container) error {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return ErrInvalidID
	}
	if b.containerPos(c.ID) >= 0 {
		return fmt.Errorf("%w: container %q", ErrDuplicateID, c.ID)
	}
	c.Order = 0
	if n := len(b.containers); n > 0 {
		c.Order = b.containers[n-1].Order + 1
	}
	b.commit(append(slices.Clone(b.containers), c), b.items)
	return nil
}

// ReorderContainers moves sourceID into targetID's slot. Other containers keep
// their relative order and every Order is rewritten to its index.
func (b *Board) ReorderContainers(sourceID, targetID string) error {
	from := b.containerPos(sourceID)
	if from < 0 {
		return fmt.Errorf("%w: container %q", ErrInvalidTarget, sourceID)
	}
	to := b.containerPos(targetID)
	if to < 0 {
		return fmt.Errorf("%w: container %q", ErrInvalidTarget, targetID)
	}
	if from == to {
		return nil
	}
	containers := arrayMove(b.containers, from, to)
	for i := range containers {
		containers[i].Order = i
	}
	b.commit(containers, b.items)
	return nil
}

func (b *Board) containerPos(id string) int {
	return slices.IndexFunc(b.containers, func(c Container) bool {
		return c.ID == id
	})
}

func (b *Board) reindex() {
	b.itemIndex = make(map[string]int, len(b.items))
	for i, it := range b.items {
		b.itemIndex[it.ID] = i
	}
}

// commit swaps in new slices, bumps the version and notifies the hook of
// reassigned items. The board owns the passed slices afterwards.
func (b *Board) commit(containers []Container, items []Item) {
	var changes []ContainerChange
	if b.hook != nil {
		for _, it := range items {
			if pos, ok := b.itemIndex[it.ID]; ok && b.items[pos].ContainerID != it.ContainerID {
				changes = append(changes, ContainerChange{ItemID: it.ID, From: b.items[pos].ContainerID, To: it.ContainerID})
			}
		}
	}
	b.containers = containers
	b.items = items
	b.version++
	b.reindex()
	for _, change := range changes {
		b.hook(change)
	}
}

// arrayMove returns a copy of s with the element at from moved to index to.
func arrayMove[T any](s []T, from, to int) []T {
	out := slices.Clone(s)
	v := out[from]
	out = slices.Delete(out, from, from+1)
	return slices.Insert(out, to, v)
}
