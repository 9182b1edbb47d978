package board

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestBoard(t *testing.T) *Board {
	t.Helper()
	b, err := New(
		[]Container{{ID: "b", Label: "B", Order: 1}, {ID: "a", Label: "A", Order: 0}, {ID: "c", Label: "C", Order: 2}},
		[]Item{
			{ID: "a0", ContainerID: "a"},
			{ID: "b0", ContainerID: "b"},
			{ID: "a1", ContainerID: "a"},
			{ID: "b1", ContainerID: "b"},
			{ID: "a2", ContainerID: "a"},
		},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return b
}

func columns(b *Board) map[string][]string {
	out := map[string][]string{}
	for _, c := range b.Containers() {
		out[c.ID] = b.IDsIn(c.ID)
	}
	return out
}

func containerIDs(b *Board) []string {
	var out []string
	for _, c := range b.Containers() {
		out = append(out, c.ID)
	}
	return out
}

func TestNewSortsContainersAndValidates(t *testing.T) {
	b := newTestBoard(t)
	if diff := cmp.Diff([]string{"a", "b", "c"}, containerIDs(b)); diff != "" {
		t.Fatalf("container order mismatch (-want +got):\n%s", diff)
	}

	cases := []struct {
		name       string
		containers []Container
		items      []Item
		want       error
	}{
		{
			name:       "duplicate container",
			containers: []Container{{ID: "a"}, {ID: "a", Order: 1}},
			want:       ErrDuplicateID,
		},
		{
			name:       "duplicate order",
			containers: []Container{{ID: "a"}, {ID: "b"}},
			want:       ErrInvalidBoard,
		},
		{
			name:       "duplicate item",
			containers: []Container{{ID: "a"}},
			items:      []Item{{ID: "x", ContainerID: "a"}, {ID: "x", ContainerID: "a"}},
			want:       ErrDuplicateID,
		},
		{
			name:       "unknown container",
			containers: []Container{{ID: "a"}},
			items:      []Item{{ID: "x", ContainerID: "zz"}},
			want:       ErrInvalidTarget,
		},
		{
			name:       "empty item id",
			containers: []Container{{ID: "a"}},
			items:      []Item{{ID: " ", ContainerID: "a"}},
			want:       ErrInvalidID,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.containers, tc.items); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestItemsInIsOrderedAndRestartable(t *testing.T) {
	b := newTestBoard(t)
	seq := b.ItemsIn("a")

	var first, second []string
	for it := range seq {
		first = append(first, it.ID)
	}
	for it := range seq {
		second = append(second, it.ID)
	}
	if diff := cmp.Diff([]string{"a0", "a1", "a2"}, first); diff != "" {
		t.Fatalf("first pass mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("second pass mismatch (-want +got):\n%s", diff)
	}

	var stopped []string
	for it := range seq {
		stopped = append(stopped, it.ID)
		break
	}
	if len(stopped) != 1 {
		t.Fatalf("expected early stop after one item, got %v", stopped)
	}
	if got := slices.Collect(b.ItemsIn("c")); len(got) != 0 {
		t.Fatalf("expected empty container, got %v", got)
	}
}

func TestMoveItemAcrossContainers(t *testing.T) {
	b := newTestBoard(t)
	if err := b.MoveItem("a1", "b", 1); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	want := map[string][]string{
		"a": {"a0", "a2"},
		"b": {"b0", "a1", "b1"},
		"c": nil,
	}
	if diff := cmp.Diff(want, columns(b)); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestMoveItemWithinContainer(t *testing.T) {
	b := newTestBoard(t)
	if err := b.MoveItem("a0", "a", 2); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "a2", "a0"}, b.IDsIn("a")); diff != "" {
		t.Fatalf("column a mismatch (-want +got):\n%s", diff)
	}
	if err := b.MoveItem("a0", "a", 0); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a0", "a1", "a2"}, b.IDsIn("a")); diff != "" {
		t.Fatalf("column a mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"b0", "b1"}, b.IDsIn("b")); diff != "" {
		t.Fatalf("column b must be untouched (-want +got):\n%s", diff)
	}
}

func TestMoveItemClampsAndFillsEmptyContainer(t *testing.T) {
	b := newTestBoard(t)
	if err := b.MoveItem("a0", "c", 7); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if _, idx, _ := b.IndexIn("a0"); idx != 0 {
		t.Fatalf("expected index 0 in empty container, got %d", idx)
	}
	if err := b.MoveItem("b0", "c", 99); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a0", "b0"}, b.IDsIn("c")); diff != "" {
		t.Fatalf("column c mismatch (-want +got):\n%s", diff)
	}
	if err := b.MoveItem("b1", "c", -3); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if diff := cmp.Diff([]string{"b1", "a0", "b0"}, b.IDsIn("c")); diff != "" {
		t.Fatalf("column c mismatch (-want +got):\n%s", diff)
	}
}

func TestMoveItemIsIdempotent(t *testing.T) {
	b := newTestBoard(t)
	before := b.Items()
	version := b.Version()
	for _, it := range before {
		containerID, idx, _ := b.IndexIn(it.ID)
		if err := b.MoveItem(it.ID, containerID, idx); err != nil {
			t.Fatalf("MoveItem(%q) error = %v", it.ID, err)
		}
	}
	if diff := cmp.Diff(before, b.Items()); diff != "" {
		t.Fatalf("sequence changed (-want +got):\n%s", diff)
	}
	if b.Version() != version {
		t.Fatalf("no-op moves must not bump version, got %d want %d", b.Version(), version)
	}

	if err := b.MoveItem("a2", "a", 50); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if b.Version() != version {
		t.Fatal("clamped move onto own slot must be a no-op")
	}
}

func TestMoveItemInvalidTargetLeavesBoard(t *testing.T) {
	b := newTestBoard(t)
	before := b.Items()
	if err := b.MoveItem("a0", "missing", 0); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if err := b.MoveItem("missing", "a", 0); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if diff := cmp.Diff(before, b.Items()); diff != "" {
		t.Fatalf("board changed after failed move (-want +got):\n%s", diff)
	}
}

func TestPartitionHoldsAcrossMoves(t *testing.T) {
	b := newTestBoard(t)
	moves := []struct {
		item, container string
		index           int
	}{
		{"a0", "b", 0}, {"b1", "c", 0}, {"a2", "c", 1}, {"b0", "a", 5}, {"a1", "a", 0}, {"a0", "c", 1},
	}
	for _, mv := range moves {
		if err := b.MoveItem(mv.item, mv.container, mv.index); err != nil {
			t.Fatalf("MoveItem(%v) error = %v", mv, err)
		}
		total := 0
		for _, ids := range columns(b) {
			total += len(ids)
		}
		if total != b.Len() || b.Len() != 5 {
			t.Fatalf("partition broken after %v: %v", mv, columns(b))
		}
		if err := b.Validate(); err != nil {
			t.Fatalf("Validate() after %v error = %v", mv, err)
		}
	}
}

func TestReorderContainers(t *testing.T) {
	b, err := New([]Container{{ID: "p", Order: 0}, {ID: "q", Order: 1}, {ID: "r", Order: 2}}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := b.ReorderContainers("r", "p"); err != nil {
		t.Fatalf("ReorderContainers() error = %v", err)
	}
	want := []Container{{ID: "r", Order: 0}, {ID: "p", Order: 1}, {ID: "q", Order: 2}}
	if diff := cmp.Diff(want, b.Containers()); diff != "" {
		t.Fatalf("containers mismatch (-want +got):\n%s", diff)
	}
	if err := b.ReorderContainers("r", "q"); err != nil {
		t.Fatalf("ReorderContainers() error = %v", err)
	}
	if diff := cmp.Diff([]string{"p", "q", "r"}, containerIDs(b)); diff != "" {
		t.Fatalf("containers mismatch (-want +got):\n%s", diff)
	}
	if err := b.ReorderContainers("r", "nope"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	version := b.Version()
	if err := b.ReorderContainers("q", "q"); err != nil || b.Version() != version {
		t.Fatalf("self reorder must be a no-op, err=%v version=%d", err, b.Version())
	}
}

func TestPlaceBeforeAndMoveOnto(t *testing.T) {
	b := newTestBoard(t)
	if err := b.PlaceBefore("a1", "b1"); err != nil {
		t.Fatalf("PlaceBefore() error = %v", err)
	}
	if diff := cmp.Diff([]string{"b0", "a1", "b1"}, b.IDsIn("b")); diff != "" {
		t.Fatalf("column b mismatch (-want +got):\n%s", diff)
	}
	if err := b.MoveOnto("b0", "b1"); err != nil {
		t.Fatalf("MoveOnto() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a1", "b1", "b0"}, b.IDsIn("b")); diff != "" {
		t.Fatalf("column b mismatch (-want +got):\n%s", diff)
	}
	if err := b.PlaceBefore("a0", "ghost"); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestAssignAppendAddRemove(t *testing.T) {
	b := newTestBoard(t)
	if err := b.AssignContainer("a2", "c"); err != nil {
		t.Fatalf("AssignContainer() error = %v", err)
	}
	if got := b.IDsIn("c"); len(got) != 1 || got[0] != "a2" {
		t.Fatalf("unexpected column c %v", got)
	}
	if err := b.AppendItem("a0", "c"); err != nil {
		t.Fatalf("AppendItem() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a2", "a0"}, b.IDsIn("c")); diff != "" {
		t.Fatalf("column c mismatch (-want +got):\n%s", diff)
	}
	if err := b.AddItem(Item{ID: "n1", ContainerID: "a"}); err != nil {
		t.Fatalf("AddItem() error = %v", err)
	}
	if err := b.AddItem(Item{ID: "n1", ContainerID: "a"}); !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
	if err := b.RemoveItem("a1"); err != nil {
		t.Fatalf("RemoveItem() error = %v", err)
	}
	if _, ok := b.Item("a1"); ok {
		t.Fatal("expected a1 removed")
	}
	if err := b.RemoveItem("a1"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if err := b.AddContainer(Container{ID: "d", Label: "D"}); err != nil {
		t.Fatalf("AddContainer() error = %v", err)
	}
	if c, _ := b.Container("d"); c.Order != 3 {
		t.Fatalf("expected order 3, got %d", c.Order)
	}
}

func TestBatchCommitsAtomically(t *testing.T) {
	var changes []ContainerChange
	b, err := New(
		[]Container{{ID: "a", Order: 0}, {ID: "b", Order: 1}},
		[]Item{{ID: "x", ContainerID: "a"}, {ID: "y", ContainerID: "a"}},
		WithContainerChangeHook(func(c ContainerChange) { changes = append(changes, c) }),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	version := b.Version()

	wantErr := errors.New("boom")
	err = b.Batch(func(w *Board) error {
		if err := w.MoveItem("x", "b", 0); err != nil {
			return err
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected batch error, got %v", err)
	}
	if got := b.IDsIn("a"); len(got) != 2 || b.Version() != version || len(changes) != 0 {
		t.Fatalf("failed batch leaked state: a=%v version=%d changes=%v", got, b.Version(), changes)
	}

	err = b.Batch(func(w *Board) error {
		if err := w.MoveItem("x", "b", 0); err != nil {
			return err
		}
		return w.MoveItem("y", "b", 1)
	})
	if err != nil {
		t.Fatalf("Batch() error = %v", err)
	}
	if b.Version() != version+1 {
		t.Fatalf("expected one version bump, got %d", b.Version()-version)
	}
	want := []ContainerChange{{ItemID: "x", From: "a", To: "b"}, {ItemID: "y", From: "a", To: "b"}}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Fatalf("hook changes mismatch (-want +got):\n%s", diff)
	}
}

func TestCloneAndRestore(t *testing.T) {
	b := newTestBoard(t)
	snap := b.Clone()
	if err := b.MoveItem("a0", "c", 0); err != nil {
		t.Fatalf("MoveItem() error = %v", err)
	}
	if got := snap.IDsIn("a"); len(got) != 3 {
		t.Fatalf("clone must be independent, got %v", got)
	}
	b.Restore(snap)
	if diff := cmp.Diff(snap.Items(), b.Items()); diff != "" {
		t.Fatalf("restore mismatch (-want +got):\n%s", diff)
	}
}
