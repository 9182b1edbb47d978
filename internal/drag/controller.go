// Package drag turns drag-start, drag-over and drag-end gestures into board
// mutations. Item drags move optimistically on every hover and settle the
// exact slot on release; container drags mutate once, on release.
package drag

import (
	"fmt"

	"github.com/hylla/leadflow/internal/board"
)

// State is the controller's session state.
type State int

// State values.
const (
	StateIdle State = iota
	StateDragging
)

// String returns a readable state name.
func (s State) String() string {
	if s == StateDragging {
		return "dragging"
	}
	return "idle"
}

// Session is the active drag. Over is nil until the first hover.
type Session struct {
	Payload Payload
	Over    Target
}

// Outcome reports what one gesture did to the board.
type Outcome struct {
	Changed bool
	Version uint64
}

// Option configures a Controller.
type Option func(*Controller)

// WithRestoreOnCancel restores the board captured at drag start when an item
// drag is cancelled. Off by default: a cancelled drag keeps its last hover.
func WithRestoreOnCancel(enabled bool) Option {
	return func(c *Controller) {
		c.restoreOnCancel = enabled
	}
}

// Controller owns at most one drag session over a board.
type Controller struct {
	board           *board.Board
	session         *Session
	reorderMode     bool
	restoreOnCancel bool
	snapshot        *board.Board
}

// NewController returns an idle controller over b.
func NewController(b *board.Board, opts ...Option) *Controller {
	c := &Controller{board: b}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// State reports whether a session is active.
func (c *Controller) State() State {
	if c.session == nil {
		return StateIdle
	}
	return StateDragging
}

// Session returns a copy of the active session.
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// ReorderMode reports whether container drags are enabled.
func (c *Controller) ReorderMode() bool {
	return c.reorderMode
}

// SetReorderMode switches between item and container dragging. It cannot
// change while a session is active.
func (c *Controller) SetReorderMode(enabled bool) error {
	if c.session != nil {
		return ErrSessionActive
	}
	c.reorderMode = enabled
	return nil
}

// Start opens a session for payload.
func (c *Controller) Start(payload Payload) error {
	if c.session != nil {
		return ErrSessionActive
	}
	switch p := payload.(type) {
	case ItemPayload:
		if c.reorderMode {
			return fmt.Errorf("%w: item drag in reorder mode", ErrModeMismatch)
		}
		if _, ok := c.board.Item(p.ItemID); !ok {
			return fmt.Errorf("%w: %q", board.ErrItemNotFound, p.ItemID)
		}
		if c.restoreOnCancel {
			c.snapshot = c.board.Clone()
		}
	case ContainerPayload:
		if !c.reorderMode {
			return fmt.Errorf("%w: container drag outside reorder mode", ErrModeMismatch)
		}
		if _, ok := c.board.Container(p.ContainerID); !ok {
			return fmt.Errorf("%w: container %q", board.ErrInvalidTarget, p.ContainerID)
		}
	default:
		return ErrInvalidKind
	}
	c.session = &Session{Payload: payload}
	return nil
}

// Over records the hovered target. Item sessions apply the cross-container
// move immediately; container sessions only remember the target. An unknown
// target leaves the session and board as they were.
func (c *Controller) Over(target Target) (Outcome, error) {
	if c.session == nil {
		return c.outcome(false), ErrNoSession
	}
	if target == nil {
		c.session.Over = nil
		return c.outcome(false), nil
	}

	var (
		changed bool
		err     error
	)
	switch p := c.session.Payload.(type) {
	case ItemPayload:
		changed, err = applyHover(c.board, p.ItemID, target)
	case ContainerPayload:
		_, err = resolveContainer(c.board, target)
	}
	if err != nil {
		return c.outcome(false), err
	}
	c.session.Over = target
	return c.outcome(changed), nil
}

// End closes the session, settling an item's final slot or performing the
// container reorder.
func (c *Controller) End() (Outcome, error) {
	if c.session == nil {
		return c.outcome(false), ErrNoSession
	}
	session := *c.session
	c.session = nil
	c.snapshot = nil
	if session.Over == nil {
		return c.outcome(false), nil
	}

	var (
		changed bool
		err     error
	)
	switch p := session.Payload.(type) {
	case ItemPayload:
		changed, err = settleItem(c.board, p.ItemID, session.Over)
	case ContainerPayload:
		changed, err = applyReorder(c.board, p.ContainerID, session.Over)
	}
	return c.outcome(changed), err
}

// Cancel closes the session. With WithRestoreOnCancel the board returns to
// its drag-start state; otherwise hover mutations stay.
func (c *Controller) Cancel() (Outcome, error) {
	if c.session == nil {
		return c.outcome(false), ErrNoSession
	}
	snapshot := c.snapshot
	c.session = nil
	c.snapshot = nil
	if snapshot == nil || snapshot.Version() == c.board.Version() {
		return c.outcome(false), nil
	}
	c.board.Restore(snapshot)
	return c.outcome(true), nil
}

func (c *Controller) outcome(changed bool) Outcome {
	return Outcome{Changed: changed, Version: c.board.Version()}
}
