package drag

import (
	"fmt"
	"strings"
)

// Kind tags what a payload or target refers to.
type Kind string

// Kind values.
const (
	KindItem      Kind = "item"
	KindContainer Kind = "container"
)

// ParseKind maps a wire value onto a Kind.
func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindItem, KindContainer:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, raw)
	}
}

// Payload is what is being dragged. The set of implementations is closed.
type Payload interface {
	Kind() Kind
	ID() string
	payload()
}

// ItemPayload drags one item.
type ItemPayload struct {
	ItemID string
}

// Kind returns KindItem.
func (ItemPayload) Kind() Kind { return KindItem }

// ID returns the dragged item id.
func (p ItemPayload) ID() string { return p.ItemID }

func (ItemPayload) payload() {}

// ContainerPayload drags a whole container.
type ContainerPayload struct {
	ContainerID string
}

// Kind returns KindContainer.
func (ContainerPayload) Kind() Kind { return KindContainer }

// ID returns the dragged container id.
func (p ContainerPayload) ID() string { return p.ContainerID }

func (ContainerPayload) payload() {}

// NewPayload builds the payload variant for kind.
func NewPayload(kind Kind, id string) (Payload, error) {
	switch kind {
	case KindItem:
		return ItemPayload{ItemID: id}, nil
	case KindContainer:
		return ContainerPayload{ContainerID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}

// Target is what the pointer is over. The set of implementations is closed.
type Target interface {
	Kind() Kind
	ID() string
	target()
}

// ItemTarget is a hovered item.
type ItemTarget struct {
	ItemID string
}

// Kind returns KindItem.
func (ItemTarget) Kind() Kind { return KindItem }

// ID returns the hovered item id.
func (t ItemTarget) ID() string { return t.ItemID }

func (ItemTarget) target() {}

// ContainerTarget is a hovered container body.
type ContainerTarget struct {
	ContainerID string
}

// Kind returns KindContainer.
func (ContainerTarget) Kind() Kind { return KindContainer }

// ID returns the hovered container id.
func (t ContainerTarget) ID() string { return t.ContainerID }

func (ContainerTarget) target() {}

// NewTarget builds the target variant for kind.
func NewTarget(kind Kind, id string) (Target, error) {
	switch kind {
	case KindItem:
		return ItemTarget{ItemID: id}, nil
	case KindContainer:
		return ContainerTarget{ContainerID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
}
