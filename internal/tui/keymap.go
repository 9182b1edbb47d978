package tui

import "charm.land/bubbles/v2/key"

// keyMap holds every board binding.
type keyMap struct {
	quit        key.Binding
	reload      key.Binding
	toggleHelp  key.Binding
	moveLeft    key.Binding
	moveRight   key.Binding
	moveUp      key.Binding
	moveDown    key.Binding
	grab        key.Binding
	cancel      key.Binding
	reorderMode key.Binding
	toggleMark  key.Binding
	markStage   key.Binding
	bulkMove    key.Binding
	bulkAssign  key.Binding
	bulkRemove  key.Binding
	copyEmail   key.Binding
	leadInfo    key.Binding
}

// newKeyMap constructs the default bindings.
func newKeyMap() keyMap {
	return keyMap{
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		reload:      key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reload")),
		toggleHelp:  key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		moveLeft:    key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "stage left")),
		moveRight:   key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "stage right")),
		moveUp:      key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "lead up")),
		moveDown:    key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "lead down")),
		grab:        key.NewBinding(key.WithKeys("space", " "), key.WithHelp("space", "pick up / drop")),
		cancel:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel / clear")),
		reorderMode: key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "reorder stages")),
		toggleMark:  key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "select lead")),
		markStage:   key.NewBinding(key.WithKeys("X", "shift+x"), key.WithHelp("X", "select stage")),
		bulkMove:    key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bulk move")),
		bulkAssign:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "bulk assign owner")),
		bulkRemove:  key.NewBinding(key.WithKeys("D", "shift+d"), key.WithHelp("D", "bulk remove")),
		copyEmail:   key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "copy email")),
		leadInfo:    key.NewBinding(key.WithKeys("i", "enter"), key.WithHelp("i/enter", "lead info")),
	}
}

// ShortHelp returns the bindings shown in the footer.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.grab, k.cancel, k.reorderMode, k.toggleMark, k.bulkMove, k.leadInfo, k.toggleHelp, k.quit,
	}
}

// FullHelp returns the bindings grouped for the help overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.moveLeft, k.moveRight, k.moveUp, k.moveDown},
		{k.grab, k.cancel, k.reorderMode},
		{k.toggleMark, k.markStage, k.bulkMove, k.bulkAssign, k.bulkRemove},
		{k.leadInfo, k.copyEmail, k.reload, k.toggleHelp, k.quit},
	}
}
