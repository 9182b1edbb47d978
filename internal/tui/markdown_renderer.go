package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

const minNotesWrap = 24

// notesKey identifies one rendered copy of a lead's notes.
type notesKey struct {
	leadID string
	width  int
}

// notesEntry is a cached rendering and the source it came from.
type notesEntry struct {
	source   string
	rendered string
}

// notesRenderer turns lead notes markdown into styled terminal text. The
// glamour renderer is rebuilt only when the wrap width changes, and output is
// kept per lead until its notes change.
type notesRenderer struct {
	style    string
	width    int
	renderer *glamour.TermRenderer
	cache    map[notesKey]notesEntry
}

func newNotesRenderer(style string) *notesRenderer {
	if strings.TrimSpace(style) == "" {
		style = "dark"
	}
	return &notesRenderer{style: style, cache: map[notesKey]notesEntry{}}
}

// render returns leadID's notes wrapped to width. Blank notes render empty;
// glamour failures fall back to the raw markdown.
func (r *notesRenderer) render(leadID, notes string, width int) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return ""
	}
	width = max(width, minNotesWrap)
	key := notesKey{leadID: leadID, width: width}
	if entry, ok := r.cache[key]; ok && entry.source == notes {
		return entry.rendered
	}

	if r.renderer == nil || r.width != width {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle(r.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return notes
		}
		r.renderer = renderer
		r.width = width
	}
	out, err := r.renderer.Render(notes)
	if err != nil {
		return notes
	}
	out = strings.TrimRight(out, "\n")
	r.cache[key] = notesEntry{source: notes, rendered: out}
	return out
}

// forget drops cached renderings for leads no longer on the board.
func (r *notesRenderer) forget(keep map[string]struct{}) {
	for key := range r.cache {
		if _, ok := keep[key.leadID]; !ok {
			delete(r.cache, key)
		}
	}
}
