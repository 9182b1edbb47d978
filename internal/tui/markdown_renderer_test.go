package tui

import (
	"strings"
	"testing"
)

// TestNotesRendererCachesPerLead verifies cached output tracks note edits and board membership.
func TestNotesRendererCachesPerLead(t *testing.T) {
	r := newNotesRenderer("")
	if r.style != "dark" {
		t.Fatalf("expected dark default style, got %q", r.style)
	}
	if got := r.render("lead-1", "   ", 40); got != "" {
		t.Fatalf("expected blank notes to render empty, got %q", got)
	}

	first := r.render("lead-1", "Asked about **whitening**.", 10)
	if !strings.Contains(first, "whitening") {
		t.Fatalf("expected rendered notes, got %q", first)
	}
	if _, ok := r.cache[notesKey{leadID: "lead-1", width: minNotesWrap}]; !ok {
		t.Fatalf("expected width clamped to %d in cache, got %#v", minNotesWrap, r.cache)
	}

	edited := r.render("lead-1", "Prefers evenings.", 10)
	if !strings.Contains(edited, "evenings") || strings.Contains(edited, "whitening") {
		t.Fatalf("expected re-render after notes change, got %q", edited)
	}

	_ = r.render("lead-2", "Referral.", 40)
	r.forget(map[string]struct{}{"lead-2": {}})
	if len(r.cache) != 1 {
		t.Fatalf("expected only lead-2 cached, got %#v", r.cache)
	}
}
