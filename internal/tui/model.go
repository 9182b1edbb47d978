package tui

import (
	"context"
	"fmt"
	"image/color"
	"slices"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/domain"
	"github.com/hylla/leadflow/internal/drag"
	"github.com/hylla/leadflow/internal/selection"
)

// Service is the pipeline surface the board drives.
type Service interface {
	Reload(context.Context) error
	Board(context.Context) (app.BoardView, error)
	StartDrag(context.Context, drag.Kind, string) error
	DragOver(context.Context, drag.Kind, string) (app.DragResult, error)
	EndDrag(context.Context) (app.DragResult, error)
	CancelDrag(context.Context) (app.DragResult, error)
	SetReorderMode(context.Context, bool) error
	ToggleSelection(context.Context, string) (bool, error)
	SelectAll(context.Context, string, []string) ([]string, error)
	ClearSelection(context.Context) (int, error)
	ApplyBulk(context.Context, app.BulkInput) (selection.Result, error)
}

// clipboardWriteAll is swapped in tests.
var clipboardWriteAll = clipboard.WriteAll

// inputMode represents a modal overlay state.
type inputMode int

// modeNone and related constants define the overlays.
const (
	modeNone inputMode = iota
	modeLeadInfo
	modeBulkTarget
	modeConfirmRemove
)

// Model is the bubbletea model for the pipeline board.
type Model struct {
	svc Service

	ready  bool
	width  int
	height int
	err    error

	title     string
	status    string
	statusErr bool

	help help.Model
	keys keyMap
	md   *notesRenderer

	cardFields CardFieldConfig

	board         app.BoardView
	selectedStage int
	selectedLead  int
	pendingFocus  string

	mode          inputMode
	bulkTargetIdx int
}

// loadedMsg carries a fresh board snapshot.
type loadedMsg struct {
	board app.BoardView
	err   error
}

// actionMsg carries the outcome of one service call.
type actionMsg struct {
	err     error
	status  string
	focusID string
}

// NewModel constructs a board model over svc.
func NewModel(svc Service, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		svc:        svc,
		title:      "leadflow",
		status:     "loading...",
		help:       h,
		keys:       newKeyMap(),
		md:         newNotesRenderer("dark"),
		cardFields: DefaultCardFieldConfig(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init loads the board.
func (m Model) Init() tea.Cmd {
	return m.loadData
}

// Update applies one message.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.board = msg.board
		m.md.forget(m.leadIDs())
		if m.pendingFocus != "" {
			m.focusByID(m.pendingFocus)
			m.pendingFocus = ""
		}
		m.clampSelections()
		if m.status == "" || m.status == "loading..." {
			m.status = "ready"
		}
		return m, nil

	case actionMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			m.statusErr = true
			return m, m.loadData
		}
		m.statusErr = false
		if msg.status != "" {
			m.status = msg.status
		}
		if msg.focusID != "" {
			m.pendingFocus = msg.focusID
		}
		return m, m.loadData

	case tea.KeyPressMsg:
		if m.mode != modeNone {
			return m.handleModeKey(msg)
		}
		return m.handleBoardKey(msg)

	default:
		return m, nil
	}
}

// loadData fetches the board snapshot.
func (m Model) loadData() tea.Msg {
	view, err := m.svc.Board(context.Background())
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{board: view}
}

// reloadData rereads the store before fetching the board.
func (m Model) reloadData() tea.Msg {
	if err := m.svc.Reload(context.Background()); err != nil {
		return loadedMsg{err: err}
	}
	return m.loadData()
}

// handleBoardKey handles keys while no overlay is open.
func (m Model) handleBoardKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.err = nil
		m.status = "reloaded"
		m.statusErr = false
		return m, m.reloadData
	}
	if m.err != nil {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.moveLeft):
		return m.moveStageCursor(-1)
	case key.Matches(msg, m.keys.moveRight):
		return m.moveStageCursor(1)
	case key.Matches(msg, m.keys.moveUp):
		return m.moveLeadCursor(-1)
	case key.Matches(msg, m.keys.moveDown):
		return m.moveLeadCursor(1)
	case key.Matches(msg, m.keys.grab):
		return m.grabOrDrop()
	case key.Matches(msg, m.keys.cancel):
		return m.cancelOrClear()
	case key.Matches(msg, m.keys.reorderMode):
		return m.toggleReorderMode()
	}

	if m.board.Drag != nil {
		m.status = "drop or cancel the drag first"
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.toggleMark):
		lead, ok := m.currentLead()
		if !ok {
			return m, nil
		}
		return m, m.toggleSelectionCmd(lead.ID)
	case key.Matches(msg, m.keys.markStage):
		stage, ok := m.currentStage()
		if !ok {
			return m, nil
		}
		return m, m.selectStageCmd(stage.Stage)
	case key.Matches(msg, m.keys.bulkMove):
		if len(m.board.Selected) == 0 {
			m.status = "no leads selected"
			return m, nil
		}
		m.mode = modeBulkTarget
		m.bulkTargetIdx = m.selectedStage
		m.status = "choose a target stage"
		return m, nil
	case key.Matches(msg, m.keys.bulkAssign):
		if len(m.board.Selected) == 0 {
			m.status = "no leads selected"
			return m, nil
		}
		return m, m.applyBulkCmd(app.BulkInput{Action: "assign_owner"})
	case key.Matches(msg, m.keys.bulkRemove):
		if len(m.board.Selected) == 0 {
			m.status = "no leads selected"
			return m, nil
		}
		m.mode = modeConfirmRemove
		return m, nil
	case key.Matches(msg, m.keys.copyEmail):
		lead, ok := m.currentLead()
		if !ok {
			return m, nil
		}
		if lead.Email == "" {
			m.status = "lead has no email"
			return m, nil
		}
		if err := clipboardWriteAll(lead.Email); err != nil {
			m.status = "copy failed: " + err.Error()
			m.statusErr = true
			return m, nil
		}
		m.status = "copied " + lead.Email
		m.statusErr = false
		return m, nil
	case key.Matches(msg, m.keys.leadInfo):
		if _, ok := m.currentLead(); !ok {
			return m, nil
		}
		m.mode = modeLeadInfo
		return m, nil
	}
	return m, nil
}

// handleModeKey handles keys while an overlay is open.
func (m Model) handleModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.cancel) {
		m.mode = modeNone
		m.status = "cancelled"
		return m, nil
	}
	switch m.mode {
	case modeLeadInfo:
		if key.Matches(msg, m.keys.leadInfo) || key.Matches(msg, m.keys.quit) {
			m.mode = modeNone
		}
		if key.Matches(msg, m.keys.copyEmail) {
			m.mode = modeNone
			return m.handleBoardKey(msg)
		}
		return m, nil
	case modeBulkTarget:
		switch {
		case key.Matches(msg, m.keys.moveLeft), key.Matches(msg, m.keys.moveUp):
			m.bulkTargetIdx = clamp(m.bulkTargetIdx-1, 0, len(m.board.Stages)-1)
		case key.Matches(msg, m.keys.moveRight), key.Matches(msg, m.keys.moveDown):
			m.bulkTargetIdx = clamp(m.bulkTargetIdx+1, 0, len(m.board.Stages)-1)
		case msg.String() == "enter":
			if len(m.board.Stages) == 0 {
				m.mode = modeNone
				return m, nil
			}
			target := m.board.Stages[clamp(m.bulkTargetIdx, 0, len(m.board.Stages)-1)].Stage
			m.mode = modeNone
			return m, m.applyBulkCmd(app.BulkInput{Action: "move", StageID: target.ID})
		}
		return m, nil
	case modeConfirmRemove:
		switch msg.String() {
		case "y", "enter":
			m.mode = modeNone
			return m, m.applyBulkCmd(app.BulkInput{Action: "remove"})
		case "n":
			m.mode = modeNone
			m.status = "cancelled"
		}
		return m, nil
	default:
		m.mode = modeNone
		return m, nil
	}
}

// moveStageCursor moves the stage cursor, hovering the drag target when a drag is active.
func (m Model) moveStageCursor(delta int) (tea.Model, tea.Cmd) {
	if len(m.board.Stages) == 0 {
		return m, nil
	}
	next := clamp(m.selectedStage+delta, 0, len(m.board.Stages)-1)
	if next == m.selectedStage {
		return m, nil
	}
	m.selectedStage = next
	stage := m.board.Stages[next]

	dv := m.board.Drag
	switch {
	case dv == nil:
		m.selectedLead = clamp(m.selectedLead, 0, len(stage.Leads)-1)
		return m, nil
	case dv.Kind == drag.KindContainer:
		return m, m.dragOverCmd(drag.KindContainer, stage.Stage.ID, stage.Stage.ID)
	case len(stage.Leads) == 0:
		m.selectedLead = 0
		return m, m.dragOverCmd(drag.KindContainer, stage.Stage.ID, dv.SourceID)
	default:
		m.selectedLead = clamp(m.selectedLead, 0, len(stage.Leads)-1)
		over := stage.Leads[m.selectedLead]
		return m, m.dragOverCmd(drag.KindItem, over.ID, dv.SourceID)
	}
}

// moveLeadCursor moves the lead cursor within the current stage.
func (m Model) moveLeadCursor(delta int) (tea.Model, tea.Cmd) {
	stage, ok := m.currentStage()
	if !ok || len(stage.Leads) == 0 {
		return m, nil
	}
	next := clamp(m.selectedLead+delta, 0, len(stage.Leads)-1)
	if next == m.selectedLead {
		return m, nil
	}
	m.selectedLead = next
	dv := m.board.Drag
	if dv == nil || dv.Kind != drag.KindItem {
		return m, nil
	}
	over := stage.Leads[next]
	return m, m.dragOverCmd(drag.KindItem, over.ID, over.ID)
}

// grabOrDrop starts a drag at the cursor or ends the active one.
func (m Model) grabOrDrop() (tea.Model, tea.Cmd) {
	if dv := m.board.Drag; dv != nil {
		source := dv.SourceID
		svc := m.svc
		return m, func() tea.Msg {
			out, err := svc.EndDrag(context.Background())
			if err != nil {
				return actionMsg{err: err}
			}
			status := "dropped"
			if !out.Changed {
				status = "dropped (no change)"
			}
			return actionMsg{status: status, focusID: source}
		}
	}

	if m.board.ReorderMode {
		stage, ok := m.currentStage()
		if !ok {
			return m, nil
		}
		return m, m.startDragCmd(drag.KindContainer, stage.Stage.ID, "dragging stage "+stage.Stage.Name)
	}
	lead, ok := m.currentLead()
	if !ok {
		m.status = "no lead to pick up"
		return m, nil
	}
	return m, m.startDragCmd(drag.KindItem, lead.ID, "dragging "+lead.Name)
}

// cancelOrClear cancels the active drag, or clears the selection.
func (m Model) cancelOrClear() (tea.Model, tea.Cmd) {
	svc := m.svc
	if dv := m.board.Drag; dv != nil {
		source := dv.SourceID
		return m, func() tea.Msg {
			out, err := svc.CancelDrag(context.Background())
			if err != nil {
				return actionMsg{err: err}
			}
			status := "drag cancelled"
			if out.Changed {
				status = "drag cancelled, board restored"
			}
			return actionMsg{status: status, focusID: source}
		}
	}
	if len(m.board.Selected) == 0 {
		return m, nil
	}
	return m, func() tea.Msg {
		n, err := svc.ClearSelection(context.Background())
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("cleared %d selected", n)}
	}
}

// toggleReorderMode switches between lead and stage dragging.
func (m Model) toggleReorderMode() (tea.Model, tea.Cmd) {
	if m.board.Drag != nil {
		m.status = "drop or cancel the drag first"
		return m, nil
	}
	enabled := !m.board.ReorderMode
	svc := m.svc
	return m, func() tea.Msg {
		if err := svc.SetReorderMode(context.Background(), enabled); err != nil {
			return actionMsg{err: err}
		}
		if enabled {
			return actionMsg{status: "reorder mode: drag stages"}
		}
		return actionMsg{status: "reorder mode off"}
	}
}

func (m Model) startDragCmd(kind drag.Kind, id, status string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if err := svc.StartDrag(context.Background(), kind, id); err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: status, focusID: id}
	}
}

func (m Model) dragOverCmd(kind drag.Kind, id, focusID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		if _, err := svc.DragOver(context.Background(), kind, id); err != nil {
			return actionMsg{err: err, focusID: focusID}
		}
		return actionMsg{focusID: focusID}
	}
}

func (m Model) toggleSelectionCmd(leadID string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		selected, err := svc.ToggleSelection(context.Background(), leadID)
		if err != nil {
			return actionMsg{err: err}
		}
		if selected {
			return actionMsg{status: "selected", focusID: leadID}
		}
		return actionMsg{status: "unselected", focusID: leadID}
	}
}

func (m Model) selectStageCmd(stage domain.Stage) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		ids, err := svc.SelectAll(context.Background(), stage.ID, nil)
		if err != nil {
			return actionMsg{err: err}
		}
		return actionMsg{status: fmt.Sprintf("selected %d in %s", len(ids), stage.Name)}
	}
}

func (m Model) applyBulkCmd(in app.BulkInput) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		res, err := svc.ApplyBulk(context.Background(), in)
		if err != nil {
			return actionMsg{err: err}
		}
		status := fmt.Sprintf("%s: %d applied", res.Mutation, len(res.Applied))
		if len(res.Skipped) > 0 {
			status += fmt.Sprintf(", %d skipped", len(res.Skipped))
		}
		msg := actionMsg{status: status}
		if len(res.Applied) > 0 && in.Action != "remove" {
			msg.focusID = res.Applied[0]
		}
		return msg
	}
}

// currentStage returns the stage under the cursor.
func (m Model) currentStage() (app.StageView, bool) {
	if len(m.board.Stages) == 0 {
		return app.StageView{}, false
	}
	return m.board.Stages[clamp(m.selectedStage, 0, len(m.board.Stages)-1)], true
}

// currentLead returns the lead under the cursor.
func (m Model) currentLead() (domain.Lead, bool) {
	stage, ok := m.currentStage()
	if !ok || len(stage.Leads) == 0 {
		return domain.Lead{}, false
	}
	return stage.Leads[clamp(m.selectedLead, 0, len(stage.Leads)-1)], true
}

func (m Model) leadIDs() map[string]struct{} {
	ids := map[string]struct{}{}
	for _, stage := range m.board.Stages {
		for _, lead := range stage.Leads {
			ids[lead.ID] = struct{}{}
		}
	}
	return ids
}

// focusByID moves the cursor to a lead or stage id.
func (m *Model) focusByID(id string) {
	for stageIdx, stage := range m.board.Stages {
		if stage.Stage.ID == id {
			m.selectedStage = stageIdx
			return
		}
		for leadIdx, lead := range stage.Leads {
			if lead.ID == id {
				m.selectedStage = stageIdx
				m.selectedLead = leadIdx
				return
			}
		}
	}
}

// clampSelections keeps the cursor inside the board.
func (m *Model) clampSelections() {
	if len(m.board.Stages) == 0 {
		m.selectedStage = 0
		m.selectedLead = 0
		return
	}
	m.selectedStage = clamp(m.selectedStage, 0, len(m.board.Stages)-1)
	m.selectedLead = clamp(m.selectedLead, 0, len(m.board.Stages[m.selectedStage].Leads)-1)
	m.bulkTargetIdx = clamp(m.bulkTargetIdx, 0, len(m.board.Stages)-1)
}

// isSelected reports whether id is in the bulk selection.
func (m Model) isSelected(id string) bool {
	return slices.Contains(m.board.Selected, id)
}

// modeLabel names the current interaction mode.
func (m Model) modeLabel() string {
	switch m.mode {
	case modeLeadInfo:
		return "info"
	case modeBulkTarget:
		return "bulk move"
	case modeConfirmRemove:
		return "confirm"
	}
	switch {
	case m.board.Drag != nil && m.board.Drag.Kind == drag.KindContainer:
		return "drag stage"
	case m.board.Drag != nil:
		return "drag lead"
	case m.board.ReorderMode:
		return "reorder"
	default:
		return "board"
	}
}

// View renders the board.
func (m Model) View() tea.View {
	if m.err != nil {
		v := tea.NewView("error: " + m.err.Error() + "\n\npress r to retry • q quit\n")
		v.AltScreen = true
		return v
	}
	if !m.ready {
		v := tea.NewView("loading...")
		v.AltScreen = true
		return v
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dim)
	errorStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))

	header := titleStyle.Render(m.title)
	header += statusStyle.Render("  [" + m.modeLabel() + "]")
	if count := len(m.board.Selected); count > 0 {
		header += statusStyle.Render(fmt.Sprintf("  selected: %d", count))
	}
	header += statusStyle.Render(fmt.Sprintf("  v%d", m.board.Version))

	var body string
	if len(m.board.Stages) == 0 {
		body = lipgloss.NewStyle().Foreground(muted).Render("No stages yet.")
	} else {
		body = m.renderBoard(muted, dim)
	}

	sections := []string{header, "", body}
	if strings.TrimSpace(m.status) != "" && m.status != "ready" {
		if m.statusErr {
			sections = append(sections, errorStyle.Render(m.status))
		} else {
			sections = append(sections, statusStyle.Render(m.status))
		}
	}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.ShowAll = false
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))

	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	fullContent := content + "\n" + helpLine

	overlay := m.renderModeOverlay(accent, muted, dim, m.width-8)
	if m.help.ShowAll {
		overlay = m.renderHelpOverlay(accent, muted, m.width-8)
	}
	if overlay != "" {
		overlayHeight := lipgloss.Height(fullContent)
		if m.height > 0 {
			overlayHeight = m.height
		}
		fullContent = overlayOnContent(fullContent, overlay, max(1, m.width), max(1, overlayHeight))
	}

	view := tea.NewView(fullContent)
	view.AltScreen = true
	return view
}

// renderBoard renders one bordered column per stage.
func (m Model) renderBoard(muted, dim color.Color) string {
	colWidth := m.columnWidthFor(m.width)
	colHeight := m.columnHeight()
	baseColStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(1, 2).
		MarginRight(1).
		Width(colWidth)
	// Width covers border and padding; card rows also carry a 3-cell prefix.
	textWidth := max(1, colWidth-baseColStyle.GetHorizontalBorderSize()-baseColStyle.GetHorizontalPadding()-3)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	cursorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	markedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Background(lipgloss.Color("237")).Bold(true)
	draggedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	subStyle := lipgloss.NewStyle().Foreground(muted)

	dv := m.board.Drag
	columnViews := make([]string, 0, len(m.board.Stages))
	for stageIdx, stage := range m.board.Stages {
		accent := stageAccentColor(stage.Stage)
		colHeader := fmt.Sprintf("%s (%d)", stage.Stage.Name, len(stage.Leads))
		if dv != nil && dv.Kind == drag.KindContainer && dv.SourceID == stage.Stage.ID {
			colHeader = "⇄ " + colHeader
		}
		if dv != nil && dv.OverKind == drag.KindContainer && dv.OverID == stage.Stage.ID && dv.SourceID != stage.Stage.ID {
			colHeader = "▸ " + colHeader
		}
		headerLines := []string{lipgloss.NewStyle().Bold(true).Foreground(accent).Render(colHeader)}

		leadLines := make([]string, 0, max(1, len(stage.Leads)*3))
		selectedStart, selectedEnd := -1, -1
		if len(stage.Leads) == 0 {
			leadLines = append(leadLines, emptyStyle.Render("(empty)"))
		}
		for leadIdx, lead := range stage.Leads {
			cursor := stageIdx == m.selectedStage && leadIdx == m.selectedLead && !m.board.ReorderMode
			marked := m.isSelected(lead.ID)
			dragged := dv != nil && dv.Kind == drag.KindItem && dv.SourceID == lead.ID
			over := dv != nil && dv.OverKind == drag.KindItem && dv.OverID == lead.ID && !dragged

			prefix := leadPrefix(cursor, marked, dragged, over)
			title := prefix + truncate(lead.Name, textWidth)
			switch {
			case dragged:
				title = draggedStyle.Render(title)
			case cursor:
				title = cursorStyle.Render(title)
			case marked:
				title = markedStyle.Render(title)
			}
			rowStart := len(leadLines)
			leadLines = append(leadLines, title)
			if sub := m.cardSecondary(lead); sub != "" {
				leadLines = append(leadLines, "   "+subStyle.Render(truncate(sub, textWidth)))
			}
			if leadIdx < len(stage.Leads)-1 {
				leadLines = append(leadLines, "")
			}
			if cursor {
				selectedStart = rowStart
				selectedEnd = len(leadLines) - 1
			}
		}

		innerHeight := max(1, colHeight-4)
		windowHeight := max(1, innerHeight-len(headerLines))
		scrollTop := 0
		if selectedStart >= 0 && selectedEnd >= windowHeight {
			scrollTop = selectedEnd - windowHeight + 1
		}
		scrollTop = clamp(scrollTop, 0, max(0, len(leadLines)-windowHeight))
		if len(leadLines) > windowHeight {
			leadLines = leadLines[scrollTop : scrollTop+windowHeight]
		}

		lines := append(append([]string{}, headerLines...), leadLines...)
		content := fitLines(strings.Join(lines, "\n"), innerHeight)
		style := baseColStyle
		if stageIdx == m.selectedStage {
			style = baseColStyle.BorderForeground(accent)
		}
		columnViews = append(columnViews, style.Render(content))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, columnViews...)
}

// leadPrefix returns the gutter markers for one card.
func leadPrefix(cursor, marked, dragged, over bool) string {
	switch {
	case dragged:
		return "≡  "
	case over:
		return "▸  "
	case cursor && marked:
		return "│* "
	case cursor:
		return "│  "
	case marked:
		return " * "
	default:
		return "   "
	}
}

// cardSecondary renders the configured secondary card fields.
func (m Model) cardSecondary(lead domain.Lead) string {
	parts := make([]string, 0, 3)
	if m.cardFields.ShowOwner && lead.Owner != "" {
		parts = append(parts, "@"+lead.Owner)
	}
	if m.cardFields.ShowScore {
		parts = append(parts, fmt.Sprintf("score %d", lead.Score))
	}
	if m.cardFields.ShowTags && len(lead.Tags) > 0 {
		parts = append(parts, "#"+strings.Join(lead.Tags, " #"))
	}
	return strings.Join(parts, " • ")
}

// renderModeOverlay renders the active modal overlay.
func (m Model) renderModeOverlay(accent, muted, dim color.Color, maxWidth int) string {
	width := clamp(maxWidth, 36, 80)
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(1, 2).
		Width(width)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle := lipgloss.NewStyle().Foreground(muted)

	switch m.mode {
	case modeLeadInfo:
		lead, ok := m.currentLead()
		if !ok {
			return ""
		}
		lines := []string{titleStyle.Render(lead.Name), ""}
		fields := [][2]string{
			{"email", lead.Email},
			{"phone", lead.Phone},
			{"owner", lead.Owner},
			{"source", lead.Source},
			{"score", fmt.Sprintf("%d", lead.Score)},
			{"tags", strings.Join(lead.Tags, ", ")},
		}
		for _, field := range fields {
			if strings.TrimSpace(field[1]) == "" {
				continue
			}
			lines = append(lines, hintStyle.Render(field[0]+": ")+field[1])
		}
		if notes := m.md.render(lead.ID, lead.Notes, width-6); notes != "" {
			lines = append(lines, "", notes)
		}
		lines = append(lines, "", hintStyle.Render("y copy email • esc close"))
		return boxStyle.Render(strings.Join(lines, "\n"))

	case modeBulkTarget:
		lines := []string{titleStyle.Render(fmt.Sprintf("Move %d leads to", len(m.board.Selected))), ""}
		for idx, stage := range m.board.Stages {
			line := "  " + stage.Stage.Name
			if idx == m.bulkTargetIdx {
				line = lipgloss.NewStyle().Bold(true).Foreground(stageAccentColor(stage.Stage)).Render("› " + stage.Stage.Name)
			}
			lines = append(lines, line)
		}
		lines = append(lines, "", hintStyle.Render("j/k choose • enter move • esc cancel"))
		return boxStyle.Render(strings.Join(lines, "\n"))

	case modeConfirmRemove:
		lines := []string{
			titleStyle.Render("Remove leads"),
			"",
			fmt.Sprintf("Remove %d selected leads from the pipeline?", len(m.board.Selected)),
			"",
			lipgloss.NewStyle().Foreground(dim).Render("y confirm • n/esc cancel"),
		}
		return boxStyle.BorderForeground(lipgloss.Color("203")).Render(strings.Join(lines, "\n"))
	}
	return ""
}

// renderHelpOverlay renders the full key reference.
func (m Model) renderHelpOverlay(accent, muted color.Color, maxWidth int) string {
	width := clamp(maxWidth, 56, 100)
	hb := m.help
	hb.ShowAll = true
	hb.SetWidth(width - 4)

	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(accent).Render("leadflow help"),
		"",
		lipgloss.NewStyle().Bold(true).Foreground(accent).Render("Workflows"),
		"1. space pick up a lead • h/l/j/k hover • space drop • esc cancel",
		"2. o reorder mode • space pick up a stage • h/l hover • space drop",
		"3. x select • X select stage • b bulk move • a assign owner • D remove",
		"",
		hb.View(m.keys),
		"",
		lipgloss.NewStyle().Foreground(muted).Render("? close help"),
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(1, 2).
		Width(width).
		Render(strings.Join(lines, "\n"))
}

// stageAccentColor returns the stage color or the default accent.
func stageAccentColor(stage domain.Stage) color.Color {
	value := strings.TrimSpace(stage.Color)
	if value == "" {
		return lipgloss.Color("62")
	}
	return lipgloss.Color(value)
}

// columnWidthFor returns the per-stage column width.
func (m Model) columnWidthFor(boardWidth int) int {
	if len(m.board.Stages) == 0 {
		return 24
	}
	w := 28
	if boardWidth > 0 {
		// column width includes border and padding; only margin-right sits outside
		const colMargin = 1
		usable := boardWidth - len(m.board.Stages)*colMargin
		if candidate := usable / len(m.board.Stages); candidate > 0 {
			w = candidate
		}
	}
	return clamp(w, 20, 42)
}

// columnHeight returns the column height.
func (m Model) columnHeight() int {
	const headerLines, footerLines = 3, 4
	h := m.height - headerLines - footerLines
	if h < 14 {
		return 14
	}
	return h
}

// clamp clamps v into [minV, maxV].
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines pads or trims content to exactly maxLines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		lines = append(lines, make([]string, maxLines-len(lines))...)
	}
	return strings.Join(lines, "\n")
}

// overlayOnContent centers overlay above base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, overlay)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)
	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}
