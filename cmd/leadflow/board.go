package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/domain"
	"github.com/spf13/cobra"
)

var (
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230"))
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// newBoardCommand prints every stage and its leads as a table.
func newBoardCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var (
		stageID   string
		showNotes bool
	)
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Print the pipeline as a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "board")
			if err != nil {
				return err
			}
			defer env.Close()
			return printBoard(cmd.Context(), env.svc, stdout, strings.TrimSpace(stageID), showNotes)
		},
	}
	cmd.Flags().StringVar(&stageID, "stage", "", "only print one stage")
	cmd.Flags().BoolVar(&showNotes, "notes", false, "render lead notes below the table")
	return cmd
}

// printBoard renders the board snapshot to out.
func printBoard(ctx context.Context, svc *app.Service, out io.Writer, stageID string, showNotes bool) error {
	view, err := svc.Board(ctx)
	if err != nil {
		return fmt.Errorf("load board: %w", err)
	}

	t := newTable("Stage", "#", "Lead", "Owner", "Score", "Email")

	var noted []domain.Lead
	found := stageID == ""
	for _, stage := range view.Stages {
		if stageID != "" && stage.Stage.ID != stageID {
			continue
		}
		found = true
		if len(stage.Leads) == 0 {
			t.Row(stage.Stage.Name, "", "(empty)", "", "", "")
			continue
		}
		for idx, lead := range stage.Leads {
			t.Row(stage.Stage.Name, strconv.Itoa(idx), lead.Name, lead.Owner, strconv.Itoa(lead.Score), lead.Email)
			if strings.TrimSpace(lead.Notes) != "" {
				noted = append(noted, lead)
			}
		}
	}
	if !found {
		return fmt.Errorf("stage %q: %w", stageID, app.ErrNotFound)
	}
	if _, err := fmt.Fprintln(out, t.Render()); err != nil {
		return err
	}
	if !showNotes || len(noted) == 0 {
		return nil
	}

	renderer, err := newNotesRenderer()
	if err != nil {
		return err
	}
	for _, lead := range noted {
		rendered, err := renderer.Render(fmt.Sprintf("## %s\n\n%s", lead.Name, lead.Notes))
		if err != nil {
			return fmt.Errorf("render notes for %q: %w", lead.ID, err)
		}
		if _, err := fmt.Fprint(out, rendered); err != nil {
			return err
		}
	}
	return nil
}

// newNotesRenderer builds the plain-terminal markdown renderer used for lead notes.
func newNotesRenderer() (*glamour.TermRenderer, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("notty"),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return nil, fmt.Errorf("configure notes renderer: %w", err)
	}
	return renderer, nil
}

// newTable builds a rounded table with the shared header and cell styles.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle.Padding(0, 1)
			}
			return tableCellStyle
		})
}

// newChangesCommand prints the change-event ledger.
func newChangesCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Print recent lead and stage changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			env, err := openRuntime(cmd.Context(), opts, stderr, "changes")
			if err != nil {
				return err
			}
			defer env.Close()

			events, err := env.svc.ListChangeEvents(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("list change events: %w", err)
			}
			t := newTable("When", "Operation", "Subject", "Actor", "Details")
			for _, event := range events {
				t.Row(
					event.OccurredAt.Format("2006-01-02 15:04:05"),
					string(event.Operation),
					event.SubjectID,
					event.ActorID,
					formatMetadata(event.Metadata),
				)
			}
			_, err = fmt.Fprintln(stdout, t.Render())
			return err
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum events to print")
	return cmd
}

// formatMetadata renders change metadata as sorted key=value pairs.
func formatMetadata(meta map[string]string) string {
	if len(meta) == 0 {
		return ""
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+meta[k])
	}
	return strings.Join(parts, " ")
}
