package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hylla/leadflow/internal/app"
	"github.com/hylla/leadflow/internal/domain"
	"github.com/spf13/cobra"
)

// leadFields holds the record flags shared by add-lead and edit-lead.
type leadFields struct {
	name   string
	email  string
	phone  string
	score  int
	notes  string
	owner  string
	source string
	tags   []string
}

func (f *leadFields) bind(cmd *cobra.Command, withPlacement bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.email, "email", "", "contact email")
	flags.StringVar(&f.phone, "phone", "", "contact phone")
	flags.IntVar(&f.score, "score", 0, "lead score (0-100)")
	flags.StringVar(&f.notes, "notes", "", "markdown notes")
	flags.StringSliceVar(&f.tags, "tag", nil, "tag (repeatable)")
	if withPlacement {
		flags.StringVar(&f.owner, "owner", "", "owner (default from config)")
		flags.StringVar(&f.source, "source", "", "where the lead came from")
		return
	}
	flags.StringVar(&f.name, "name", "", "display name")
}

// newAddLeadCommand builds the lead creation command.
func newAddLeadCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var fields leadFields
	cmd := &cobra.Command{
		Use:     "add-lead <stage-id> <name>",
		Short:   "Add a lead to the end of a stage",
		Example: "leadflow add-lead new \"Ada Park\" --email ada@example.com --score 60 --tag referral",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "add-lead")
			if err != nil {
				return err
			}
			defer env.Close()

			lead, err := env.svc.CreateLead(cmd.Context(), app.CreateLeadInput{
				StageID: args[0],
				Name:    args[1],
				Email:   fields.email,
				Phone:   fields.phone,
				Score:   fields.score,
				Notes:   fields.notes,
				Owner:   fields.owner,
				Source:  fields.source,
				Tags:    fields.tags,
			})
			if err != nil {
				return fmt.Errorf("add lead: %w", err)
			}
			_, err = fmt.Fprintf(stdout, "added %s (%s) to %s at %d\n", lead.Name, lead.ID, lead.StageID, lead.Position)
			return err
		},
	}
	fields.bind(cmd, true)
	return cmd
}

// newEditLeadCommand builds the lead edit command. Only flags that were set change.
func newEditLeadCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var fields leadFields
	cmd := &cobra.Command{
		Use:   "edit-lead <lead-id>",
		Short: "Edit a lead's contact details, score, notes or tags",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "edit-lead")
			if err != nil {
				return err
			}
			defer env.Close()

			current, err := env.svc.GetLead(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("load lead: %w", err)
			}
			in := app.UpdateLeadInput{
				LeadID: current.ID,
				Name:   current.Name,
				Email:  current.Email,
				Phone:  current.Phone,
				Score:  current.Score,
				Notes:  current.Notes,
				Tags:   current.Tags,
			}
			changed := cmd.Flags().Changed
			if changed("name") {
				in.Name = fields.name
			}
			if changed("email") {
				in.Email = fields.email
			}
			if changed("phone") {
				in.Phone = fields.phone
			}
			if changed("score") {
				in.Score = fields.score
			}
			if changed("notes") {
				in.Notes = fields.notes
			}
			if changed("tag") {
				in.Tags = fields.tags
			}
			lead, err := env.svc.UpdateLead(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("edit lead: %w", err)
			}
			_, err = fmt.Fprintf(stdout, "updated %s (%s)\n", lead.Name, lead.ID)
			return err
		},
	}
	fields.bind(cmd, false)
	return cmd
}

// newShowCommand prints one lead with rendered notes.
func newShowCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "show <lead-id>",
		Short: "Print one lead and its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "show")
			if err != nil {
				return err
			}
			defer env.Close()

			lead, err := env.svc.GetLead(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("show lead: %w", err)
			}
			return printLead(stdout, lead)
		},
	}
}

// printLead writes a field table for lead followed by its notes.
func printLead(out io.Writer, lead domain.Lead) error {
	t := newTable("Field", "Value")
	t.Row("id", lead.ID)
	t.Row("name", lead.Name)
	t.Row("stage", fmt.Sprintf("%s #%d", lead.StageID, lead.Position))
	t.Row("owner", lead.Owner)
	t.Row("score", strconv.Itoa(lead.Score))
	t.Row("email", lead.Email)
	t.Row("phone", lead.Phone)
	t.Row("source", lead.Source)
	t.Row("tags", strings.Join(lead.Tags, ", "))
	t.Row("updated", lead.UpdatedAt.Format("2006-01-02 15:04"))
	if _, err := fmt.Fprintln(out, t.Render()); err != nil {
		return err
	}
	if strings.TrimSpace(lead.Notes) == "" {
		return nil
	}
	renderer, err := newNotesRenderer()
	if err != nil {
		return err
	}
	rendered, err := renderer.Render(lead.Notes)
	if err != nil {
		return fmt.Errorf("render notes for %q: %w", lead.ID, err)
	}
	_, err = fmt.Fprint(out, rendered)
	return err
}

// newStagesCommand lists stages in board order.
func newStagesCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "stages")
			if err != nil {
				return err
			}
			defer env.Close()

			stages, err := env.svc.ListStages(cmd.Context())
			if err != nil {
				return fmt.Errorf("list stages: %w", err)
			}
			t := newTable("#", "ID", "Name", "Color")
			for _, stage := range stages {
				t.Row(strconv.Itoa(stage.Position), stage.ID, stage.Name, stage.Color)
			}
			_, err = fmt.Fprintln(stdout, t.Render())
			return err
		},
	}
}

// newAddStageCommand builds the stage creation command.
func newAddStageCommand(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:     "add-stage <name>",
		Short:   "Append a stage after the last one",
		Example: "leadflow add-stage \"Follow Up\" --color '#7dcfff'",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openRuntime(cmd.Context(), opts, stderr, "add-stage")
			if err != nil {
				return err
			}
			defer env.Close()

			stage, err := env.svc.CreateStage(cmd.Context(), args[0], color)
			if err != nil {
				return fmt.Errorf("add stage: %w", err)
			}
			_, err = fmt.Fprintf(stdout, "added stage %s (%s) at %d\n", stage.Name, stage.ID, stage.Position)
			return err
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "hex color such as #7dcfff")
	return cmd
}
