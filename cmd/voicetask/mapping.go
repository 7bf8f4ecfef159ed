package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/voicetask/internal/pipeline"
	"github.com/fyrsmithlabs/voicetask/internal/workspace"
)

var mappingFlags workspace.FieldMapping

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Manage the task to workspace field mapping",
}

var mappingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the field mapping",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		renderMapping(cmd, a.session.Mapping)
		return nil
	},
}

var mappingSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Set workspace properties for task fields",
	Long: `Set which workspace property receives each task field. Only the flags
given are changed; pass an empty value to unset a field.

Examples:
  voicetask mapping set --task-name Name --priority Priority --due-date Due
  voicetask mapping set --status Status --status-option "Not started"`,
	Args: cobra.NoArgs,
	RunE: runMappingSet,
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Show the workspace database properties",
	Args:  cobra.NoArgs,
	RunE:  runSchema,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push all stored tasks to the workspace",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	f := mappingSetCmd.Flags()
	f.StringVar(&mappingFlags.TaskName, "task-name", "", "title property for the task description")
	f.StringVar(&mappingFlags.Priority, "priority", "", "select property for the criticality")
	f.StringVar(&mappingFlags.DueDate, "due-date", "", "date property for the due date")
	f.StringVar(&mappingFlags.Category, "category", "", "select property for the category")
	f.StringVar(&mappingFlags.Status, "status", "", "select property for the status")
	f.StringVar(&mappingFlags.StatusOption, "status-option", "", "status value for new tasks")

	mappingCmd.AddCommand(mappingShowCmd)
	mappingCmd.AddCommand(mappingSetCmd)
}

func runMappingSet(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	m := a.session.Mapping
	set := func(flag string, dst *string, v string) {
		if cmd.Flags().Changed(flag) {
			*dst = strings.TrimSpace(v)
		}
	}
	set("task-name", &m.TaskName, mappingFlags.TaskName)
	set("priority", &m.Priority, mappingFlags.Priority)
	set("due-date", &m.DueDate, mappingFlags.DueDate)
	set("category", &m.Category, mappingFlags.Category)
	set("status", &m.Status, mappingFlags.Status)
	set("status-option", &m.StatusOption, mappingFlags.StatusOption)

	if err := a.mappings.Save(m); err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	a.session.Mapping = m
	renderMapping(cmd, m)
	return nil
}

func renderMapping(cmd *cobra.Command, m workspace.FieldMapping) {
	w := cmd.OutOrStdout()
	value := func(v string) string {
		if v == "" {
			return dimStyle.Render("(none)")
		}
		return v
	}
	fmt.Fprintln(w, titleStyle.Render("Field mapping"))
	fmt.Fprintf(w, "  task name:      %s\n", value(m.TaskName))
	fmt.Fprintf(w, "  priority:       %s\n", value(m.Priority))
	fmt.Fprintf(w, "  due date:       %s\n", value(m.DueDate))
	fmt.Fprintf(w, "  category:       %s\n", value(m.Category))
	fmt.Fprintf(w, "  status:         %s\n", value(m.Status))
	fmt.Fprintf(w, "  status option:  %s\n", value(m.StatusOption))
	if !m.Configured() {
		fmt.Fprintln(w, errorStyle.Render("No task name property set; tasks will not be synced."))
	}
}

func runSchema(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	creds := a.session.WorkspaceCredentials()
	if creds.APIKey == "" || creds.DatabaseID == "" {
		return fmt.Errorf("workspace key and database ID are not set")
	}
	schema := a.workspace.FetchSchema(cmd.Context(), creds)
	if schema == nil {
		return fmt.Errorf("could not fetch the database schema")
	}

	w := cmd.OutOrStdout()
	sections := []struct {
		title string
		typ   workspace.PropertyType
	}{
		{"Title properties", workspace.TypeTitle},
		{"Select properties", workspace.TypeSelect},
		{"Date properties", workspace.TypeDate},
	}
	for _, s := range sections {
		names := schema.Names(s.typ)
		fmt.Fprintln(w, titleStyle.Render(s.title))
		if len(names) == 0 {
			fmt.Fprintln(w, dimStyle.Render("  (none)"))
			continue
		}
		for _, name := range names {
			line := "  " + name
			if opts := schema.SelectOptions(name); len(opts) > 0 {
				line += "  " + dimStyle.Render(strings.Join(opts, ", "))
			}
			fmt.Fprintln(w, line)
		}
	}
	return nil
}

func runSync(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	records := a.session.Tasks.List()
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("No tasks."))
		return nil
	}

	lang := a.session.Language
	res, err := a.workspace.Push(cmd.Context(), records, a.session.WorkspaceCredentials(), a.session.Mapping)
	outcome := &pipeline.SyncOutcome{Pages: len(res.Pages), Skipped: res.Skipped, Warning: res.Warning, Err: err}
	msg := pipeline.SyncMessage(lang, outcome)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), errorStyle.Render(msg))
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), okStyle.Render(msg))
	return nil
}
