package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"templarr/internal/cli"
	"templarr/internal/template"
)

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage templates",
	}
	cmd.AddCommand(templateImportCmd())
	cmd.AddCommand(templateExportCmd())
	cmd.AddCommand(templateListCmd())
	cmd.AddCommand(templateDeleteCmd())
	return cmd
}

func templateImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a template from a JSON file",
		Long: `Validate and import a template. Validation reports field-level errors,
warnings, and conflicts; any error or conflict blocks the import. Importing a
template that already exists merges the new source revision: your own rules
and customizations are preserved, and rules missing from the new revision are
marked deprecated rather than deleted.`,
		Args: cobra.ExactArgs(1),
		RunE: runTemplateImport,
	}
	return cmd
}

func runTemplateImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read template file: %w", err)
	}

	result, err := template.Import(data)
	if err != nil {
		return err
	}
	for _, warning := range result.Warnings() {
		fmt.Println(cli.WarningStyle.Render("  ! " + warning.String())) //nolint:forbidigo // User-facing output
	}
	if !result.OK() {
		for _, issue := range result.Issues {
			if issue.Severity != template.SeverityWarning {
				fmt.Println(cli.ErrorStyle.Render("  ✗ " + issue.String())) //nolint:forbidigo // User-facing output
			}
		}
		return fmt.Errorf("template validation failed")
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	// Existing templates get a source merge with provenance tracking; new
	// ones are saved directly.
	eng := initEngine(store)
	if _, getErr := store.GetTemplate(ctx, result.Template.ID); getErr == nil {
		sweep, syncErr := eng.SyncSource(ctx, result.Template)
		if syncErr != nil {
			return syncErr
		}
		if len(sweep.NewlyDeprecated) > 0 {
			fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("  %d rules deprecated (no longer in source)", len(sweep.NewlyDeprecated)))) //nolint:forbidigo // User-facing output
		}
		if len(sweep.Reactivated) > 0 {
			fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("  %d rules reactivated", len(sweep.Reactivated)))) //nolint:forbidigo // User-facing output
		}
	} else if err := store.SaveTemplate(ctx, result.Template); err != nil {
		return err
	}

	fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("imported template %s (%d rules, %d groups)", //nolint:forbidigo // User-facing output
		result.Template.ID, len(result.Template.Items), len(result.Template.Groups))))
	return nil
}

func templateExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <template-id>",
		Short: "Export a template as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runTemplateExport,
	}
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().String("author", "", "metadata: author")
	cmd.Flags().String("category", "", "metadata: category")
	cmd.Flags().String("notes", "", "metadata: notes")
	cmd.Flags().StringSlice("tags", nil, "metadata: tags")
	return cmd
}

func runTemplateExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	tmpl, err := store.GetTemplate(ctx, args[0])
	if err != nil {
		return err
	}

	author, _ := cmd.Flags().GetString("author")
	category, _ := cmd.Flags().GetString("category")
	notes, _ := cmd.Flags().GetString("notes")
	tags, _ := cmd.Flags().GetStringSlice("tags")

	data, err := template.Export(tmpl, template.Metadata{
		Author:   author,
		Category: category,
		Notes:    notes,
		Tags:     tags,
	})
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		fmt.Print(string(data)) //nolint:forbidigo // User-facing output
		return nil
	}
	if err := os.WriteFile(output, data, 0600); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	fmt.Println(cli.SuccessStyle.Render("exported to " + output)) //nolint:forbidigo // User-facing output
	return nil
}

func templateListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE:  runTemplateList,
	}
}

func runTemplateList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	templates, err := store.ListTemplates(ctx)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		fmt.Println(cli.SubtleStyle.Render("No templates. Use 'templarr template import' to add one.")) //nolint:forbidigo // User-facing output
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() {
		if flushErr := w.Flush(); flushErr != nil {
			slog.Error("failed to flush table writer", "error", flushErr)
		}
	}()

	fmt.Fprintln(w, "ID\tNAME\tSERVICE\tVERSION\tSYNC MODE")
	for _, t := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Name, t.ServiceKind, t.SourceVersion, t.Sync.Mode)
	}
	return nil
}

func templateDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <template-id>",
		Short: "Delete a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					slog.Error("failed to close storage", "error", closeErr)
				}
			}()
			if err := store.DeleteTemplate(ctx, args[0]); err != nil {
				return err
			}
			fmt.Println(cli.SuccessStyle.Render("deleted " + args[0])) //nolint:forbidigo // User-facing output
			return nil
		},
	}
}
