package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"templarr/internal/apply"
	"templarr/internal/cli"
	"templarr/internal/engine"
	"templarr/internal/remote"
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <template-id>",
		Short: "Check a template against all linked instances",
		Long: `Compare a template against every linked instance and report which are up
to date. Templates in auto mode with no outstanding customizations are
applied; notify and manual modes only report. Instances are checked
concurrently and independently: one instance failing never blocks the rest.`,
		Args: cobra.ExactArgs(1),
		RunE: runCheck,
	}
	cmd.Flags().Int("concurrency", 4, "maximum concurrent instance checks")
	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	templateID := args[0]
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	eng := engine.NewWithConfig(store, remote.Factory, apply.NewExecutor(store),
		engine.Config{CheckConcurrency: concurrency})

	reports, err := eng.Check(ctx, templateID)
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}
	if len(reports) == 0 {
		fmt.Println(cli.SubtleStyle.Render("no instances linked to this template")) //nolint:forbidigo // User-facing output
		return nil
	}

	fmt.Println(cli.TitleStyle.Render("Check results for " + templateID)) //nolint:forbidigo // User-facing output
	fmt.Print(cli.RenderCheckReports(reports))                            //nolint:forbidigo // User-facing output
	return nil
}
