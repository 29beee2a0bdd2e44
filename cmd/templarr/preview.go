package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"templarr/internal/cli"
)

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <template-id> <instance-id>",
		Short: "Preview the changes a sync would make",
		Long: `Compute and display the diff plan for one instance without applying
anything. Conflicts and warnings are shown inline; preview never blocks on
them and never touches the remote instance.`,
		Args: cobra.ExactArgs(2),
		RunE: runPreview,
	}
	return cmd
}

func runPreview(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	templateID, instanceID := args[0], args[1]

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	eng := initEngine(store)
	plan, err := eng.Preview(ctx, instanceID, templateID)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}

	fmt.Print(cli.RenderPlan(plan)) //nolint:forbidigo // User-facing output
	return nil
}
