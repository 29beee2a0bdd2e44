package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"templarr/internal/apply"
	"templarr/internal/cli"
	"templarr/internal/engine"
	"templarr/internal/model"
	"templarr/internal/remote"
)

func applyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <template-id> <instance-id>",
		Short: "Apply a template to an instance",
		Long: `Compute the diff plan against the instance's current state and apply it.

The plan is always re-derived from fresh remote state immediately before
applying, so re-running apply is safe: anything already in place becomes a
no-op. Items are applied independently; a single failure never aborts the
batch, and the result lists every success and failure.

Re-applying to an instance this template was applied to before skips the
confirmation prompt.`,
		Args: cobra.ExactArgs(2),
		RunE: runApply,
	}
	cmd.Flags().Bool("force", false, "apply despite mutually-exclusive conflicts")
	cmd.Flags().Bool("yes", false, "skip the confirmation prompt")
	return cmd
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	templateID, instanceID := args[0], args[1]
	force, _ := cmd.Flags().GetBool("force")
	yes, _ := cmd.Flags().GetBool("yes")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	var bar *progressbar.ProgressBar
	executorConfig := apply.DefaultConfig()
	executorConfig.OnProgress = func(model.ItemKind, string) {
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	eng := engine.New(store, remote.Factory, apply.NewExecutorWithConfig(store, executorConfig))

	plan, err := eng.Preview(ctx, instanceID, templateID)
	if err != nil {
		return fmt.Errorf("preview failed: %w", err)
	}
	fmt.Print(cli.RenderPlan(plan)) //nolint:forbidigo // User-facing output

	if plan.InSync() {
		return nil
	}

	// Re-applies skip confirmation; the target computation is identical.
	tracked, err := store.GetTrackedApplication(ctx, instanceID, templateID)
	if err != nil {
		return err
	}
	if !yes && tracked == nil && !confirm(fmt.Sprintf("Apply %d changes to %s?", plan.Summary.TotalChanges, instanceID)) {
		fmt.Println(cli.SubtleStyle.Render("aborted")) //nolint:forbidigo // User-facing output
		return nil
	}

	bar = progressbar.NewOptions(plan.Summary.TotalChanges,
		progressbar.OptionSetDescription("applying"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish())

	result, err := eng.Apply(ctx, instanceID, templateID, plan, force)
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("apply failed: %w", err)
	}

	fmt.Print(cli.RenderApplyResult(result)) //nolint:forbidigo // User-facing output
	return nil
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt) //nolint:forbidigo // User-facing output
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
