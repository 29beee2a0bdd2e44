package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"templarr/internal/cli"
	"templarr/internal/model"
)

func customizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customize",
		Short: "Manage per-rule customizations",
		Long: `Customizations override a template's defaults for individual rules without
modifying the template itself. They survive re-syncs: a new source version
never discards your exclusions or score overrides.

Use --instance to scope a customization to one instance; otherwise it applies
to the template everywhere.`,
	}
	cmd.PersistentFlags().String("instance", "", "scope to a single instance")

	cmd.AddCommand(customizeScoreCmd())
	cmd.AddCommand(customizeExcludeCmd())
	cmd.AddCommand(customizeIncludeCmd())
	cmd.AddCommand(customizeClearCmd())
	return cmd
}

func customizeScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "score <template-id> <rule-id> <score>",
		Short: "Override a rule's score",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			score, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid score %q: %w", args[2], err)
			}
			if err := model.ValidateScore(score); err != nil {
				return err
			}
			return editCustomizations(cmd, args[0], func(c model.Customizations) model.Customizations {
				return c.WithScore(args[1], score)
			})
		},
	}
}

func customizeExcludeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exclude <template-id> <rule-id>",
		Short: "Exclude a rule from syncs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCustomizations(cmd, args[0], func(c model.Customizations) model.Customizations {
				return c.WithExcluded(args[1], true)
			})
		},
	}
}

func customizeIncludeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "include <template-id> <rule-id>",
		Short: "Explicitly include a rule (e.g. an optional one, or a group member)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCustomizations(cmd, args[0], func(c model.Customizations) model.Customizations {
				return c.WithExcluded(args[1], false)
			})
		},
	}
}

func customizeClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <template-id> <rule-id>",
		Short: "Remove all customizations for a rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCustomizations(cmd, args[0], func(c model.Customizations) model.Customizations {
				return c.Without(args[1])
			})
		},
	}
}

// editCustomizations loads the scoped mapping, applies a pure reducer, and
// saves the result.
func editCustomizations(cmd *cobra.Command, templateID string, edit func(model.Customizations) model.Customizations) error {
	ctx := cmd.Context()
	instanceID, _ := cmd.Flags().GetString("instance")

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("failed to close storage", "error", closeErr)
		}
	}()

	// Customizations for rules outside the template are legal (the rule may
	// return in a later source version) but worth flagging.
	if len(cmd.Flags().Args()) > 1 {
		ruleID := cmd.Flags().Args()[1]
		if tmpl, getErr := store.GetTemplate(ctx, templateID); getErr == nil && tmpl.Rule(ruleID) == nil {
			fmt.Println(cli.WarningStyle.Render(fmt.Sprintf("  ! rule %q is not in the template's current source", ruleID))) //nolint:forbidigo // User-facing output
		}
	}

	current, err := store.GetCustomizations(ctx, templateID, instanceID)
	if err != nil {
		return err
	}
	if err := store.SaveCustomizations(ctx, templateID, instanceID, edit(current)); err != nil {
		return err
	}
	fmt.Println(cli.SuccessStyle.Render("customization saved")) //nolint:forbidigo // User-facing output
	return nil
}
