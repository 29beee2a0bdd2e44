package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"templarr/internal/cli"
	"templarr/internal/common"
	"templarr/internal/model"
)

func instanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance",
		Short: "Manage remote instances",
	}
	cmd.AddCommand(instanceAddCmd())
	cmd.AddCommand(instanceListCmd())
	cmd.AddCommand(instanceLinkCmd())
	cmd.AddCommand(instanceUnlinkCmd())
	cmd.AddCommand(instanceDeleteCmd())
	return cmd
}

func instanceAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <instance-id>",
		Short: "Register a remote instance",
		Args:  cobra.ExactArgs(1),
		RunE:  runInstanceAdd,
	}
	cmd.Flags().String("name", "", "display name (default: the id)")
	cmd.Flags().String("url", "", "base URL of the instance API")
	cmd.Flags().String("api-key", "", "API key")
	cmd.Flags().String("service", "", "service kind (e.g. sonarr, radarr)")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("api-key")
	return cmd
}

func runInstanceAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	name, _ := cmd.Flags().GetString("name")
	url, _ := cmd.Flags().GetString("url")
	apiKey, _ := cmd.Flags().GetString("api-key")
	service, _ := cmd.Flags().GetString("service")
	if name == "" {
		name = args[0]
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

	instance := &model.Instance{
		ID:          args[0],
		Name:        name,
		URL:         url,
		APIKey:      apiKey,
		ServiceKind: service,
	}
	if err := store.SaveInstance(ctx, instance); err != nil {
		return err
	}
	fmt.Println(cli.SuccessStyle.Render("registered instance " + instance.ID)) //nolint:forbidigo // User-facing output
	return nil
}

func instanceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered instances",
		RunE: func(cmd *cobra.Command, _ []string) error {
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

			instances, err := store.ListInstances(ctx)
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				fmt.Println(cli.SubtleStyle.Render("No instances. Use 'templarr instance add' to register one.")) //nolint:forbidigo // User-facing output
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() {
				if flushErr := w.Flush(); flushErr != nil {
					slog.Error("failed to flush table writer", "error", flushErr)
				}
			}()
			fmt.Fprintln(w, "ID\tNAME\tURL\tSERVICE")
			for _, instance := range instances {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", instance.ID, instance.Name, instance.URL, instance.ServiceKind)
			}
			return nil
		},
	}
}

func instanceLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <instance-id> <template-id>",
		Short: "Link an instance to a template for reconciliation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store storeOps) error {
				err := store.LinkInstance(cmd.Context(), args[0], args[1])
				if errors.Is(err, common.ErrDuplicateEntry) {
					fmt.Println(cli.SubtleStyle.Render(fmt.Sprintf("%s is already linked to %s", args[0], args[1]))) //nolint:forbidigo // User-facing output
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("linked %s to %s", args[0], args[1]))) //nolint:forbidigo // User-facing output
				return nil
			})
		},
	}
}

func instanceUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <instance-id> <template-id>",
		Short: "Remove an instance-template link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store storeOps) error {
				if err := store.UnlinkInstance(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				fmt.Println(cli.SuccessStyle.Render(fmt.Sprintf("unlinked %s from %s", args[0], args[1]))) //nolint:forbidigo // User-facing output
				return nil
			})
		},
	}
}

func instanceDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <instance-id>",
		Short: "Remove an instance registration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(store storeOps) error {
				if err := store.DeleteInstance(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Println(cli.SuccessStyle.Render("deleted " + args[0])) //nolint:forbidigo // User-facing output
				return nil
			})
		},
	}
}
