package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"templarr/internal/cli"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := initStorage(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					slog.Error("failed to close storage", "error", closeErr)
				}
			}()
			fmt.Println(cli.SuccessStyle.Render("database is up to date")) //nolint:forbidigo // User-facing output
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println("templarr " + version) //nolint:forbidigo // User-facing output
		},
	}
}
