package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/questledger/internal/app"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version and optionally look for a newer release",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "questledger %s\n", app.Version)
			if !check {
				return nil
			}
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runVersionCheck(cmd.Context(), cmd, a)
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "query the latest published release")
	return cmd
}

func runVersionCheck(ctx context.Context, cmd *cobra.Command, a App) error {
	res, err := a.CheckForUpdate(ctx)
	if err != nil {
		return fmt.Errorf("update check: %w", err)
	}
	out := cmd.OutOrStdout()
	if !res.Newer {
		fmt.Fprintf(out, "Latest release is %s; no update available.\n", res.Latest)
		return nil
	}
	fmt.Fprintf(out, "Update available: %s -> %s\n", res.Current, res.Latest)
	if res.URL != "" {
		fmt.Fprintf(out, "Download: %s\n", res.URL)
	}
	return nil
}
