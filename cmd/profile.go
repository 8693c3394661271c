package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage profiles",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List profiles; the current one is marked with *",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				names, err := a.Store().ListProfiles(cmd.Context())
				if err != nil {
					return err
				}
				current := a.Store().CurrentProfile()
				for _, name := range names {
					marker := " "
					if name == current {
						marker = "*"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "create NAME",
			Short: "Create a profile and switch to it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if !a.Store().CreateProfile(cmd.Context(), args[0]) {
					return fmt.Errorf("cannot create profile %q: invalid or already exists", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created profile %s\n", args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a profile and its statuses",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if !a.Store().DeleteProfile(cmd.Context(), args[0]) {
					return fmt.Errorf("cannot delete profile %q: unknown or last profile", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted profile %s; current profile is %s\n",
					args[0], a.Store().CurrentProfile())
				return nil
			},
		},
		&cobra.Command{
			Use:   "switch NAME",
			Short: "Make NAME the current profile",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := resolveApp(cmd.Context())
				if err != nil {
					return err
				}
				if err := a.Store().SwitchProfile(cmd.Context(), args[0]); err != nil {
					return err
				}
				if a.Store().CurrentProfile() != args[0] {
					return fmt.Errorf("unknown profile %q", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Switched to profile %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}
