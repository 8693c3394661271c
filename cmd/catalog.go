package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the entry catalog",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show [CATEGORY]",
		Short: "List categories, or the entries of one category",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cat, err := a.Store().LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(args) == 1 {
				entries, ok := cat[args[0]]
				if !ok {
					return fmt.Errorf("unknown category %q", args[0])
				}
				for _, e := range entries {
					fmt.Fprintln(out, e)
				}
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tENTRIES")
			for _, name := range cat.Categories(a.CategoryOrder()) {
				fmt.Fprintf(tw, "%s\t%d\n", name, len(cat.Trackable(name)))
			}
			return tw.Flush()
		},
	})
	return cmd
}

func newSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show per-category progress for the current profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cat, err := a.Store().LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			sums, err := a.Store().Summary(cmd.Context(), cat, a.CategoryOrder())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Profile: %s\n", a.Store().CurrentProfile())
			fmt.Fprintln(tw, "CATEGORY\tCOMPLETED\tIN PROGRESS\tTOTAL\tPERCENT")
			for _, s := range sums {
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d%%\n", s.Category, s.Completed, s.InProgress, s.Total, s.Percent())
			}
			return tw.Flush()
		},
	}
}

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the page cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			removed := a.Cache().Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached pages\n", removed)
			return nil
		},
	})
	return cmd
}
