package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/questledger/internal/catalog"
	"github.com/JakeFAU/questledger/internal/store"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show or change entry statuses for the current profile",
	}
	cmd.AddCommand(newStatusListCmd(), newStatusSetCmd())
	return cmd
}

func newStatusListCmd() *cobra.Command {
	var (
		category string
		state    string
		search   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries with their status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			var only *store.State
			if state != "" {
				parsed, err := store.ParseState(state)
				if err != nil {
					return err
				}
				only = &parsed
			}
			cat, err := a.Store().LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			categories := cat.Categories(a.CategoryOrder())
			if category != "" {
				if _, ok := cat[category]; !ok {
					return fmt.Errorf("unknown category %q", category)
				}
				categories = []string{category}
			}
			statuses, err := a.Store().Statuses(cmd.Context())
			if err != nil {
				return err
			}
			filter := entryFilter{state: only, search: strings.ToLower(search)}
			for _, name := range categories {
				printCategory(cmd.OutOrStdout(), name, cat[name], statuses, filter)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "only list this category")
	cmd.Flags().StringVar(&state, "state", "", "only list entries in this state")
	cmd.Flags().StringVar(&search, "search", "", "only list entries containing this text")
	return cmd
}

type entryFilter struct {
	state  *store.State
	search string
}

func (f entryFilter) match(name string, st store.Status) bool {
	if f.state != nil && st.State != *f.state {
		return false
	}
	return f.search == "" || strings.Contains(strings.ToLower(name), f.search)
}

// printCategory writes one category. Section markers are printed only when
// an entry below them matches the filter.
func printCategory(w io.Writer, name string, entries []catalog.Entry, statuses map[string]store.Status, f entryFilter) {
	fmt.Fprintf(w, "== %s ==\n", name)
	pending := ""
	for _, e := range entries {
		if e.IsSection() {
			pending = string(e)
			continue
		}
		st := statuses[string(e)]
		if !f.match(string(e), st) {
			continue
		}
		if pending != "" {
			fmt.Fprintln(w, pending)
			pending = ""
		}
		line := fmt.Sprintf("%s %s", stateMark(st.State), e)
		if st.Timestamp != "" {
			line += "  (" + st.Timestamp + ")"
		}
		fmt.Fprintln(w, line)
	}
}

func stateMark(s store.State) string {
	switch s {
	case store.Completed:
		return "[x]"
	case store.InProgress:
		return "[~]"
	default:
		return "[ ]"
	}
}

func newStatusSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set STATE ENTRY...",
		Short: "Set the status of one or more entries (not_started, in_progress, completed)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			state, err := store.ParseState(args[0])
			if err != nil {
				return err
			}
			entries := args[1:]
			if err := a.Store().SetStatuses(cmd.Context(), entries, state); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d entries %s for %s\n",
				len(entries), state, a.Store().CurrentProfile())
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset CATEGORY",
		Short: "Clear every status of a category for the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cat, err := a.Store().LoadCatalog(cmd.Context())
			if err != nil {
				return err
			}
			if _, ok := cat[args[0]]; !ok {
				return fmt.Errorf("unknown category %q", args[0])
			}
			removed, err := a.Store().ResetCategory(cmd.Context(), args[0], cat)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d entries in %s\n", removed, args[0])
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List completed entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			history, err := a.Store().History(cmd.Context())
			if err != nil {
				return err
			}
			for _, h := range history {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", h.Timestamp, h.Entry)
			}
			return nil
		},
	}
}
