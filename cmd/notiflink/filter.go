package main

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"notiflink/internal/storage"
)

func newFilterCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Manage per-source content filters",
	}

	var (
		mode    string
		submode string
	)
	set := &cobra.Command{
		Use:   "set <source> <word>...",
		Short: "Create or replace the filter of a source",
		Long: `Set stores a whitelist or blacklist for one source application. With
submode "all" every word must appear in title+body, with "any" one is enough.
Words are matched case-sensitively.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := storage.ParseFilterMode(mode)
			if err != nil {
				return err
			}
			sm, err := storage.ParseFilterSubmode(submode)
			if err != nil {
				return err
			}
			return opts.withStore(func(ctx context.Context, st storage.Store) error {
				rec, err := st.PutFilter(ctx, storage.FilterRecord{Source: args[0], Mode: m, Submode: sm}, args[1:])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "filter %d: %s %s/%s (%d words)\n", rec.ID, rec.Source, rec.Mode, rec.Submode, len(args)-1)
				return nil
			})
		},
	}
	set.Flags().StringVarP(&mode, "mode", "m", "blacklist", "whitelist or blacklist")
	set.Flags().StringVarP(&submode, "submode", "s", "any", "all or any")

	list := &cobra.Command{
		Use:   "list",
		Short: "List filters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(func(ctx context.Context, st storage.Store) error {
				recs, err := st.ListFilters(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSOURCE\tMODE\tSUBMODE\tWORDS")
				for _, r := range recs {
					words, err := st.LookupFilterEntries(ctx, r.ID)
					if err != nil {
						return err
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Source, r.Mode, r.Submode, strings.Join(words, ","))
				}
				return tw.Flush()
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <source>",
		Short: "Delete the filter of a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(ctx context.Context, st storage.Store) error {
				ok, err := st.DeleteFilter(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no filter for %q", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "filter deleted: %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(set, list, del)
	return cmd
}
