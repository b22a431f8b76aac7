package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"notiflink/internal/storage"
)

func newMuteCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mute",
		Short: "Manage muted source applications",
	}

	add := &cobra.Command{
		Use:   "add <source>...",
		Short: "Mute sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(ctx context.Context, st storage.Store) error {
				for _, src := range args {
					if err := st.AddMute(ctx, src); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "muted: %s\n", src)
				}
				return nil
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List muted sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withStore(func(ctx context.Context, st storage.Store) error {
				srcs, err := st.ListMuted(ctx)
				if err != nil {
					return err
				}
				for _, s := range srcs {
					fmt.Fprintln(cmd.OutOrStdout(), s)
				}
				return nil
			})
		},
	}

	remove := &cobra.Command{
		Use:   "remove <source>",
		Short: "Unmute a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStore(func(ctx context.Context, st storage.Store) error {
				ok, err := st.RemoveMute(ctx, args[0])
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%q is not muted", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "unmuted: %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(add, list, remove)
	return cmd
}
