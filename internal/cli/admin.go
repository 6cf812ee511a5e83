package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iliyamo/childcare-checkin/internal/store"
)

// withStore opens the backend and a store for one-shot commands.
func withStore(ctx context.Context, opts *RootOptions, fn func(*store.Store) error) error {
	backend, err := opts.OpenBackend(ctx, opts.log())
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	cfg := store.DefaultConfig()
	cfg.DeviceID = opts.DeviceID
	st := store.New(backend.Remote,
		store.WithConfig(cfg),
		store.WithPrefs(backend.Prefs),
		store.WithLogger(opts.log()))
	defer func() { _ = st.Close() }()
	return fn(st)
}

func newVenuesCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "venues",
		Short: "List venues",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(st *store.Store) error {
				if err := st.RefreshVenues(cmd.Context()); err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tREGISTERED")
				for _, v := range st.Snapshot().Venues {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", v.ID, v.Name, v.RegisteredAt.Format("2006-01-02"))
				}
				return tw.Flush()
			})
		},
	}
}

func newPurgeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <venue-id>",
		Short: "Delete every child, service record and usage day of a venue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(st *store.Store) error {
				purged, err := st.PurgeVenueData(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if purged {
					fmt.Fprintln(cmd.OutOrStdout(), "cleaned successfully")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "nothing to clean")
				}
				return nil
			})
		},
	}
}

func newEmergencyCommand(opts *RootOptions) *cobra.Command {
	var off bool
	cmd := &cobra.Command{
		Use:   "emergency <child-id>",
		Short: "Raise or clear the emergency flag of a child",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(st *store.Store) error {
				c, err := st.SetEmergency(cmd.Context(), args[0], !off)
				if err != nil {
					return err
				}
				state := "raised"
				if !c.EmergencyActive {
					state = "cleared"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "emergency %s for %s (%s %s)\n", state, c.Name, c.GuardianName, c.GuardianPhone)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&off, "clear", false, "clear instead of raising")
	return cmd
}
