package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"storyvoice/internal/catalog"
	"storyvoice/internal/store"
)

func newCachedCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var clearFlag bool

	cmd := &cobra.Command{
		Use:   "cached",
		Short: "Show the dashboard from the local mirror without contacting the backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer st.Close()
			out := cmd.OutOrStdout()

			if clearFlag {
				if err := st.Clear(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Local mirror cleared")
				return nil
			}

			snap, err := st.Load(cmd.Context(), ctx.configValue().API.UserID)
			if errors.Is(err, store.ErrNoSnapshot) {
				fmt.Fprintln(out, "Nothing mirrored yet; run 'storyvoice stories' first")
				return nil
			}
			if err != nil {
				return err
			}

			view := catalog.Reconcile(snap.Stories, snap.Recordings)
			if asJSON {
				payload := newDashboardJSON(snap.UserID, view, snap.Recordings, snap.RecordingsDegraded)
				taken := snap.TakenAt
				payload.SnapshotAt = &taken
				return writeJSON(cmd, payload)
			}
			fmt.Fprintf(out, "Snapshot taken %s\n\n", snap.TakenAt.Local().Format("2006-01-02 15:04:05"))
			renderDashboard(out, view, snap.Recordings, snap.RecordingsDegraded, shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&clearFlag, "clear", false, "Delete the mirrored snapshot")
	return cmd
}
