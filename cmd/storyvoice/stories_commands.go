package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"storyvoice/internal/api"
	"storyvoice/internal/catalog"
	"storyvoice/internal/logging"
	"storyvoice/internal/store"
)

func newStoriesCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Show your recorded stories and the stories still available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash, err := ctx.loadDashboard(cmd.Context())
			if err != nil {
				return err
			}
			ctx.mirror(cmd.Context(), dash)

			view := dash.View()
			if asJSON {
				payload := newDashboardJSON(dash.UserID(), view, dash.Recordings(), dash.RecordingsDegraded())
				payload.RecordingStatus = dash.Status()
				return writeJSON(cmd, payload)
			}
			out := cmd.OutOrStdout()
			renderDashboard(out, view, dash.Recordings(), dash.RecordingsDegraded(), shouldColorize(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	cmd.AddCommand(newStoriesAddCommand(ctx))
	cmd.AddCommand(newStoriesDeleteCommand(ctx))
	return cmd
}

func newStoriesAddCommand(ctx *commandContext) *cobra.Command {
	var title, description string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a story to the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash, err := ctx.loadDashboard(cmd.Context())
			if err != nil {
				return err
			}
			story, err := dash.CreateStory(cmd.Context(), title, description)
			if err != nil {
				return err
			}
			ctx.mirror(cmd.Context(), dash)
			fmt.Fprintf(cmd.OutOrStdout(), "Created story %s: %s\n", story.StoryID, story.Title)
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Story title")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Story description")
	return cmd
}

func newStoriesDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <story-id>",
		Short: "Delete a story and every recording of it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyID := strings.TrimSpace(args[0])
			out := cmd.OutOrStdout()
			if !yes && !confirm(cmd.Context(), out, newLineReader(cmd.InOrStdin()), fmt.Sprintf("Delete story %s and all of its recordings?", storyID)) {
				fmt.Fprintln(out, "Nothing deleted")
				return nil
			}

			dash, err := ctx.loadDashboard(cmd.Context())
			if err != nil {
				return err
			}
			if err := dash.DeleteStory(cmd.Context(), storyID); err != nil {
				return err
			}
			ctx.withStore(func(st *store.Store) error { return st.PurgeStory(cmd.Context(), storyID) })
			fmt.Fprintf(out, "Deleted story %s\n", storyID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func (c *commandContext) loadDashboard(ctx context.Context) (*catalog.Dashboard, error) {
	cfg := c.configValue()
	loader := catalog.NewLoader(c.apiClient(), catalog.WithLogger(c.log()))
	return loader.Load(ctx, cfg.API.UserID)
}

// mirror writes the dashboard to the local store. Failures only cost the
// offline view, so they are logged and swallowed.
func (c *commandContext) mirror(ctx context.Context, dash *catalog.Dashboard) {
	c.withStore(func(st *store.Store) error {
		return st.Save(ctx, store.Snapshot{
			UserID:             dash.UserID(),
			TakenAt:            time.Now(),
			Stories:            dash.Stories(),
			Recordings:         dash.Recordings(),
			RecordingsDegraded: dash.RecordingsDegraded(),
		})
	})
}

func (c *commandContext) withStore(fn func(*store.Store) error) {
	st, err := c.openStore()
	if err == nil {
		defer st.Close()
		err = fn(st)
	}
	if err != nil {
		logging.WarnWithContext(c.log(), "catalog mirror not updated", "mirror_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "'storyvoice cached' may show stale data"),
		)
	}
}

func renderDashboard(out io.Writer, view catalog.View, recordings []api.Recording, degraded bool, colorize bool) {
	printSection(out, "My stories", colorize)
	if len(view.Mine) == 0 {
		fmt.Fprintln(out, "You have not recorded any stories yet")
	} else {
		fmt.Fprintln(out, renderRecorded(view.Mine))
	}
	fmt.Fprintln(out)

	printSection(out, "Available stories", colorize)
	if len(view.Available) == 0 {
		fmt.Fprintln(out, "No stories left to record")
	} else {
		fmt.Fprintln(out, renderAvailable(view.Available))
	}

	if len(recordings) > 0 {
		fmt.Fprintln(out)
		printSection(out, "Recordings", colorize)
		fmt.Fprintln(out, renderRecordings(recordings))
	}
	if degraded {
		fmt.Fprintln(out)
		fmt.Fprintln(out, renderStatusLine("Recordings", statusWarn, "could not be loaded; every story is shown as available", colorize))
	}
}
