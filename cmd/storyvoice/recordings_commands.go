package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"storyvoice/internal/api"
	"storyvoice/internal/services"
	"storyvoice/internal/session"
	"storyvoice/internal/store"
)

func newRecordingsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recordings",
		Short: "Manage recordings",
	}
	cmd.AddCommand(newRecordingsDeleteCommand(ctx))
	cmd.AddCommand(newRecordingsOthersCommand(ctx))
	cmd.AddCommand(newRecordingsDownloadCommand(ctx))
	return cmd
}

func newRecordingsDeleteCommand(ctx *commandContext) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <recording-id>",
		Short: "Delete one of your recordings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recordingID := strings.TrimSpace(args[0])
			out := cmd.OutOrStdout()

			dash, err := ctx.loadDashboard(cmd.Context())
			if err != nil {
				return err
			}
			if !slices.ContainsFunc(dash.Recordings(), func(r api.Recording) bool { return r.RecordingID == recordingID }) {
				return services.Wrap(services.ErrNotFound, "cli", "delete recording", fmt.Sprintf("recording %s not found", recordingID), nil)
			}
			if !yes && !confirm(cmd.Context(), out, newLineReader(cmd.InOrStdin()), fmt.Sprintf("Delete recording %s?", recordingID)) {
				fmt.Fprintln(out, "Nothing deleted")
				return nil
			}
			if err := dash.DeleteRecording(cmd.Context(), recordingID); err != nil {
				return err
			}
			ctx.withStore(func(st *store.Store) error { return st.PurgeRecording(cmd.Context(), recordingID) })
			fmt.Fprintf(out, "Deleted recording %s\n", recordingID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newRecordingsOthersCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "others <story-id>",
		Short: "List every user's recordings of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.ctrl.SwitchInput(cmd.Context(), session.InputOthers); err != nil {
				return err
			}
			others := sess.ctrl.Snapshot().Others
			if asJSON {
				if others == nil {
					others = []api.Recording{}
				}
				return writeJSON(cmd, others)
			}
			out := cmd.OutOrStdout()
			if len(others) == 0 {
				fmt.Fprintln(out, "No recordings of this story yet")
				return nil
			}
			fmt.Fprintln(out, renderRecordings(others))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRecordingsDownloadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download <story-id>",
		Short: "Print the download link of your narration of a story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			storyID := strings.TrimSpace(args[0])
			dash, err := ctx.loadDashboard(cmd.Context())
			if err != nil {
				return err
			}
			recordings := dash.Recordings()
			idx := slices.IndexFunc(recordings, func(r api.Recording) bool { return r.StoryID == storyID })
			if idx < 0 {
				return services.Wrap(services.ErrNotFound, "cli", "download", fmt.Sprintf("you have not recorded story %s", storyID), nil)
			}
			url, warning := dash.Download(recordings[idx])
			out := cmd.OutOrStdout()
			if warning != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), warning)
			}
			fmt.Fprintln(out, url)
			return nil
		},
	}
}
