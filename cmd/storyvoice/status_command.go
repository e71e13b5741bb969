package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyvoice/internal/api"
	"storyvoice/internal/audio"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <story-id>",
		Short: "Show a story and the processing state of your narration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.ctrl.Load(cmd.Context()); err != nil {
				return err
			}
			st := sess.ctrl.Snapshot()
			narration := st.AudioOrigin == audio.OriginCanonical

			if asJSON {
				others := st.Others
				if others == nil {
					others = []api.Recording{}
				}
				return writeJSON(cmd, sessionJSON{
					StoryID:     st.Story.ID,
					Title:       st.Story.Title,
					Description: st.Story.Description,
					Exists:      st.Exists,
					Status:      st.Status,
					Narration:   narration,
					Others:      others,
				})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			printSection(out, st.Story.Title, colorize)
			if st.Story.Description != "" {
				fmt.Fprintln(out, st.Story.Description)
				fmt.Fprintln(out)
			}
			label, kind := narrationStatus(st.Status)
			fmt.Fprintln(out, renderStatusLine("Narration", kind, label, colorize))
			audioKind, audioLabel := statusInfo, "not available"
			if narration {
				audioKind, audioLabel = statusOK, "available (storyvoice play "+st.Story.ID+")"
			}
			fmt.Fprintln(out, renderStatusLine("Audio", audioKind, audioLabel, colorize))
			fmt.Fprintln(out, renderStatusLine("Other recordings", statusInfo, fmt.Sprintf("%d", len(st.Others)), colorize))
			if st.Error != "" {
				fmt.Fprintln(out, renderStatusLine("Error", statusError, st.Error, colorize))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
