package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyvoice/internal/services"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <story-id> <file>",
		Short: "Upload a WAV or MP3 narration from disk",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()
			ctrl := sess.ctrl
			runCtx := cmd.Context()
			out := cmd.OutOrStdout()

			if err := ctrl.Load(runCtx); err != nil {
				return err
			}
			state := ctrl.Snapshot()
			if !state.Exists {
				return services.Wrap(services.ErrNotFound, "cli", "upload", fmt.Sprintf("story %s does not exist", state.Story.ID), nil)
			}
			if err := ctrl.StageFilePath(runCtx, args[1]); err != nil {
				return err
			}
			staged := ctrl.Snapshot().Staged
			fmt.Fprintf(out, "Uploading %s (%s, %d bytes) to \"%s\"\n", staged.Name, staged.ContentType, staged.Size, state.Story.Title)

			uploadErr := ctrl.Upload(runCtx)
			return finishUpload(runCtx, out, newLineReader(cmd.InOrStdin()), ctrl, uploadErr)
		},
	}
}
