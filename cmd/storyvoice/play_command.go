package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"storyvoice/internal/audio"
	"storyvoice/internal/config"
	"storyvoice/internal/services"
	"storyvoice/internal/session"
)

func newPlayCommand(ctx *commandContext) *cobra.Command {
	var recordingID string
	var outputPath string

	cmd := &cobra.Command{
		Use:   "play <story-id>",
		Short: "Play your narration of a story, or another user's recording with --recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := ctx.openSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()
			ctrl := sess.ctrl
			runCtx := cmd.Context()

			if err := ctrl.Load(runCtx); err != nil {
				return err
			}

			var handle *audio.Handle
			if id := strings.TrimSpace(recordingID); id != "" {
				if err := ctrl.SwitchInput(runCtx, session.InputOthers); err != nil {
					return err
				}
				handle, err = ctrl.PlayRecording(runCtx, id)
			} else {
				handle, err = ctrl.PlayCanonical(runCtx)
			}
			if err != nil {
				return err
			}
			defer ctrl.FinishPlayback()

			out := cmd.OutOrStdout()
			if target := strings.TrimSpace(outputPath); target != "" {
				return saveAudio(out, handle, target)
			}
			player := ctx.audioPlayer()
			if player == nil {
				return services.Wrap(services.ErrConfiguration, "cli", "play",
					"playback.command is not configured; use --output to save the audio instead", nil)
			}
			fmt.Fprintf(out, "Playing %s\n", playbackLabel(ctrl.Snapshot()))
			return player.Play(runCtx, handle)
		},
	}
	cmd.Flags().StringVarP(&recordingID, "recording", "r", "", "Play this recording from the story's other recordings")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the audio to a file instead of playing it")
	return cmd
}

func playbackLabel(st session.State) string {
	if st.Overridden {
		return fmt.Sprintf("recording %s of \"%s\"", st.Selected, st.Story.Title)
	}
	return fmt.Sprintf("your narration of \"%s\"", st.Story.Title)
}

func saveAudio(out io.Writer, h *audio.Handle, target string) error {
	target, err := config.ExpandPath(target)
	if err != nil {
		return err
	}
	src, err := os.Open(h.Location())
	if err != nil {
		return fmt.Errorf("open audio: %w", err)
	}
	defer src.Close()
	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("write %s: %w", target, err)
	}
	if err := dst.Close(); err != nil {
		return fmt.Errorf("write %s: %w", target, err)
	}
	fmt.Fprintf(out, "Saved %d bytes to %s\n", h.Size(), target)
	return nil
}
