package main

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"storyvoice/internal/services"
	"storyvoice/internal/session"
)

func newRecordCommand(ctx *commandContext) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record <story-id>",
		Short: "Record a narration from the microphone and upload it",
		Long: "Record a narration from the microphone. Press Enter (or Ctrl-C) to stop;\n" +
			"the recording is uploaded as soon as it stops.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			live := &liveElapsed{out: out}
			updates := make(chan struct{}, 1)

			opts := []session.Option{session.WithObserver(func(st session.State) {
				live.render(st)
				select {
				case updates <- struct{}{}:
				default:
				}
			})}
			if duration > 0 {
				opts = append(opts, session.WithMaxCapture(duration))
			}
			sess, err := ctx.openSession(args[0], opts...)
			if err != nil {
				return err
			}
			defer sess.Close()
			ctrl := sess.ctrl

			runCtx := cmd.Context()
			if err := ctrl.Load(runCtx); err != nil {
				return err
			}
			state := ctrl.Snapshot()
			if !state.Exists {
				return services.Wrap(services.ErrNotFound, "cli", "record", fmt.Sprintf("story %s does not exist", state.Story.ID), nil)
			}
			fmt.Fprintf(out, "Recording \"%s\"\n", state.Story.Title)

			if err := ctrl.StartCapture(runCtx); err != nil {
				return err
			}
			fmt.Fprintln(out, "Press Enter to stop")
			live.start()

			in := newLineReader(cmd.InOrStdin())
			stopCtx := context.WithoutCancel(runCtx)
			waitForStop(runCtx, ctrl, in, updates)
			live.stop()

			uploadErr := ctrl.StopCapture(stopCtx)
			if err := waitSettled(stopCtx, ctrl, updates); err != nil {
				return err
			}
			return finishUpload(stopCtx, out, in, ctrl, uploadErr)
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop automatically after this long (defaults to capture.max_seconds)")
	return cmd
}

// waitForStop returns when the user presses Enter or Ctrl-C, stdin closes,
// or the session stops capturing on its own.
func waitForStop(ctx context.Context, ctrl *session.Controller, in *lineReader, updates <-chan struct{}) {
	for ctrl.Mode() == session.ModeCapturing {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-in.lines:
			if !ok {
				<-waitNotCapturing(ctx, ctrl, updates)
			}
			return
		case <-updates:
		}
	}
}

func waitNotCapturing(ctx context.Context, ctrl *session.Controller, updates <-chan struct{}) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctrl.Mode() == session.ModeCapturing {
			select {
			case <-ctx.Done():
				return
			case <-updates:
			case <-time.After(100 * time.Millisecond):
			}
		}
	}()
	return done
}

// liveElapsed redraws the MM:SS counter in place while capturing.
type liveElapsed struct {
	mu     sync.Mutex
	out    io.Writer
	active bool
	last   string
}

func (l *liveElapsed) start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = true
	l.last = session.FormatElapsed(0)
	fmt.Fprintf(l.out, "\r● %s", l.last)
}

func (l *liveElapsed) render(st session.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active || st.Mode != session.ModeCapturing {
		return
	}
	elapsed := st.Elapsed()
	if elapsed == l.last {
		return
	}
	l.last = elapsed
	fmt.Fprintf(l.out, "\r● %s", elapsed)
}

func (l *liveElapsed) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active {
		fmt.Fprintln(l.out)
	}
	l.active = false
}
