package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"storyvoice/internal/services"
	"storyvoice/internal/session"
)

// formatCLIError prefers the user-facing text an error carries.
func formatCLIError(err error) string {
	msg := services.UserMessage(err, "")
	if msg == err.Error() {
		return "Error: " + msg
	}
	return fmt.Sprintf("Error: %s (%s)", msg, services.Classify(err))
}

func exitCode(err error) int {
	switch services.Classify(err) {
	case services.KindValidation:
		return 2
	case services.KindConfiguration:
		return 3
	case services.KindDeviceUnavailable:
		return 4
	case services.KindTransport:
		return 5
	case services.KindNotFound:
		return 6
	default:
		return 1
	}
}

// lineReader delivers stdin lines on a channel so waits can also watch the
// context and the session. The channel closes on EOF.
type lineReader struct {
	lines chan string
}

func newLineReader(in io.Reader) *lineReader {
	r := &lineReader{lines: make(chan string)}
	go func() {
		defer close(r.lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			r.lines <- scanner.Text()
		}
	}()
	return r
}

// next returns the next line, or ok=false on EOF or cancellation.
func (r *lineReader) next(ctx context.Context) (string, bool) {
	select {
	case line, ok := <-r.lines:
		return strings.TrimSpace(line), ok
	case <-ctx.Done():
		return "", false
	}
}

// confirm prints prompt and reads a yes/no answer; anything but y/yes is no.
func confirm(ctx context.Context, out io.Writer, in *lineReader, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	answer, ok := in.next(ctx)
	if !ok {
		fmt.Fprintln(out)
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// settled reports whether a session has finished an upload attempt.
func settled(mode session.Mode) bool {
	switch mode {
	case session.ModeCaptureComplete, session.ModeUploading, session.ModeUploadSucceeded, session.ModeCapturing:
		return false
	default:
		return true
	}
}

// waitSettled blocks until the controller leaves the capture and upload
// modes. updates is signalled by the session observer; the poll interval
// covers missed signals.
func waitSettled(ctx context.Context, ctrl *session.Controller, updates <-chan struct{}) error {
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()
	for {
		if settled(ctrl.Mode()) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-updates:
		case <-poll.C:
		}
	}
}

// finishUpload reports the outcome of an upload attempt and offers retries
// while the payload is retained.
func finishUpload(ctx context.Context, out io.Writer, in *lineReader, ctrl *session.Controller, uploadErr error) error {
	for {
		state := ctrl.Snapshot()
		if state.Mode != session.ModeUploadFailed {
			if uploadErr != nil && !errors.Is(uploadErr, session.ErrStale) {
				return uploadErr
			}
			if state.Notice != "" {
				fmt.Fprintln(out, state.Notice)
			}
			return nil
		}
		fmt.Fprintln(out, state.Error)
		if !confirm(ctx, out, in, "Retry upload?") {
			if uploadErr == nil {
				uploadErr = errors.New(state.Error)
			}
			return uploadErr
		}
		uploadErr = ctrl.Retry(ctx)
	}
}
