package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"storyvoice/internal/services"
)

// drainTimeout bounds how long Close waits for the recorder to flush after
// being interrupted before it is killed.
const drainTimeout = 3 * time.Second

// ExecOpener opens the microphone by running a recorder command that writes
// audio to stdout, such as `arecord -t wav -`.
type ExecOpener struct {
	Command []string
}

// NewExecOpener returns an opener for the given command line.
func NewExecOpener(command []string) ExecOpener {
	return ExecOpener{Command: append([]string(nil), command...)}
}

// Open starts the recorder. A missing binary or a failed start is reported
// as services.ErrDeviceUnavailable.
func (o ExecOpener) Open(ctx context.Context) (Source, error) {
	if len(o.Command) == 0 || strings.TrimSpace(o.Command[0]) == "" {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "capture", "open", "capture command not configured", nil)
	}
	binary, err := exec.LookPath(o.Command[0])
	if err != nil {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "capture", "open", fmt.Sprintf("%s not found", o.Command[0]), err)
	}

	cmd := exec.CommandContext(ctx, binary, o.Command[1:]...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "capture", "open", "stdout pipe", err)
	}
	stderr := &limitedBuffer{limit: 4096}
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "capture", "open", "start recorder", err)
	}
	return &execSource{cmd: cmd, stdout: stdout, stderr: stderr, eof: make(chan struct{})}, nil
}

type execSource struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *limitedBuffer

	eof       chan struct{}
	eofOnce   sync.Once
	closeOnce sync.Once
	closeErr  error
}

func (s *execSource) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err != nil {
		s.eofOnce.Do(func() { close(s.eof) })
	}
	return n, err
}

// Close interrupts the recorder so it finalizes its output, waits for the
// reader to drain, and reaps the process.
func (s *execSource) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(os.Interrupt)
		}
		select {
		case <-s.eof:
		case <-time.After(drainTimeout):
			_ = s.cmd.Process.Kill()
		}
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.closeErr = fmt.Errorf("wait recorder: %w", err)
			return
		}
		if exitErr != nil && !exitErr.Exited() {
			// Terminated by our own interrupt.
			return
		}
		if exitErr != nil {
			s.closeErr = fmt.Errorf("recorder exited with %d: %s", exitErr.ExitCode(), strings.TrimSpace(s.stderr.String()))
		}
	})
	return s.closeErr
}

type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
