package audio

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"storyvoice/internal/services"
)

// Player renders a handle's audio.
type Player interface {
	Play(ctx context.Context, h *Handle) error
}

// ExecPlayer plays audio by running an external command with the handle's
// location appended, for example `ffplay -nodisp -autoexit`.
type ExecPlayer struct {
	Command []string
}

// NewExecPlayer returns a player for the given command line.
func NewExecPlayer(command []string) ExecPlayer {
	return ExecPlayer{Command: append([]string(nil), command...)}
}

// Play blocks until the player exits or ctx is cancelled.
func (p ExecPlayer) Play(ctx context.Context, h *Handle) error {
	if h == nil || h.Location() == "" {
		return services.Wrap(services.ErrNotReady, "audio", "play", "no audio loaded", nil)
	}
	if len(p.Command) == 0 || strings.TrimSpace(p.Command[0]) == "" {
		return services.Wrap(services.ErrConfiguration, "audio", "play", "playback command not configured", nil)
	}
	binary, err := exec.LookPath(p.Command[0])
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "audio", "play", fmt.Sprintf("%s not found", p.Command[0]), err)
	}
	args := append(append([]string(nil), p.Command[1:]...), h.Location())
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil
		}
		detail := strings.TrimSpace(string(output))
		if detail == "" {
			detail = "player failed"
		}
		return services.Wrap(services.ErrTransport, "audio", "play", detail, err)
	}
	return nil
}
