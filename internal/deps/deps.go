package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"storyvoice/internal/config"
)

// Requirement defines an external binary storyvoice shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the binaries the configured capture and playback
// commands need. Playback is optional: recording and uploading work without it.
func Requirements(cfg *config.Config) []Requirement {
	if cfg == nil {
		return nil
	}
	return []Requirement{
		{
			Name:        "Capture",
			Command:     firstArg(cfg.Capture.Command),
			Description: "Required for microphone recording",
		},
		{
			Name:        "Playback",
			Command:     firstArg(cfg.Playback.Command),
			Description: "Plays recordings and narrations",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

func firstArg(command []string) string {
	if len(command) == 0 {
		return ""
	}
	return strings.TrimSpace(command[0])
}
