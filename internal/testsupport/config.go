package testsupport

import (
	"path/filepath"
	"testing"

	"storyvoice/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.API.UserID = "test-user"
	cfgVal.API.BaseURL = "http://127.0.0.1:0"
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}


// WithBaseURL points the test config at a backend, usually an httptest server.
func WithBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.BaseURL = url
	}
}

// WithCaptureCommand overrides the microphone command.
func WithCaptureCommand(command ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.Command = append([]string(nil), command...)
	}
}

// WithPlaybackCommand overrides the player command.
func WithPlaybackCommand(command ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playback.Command = append([]string(nil), command...)
	}
}
