package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"storyvoice/internal/api"
	"storyvoice/internal/audio"
	"storyvoice/internal/capture"
	"storyvoice/internal/config"
	"storyvoice/internal/logging"
	"storyvoice/internal/services"
	"storyvoice/internal/session"
	"storyvoice/internal/store"
	"storyvoice/internal/uploadcheck"
)

type commandContext struct {
	configFlag  *string
	verboseFlag *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	// Overrides used by tests; nil selects the configured implementation.
	httpClient api.HTTPDoer
	opener     capture.Opener
	scheduler  session.Scheduler
	player     audio.Player
}

func newCommandContext(configFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		verboseFlag: verboseFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "load config", "", err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "cli", "prepare directories", "", err)
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg := c.configValue()
		if cfg != nil && c.verboseFlag != nil && *c.verboseFlag {
			clone := *cfg
			clone.Logging.Level = "debug"
			cfg = &clone
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging unavailable: %v\n", err)
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) apiClient() *api.Client {
	cfg := c.configValue()
	if c.httpClient != nil {
		return api.NewClient(cfg.API.BaseURL, c.httpClient, api.WithLogger(c.log()))
	}
	return api.NewConfiguredClient(cfg, c.log())
}

func (c *commandContext) httpDoer() api.HTTPDoer {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: c.configValue().RequestTimeout()}
}

func (c *commandContext) openStore() (*store.Store, error) {
	return store.Open(c.configValue())
}

func (c *commandContext) audioPlayer() audio.Player {
	if c.player != nil {
		return c.player
	}
	cfg := c.configValue()
	if len(cfg.Playback.Command) == 0 {
		return nil
	}
	return audio.NewExecPlayer(cfg.Playback.Command)
}

// storySession is an open story screen: the controller, its audio manager
// and the per-story lock that keeps a second invocation off the same story.
type storySession struct {
	ctrl  *session.Controller
	audio *audio.Manager
	lock  *flock.Flock
}

func (s *storySession) Close() {
	s.ctrl.Close()
	s.audio.Close()
	_ = s.lock.Unlock()
}

func (c *commandContext) openSession(storyID string, opts ...session.Option) (*storySession, error) {
	cfg := c.configValue()
	storyID = strings.TrimSpace(storyID)
	if storyID == "" {
		return nil, services.Wrap(services.ErrValidation, "cli", "open session", "story id is required", nil)
	}

	lock, err := lockStory(cfg.LockDir(), storyID)
	if err != nil {
		return nil, err
	}

	mgr, err := audio.NewManager(cfg.Paths.CacheDir, audio.WithLogger(c.log()))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	opener := c.opener
	if opener == nil {
		opener = capture.NewExecOpener(cfg.Capture.Command)
	}
	base := []session.Option{
		session.WithUserID(cfg.API.UserID),
		session.WithOpener(opener),
		session.WithPolicy(uploadcheck.NewPolicy(cfg.Upload.AllowedTypes, cfg.Upload.MaxBytes)),
		session.WithMaxCapture(cfg.MaxCaptureDuration()),
		session.WithLogger(c.log()),
	}
	if c.scheduler != nil {
		base = append(base, session.WithScheduler(c.scheduler))
	}
	ctrl := session.New(session.StoryRef{ID: storyID}, c.apiClient(), mgr, append(base, opts...)...)
	return &storySession{ctrl: ctrl, audio: mgr, lock: lock}, nil
}

func lockStory(dir, storyID string) (*flock.Flock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(filepath.Join(dir, "story-"+lockName(storyID)+".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire story lock: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrValidation, "cli", "open session",
			fmt.Sprintf("story %s is already open in another storyvoice session", storyID), nil)
	}
	return lock, nil
}

// lockName escapes storyID into a filename; distinct ids never share a lock.
func lockName(storyID string) string {
	return url.QueryEscape(storyID)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
