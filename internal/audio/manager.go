package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"storyvoice/internal/logging"
)

// Origin identifies what produced a handle's audio.
type Origin string

const (
	OriginCapture   Origin = "capture"
	OriginFile      Origin = "file"
	OriginCanonical Origin = "canonical"
	OriginRemote    Origin = "remote_recording"
)

// IsLocal reports whether the origin is the session's own preview.
func (o Origin) IsLocal() bool {
	return o == OriginCapture || o == OriginFile
}

// ErrClosed is returned by Set calls after Close.
var ErrClosed = errors.New("audio manager closed")

// Handle is an opaque reference to playable audio owned by a Manager.
type Handle struct {
	id       string
	origin   Origin
	path     string
	url      string
	size     int64
	released bool
}

// ID returns the handle identifier.
func (h *Handle) ID() string { return h.id }

// Origin returns the source of the audio.
func (h *Handle) Origin() Origin { return h.origin }

// Size returns the byte length for byte-backed handles.
func (h *Handle) Size() int64 { return h.size }

// Location returns what a player should open: a file path or a URL.
func (h *Handle) Location() string {
	if h.path != "" {
		return h.path
	}
	return h.url
}

// Manager owns the single live audio handle of a session. Every Set
// releases the previous handle before acquiring the next one.
type Manager struct {
	dir    string
	logger *slog.Logger

	mu       sync.Mutex
	current  *Handle
	closed   bool
	acquired int
	released int
}

// Option customizes a Manager.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.NewComponentLogger(logger, "audio")
	}
}

// NewManager creates a manager that materializes byte sources under dir.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "storyvoice-audio")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audio cache dir: %w", err)
	}
	m := &Manager{dir: dir, logger: logging.NewComponentLogger(nil, "audio")}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// SetBytes releases the current handle and returns a new one backed by a
// private file containing data.
func (m *Manager) SetBytes(origin Origin, data []byte) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.releaseLocked(m.current)

	id := uuid.NewString()
	ext := mimetype.Detect(data).Extension()
	if ext == "" {
		ext = ".audio"
	}
	path := filepath.Join(m.dir, fmt.Sprintf("%s-%s%s", origin, id, ext))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("materialize audio: %w", err)
	}
	h := &Handle{id: id, origin: origin, path: path, size: int64(len(data))}
	m.current = h
	m.acquired++
	m.logger.Debug("audio handle acquired",
		logging.String("handle", id),
		logging.String("origin", string(origin)),
		logging.Int("bytes", len(data)),
	)
	return h, nil
}

// SetURL releases the current handle and returns one pointing at a remote
// location.
func (m *Manager) SetURL(origin Origin, url string) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	m.releaseLocked(m.current)
	h := &Handle{id: uuid.NewString(), origin: origin, url: strings.TrimSpace(url)}
	m.current = h
	m.acquired++
	return h, nil
}

// Release frees h. Releasing an already released or nil handle is a no-op.
func (m *Manager) Release(h *Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(h)
}

// ReleaseCurrent frees whatever handle is live.
func (m *Manager) ReleaseCurrent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(m.current)
}

func (m *Manager) releaseLocked(h *Handle) {
	if h == nil || h.released {
		return
	}
	h.released = true
	if m.current == h {
		m.current = nil
	}
	m.released++
	if h.path != "" {
		if err := os.Remove(h.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(m.logger, "remove audio file failed", "audio_release_failed",
				logging.String("path", h.path),
				logging.Error(err),
				logging.String(logging.FieldImpact, "stale audio file left in cache directory"),
			)
		}
	}
}

// Current returns the live handle, or nil.
func (m *Manager) Current() *Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Released reports whether h has been freed.
func (m *Manager) Released(h *Handle) bool {
	if h == nil {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return h.released
}

// Overridden reports whether a selected remote recording currently
// replaces the session's own preview.
func (m *Manager) Overridden() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil && m.current.origin == OriginRemote
}

// Live returns the number of handles acquired and not yet released.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquired - m.released
}

// Close releases the live handle and rejects further Set calls.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked(m.current)
	m.closed = true
}
