package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"

	"storyvoice/internal/api"
	"storyvoice/internal/logging"
	"storyvoice/internal/services"
)

const (
	msgTitleRequired   = "Please enter a title for the story"
	msgTitleTooLong    = "Story title cannot exceed 300 characters"
	msgDescTooLong     = "Story description cannot exceed 5000 characters"
	msgNotProcessedYet = "This recording may not be fully processed yet. If you cannot download it, please try again later."
)

// Gateway is the subset of the backend used by the dashboard.
type Gateway interface {
	ListStories(ctx context.Context) ([]api.Story, error)
	CreateStory(ctx context.Context, req api.CreateStoryRequest) (string, error)
	DeleteStory(ctx context.Context, storyID string) error
	ListUserRecordings(ctx context.Context, uid string) ([]api.Recording, error)
	RecordingStatus(ctx context.Context, uid string) (json.RawMessage, error)
	DeleteRecording(ctx context.Context, recordingID string) error
	StoryAudioURL(uid, storyID string) string
}

// Option customizes a Loader.
type Option func(*Loader)

// WithLogger sets the catalog logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logging.NewComponentLogger(logger, "catalog") }
}

// WithClock overrides the time source used to stamp created stories.
func WithClock(clock func() time.Time) Option {
	return func(l *Loader) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// Loader builds dashboards from the backend.
type Loader struct {
	gw       Gateway
	logger   *slog.Logger
	clock    func() time.Time
	validate *validator.Validate
}

// NewLoader returns a loader for gw.
func NewLoader(gw Gateway, opts ...Option) *Loader {
	l := &Loader{
		gw:       gw,
		logger:   logging.NewComponentLogger(nil, "catalog"),
		clock:    time.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load fetches the catalog and uid's recordings and reconciles them. A
// catalog failure aborts the load with a single transport error. A failed
// recordings fetch degrades to "no recordings": 404 silently, anything else
// with a warning and RecordingsDegraded set.
func (l *Loader) Load(ctx context.Context, uid string) (*Dashboard, error) {
	d := &Dashboard{loader: l, uid: strings.TrimSpace(uid)}
	if err := d.Reload(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Dashboard is a user's reconciled catalog plus the actions that change it.
// Actions confirm with the backend before touching local state.
type Dashboard struct {
	loader *Loader
	uid    string

	mu         sync.Mutex
	stories    []api.Story
	recordings []api.Recording
	view       View
	degraded   bool
	status     json.RawMessage
}

// Reload refetches everything. On failure the previous view is kept.
func (d *Dashboard) Reload(ctx context.Context) error {
	l := d.loader
	logger := logging.WithContext(ctx, l.logger)

	stories, err := l.gw.ListStories(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransport, "catalog", "load", "unable to load stories", err)
	}

	degraded := false
	recordings, err := l.gw.ListUserRecordings(ctx, d.uid)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrNotFound):
		logger.Debug("user has no recordings")
		recordings = nil
	default:
		logging.WarnWithContext(logger, "user recordings unavailable", "recordings_fallback",
			logging.Error(err),
			logging.String(logging.FieldImpact, "every story shown as available"),
		)
		recordings = nil
		degraded = true
	}

	status, err := l.gw.RecordingStatus(ctx, d.uid)
	if err != nil {
		logger.Debug("recording status unavailable", logging.Error(err))
		status = nil
	} else {
		logger.Debug("recording status", logging.String("payload", string(status)))
	}

	d.mu.Lock()
	d.stories = stories
	d.recordings = recordings
	d.degraded = degraded
	d.status = status
	d.view = Reconcile(d.stories, d.recordings)
	d.mu.Unlock()

	logger.Info("catalog loaded",
		logging.Int("stories", len(stories)),
		logging.Int("recordings", len(recordings)),
	)
	return nil
}

// View returns a copy of the reconciled view.
func (d *Dashboard) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	return View{Available: slices.Clone(d.view.Available), Mine: slices.Clone(d.view.Mine)}
}

// Stories returns the last fetched catalog.
func (d *Dashboard) Stories() []api.Story {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.stories)
}

// Recordings returns the user's recordings.
func (d *Dashboard) Recordings() []api.Recording {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.recordings)
}

// RecordingsDegraded reports whether the recordings list failed with
// something other than 404 and was replaced by an empty list.
func (d *Dashboard) RecordingsDegraded() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.degraded
}

// Status returns the informational recording status payload, if any.
func (d *Dashboard) Status() json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.status)
}

// UserID returns the dashboard owner.
func (d *Dashboard) UserID() string {
	return d.uid
}

// DeleteRecording removes a recording. Unknown ids are ignored. On backend
// failure the view is unchanged. On success the view is recomputed from a
// fresh catalog, so deleting a story's last recording re-admits the story
// into Available.
func (d *Dashboard) DeleteRecording(ctx context.Context, recordingID string) error {
	d.mu.Lock()
	idx := slices.IndexFunc(d.recordings, func(r api.Recording) bool { return r.RecordingID == recordingID })
	d.mu.Unlock()
	if idx < 0 {
		return nil
	}

	logger := logging.WithContext(ctx, d.loader.logger).With(logging.String(logging.FieldRecordingID, recordingID))
	if err := d.loader.gw.DeleteRecording(ctx, recordingID); err != nil {
		return services.Wrap(services.ErrTransport, "catalog", "delete recording", "Unable to delete recording", err)
	}

	d.mu.Lock()
	d.recordings = slices.DeleteFunc(d.recordings, func(r api.Recording) bool { return r.RecordingID == recordingID })
	d.mu.Unlock()

	d.refreshCatalog(ctx, logger, "")
	logger.Info("recording deleted")
	return nil
}

// DeleteStory removes a story and, with it, every local copy of its
// recordings. On backend failure the view is unchanged.
func (d *Dashboard) DeleteStory(ctx context.Context, storyID string) error {
	logger := logging.WithContext(services.WithStoryID(ctx, storyID), d.loader.logger)
	if err := d.loader.gw.DeleteStory(ctx, storyID); err != nil {
		return services.Wrap(services.ErrTransport, "catalog", "delete story", "Unable to delete story", err)
	}

	d.mu.Lock()
	d.recordings = slices.DeleteFunc(d.recordings, func(r api.Recording) bool { return r.StoryID == storyID })
	d.mu.Unlock()

	d.refreshCatalog(ctx, logger, storyID)
	logger.Info("story deleted")
	return nil
}

// refreshCatalog refetches the catalog and recomputes the view. When the
// fetch fails the last catalog is reused, minus removedStory.
func (d *Dashboard) refreshCatalog(ctx context.Context, logger *slog.Logger, removedStory string) {
	stories, err := d.loader.gw.ListStories(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		logging.WarnWithContext(logger, "catalog refresh failed", "catalog_refresh_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "view recomputed from the previous catalog"),
		)
		stories = slices.Clone(d.stories)
	}
	if removedStory != "" {
		stories = slices.DeleteFunc(stories, func(s api.Story) bool { return s.StoryID == removedStory })
	}
	d.stories = stories
	d.view = Reconcile(d.stories, d.recordings)
}

// CreateStory validates and submits a new story. The title is trimmed and
// NFC-normalized; a blank title is rejected without a network call. The new
// story is placed first in Available.
func (d *Dashboard) CreateStory(ctx context.Context, title, description string) (api.Story, error) {
	req := api.CreateStoryRequest{
		Title:       norm.NFC.String(strings.TrimSpace(title)),
		Description: norm.NFC.String(strings.TrimSpace(description)),
	}
	if err := d.loader.validateStory(req); err != nil {
		return api.Story{}, err
	}

	id, err := d.loader.gw.CreateStory(ctx, req)
	if err != nil {
		return api.Story{}, services.Wrap(services.ErrTransport, "catalog", "create story", "Unable to add story", err)
	}
	story := api.Story{
		StoryID:     id,
		Title:       req.Title,
		Description: req.Description,
		CreatedAt:   api.Timestamp{Time: d.loader.clock().UTC()},
	}

	d.mu.Lock()
	d.stories = append([]api.Story{story}, slices.DeleteFunc(d.stories, func(s api.Story) bool { return s.StoryID == id })...)
	d.view = Reconcile(d.stories, d.recordings)
	d.mu.Unlock()

	logging.WithContext(services.WithStoryID(ctx, id), d.loader.logger).Info("story created",
		logging.String("title", story.Title),
	)
	return story, nil
}

// Download returns the URL of the user's narration of a recorded story and
// a warning when the recording is not processed yet.
func (d *Dashboard) Download(rec api.Recording) (url string, warning string) {
	url = d.loader.gw.StoryAudioURL(d.uid, rec.StoryID)
	if !rec.Processed {
		warning = msgNotProcessedYet
	}
	return url, warning
}

func (l *Loader) validateStory(req api.CreateStoryRequest) error {
	err := l.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return services.Wrap(services.ErrValidation, "catalog", "create story", "invalid story", err)
	}
	first := verrs[0]
	msg := first.Error()
	switch {
	case first.Field() == "Title" && first.Tag() == "required":
		msg = msgTitleRequired
	case first.Field() == "Title" && first.Tag() == "max":
		msg = msgTitleTooLong
	case first.Field() == "Description" && first.Tag() == "max":
		msg = msgDescTooLong
	}
	return &ValidationError{Field: first.Field(), Message: msg}
}

// ValidationError reports invalid story input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string       { return e.Message }
func (e *ValidationError) UserMessage() string { return e.Message }

// Is lets errors.Is(err, services.ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == services.ErrValidation
}
