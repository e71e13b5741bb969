package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"storyvoice/internal/api"
	"storyvoice/internal/audio"
	"storyvoice/internal/capture"
	"storyvoice/internal/logging"
	"storyvoice/internal/services"
	"storyvoice/internal/uploadcheck"
)

// NewStoryID is the placeholder story of a screen that has no backend
// counterpart yet.
const NewStoryID = "new"

const (
	msgMicrophone          = "Unable to access microphone"
	msgNoAudio             = "No audio was captured"
	msgCaptureUploadFailed = "Unable to upload file"
	msgFileUploadFailed    = "Unable to upload audio file"
	msgUploadSucceeded     = "Upload successful! You can listen to your recording or return to the dashboard."
	msgNotProcessed        = "This recording has not been processed, cannot play."
	msgLoadAudio           = "Unable to load audio file"
	msgConnect             = "Unable to connect to server"
	sniffLen               = 3072
)

var (
	// ErrBusy matches operations attempted from a mode that does not allow them.
	ErrBusy = errors.New("session busy")
	// ErrStale is returned when a completion arrived after the session moved
	// on; the result was discarded.
	ErrStale = errors.New("session moved on; result discarded")
	// ErrClosed is returned by operations on a closed controller.
	ErrClosed = errors.New("session closed")
	// ErrNothingStaged is returned by Upload when no payload is staged.
	ErrNothingStaged error = &userError{marker: services.ErrValidation, msg: "Please select an audio file before uploading"}
	// ErrNotProcessed is returned when playing a recording the backend has not processed.
	ErrNotProcessed error = &userError{marker: services.ErrNotReady, msg: msgNotProcessed}
)

type userError struct {
	marker error
	msg    string
}

func (e *userError) Error() string       { return e.msg }
func (e *userError) UserMessage() string { return e.msg }
func (e *userError) Unwrap() error       { return e.marker }

// TransitionError reports an operation attempted from a mode that does not
// allow it. It matches ErrBusy.
type TransitionError struct {
	Op   string
	Mode Mode
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.Mode)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrBusy
}

// Gateway is the subset of the backend used by a recording session.
type Gateway interface {
	ListStories(ctx context.Context) ([]api.Story, error)
	StoryStatus(ctx context.Context, uid, storyID string) (string, error)
	ListStoryRecordings(ctx context.Context, storyID string) ([]api.Recording, error)
	UploadVoice(ctx context.Context, upload api.VoiceUpload) (map[string]any, error)
	FetchStoryAudio(ctx context.Context, uid, storyID string) ([]byte, error)
	FetchRecordingAudio(ctx context.Context, recordingID string) ([]byte, error)
}

// StoryRef identifies the story a session records against.
type StoryRef struct {
	ID          string
	Title       string
	Description string
}

// Staged describes the payload held for upload.
type Staged struct {
	Name        string
	ContentType string
	Size        int
	Origin      audio.Origin
}

// State is a point-in-time copy of a session for rendering.
type State struct {
	Story          StoryRef
	Exists         bool
	Mode           Mode
	Input          InputMode
	Generation     uint64
	ElapsedSeconds int
	Status         string
	Staged         *Staged
	AudioLocation  string
	AudioOrigin    audio.Origin
	Overridden     bool
	Others         []api.Recording
	Selected       string
	Error          string
	Notice         string
}

// Elapsed renders the capture timer as MM:SS.
func (s State) Elapsed() string {
	return FormatElapsed(s.ElapsedSeconds)
}

type stagedPayload struct {
	name        string
	contentType string
	data        []byte
	origin      audio.Origin
	fallback    string
}

// Option customizes a Controller.
type Option func(*Controller)

// WithUserID sets the owner identity sent with uploads and status queries.
func WithUserID(uid string) Option {
	return func(c *Controller) { c.uid = strings.TrimSpace(uid) }
}

// WithOpener sets the microphone opener.
func WithOpener(opener capture.Opener) Option {
	return func(c *Controller) { c.opener = opener }
}

// WithScheduler replaces the wall-clock ticker.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.scheduler = s
		}
	}
}

// WithPolicy sets the staged file policy.
func WithPolicy(p uploadcheck.Policy) Option {
	return func(c *Controller) { c.policy = p }
}

// WithMaxCapture stops a capture automatically after d. Zero disables it.
func WithMaxCapture(d time.Duration) Option {
	return func(c *Controller) { c.maxCapture = d }
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logging.NewComponentLogger(logger, "session") }
}

// WithObserver registers fn to receive a State after every transition and
// timer tick. fn runs without the controller lock held.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observer = fn }
}

// Controller drives the recording session of one open story screen.
// Transitions are serialized by a mutex; gateway calls run with the lock
// released and their completions are applied only if the session
// generation they were dispatched under is still current.
type Controller struct {
	story     StoryRef
	uid       string
	sessionID string
	gw        Gateway
	audio     *audio.Manager
	opener    capture.Opener
	scheduler Scheduler
	policy    uploadcheck.Policy
	logger    *slog.Logger
	observer  func(State)

	maxCapture time.Duration

	mu         sync.Mutex
	mode       Mode
	input      InputMode
	generation uint64
	elapsed    int
	status     string
	exists     bool
	device     *capture.Device
	cancelTick func()
	captureCtx context.Context
	payload    *stagedPayload
	others     []api.Recording
	selected   string
	errMsg     string
	notice     string
	closed     bool
}

// New constructs a controller for story. mgr must not be shared with
// another session.
func New(story StoryRef, gw Gateway, mgr *audio.Manager, opts ...Option) *Controller {
	c := &Controller{
		story:     story,
		sessionID: uuid.NewString(),
		gw:        gw,
		audio:     mgr,
		scheduler: TickerScheduler{},
		policy:    uploadcheck.DefaultPolicy(),
		logger:    logging.NewComponentLogger(nil, "session"),
		mode:      ModeIdle,
		input:     InputRecord,
		exists:    true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load populates the screen: story details, processing status, the
// canonical narration and the other recordings of the story.
func (c *Controller) Load(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen := c.generation
	c.mu.Unlock()
	logger := c.loggerFor(ctx, gen)

	if c.story.ID == NewStoryID {
		c.apply(gen, func() {
			c.story.Title = "New Recording"
			c.story.Description = "Create a new recording for your content"
			c.status = api.StatusNew
		})
		return nil
	}

	stories, err := c.gw.ListStories(ctx)
	if err != nil {
		c.apply(gen, func() { c.errMsg = msgConnect })
		return services.Wrap(services.ErrTransport, "session", "load", msgConnect, err)
	}
	idx := slices.IndexFunc(stories, func(s api.Story) bool { return s.StoryID == c.story.ID })
	if idx < 0 {
		c.apply(gen, func() {
			c.story.Title = "Story #" + c.story.ID
			c.story.Description = "Story does not exist"
			c.status = api.StatusDenial
			c.exists = false
		})
		return nil
	}
	story := stories[idx]

	status, err := c.gw.StoryStatus(ctx, c.uid, c.story.ID)
	if err != nil {
		logging.WarnWithContext(logger, "story status unavailable", "story_status_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "status shown as denial"),
		)
		status = api.StatusDenial
	}
	if !c.apply(gen, func() {
		c.story.Title = story.Title
		c.story.Description = story.Description
		c.status = status
		c.exists = true
	}) {
		return ErrStale
	}

	if data, err := c.gw.FetchStoryAudio(ctx, c.uid, c.story.ID); err != nil {
		logger.Debug("no canonical narration", logging.Error(err))
	} else if len(data) > 0 {
		c.apply(gen, func() {
			if c.mode != ModeIdle {
				return
			}
			if _, err := c.audio.SetBytes(audio.OriginCanonical, data); err != nil {
				logger.Warn("load canonical narration failed", logging.Error(err))
			}
		})
	}

	_, err = c.RefreshOthers(ctx)
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

// StartCapture opens the microphone and starts the elapsed timer. It is a
// no-op unless the session is idle or has a staged file.
func (c *Controller) StartCapture(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.mode.canStartCapture() {
		c.releaseStaleLocked()
		mode := c.mode
		gen := c.generation
		c.mu.Unlock()
		c.loggerFor(ctx, gen).Debug("start capture ignored", logging.String(logging.FieldMode, string(mode)))
		return nil
	}

	captureCtx := context.WithoutCancel(ctx)
	dev, err := capture.Open(ctx, c.opener, capture.WithLogger(c.logger))
	if err != nil {
		c.errMsg = msgMicrophone
		gen := c.generation
		c.mu.Unlock()
		c.notify()
		logging.WarnWithContext(c.loggerFor(ctx, gen), "microphone unavailable", "capture_open_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the capture command and microphone permissions"),
			logging.String(logging.FieldImpact, "recording not started"),
		)
		return err
	}

	c.audio.ReleaseCurrent()
	c.generation++
	gen := c.generation
	c.device = dev
	c.captureCtx = captureCtx
	c.payload = nil
	c.elapsed = 0
	c.mode = ModeCapturing
	c.input = InputRecord
	c.selected = ""
	c.errMsg, c.notice = "", ""
	c.cancelTick = c.scheduler.Every(time.Second, func() { c.tick(gen) })
	c.mu.Unlock()

	c.loggerFor(ctx, gen).Info("capture started")
	c.notify()
	return nil
}

func (c *Controller) tick(gen uint64) {
	c.mu.Lock()
	if c.generation != gen || c.mode != ModeCapturing {
		c.mu.Unlock()
		return
	}
	c.elapsed++
	limitReached := c.maxCapture > 0 && time.Duration(c.elapsed)*time.Second >= c.maxCapture
	ctx := c.captureCtx
	c.mu.Unlock()
	c.notify()

	if limitReached {
		go func() {
			if err := c.stopCapture(ctx, gen); err != nil && !errors.Is(err, ErrStale) {
				logging.ErrorWithContext(c.loggerFor(ctx, gen), "automatic capture stop failed", "capture_stop_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "stop the capture manually and retry"),
				)
			}
		}()
	}
}

// StopCapture finalizes the capture and uploads it. It is a no-op when no
// capture is active.
func (c *Controller) StopCapture(ctx context.Context) error {
	return c.stopCapture(ctx, 0)
}

func (c *Controller) stopCapture(ctx context.Context, onlyGen uint64) error {
	c.mu.Lock()
	if c.mode != ModeCapturing || c.device == nil || (onlyGen != 0 && c.generation != onlyGen) {
		c.mu.Unlock()
		return nil
	}
	gen := c.generation
	logger := c.loggerFor(ctx, gen)
	c.stopTickerLocked()
	dev := c.device
	c.device = nil
	payload, stopErr := dev.Stop()
	if len(payload.Data) == 0 {
		c.mode = ModeIdle
		c.errMsg = msgNoAudio
		c.mu.Unlock()
		c.notify()
		return services.Wrap(services.ErrDeviceUnavailable, "session", "stop capture", "no audio captured", stopErr)
	}
	if stopErr != nil {
		logging.WarnWithContext(logger, "capture ended with error", "capture_stream_failed",
			logging.Error(stopErr),
			logging.String(logging.FieldImpact, "uploading the audio captured so far"),
		)
	}
	if _, err := c.audio.SetBytes(audio.OriginCapture, payload.Data); err != nil {
		logger.Warn("capture preview unavailable", logging.Error(err))
	}
	c.payload = &stagedPayload{
		name:        api.VoiceFileName,
		contentType: "audio/wav",
		data:        payload.Data,
		origin:      audio.OriginCapture,
		fallback:    msgCaptureUploadFailed,
	}
	c.mode = ModeCaptureComplete
	c.mu.Unlock()

	logger.Info("capture complete",
		logging.Int("bytes", len(payload.Data)),
		logging.Duration("duration", payload.Duration),
	)
	c.notify()

	return c.transmit(ctx, func() error {
		if c.mode != ModeCaptureComplete {
			return &TransitionError{Op: "upload capture", Mode: c.mode}
		}
		return nil
	})
}

// StageFile validates data and holds it for an explicit Upload. A rejected
// file leaves the session untouched.
func (c *Controller) StageFile(ctx context.Context, name, mimeType string, data []byte) error {
	c.mu.Lock()
	defer c.notify()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !c.mode.canStage() {
		return &TransitionError{Op: "stage file", Mode: c.mode}
	}
	result := c.policy.Check(mimeType, int64(len(data)))
	if !result.Accepted() {
		c.loggerFor(ctx, c.generation).Info("staged file rejected",
			logging.String("reason", string(result.Reason)),
			logging.String("mime_type", result.MIMEType),
			logging.Int64("size", result.Size),
		)
		return result.Err()
	}
	if _, err := c.audio.SetBytes(audio.OriginFile, data); err != nil {
		return fmt.Errorf("stage preview: %w", err)
	}
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload" + extensionFor(result.MIMEType)
	}
	c.payload = &stagedPayload{
		name:        name,
		contentType: result.MIMEType,
		data:        slices.Clone(data),
		origin:      audio.OriginFile,
		fallback:    msgFileUploadFailed,
	}
	c.mode = ModeFileStaged
	c.input = InputUpload
	c.selected = ""
	c.errMsg, c.notice = "", ""
	return nil
}

// StageFilePath stages a file from disk, detecting its MIME type from the
// name and leading bytes. Oversized files are rejected before being read.
func (c *Controller) StageFilePath(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "session", "stage file", "cannot read file", err)
	}
	if info.IsDir() {
		return services.Wrap(services.ErrValidation, "session", "stage file", fmt.Sprintf("%s is a directory", path), nil)
	}
	f, err := os.Open(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "session", "stage file", "cannot open file", err)
	}
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	f.Close()
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return services.Wrap(services.ErrValidation, "session", "stage file", "cannot read file", err)
	}
	mimeType := uploadcheck.DetectMIME(path, head[:n])
	if result := c.policy.Check(mimeType, info.Size()); !result.Accepted() {
		return result.Err()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return services.Wrap(services.ErrValidation, "session", "stage file", "cannot read file", err)
	}
	return c.StageFile(ctx, filepath.Base(path), mimeType, data)
}

// Upload transmits the staged file, or re-sends a payload retained after a
// failed upload.
func (c *Controller) Upload(ctx context.Context) error {
	return c.transmit(ctx, func() error {
		switch {
		case c.mode == ModeFileStaged && c.payload != nil:
			return nil
		case c.mode == ModeUploadFailed && c.payload != nil:
			return nil
		case c.mode.busy():
			return &TransitionError{Op: "upload", Mode: c.mode}
		default:
			c.errMsg = ErrNothingStaged.Error()
			return ErrNothingStaged
		}
	})
}

// Retry re-sends the payload retained by a failed upload.
func (c *Controller) Retry(ctx context.Context) error {
	return c.transmit(ctx, func() error {
		if c.mode != ModeUploadFailed || c.payload == nil {
			return ErrNothingStaged
		}
		return nil
	})
}

// transmit uploads the retained payload. precondition runs under the lock.
func (c *Controller) transmit(ctx context.Context, precondition func() error) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if err := precondition(); err != nil {
		c.mu.Unlock()
		c.notify()
		return err
	}
	p := c.payload
	gen := c.generation
	c.mode = ModeUploading
	c.errMsg, c.notice = "", ""
	c.mu.Unlock()
	c.notify()

	logger := c.loggerFor(ctx, gen)
	upload := api.VoiceUpload{
		UserID:      c.uid,
		StoryID:     c.story.ID,
		Filename:    p.name,
		ContentType: p.contentType,
		Data:        p.data,
	}
	started := time.Now()
	_, err := c.gw.UploadVoice(ctx, upload)

	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		logger.Info("discarding stale upload completion", logging.Bool("failed", err != nil))
		return ErrStale
	}
	if err != nil {
		c.mode = ModeUploadFailed
		c.errMsg = services.UserMessage(err, p.fallback)
		c.mu.Unlock()
		logging.WarnWithContext(logger, "upload failed", "upload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "retry the upload; the audio is kept"),
			logging.String(logging.FieldImpact, "recording not submitted"),
		)
		c.notify()
		return err
	}
	c.mode = ModeUploadSucceeded
	c.status = api.StatusProcess
	c.payload = nil
	c.mu.Unlock()
	logger.Info("upload complete",
		logging.String("filename", p.name),
		logging.Int("bytes", len(p.data)),
		logging.Duration("elapsed", time.Since(started)),
	)
	c.notify()

	data, fetchErr := c.gw.FetchStoryAudio(ctx, c.uid, c.story.ID)
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return nil
	}
	if fetchErr != nil || len(data) == 0 {
		logger.Debug("canonical narration not refreshed", logging.Error(fetchErr))
	} else if _, err := c.audio.SetBytes(audio.OriginCanonical, data); err != nil {
		logger.Warn("canonical narration refresh failed", logging.Error(err))
	}
	c.mode = ModeIdle
	c.notice = msgUploadSucceeded
	c.mu.Unlock()
	c.notify()
	return nil
}

// SwitchInput changes the active input tab. It always resets the session to
// idle, tears down a live capture and releases the audio handle. Switching
// to InputOthers refreshes the other recordings.
func (c *Controller) SwitchInput(ctx context.Context, input InputMode) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.teardownLocked()
	c.audio.ReleaseCurrent()
	c.generation++
	gen := c.generation
	c.mode = ModeIdle
	c.input = input
	c.payload = nil
	c.elapsed = 0
	c.selected = ""
	c.errMsg, c.notice = "", ""
	c.mu.Unlock()

	c.loggerFor(ctx, gen).Debug("input switched", logging.String("input", string(input)))
	c.notify()

	if input == InputOthers {
		_, err := c.RefreshOthers(ctx)
		return err
	}
	return nil
}

// RefreshOthers reloads every user's recordings of the story. A failed
// fetch yields an empty list.
func (c *Controller) RefreshOthers(ctx context.Context) ([]api.Recording, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	gen := c.generation
	c.mu.Unlock()

	recs, err := c.gw.ListStoryRecordings(ctx, c.story.ID)
	if err != nil {
		logging.WarnWithContext(c.loggerFor(ctx, gen), "story recordings unavailable", "story_recordings_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "other recordings shown as empty"),
		)
		recs = nil
	}
	if !c.apply(gen, func() { c.others = slices.Clone(recs) }) {
		return nil, ErrStale
	}
	return slices.Clone(recs), nil
}

// PlayRecording loads a processed recording from the other recordings list.
// Unknown or unprocessed recordings are rejected with ErrNotProcessed
// without a network call or a state change.
func (c *Controller) PlayRecording(ctx context.Context, recordingID string) (*audio.Handle, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.mode.busy() {
		mode := c.mode
		c.mu.Unlock()
		return nil, &TransitionError{Op: "play recording", Mode: mode}
	}
	idx := slices.IndexFunc(c.others, func(r api.Recording) bool { return r.RecordingID == recordingID })
	if idx < 0 || !c.others[idx].Processed {
		c.mu.Unlock()
		return nil, ErrNotProcessed
	}
	at := c.dispatchLocked()
	c.mu.Unlock()

	data, err := c.gw.FetchRecordingAudio(ctx, recordingID)
	return c.applyPlayback(ctx, at, audio.OriginRemote, recordingID, data, err)
}

// PlayCanonical loads the user's canonical narration of the story.
func (c *Controller) PlayCanonical(ctx context.Context) (*audio.Handle, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.mode != ModeIdle && c.mode != ModePlaying {
		mode := c.mode
		c.mu.Unlock()
		return nil, &TransitionError{Op: "play narration", Mode: mode}
	}
	at := c.dispatchLocked()
	c.mu.Unlock()

	data, err := c.gw.FetchStoryAudio(ctx, c.uid, c.story.ID)
	return c.applyPlayback(ctx, at, audio.OriginCanonical, "", data, err)
}

// playbackDispatch is the session identity a playback fetch started from.
// The fetch result applies only if the session is still there: same
// generation, same retained payload and no transition out of the mode,
// except between idle and playing.
type playbackDispatch struct {
	gen     uint64
	mode    Mode
	payload *stagedPayload
}

func (c *Controller) dispatchLocked() playbackDispatch {
	return playbackDispatch{gen: c.generation, mode: c.mode, payload: c.payload}
}

func (c *Controller) movedOnLocked(at playbackDispatch) bool {
	if c.staleLocked(at.gen) || c.payload != at.payload {
		return true
	}
	if c.mode == at.mode {
		return false
	}
	quiet := func(m Mode) bool { return m == ModeIdle || m == ModePlaying }
	return !quiet(c.mode) || !quiet(at.mode)
}

func (c *Controller) applyPlayback(ctx context.Context, at playbackDispatch, origin audio.Origin, recordingID string, data []byte, fetchErr error) (*audio.Handle, error) {
	gen := at.gen
	c.mu.Lock()
	if c.movedOnLocked(at) {
		c.mu.Unlock()
		c.loggerFor(ctx, gen).Debug("discarding stale playback completion", logging.String(logging.FieldRecordingID, recordingID))
		return nil, ErrStale
	}
	if fetchErr != nil {
		c.errMsg = services.UserMessage(fetchErr, msgLoadAudio)
		c.mu.Unlock()
		c.notify()
		return nil, fetchErr
	}
	h, err := c.audio.SetBytes(origin, data)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.mode = ModePlaying
	c.payload = nil
	c.selected = recordingID
	c.errMsg = ""
	c.mu.Unlock()

	c.loggerFor(ctx, gen).Debug("playback loaded",
		logging.String("origin", string(origin)),
		logging.String(logging.FieldRecordingID, recordingID),
	)
	c.notify()
	return h, nil
}

// FinishPlayback returns a playing session to idle, keeping the loaded audio.
func (c *Controller) FinishPlayback() {
	c.mu.Lock()
	changed := c.mode == ModePlaying
	if changed {
		c.mode = ModeIdle
	}
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Close tears the session down: the capture and timer stop, the audio handle
// is released and in-flight completions become stale.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.teardownLocked()
	c.audio.ReleaseCurrent()
	c.generation++
	c.closed = true
	c.mode = ModeIdle
	c.payload = nil
	c.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := State{
		Story:          c.story,
		Exists:         c.exists,
		Mode:           c.mode,
		Input:          c.input,
		Generation:     c.generation,
		ElapsedSeconds: c.elapsed,
		Status:         c.status,
		Others:         slices.Clone(c.others),
		Selected:       c.selected,
		Error:          c.errMsg,
		Notice:         c.notice,
	}
	if c.payload != nil {
		st.Staged = &Staged{
			Name:        c.payload.name,
			ContentType: c.payload.contentType,
			Size:        len(c.payload.data),
			Origin:      c.payload.origin,
		}
	}
	if h := c.audio.Current(); h != nil {
		st.AudioLocation = h.Location()
		st.AudioOrigin = h.Origin()
		st.Overridden = h.Origin() == audio.OriginRemote
	}
	return st
}

// Mode returns the current mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// apply runs fn under the lock if gen is still current and notifies the
// observer afterwards.
func (c *Controller) apply(gen uint64, fn func()) bool {
	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return false
	}
	fn()
	c.mu.Unlock()
	c.notify()
	return true
}

func (c *Controller) staleLocked(gen uint64) bool {
	return c.closed || c.generation != gen
}

func (c *Controller) stopTickerLocked() {
	if c.cancelTick != nil {
		c.cancelTick()
		c.cancelTick = nil
	}
}

// teardownLocked stops the timer and any live capture, discarding its audio.
func (c *Controller) teardownLocked() {
	c.stopTickerLocked()
	if c.device != nil {
		if _, err := c.device.Stop(); err != nil {
			c.logger.Debug("capture teardown reported error", logging.Error(err))
		}
		c.device = nil
	}
}

// releaseStaleLocked drops a timer or device left behind outside capturing.
func (c *Controller) releaseStaleLocked() {
	if c.mode != ModeCapturing {
		c.teardownLocked()
	}
}

func (c *Controller) notify() {
	if c.observer == nil {
		return
	}
	c.observer(c.Snapshot())
}

func (c *Controller) loggerFor(ctx context.Context, gen uint64) *slog.Logger {
	ctx = services.WithStoryID(ctx, c.story.ID)
	ctx = services.WithSessionID(ctx, c.sessionID)
	ctx = services.WithGeneration(ctx, gen)
	return logging.WithContext(ctx, c.logger)
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "audio/mpeg", "audio/mp3", "audio/x-mpeg":
		return ".mp3"
	default:
		return ".wav"
	}
}
