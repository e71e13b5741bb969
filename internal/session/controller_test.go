package session_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"storyvoice/internal/api"
	"storyvoice/internal/audio"
	"storyvoice/internal/capture"
	"storyvoice/internal/logging"
	"storyvoice/internal/services"
	"storyvoice/internal/session"
	"storyvoice/internal/testsupport"
	"storyvoice/internal/uploadcheck"
)

const (
	testUser  = "user-1"
	testStory = "story-1"
	mib       = 1024 * 1024
)

type micSource struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	mu     sync.Mutex
	closed bool
}

func (s *micSource) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *micSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return s.r.Close()
}

func (s *micSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeMic struct {
	mu      sync.Mutex
	fail    error
	sources []*micSource
}

func (m *fakeMic) Open(context.Context) (capture.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return nil, m.fail
	}
	r, w := io.Pipe()
	src := &micSource{r: r, w: w}
	m.sources = append(m.sources, src)
	return src, nil
}

func (m *fakeMic) opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

func (m *fakeMic) last() *micSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sources[len(m.sources)-1]
}

func (m *fakeMic) speak(t *testing.T, data []byte) {
	t.Helper()
	if _, err := m.last().w.Write(data); err != nil {
		t.Fatalf("mic write: %v", err)
	}
}

type harness struct {
	ctrl  *session.Controller
	gw    *testsupport.FakeGateway
	mic   *fakeMic
	sched *testsupport.ManualScheduler
	mgr   *audio.Manager
}

func newHarness(t *testing.T, opts ...session.Option) *harness {
	t.Helper()
	mgr, err := audio.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h := &harness{
		gw:    testsupport.NewFakeGateway(),
		mic:   &fakeMic{},
		sched: testsupport.NewManualScheduler(),
		mgr:   mgr,
	}
	h.gw.Stories = []api.Story{{StoryID: testStory, Title: "The Fox", Description: "quick"}}
	base := []session.Option{
		session.WithUserID(testUser),
		session.WithOpener(h.mic),
		session.WithScheduler(h.sched),
		session.WithPolicy(uploadcheck.DefaultPolicy()),
	}
	h.ctrl = session.New(session.StoryRef{ID: testStory}, h.gw, mgr, append(base, opts...)...)
	t.Cleanup(h.ctrl.Close)
	return h
}

func TestStartCaptureTwiceKeepsSingleCaptureAndTimer(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	gen := h.ctrl.Snapshot().Generation
	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("second StartCapture: %v", err)
	}

	if h.mic.opens() != 1 {
		t.Fatalf("expected one capture, got %d", h.mic.opens())
	}
	if h.sched.Active() != 1 || h.sched.Started() != 1 {
		t.Fatalf("expected one timer, active=%d started=%d", h.sched.Active(), h.sched.Started())
	}
	st := h.ctrl.Snapshot()
	if st.Mode != session.ModeCapturing || st.Generation != gen {
		t.Fatalf("unexpected state after double start: %+v", st)
	}
	if h.mic.last().isClosed() {
		t.Fatal("live capture must survive the ignored start")
	}
}

func TestElapsedTimerTicksStopsAndResets(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	h.sched.Tick(3)
	if got := h.ctrl.Snapshot().Elapsed(); got != "00:03" {
		t.Fatalf("elapsed = %s", got)
	}

	h.mic.speak(t, testsupport.WAVBytes(128))
	if err := h.ctrl.StopCapture(ctx); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if h.sched.Active() != 0 {
		t.Fatalf("timer not cancelled on stop, active=%d", h.sched.Active())
	}
	h.sched.Tick(2)
	if got := h.ctrl.Snapshot().ElapsedSeconds; got != 3 {
		t.Fatalf("elapsed changed after stop: %d", got)
	}

	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if got := h.ctrl.Snapshot().ElapsedSeconds; got != 0 {
		t.Fatalf("elapsed not reset on new capture: %d", got)
	}
}

func TestStopCaptureUploadsAutomatically(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	payload := testsupport.WAVBytes(2048)

	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	h.mic.speak(t, payload)
	if err := h.ctrl.StopCapture(ctx); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}

	if h.gw.UploadCount() != 1 {
		t.Fatalf("expected one upload, got %d", h.gw.UploadCount())
	}
	up := h.gw.Uploads[0]
	if up.Filename != api.VoiceFileName || up.UserID != testUser || up.StoryID != testStory {
		t.Fatalf("unexpected upload envelope: %+v", up)
	}
	if string(up.Data) != string(payload) {
		t.Fatalf("upload data mismatch")
	}
	if !h.mic.last().isClosed() {
		t.Fatal("microphone not released on stop")
	}

	st := h.ctrl.Snapshot()
	if st.Mode != session.ModeIdle {
		t.Fatalf("mode = %s", st.Mode)
	}
	if st.Status != api.StatusProcess {
		t.Fatalf("status = %q", st.Status)
	}
	if st.AudioOrigin != audio.OriginCanonical {
		t.Fatalf("expected canonical narration after upload, got %q", st.AudioOrigin)
	}
	if st.Notice == "" || st.Staged != nil {
		t.Fatalf("unexpected post-upload state: %+v", st)
	}
	if h.mgr.Live() != 1 {
		t.Fatalf("expected exactly one live handle, got %d", h.mgr.Live())
	}
}

func TestStopWithoutCaptureIsNoop(t *testing.T) {
	h := newHarness(t)
	if err := h.ctrl.StopCapture(context.Background()); err != nil {
		t.Fatalf("StopCapture: %v", err)
	}
	if h.gw.CallCount("UploadVoice") != 0 {
		t.Fatal("stop without capture must not upload")
	}
}

func TestStaleUploadCompletionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.gw.UploadHook = func(api.VoiceUpload) {
		close(entered)
		<-release
	}

	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	h.mic.speak(t, testsupport.WAVBytes(256))

	done := make(chan error, 1)
	go func() { done <- h.ctrl.StopCapture(ctx) }()
	<-entered

	if got := h.ctrl.Mode(); got != session.ModeUploading {
		t.Fatalf("mode = %s", got)
	}
	staleGen := h.ctrl.Snapshot().Generation

	if err := h.ctrl.SwitchInput(ctx, session.InputRecord); err != nil {
		t.Fatalf("SwitchInput: %v", err)
	}
	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	h.sched.Tick(2)
	before := h.ctrl.Snapshot()
	if before.Generation <= staleGen {
		t.Fatalf("generation did not advance: %d <= %d", before.Generation, staleGen)
	}

	close(release)
	if err := <-done; !errors.Is(err, session.ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}

	after := h.ctrl.Snapshot()
	if after.Mode != session.ModeCapturing {
		t.Fatalf("stale completion changed mode to %s", after.Mode)
	}
	if after.Status != before.Status || after.Notice != "" || after.ElapsedSeconds != 2 {
		t.Fatalf("stale completion mutated state: %+v", after)
	}
	if h.gw.CallCount("FetchStoryAudio") != 0 {
		t.Fatal("stale completion must not refresh audio")
	}
}

func TestPlayRecordingRequiresProcessed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.gw.Recordings["other"] = []api.Recording{
		{RecordingID: "rec-a", StoryID: testStory, Processed: false},
		{RecordingID: "rec-b", StoryID: testStory, Processed: true},
	}
	h.gw.Audio["rec-b"] = []byte("processed audio")

	if err := h.ctrl.SwitchInput(ctx, session.InputOthers); err != nil {
		t.Fatalf("SwitchInput: %v", err)
	}
	before := h.ctrl.Snapshot()
	if len(before.Others) != 2 {
		t.Fatalf("expected two other recordings, got %d", len(before.Others))
	}

	_, err := h.ctrl.PlayRecording(ctx, "rec-a")
	if !errors.Is(err, services.ErrNotReady) || !errors.Is(err, session.ErrNotProcessed) {
		t.Fatalf("expected NotReady, got %v", err)
	}
	if _, err := h.ctrl.PlayRecording(ctx, "missing"); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("expected NotReady for unknown recording, got %v", err)
	}
	if got := h.ctrl.Mode(); got != before.Mode {
		t.Fatalf("mode changed to %s", got)
	}
	if h.gw.CallCount("FetchRecordingAudio") != 0 {
		t.Fatal("unprocessed recording must not be fetched")
	}

	handle, err := h.ctrl.PlayRecording(ctx, "rec-b")
	if err != nil {
		t.Fatalf("PlayRecording: %v", err)
	}
	data, err := os.ReadFile(handle.Location())
	if err != nil || string(data) != "processed audio" {
		t.Fatalf("unexpected playback file %q, %v", data, err)
	}
	st := h.ctrl.Snapshot()
	if st.Mode != session.ModePlaying || !st.Overridden || st.Selected != "rec-b" {
		t.Fatalf("unexpected playing state: %+v", st)
	}
	h.ctrl.FinishPlayback()
	if h.ctrl.Mode() != session.ModeIdle {
		t.Fatalf("FinishPlayback left mode %s", h.ctrl.Mode())
	}
}

// playDuringUpload stages a file, starts a recording fetch that blocks, then
// starts an upload that blocks, and releases the fetch while uploading.
func playDuringUpload(t *testing.T, h *harness, failUpload bool) error {
	t.Helper()
	ctx := context.Background()
	h.gw.Recordings["other"] = []api.Recording{{RecordingID: "rec-b", StoryID: testStory, Processed: true}}
	h.gw.Audio["rec-b"] = []byte("other narration")
	if err := h.ctrl.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := h.ctrl.StageFile(ctx, "take.wav", "audio/wav", testsupport.WAVBytes(4096)); err != nil {
		t.Fatalf("StageFile: %v", err)
	}

	fetching := make(chan struct{})
	releaseFetch := make(chan struct{})
	h.gw.FetchHook = func(string) {
		close(fetching)
		<-releaseFetch
	}
	uploading := make(chan struct{})
	releaseUpload := make(chan struct{})
	h.gw.UploadHook = func(api.VoiceUpload) {
		close(uploading)
		<-releaseUpload
	}

	playErr := make(chan error, 1)
	go func() {
		_, err := h.ctrl.PlayRecording(ctx, "rec-b")
		playErr <- err
	}()
	<-fetching

	uploadErr := make(chan error, 1)
	go func() { uploadErr <- h.ctrl.Upload(ctx) }()
	<-uploading

	close(releaseFetch)
	if err := <-playErr; !errors.Is(err, session.ErrStale) {
		t.Fatalf("expected stale playback, got %v", err)
	}
	st := h.ctrl.Snapshot()
	if st.Mode != session.ModeUploading || st.Selected != "" || st.Staged == nil {
		t.Fatalf("playback completion changed the upload: mode=%s selected=%q staged=%v", st.Mode, st.Selected, st.Staged)
	}

	if failUpload {
		h.gw.SetFailure("UploadVoice", testsupport.HTTPError(http.StatusInternalServerError, "Storage offline"))
	}
	close(releaseUpload)
	return <-uploadErr
}

func TestPlaybackCompletingDuringUploadIsDiscarded(t *testing.T) {
	h := newHarness(t)

	if err := playDuringUpload(t, h, false); err != nil {
		t.Fatalf("Upload: %v", err)
	}
	st := h.ctrl.Snapshot()
	if st.Mode != session.ModeIdle || st.Selected != "" || st.Overridden {
		t.Fatalf("unexpected state after upload: %+v", st)
	}
	if st.AudioOrigin != audio.OriginCanonical {
		t.Fatalf("audio origin = %s, want canonical", st.AudioOrigin)
	}
}

func TestPlaybackDuringFailedUploadKeepsPayload(t *testing.T) {
	h := newHarness(t)

	if err := playDuringUpload(t, h, true); !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	st := h.ctrl.Snapshot()
	if st.Mode != session.ModeUploadFailed || st.Staged == nil || st.Staged.Name != "take.wav" {
		t.Fatalf("payload not retained: mode=%s staged=%+v", st.Mode, st.Staged)
	}

	h.gw.UploadHook = nil
	h.gw.SetFailure("UploadVoice", nil)
	if err := h.ctrl.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if h.gw.UploadCount() != 1 {
		t.Fatalf("uploads = %d, want 1", h.gw.UploadCount())
	}
}

func TestUploadFailureKeepsPayloadForRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StageFile(ctx, "take.wav", "audio/wav", testsupport.WAVBytes(2*mib)); err != nil {
		t.Fatalf("StageFile: %v", err)
	}
	h.gw.SetFailure("UploadVoice", testsupport.HTTPError(http.StatusUnprocessableEntity, "Audio too short"))

	err := h.ctrl.Upload(ctx)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	st := h.ctrl.Snapshot()
	if st.Mode != session.ModeUploadFailed {
		t.Fatalf("mode = %s", st.Mode)
	}
	if st.Error != "Audio too short" {
		t.Fatalf("expected backend detail verbatim, got %q", st.Error)
	}
	if st.Staged == nil || st.Staged.Name != "take.wav" || st.Staged.Size != 2*mib {
		t.Fatalf("payload not retained: %+v", st.Staged)
	}

	h.gw.SetFailure("UploadVoice", nil)
	if err := h.ctrl.Retry(ctx); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if h.gw.UploadCount() != 1 || h.gw.Uploads[0].Filename != "take.wav" {
		t.Fatalf("unexpected uploads: %d", h.gw.UploadCount())
	}
	if got := h.ctrl.Snapshot(); got.Mode != session.ModeIdle || got.Status != api.StatusProcess {
		t.Fatalf("unexpected state after retry: %+v", got)
	}
}

func TestUploadFailureWithoutDetailUsesFallback(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StageFile(ctx, "take.mp3", "audio/mpeg", []byte("ID3 mp3 payload")); err != nil {
		t.Fatalf("StageFile: %v", err)
	}
	h.gw.SetFailure("UploadVoice", services.Wrap(services.ErrTransport, "api", "upload voice", "request failed", errors.New("connection refused")))
	if err := h.ctrl.Upload(ctx); err == nil {
		t.Fatal("expected upload error")
	}
	if got := h.ctrl.Snapshot().Error; got != "Unable to upload audio file" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestStageFileRejectionLeavesStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StageFile(ctx, "first.wav", "audio/wav", testsupport.WAVBytes(1024)); err != nil {
		t.Fatalf("StageFile: %v", err)
	}
	before := h.ctrl.Snapshot()

	err := h.ctrl.StageFile(ctx, "huge.wav", "audio/wav", make([]byte, 15*mib))
	var verr *uploadcheck.ValidationError
	if !errors.As(err, &verr) || verr.Reason != uploadcheck.ReasonTooLarge {
		t.Fatalf("expected too_large, got %v", err)
	}
	err = h.ctrl.StageFile(ctx, "clip.mp4", "video/mp4", make([]byte, 1024))
	if !errors.As(err, &verr) || verr.Reason != uploadcheck.ReasonUnsupportedFormat {
		t.Fatalf("expected unsupported_format, got %v", err)
	}

	after := h.ctrl.Snapshot()
	if after.Mode != before.Mode || after.Staged.Name != "first.wav" || after.AudioLocation != before.AudioLocation {
		t.Fatalf("rejection mutated state: before=%+v after=%+v", before, after)
	}
	if h.gw.CallCount("UploadVoice") != 0 {
		t.Fatal("validation must not reach the network")
	}
}

func TestUploadWithoutStagedFile(t *testing.T) {
	h := newHarness(t)
	err := h.ctrl.Upload(context.Background())
	if !errors.Is(err, session.ErrNothingStaged) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrNothingStaged, got %v", err)
	}
	if got := h.ctrl.Snapshot().Error; got != "Please select an audio file before uploading" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestSwitchInputReleasesHandleAndCapture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StageFile(ctx, "take.wav", "audio/wav", testsupport.WAVBytes(512)); err != nil {
		t.Fatalf("StageFile: %v", err)
	}
	preview := h.mgr.Current()
	if preview == nil {
		t.Fatal("expected staged preview handle")
	}
	if err := h.ctrl.SwitchInput(ctx, session.InputRecord); err != nil {
		t.Fatalf("SwitchInput: %v", err)
	}
	if !h.mgr.Released(preview) || h.mgr.Current() != nil {
		t.Fatal("switching input must release the preview")
	}
	if st := h.ctrl.Snapshot(); st.Mode != session.ModeIdle || st.Staged != nil {
		t.Fatalf("unexpected state: %+v", st)
	}

	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	if err := h.ctrl.SwitchInput(ctx, session.InputUpload); err != nil {
		t.Fatalf("SwitchInput: %v", err)
	}
	if !h.mic.last().isClosed() {
		t.Fatal("switching input must tear down the live capture")
	}
	if h.sched.Active() != 0 {
		t.Fatalf("timer left running: %d", h.sched.Active())
	}
	if h.gw.CallCount("UploadVoice") != 0 {
		t.Fatal("torn down capture must not upload")
	}
}

func TestStartCaptureDeviceUnavailable(t *testing.T) {
	h := newHarness(t)
	h.mic.fail = errors.New("permission denied")

	err := h.ctrl.StartCapture(context.Background())
	if !errors.Is(err, services.ErrDeviceUnavailable) {
		t.Fatalf("expected DeviceUnavailable, got %v", err)
	}
	st := h.ctrl.Snapshot()
	if st.Mode != session.ModeIdle || st.Error != "Unable to access microphone" {
		t.Fatalf("unexpected state: %+v", st)
	}
	if h.sched.Started() != 0 {
		t.Fatal("timer must not start when the device is unavailable")
	}
}

type lineSink chan []byte

func (s lineSink) Write(p []byte) (int, error) {
	select {
	case s <- append([]byte(nil), p...):
	default:
	}
	return len(p), nil
}

func TestAutomaticStopWithoutAudioLogsError(t *testing.T) {
	sink := make(lineSink, 16)
	logger := slog.New(slog.NewJSONHandler(sink, nil))
	h := newHarness(t, session.WithMaxCapture(2*time.Second), session.WithLogger(logger))

	if err := h.ctrl.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	h.sched.Tick(2)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case line := <-sink:
			var entry map[string]any
			if err := json.Unmarshal(line, &entry); err != nil {
				t.Fatalf("decode log line: %v", err)
			}
			if entry[logging.FieldEventType] != "capture_stop_failed" {
				continue
			}
			if entry["level"] != "ERROR" || entry[logging.FieldErrorHint] != "stop the capture manually and retry" {
				t.Fatalf("unexpected entry: %v", entry)
			}
			st := h.ctrl.Snapshot()
			if st.Mode != session.ModeIdle || st.Error != "No audio was captured" {
				t.Fatalf("unexpected state: %+v", st)
			}
			if h.gw.CallCount("UploadVoice") != 0 {
				t.Fatal("empty capture must not upload")
			}
			return
		case <-deadline:
			t.Fatal("automatic stop failure was not logged")
		}
	}
}

func TestLoadPopulatesScreen(t *testing.T) {
	h := newHarness(t)
	h.gw.Status[testUser+"/"+testStory] = api.StatusFinish
	h.gw.Canonical[testUser+"/"+testStory] = []byte("narration")
	h.gw.Recordings["other"] = []api.Recording{{RecordingID: "rec-x", StoryID: testStory, Processed: true}}

	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := h.ctrl.Snapshot()
	if st.Story.Title != "The Fox" || st.Status != api.StatusFinish || !st.Exists {
		t.Fatalf("unexpected story state: %+v", st)
	}
	if st.AudioOrigin != audio.OriginCanonical {
		t.Fatalf("expected canonical narration, got %q", st.AudioOrigin)
	}
	if len(st.Others) != 1 {
		t.Fatalf("expected other recordings, got %d", len(st.Others))
	}
}

func TestLoadDegradesStatusAndUnknownStory(t *testing.T) {
	h := newHarness(t)
	h.gw.SetFailure("StoryStatus", errors.New("boom"))
	h.gw.SetFailure("ListStoryRecordings", errors.New("boom"))
	if err := h.ctrl.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st := h.ctrl.Snapshot(); st.Status != api.StatusDenial || len(st.Others) != 0 {
		t.Fatalf("unexpected degraded state: %+v", st)
	}

	mgr, err := audio.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	missing := session.New(session.StoryRef{ID: "ghost"}, h.gw, mgr, session.WithUserID(testUser))
	defer missing.Close()
	if err := missing.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if st := missing.Snapshot(); st.Exists || st.Status != api.StatusDenial || st.Story.Title != "Story #ghost" {
		t.Fatalf("unexpected unknown-story state: %+v", st)
	}

	h.gw.SetFailure("ListStories", errors.New("down"))
	if err := h.ctrl.Load(context.Background()); !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestCloseReleasesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.ctrl.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	h.ctrl.Close()
	if !h.mic.last().isClosed() {
		t.Fatal("Close must release the microphone")
	}
	if h.sched.Active() != 0 {
		t.Fatal("Close must cancel the timer")
	}
	if h.mgr.Live() != 0 {
		t.Fatalf("Close must release audio, live=%d", h.mgr.Live())
	}
	if err := h.ctrl.StartCapture(ctx); !errors.Is(err, session.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestStageFilePath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	dir := t.TempDir()

	good := filepath.Join(dir, "take.wav")
	if err := os.WriteFile(good, testsupport.WAVBytes(4096), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := h.ctrl.StageFilePath(ctx, good); err != nil {
		t.Fatalf("StageFilePath: %v", err)
	}
	if st := h.ctrl.Snapshot(); st.Staged == nil || st.Staged.ContentType != "audio/wav" {
		t.Fatalf("unexpected staged payload: %+v", st.Staged)
	}

	big := filepath.Join(dir, "big.wav")
	testsupport.WriteFile(t, big, 11*mib)
	if err := h.ctrl.StageFilePath(ctx, big); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := h.ctrl.StageFilePath(ctx, filepath.Join(dir, "missing.wav")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for missing file, got %v", err)
	}
}

func TestObserverSeesTicks(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	h := newHarness(t, session.WithObserver(func(st session.State) {
		mu.Lock()
		defer mu.Unlock()
		if st.Mode == session.ModeCapturing {
			seen = append(seen, st.Elapsed())
		}
	}))
	if err := h.ctrl.StartCapture(context.Background()); err != nil {
		t.Fatalf("StartCapture: %v", err)
	}
	h.sched.Tick(2)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 || seen[0] != "00:00" || seen[2] != "00:02" {
		t.Fatalf("unexpected observed ticks: %v", seen)
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := map[int]string{0: "00:00", 5: "00:05", 65: "01:05", 600: "10:00", -3: "00:00"}
	for seconds, want := range tests {
		if got := session.FormatElapsed(seconds); got != want {
			t.Fatalf("FormatElapsed(%d) = %s, want %s", seconds, got, want)
		}
	}
}
