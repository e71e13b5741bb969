package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"

	"storyvoice/internal/api"
	"storyvoice/internal/services"
)

// FakeGateway is an in-memory backend. Failures can be injected per
// operation and UploadHook or FetchHook can block a call to simulate latency.
type FakeGateway struct {
	mu sync.Mutex

	Stories    []api.Story
	Recordings map[string][]api.Recording // keyed by user id
	Audio      map[string][]byte          // keyed by recording id
	Canonical  map[string][]byte          // keyed by uid + "/" + story id
	Status     map[string]string          // keyed by uid + "/" + story id

	// Fail maps an operation name (e.g. "UploadVoice") to the error it returns.
	Fail map[string]error
	// UploadHook runs before an upload completes; it may block.
	UploadHook func(api.VoiceUpload)
	// FetchHook runs before recording audio is returned; it may block.
	FetchHook func(recordingID string)

	Uploads []api.VoiceUpload
	Calls   []string

	nextID int
}

// NewFakeGateway returns an empty backend.
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		Recordings: make(map[string][]api.Recording),
		Audio:      make(map[string][]byte),
		Canonical:  make(map[string][]byte),
		Status:     make(map[string]string),
		Fail:       make(map[string]error),
	}
}

// HTTPError builds a backend error the way api.Client reports it.
func HTTPError(status int, detail string) error {
	apiErr := &api.Error{StatusCode: status, Detail: detail}
	marker := services.ErrTransport
	if status == http.StatusNotFound {
		marker = services.ErrNotFound
	}
	return fmt.Errorf("%w: api: %w", marker, apiErr)
}

// SetFailure injects err for op; nil clears it.
func (g *FakeGateway) SetFailure(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.Fail, op)
		return
	}
	g.Fail[op] = err
}

// CallCount returns how many times op was invoked.
func (g *FakeGateway) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	count := 0
	for _, call := range g.Calls {
		if call == op {
			count++
		}
	}
	return count
}

// UploadCount returns the number of successful uploads.
func (g *FakeGateway) UploadCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Uploads)
}

func (g *FakeGateway) enter(op string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, op)
	return g.Fail[op]
}

func (g *FakeGateway) ListStories(context.Context) ([]api.Story, error) {
	if err := g.enter("ListStories"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.Stories), nil
}

func (g *FakeGateway) CreateStory(_ context.Context, req api.CreateStoryRequest) (string, error) {
	if err := g.enter("CreateStory"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("story-%d", g.nextID)
	g.Stories = append(g.Stories, api.Story{StoryID: id, Title: req.Title, Description: req.Description})
	return id, nil
}

func (g *FakeGateway) DeleteStory(_ context.Context, storyID string) error {
	if err := g.enter("DeleteStory"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Stories = slices.DeleteFunc(g.Stories, func(s api.Story) bool { return s.StoryID == storyID })
	for uid, recs := range g.Recordings {
		g.Recordings[uid] = slices.DeleteFunc(recs, func(r api.Recording) bool { return r.StoryID == storyID })
	}
	return nil
}

func (g *FakeGateway) ListUserRecordings(_ context.Context, uid string) ([]api.Recording, error) {
	if err := g.enter("ListUserRecordings"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	recs, ok := g.Recordings[uid]
	if !ok || len(recs) == 0 {
		return nil, HTTPError(http.StatusNotFound, "No recordings found")
	}
	return slices.Clone(recs), nil
}

func (g *FakeGateway) ListStoryRecordings(_ context.Context, storyID string) ([]api.Recording, error) {
	if err := g.enter("ListStoryRecordings"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []api.Recording
	for _, recs := range g.Recordings {
		for _, rec := range recs {
			if rec.StoryID == storyID {
				out = append(out, rec)
			}
		}
	}
	slices.SortFunc(out, func(a, b api.Recording) int {
		if a.RecordingID < b.RecordingID {
			return -1
		}
		if a.RecordingID > b.RecordingID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (g *FakeGateway) RecordingStatus(_ context.Context, uid string) (json.RawMessage, error) {
	if err := g.enter("RecordingStatus"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return json.Marshal(map[string]int{"recordings": len(g.Recordings[uid])})
}

func (g *FakeGateway) StoryStatus(_ context.Context, uid, storyID string) (string, error) {
	if err := g.enter("StoryStatus"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.Status[uid+"/"+storyID], nil
}

func (g *FakeGateway) UploadVoice(_ context.Context, upload api.VoiceUpload) (map[string]any, error) {
	if err := g.enter("UploadVoice"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	hook := g.UploadHook
	g.mu.Unlock()
	if hook != nil {
		hook(upload)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.Fail["UploadVoice"]; err != nil {
		return nil, err
	}
	g.nextID++
	id := fmt.Sprintf("rec-%d", g.nextID)
	g.Uploads = append(g.Uploads, upload)
	g.Recordings[upload.UserID] = append(g.Recordings[upload.UserID], api.Recording{
		RecordingID: id,
		StoryID:     upload.StoryID,
	})
	g.Audio[id] = slices.Clone(upload.Data)
	g.Canonical[upload.UserID+"/"+upload.StoryID] = slices.Clone(upload.Data)
	g.Status[upload.UserID+"/"+upload.StoryID] = api.StatusProcess
	return map[string]any{"recording_id": id}, nil
}

func (g *FakeGateway) FetchStoryAudio(_ context.Context, uid, storyID string) ([]byte, error) {
	if err := g.enter("FetchStoryAudio"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.Canonical[uid+"/"+storyID]
	if !ok {
		return nil, HTTPError(http.StatusNotFound, "Audio not found")
	}
	return slices.Clone(data), nil
}

func (g *FakeGateway) FetchRecordingAudio(_ context.Context, recordingID string) ([]byte, error) {
	if err := g.enter("FetchRecordingAudio"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	hook := g.FetchHook
	g.mu.Unlock()
	if hook != nil {
		hook(recordingID)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	data, ok := g.Audio[recordingID]
	if !ok {
		return nil, HTTPError(http.StatusNotFound, "Audio not found")
	}
	return slices.Clone(data), nil
}

func (g *FakeGateway) DeleteRecording(_ context.Context, recordingID string) error {
	if err := g.enter("DeleteRecording"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for uid, recs := range g.Recordings {
		g.Recordings[uid] = slices.DeleteFunc(recs, func(r api.Recording) bool { return r.RecordingID == recordingID })
	}
	delete(g.Audio, recordingID)
	return nil
}

func (g *FakeGateway) StoryAudioURL(uid, storyID string) string {
	return "http://fake/story/" + uid + "/" + storyID
}
