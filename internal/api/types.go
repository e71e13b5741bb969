package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Story statuses reported by the story-status endpoint. Any other value
// means the user has not recorded the story yet.
const (
	StatusFinish  = "finish"
	StatusProcess = "process"
	// StatusDenial is the client-side status used when the backend could not be asked.
	StatusDenial = "denial"
	// StatusNew marks a story screen that has no backend counterpart yet.
	StatusNew = "new"
)

// VoiceFileName is the filename attached to microphone captures on upload.
const VoiceFileName = "recording.wav"

// timestampLayouts lists the encodings the backend has been seen to use for
// created_at: RFC3339 with and without zone, and a space separated variant.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp decodes backend timestamps that may omit the zone designator.
// Values without a zone are taken as UTC.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized value %q", raw)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// Story is a narratable catalog entry.
type Story struct {
	StoryID     string    `json:"story_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   Timestamp `json:"created_at"`
}

// Recording is one user's audio submission against a story. Processed is
// owned by the backend and only ever flips from false to true.
type Recording struct {
	RecordingID string    `json:"recording_id"`
	StoryID     string    `json:"story_id"`
	Title       string    `json:"title"`
	CreatedAt   Timestamp `json:"created_at"`
	Processed   bool      `json:"processed"`
	UserEmail   string    `json:"user_email,omitempty"`
}

// CreateStoryRequest is the body of POST /stories/.
type CreateStoryRequest struct {
	Title       string `json:"title" validate:"required,max=300"`
	Description string `json:"description" validate:"max=5000"`
}

type createStoryResponse struct {
	StoryID string `json:"story_id"`
}

type storyStatusResponse struct {
	Status string `json:"status"`
}

// VoiceUpload is the payload of POST /record-voice/.
type VoiceUpload struct {
	UserID      string
	StoryID     string
	Filename    string
	ContentType string
	Data        []byte
}

// Error is a non-2xx response from the backend. Detail carries the
// backend's "detail" message verbatim when the body provided one.
type Error struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.StatusCode)
}

// UserMessage returns the backend's detail text.
func (e *Error) UserMessage() string {
	return e.Detail
}

type errorPayload struct {
	Detail json.RawMessage `json:"detail"`
}

// parseDetail extracts "detail" from an error body. FastAPI style backends
// send either a string or a list of validation objects with "msg" fields.
func parseDetail(body []byte) string {
	var payload errorPayload
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil {
		parts := make([]string, 0, len(items))
		for _, item := range items {
			if msg := strings.TrimSpace(item.Msg); msg != "" {
				parts = append(parts, msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}
