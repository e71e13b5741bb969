package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyvoice/internal/config"
	"storyvoice/internal/logging"
	"storyvoice/internal/services"
)

// maxErrorBody bounds how much of an error response is read for its detail.
const maxErrorBody = 64 * 1024

// HTTPDoer describes the HTTP client used by the gateway.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the narration backend. It is safe for concurrent use.
type Client struct {
	baseURL   string
	client    HTTPDoer
	logger    *slog.Logger
	requestID func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "api")
	}
}

// WithRequestIDFunc overrides correlation ID generation.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) {
		if fn != nil {
			c.requestID = fn
		}
	}
}

// NewClient constructs a gateway for baseURL using the provided HTTP client.
func NewClient(baseURL string, client HTTPDoer, opts ...Option) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	c := &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:    client,
		logger:    logging.NewComponentLogger(nil, "api"),
		requestID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewConfiguredClient builds a gateway from configuration.
func NewConfiguredClient(cfg *config.Config, logger *slog.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}
	return NewClient(cfg.API.BaseURL, httpClient, WithLogger(logger))
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListStories returns the full catalog in server order.
func (c *Client) ListStories(ctx context.Context) ([]Story, error) {
	var stories []Story
	if err := c.getJSON(ctx, "list stories", "/stories/", &stories); err != nil {
		return nil, err
	}
	return stories, nil
}

// CreateStory adds a story to the catalog and returns its identifier.
func (c *Client) CreateStory(ctx context.Context, req CreateStoryRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode story: %w", err)
	}
	var resp createStoryResponse
	if err := c.doJSON(ctx, "create story", http.MethodPost, "/stories/", "application/json", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.StoryID) == "" {
		return "", services.Wrap(services.ErrTransport, "api", "create story", "response missing story_id", nil)
	}
	return resp.StoryID, nil
}

// DeleteStory removes a story; the backend cascades to its recordings.
func (c *Client) DeleteStory(ctx context.Context, storyID string) error {
	return c.doJSON(ctx, "delete story", http.MethodDelete, "/stories/"+url.PathEscape(storyID), "", nil, nil)
}

// ListUserRecordings returns every recording owned by uid. A 404 is
// reported as services.ErrNotFound so callers can treat it as empty.
func (c *Client) ListUserRecordings(ctx context.Context, uid string) ([]Recording, error) {
	var recordings []Recording
	if err := c.getJSON(ctx, "list user recordings", "/user-recordings/"+url.PathEscape(uid), &recordings); err != nil {
		return nil, err
	}
	return recordings, nil
}

// ListStoryRecordings returns recordings from all users for one story.
func (c *Client) ListStoryRecordings(ctx context.Context, storyID string) ([]Recording, error) {
	var recordings []Recording
	if err := c.getJSON(ctx, "list story recordings", "/story-recordings/"+url.PathEscape(storyID), &recordings); err != nil {
		return nil, err
	}
	return recordings, nil
}

// RecordingStatus returns the informational per-user status payload.
func (c *Client) RecordingStatus(ctx context.Context, uid string) (json.RawMessage, error) {
	var payload json.RawMessage
	if err := c.getJSON(ctx, "recording status", "/recording-status/"+url.PathEscape(uid), &payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// StoryStatus returns the processing status of uid's narration of storyID.
func (c *Client) StoryStatus(ctx context.Context, uid, storyID string) (string, error) {
	var resp storyStatusResponse
	path := "/story-status/" + url.PathEscape(uid) + "/" + url.PathEscape(storyID)
	if err := c.getJSON(ctx, "story status", path, &resp); err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Status), nil
}

// UploadVoice posts audio as multipart fields uid, story_id and voice_file.
func (c *Client) UploadVoice(ctx context.Context, upload VoiceUpload) (map[string]any, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("uid", upload.UserID); err != nil {
		return nil, fmt.Errorf("write uid field: %w", err)
	}
	if err := writer.WriteField("story_id", upload.StoryID); err != nil {
		return nil, fmt.Errorf("write story_id field: %w", err)
	}
	filename := upload.Filename
	if filename == "" {
		filename = VoiceFileName
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="voice_file"; filename="%s"`, escapeQuotes(filename)))
	contentType := upload.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create voice_file part: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, fmt.Errorf("write voice_file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	var result map[string]any
	if err := c.doJSON(ctx, "upload voice", http.MethodPost, "/record-voice/", writer.FormDataContentType(), &body, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// FetchStoryAudio downloads the canonical narration of storyID by uid.
func (c *Client) FetchStoryAudio(ctx context.Context, uid, storyID string) ([]byte, error) {
	path := "/story/" + url.PathEscape(uid) + "/" + url.PathEscape(storyID)
	return c.getBytes(ctx, "fetch story audio", path)
}

// FetchRecordingAudio downloads the audio of a single recording.
func (c *Client) FetchRecordingAudio(ctx context.Context, recordingID string) ([]byte, error) {
	return c.getBytes(ctx, "fetch recording audio", "/recording-audio/"+url.PathEscape(recordingID))
}

// DeleteRecording removes one recording.
func (c *Client) DeleteRecording(ctx context.Context, recordingID string) error {
	return c.doJSON(ctx, "delete recording", http.MethodDelete, "/recordings/"+url.PathEscape(recordingID), "", nil, nil)
}

// StoryAudioURL is the download location of the canonical narration.
func (c *Client) StoryAudioURL(uid, storyID string) string {
	return c.baseURL + "/story/" + url.PathEscape(uid) + "/" + url.PathEscape(storyID)
}

func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	return c.doJSON(ctx, operation, http.MethodGet, path, "", nil, out)
}

func (c *Client) doJSON(ctx context.Context, operation, method, path, contentType string, body io.Reader, out any) error {
	resp, err := c.do(ctx, operation, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return services.Wrap(services.ErrTransport, "api", operation, "decode response", err)
	}
	return nil
}

func (c *Client) getBytes(ctx context.Context, operation, path string) ([]byte, error) {
	resp, err := c.do(ctx, operation, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "api", operation, "read body", err)
	}
	return data, nil
}

// do sends the request and converts non-2xx responses into *Error values
// tagged with services.ErrNotFound (404) or services.ErrTransport.
func (c *Client) do(ctx context.Context, operation, method, path, contentType string, body io.Reader) (*http.Response, error) {
	if c == nil || c.client == nil || c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "api", operation, "backend url not configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "api", operation, "build request", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = c.requestID()
	}
	req.Header.Set("X-Request-ID", requestID)

	logger := logging.WithContext(services.WithRequestID(ctx, requestID), c.logger)
	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		logger.Debug("backend request failed",
			logging.String("method", method),
			logging.String("path", path),
			logging.Error(err),
		)
		return nil, services.Wrap(services.ErrTransport, "api", operation, "request failed", err)
	}
	logger.Debug("backend request",
		logging.String("method", method),
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(started)),
	)
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return resp, nil
	}

	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &Error{Method: method, Path: path, StatusCode: resp.StatusCode, Detail: parseDetail(raw)}
	marker := services.ErrTransport
	if resp.StatusCode == http.StatusNotFound {
		marker = services.ErrNotFound
	}
	return nil, fmt.Errorf("%w: api: %s: %w", marker, operation, apiErr)
}

// DetailMessage returns the backend's detail text carried by err, if any.
func DetailMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Detail
	}
	return ""
}

func escapeQuotes(s string) string {
	return strings.NewReplacer("\\", "\\\\", `"`, "\\\"").Replace(s)
}
