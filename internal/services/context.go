package services

import "context"

type contextKey string

const (
	storyIDKey    contextKey = "story_id"
	sessionIDKey  contextKey = "session_id"
	generationKey contextKey = "generation"
	requestIDKey  contextKey = "request_id"
)

// WithStoryID annotates context with the story identifier.
func WithStoryID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, storyIDKey, id)
}

// StoryIDFromContext returns the story identifier if present.
func StoryIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(storyIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSessionID annotates context with the recording session identifier.
func WithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionIDKey, id)
}

// SessionIDFromContext returns the recording session identifier if present.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sessionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithGeneration annotates context with the session generation an operation was dispatched under.
func WithGeneration(ctx context.Context, generation uint64) context.Context {
	return context.WithValue(ctx, generationKey, generation)
}

// GenerationFromContext extracts the session generation if present.
func GenerationFromContext(ctx context.Context) (uint64, bool) {
	v, ok := ctx.Value(generationKey).(uint64)
	return v, ok
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
