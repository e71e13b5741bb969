// Package api is the gateway to the narration backend.
//
// Client wraps every endpoint the client consumes (catalog, recordings,
// status, multipart voice upload, audio downloads) behind typed methods.
// Non-2xx responses become *Error values that carry the backend's "detail"
// message verbatim and are tagged with services.ErrNotFound for 404s and
// services.ErrTransport otherwise, so callers can branch with errors.Is
// without inspecting status codes. Every request carries an X-Request-ID
// correlation header that also appears in debug logs.
//
// Timestamp tolerates created_at values with or without a zone designator.
package api
