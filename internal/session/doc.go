// Package session implements the recording session of one open story
// screen.
//
// Controller is a mode machine (idle, capturing, capture_complete,
// file_staged, uploading, upload_succeeded, upload_failed, playing) that
// owns the capture device, the one-second elapsed timer, the staged upload
// payload and the session's audio.Manager. Every transition happens under
// one mutex. Gateway calls run with the mutex released; each completion is
// checked against the generation it was dispatched under and dropped with
// ErrStale when the session has since moved on (input switch, new capture,
// Close). Uploads are never cancelled in flight.
//
// Captures upload automatically when stopped; staged files upload only on
// an explicit Upload. A failed upload keeps its payload for Retry.
package session
