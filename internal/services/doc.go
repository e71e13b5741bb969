// Package services defines shared utilities consumed by the recording session,
// the catalog loader, and the backend gateway.
//
// Key responsibilities:
//   - Context helpers that stamp story IDs, session IDs, generations, and
//     correlation identifiers for logging.
//   - Structured error markers (device unavailable, validation, transport,
//     not ready) plus the Wrap helper and Classify, so every layer reports
//     failures with the same taxonomy.
//
// Use these helpers when wiring new components so error reporting and
// observability stay uniform across the client.
package services
