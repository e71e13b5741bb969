// Package logging assembles structured slog loggers and formatting helpers used
// across storyvoice.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so session and catalog code can tag log
// lines with story IDs, session generations, and correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
