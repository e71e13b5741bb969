// Package store keeps a local SQLite mirror of the last catalog snapshot so
// the CLI can show the dashboard without reaching the backend.
//
// The mirror is a cache: Save replaces it wholesale, and the Purge helpers
// follow deletions the backend has already confirmed. Nothing in it is
// authoritative.
package store
