// Package audio owns playable audio handles for a recording session.
//
// Manager keeps at most one live handle. Byte sources (captures, staged
// files, downloaded recordings) are materialized as private files in the
// cache directory and removed on release; Release is idempotent and every
// Set releases the previous handle first. Player renders a handle through
// an external command.
package audio
