// Package preflight provides readiness checks for the directories, binaries
// and backend storyvoice depends on.
//
// The CLI "storyvoice check" command runs RunAll and renders the results;
// optional checks (playback) are reported but do not fail the run.
package preflight
