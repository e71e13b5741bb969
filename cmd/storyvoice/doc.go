// Command storyvoice records story narrations from the microphone or from
// audio files, uploads them to the narration backend and manages the
// user's catalog of recorded and available stories.
//
// Every command that opens a story holds a per-story file lock for its
// duration, so two invocations never drive the same recording session.
package main
