// Package capture wraps microphone acquisition.
//
// A Device pumps an Opener's Source into an accumulating buffer and
// finalizes it into a single Payload on Stop. The stream is released on
// every exit path: explicit Stop, or cancellation of the context passed to
// Open. ExecOpener backs the stream with an external recorder process.
package capture
