package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"storyvoice/internal/logging"
	"storyvoice/internal/services"
)

const readChunkSize = 32 * 1024

// Source is an open microphone stream. Read yields audio bytes until the
// stream ends; Close releases the underlying hardware.
type Source interface {
	io.ReadCloser
}

// Opener acquires a microphone stream.
type Opener interface {
	Open(ctx context.Context) (Source, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context) (Source, error)

// Open calls f(ctx).
func (f OpenerFunc) Open(ctx context.Context) (Source, error) {
	return f(ctx)
}

// Payload is a finalized capture.
type Payload struct {
	Data     []byte
	Duration time.Duration
}

// Option customizes a Device.
type Option func(*Device)

// WithLogger sets the device logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Device) {
		d.logger = logging.NewComponentLogger(logger, "capture")
	}
}

// WithClock overrides the time source used to measure capture duration.
func WithClock(clock func() time.Time) Option {
	return func(d *Device) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithDataCallback registers a function invoked for each chunk read from
// the source. The slice is only valid for the duration of the call.
func WithDataCallback(fn func([]byte)) Option {
	return func(d *Device) {
		d.onData = fn
	}
}

// Device accumulates a microphone stream into one in-memory payload. A
// Device is single use: Open acquires, Stop finalizes and releases.
type Device struct {
	logger *slog.Logger
	clock  func() time.Time
	onData func([]byte)

	src     Source
	started time.Time
	done    chan struct{}

	mu       sync.Mutex
	buf      bytes.Buffer
	readErr  error
	stopOnce sync.Once
	payload  Payload
	stopErr  error
}

// Open acquires a stream from opener and starts accumulating it. Failures
// are tagged services.ErrDeviceUnavailable. The stream is released when
// Stop is called or when ctx is done, whichever happens first.
func Open(ctx context.Context, opener Opener, opts ...Option) (*Device, error) {
	if opener == nil {
		return nil, services.Wrap(services.ErrDeviceUnavailable, "capture", "open", "no capture source configured", nil)
	}
	d := &Device{
		logger: logging.NewComponentLogger(nil, "capture"),
		clock:  time.Now,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	src, err := opener.Open(ctx)
	if err != nil {
		if errors.Is(err, services.ErrDeviceUnavailable) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrDeviceUnavailable, "capture", "open", "microphone unavailable", err)
	}
	d.src = src
	d.started = d.clock()

	go d.pump()
	go func() {
		select {
		case <-ctx.Done():
			_, _ = d.Stop()
		case <-d.done:
		}
	}()

	d.logger.Debug("capture opened")
	return d, nil
}

func (d *Device) pump() {
	defer close(d.done)
	chunk := make([]byte, readChunkSize)
	for {
		n, err := d.src.Read(chunk)
		if n > 0 {
			d.mu.Lock()
			d.buf.Write(chunk[:n])
			d.mu.Unlock()
			if d.onData != nil {
				d.onData(chunk[:n])
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				d.mu.Lock()
				d.readErr = err
				d.mu.Unlock()
			}
			return
		}
	}
}

// Stop releases the stream and returns the finalized payload. Repeated calls
// return the same payload without touching the hardware again.
func (d *Device) Stop() (Payload, error) {
	d.stopOnce.Do(func() {
		closeErr := d.src.Close()
		<-d.done

		d.mu.Lock()
		data := append([]byte(nil), d.buf.Bytes()...)
		readErr := d.readErr
		d.mu.Unlock()

		d.payload = Payload{Data: data, Duration: d.clock().Sub(d.started)}
		switch {
		case readErr != nil:
			d.stopErr = services.Wrap(services.ErrDeviceUnavailable, "capture", "read", "microphone stream failed", readErr)
		case closeErr != nil:
			d.logger.Debug("capture close reported error", logging.Error(closeErr))
		}
		d.logger.Debug("capture stopped",
			logging.Int("bytes", len(data)),
			logging.Duration("duration", d.payload.Duration),
		)
	})
	return d.payload, d.stopErr
}

// Done is closed once the stream has ended.
func (d *Device) Done() <-chan struct{} {
	return d.done
}
