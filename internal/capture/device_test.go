package capture_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"storyvoice/internal/capture"
	"storyvoice/internal/services"
)

type pipeSource struct {
	*io.PipeReader
	closed chan struct{}
	once   sync.Once
}

func (p *pipeSource) Close() error {
	p.once.Do(func() { close(p.closed) })
	return p.PipeReader.Close()
}

func newPipeOpener() (capture.Opener, *io.PipeWriter, *pipeSource) {
	r, w := io.Pipe()
	src := &pipeSource{PipeReader: r, closed: make(chan struct{})}
	opener := capture.OpenerFunc(func(context.Context) (capture.Source, error) {
		return src, nil
	})
	return opener, w, src
}

func TestDeviceAccumulatesChunksUntilStop(t *testing.T) {
	t.Parallel()

	opener, w, src := newPipeOpener()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	var chunks int
	var chunkMu sync.Mutex
	dev, err := capture.Open(context.Background(), opener,
		capture.WithClock(clock),
		capture.WithDataCallback(func([]byte) {
			chunkMu.Lock()
			chunks++
			chunkMu.Unlock()
		}),
	)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	for _, part := range []string{"RIFF", "data", "1234"} {
		if _, err := w.Write([]byte(part)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	mu.Lock()
	now = now.Add(3 * time.Second)
	mu.Unlock()

	payload, err := dev.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if string(payload.Data) != "RIFFdata1234" {
		t.Fatalf("payload = %q", payload.Data)
	}
	if payload.Duration != 3*time.Second {
		t.Fatalf("duration = %v", payload.Duration)
	}
	chunkMu.Lock()
	if chunks != 3 {
		t.Fatalf("expected 3 data callbacks, got %d", chunks)
	}
	chunkMu.Unlock()
	select {
	case <-src.closed:
	default:
		t.Fatal("expected source to be released")
	}

	again, err := dev.Stop()
	if err != nil || string(again.Data) != "RIFFdata1234" {
		t.Fatalf("second Stop = %q, %v", again.Data, err)
	}
}

func TestDeviceReleasedWhenContextEnds(t *testing.T) {
	t.Parallel()

	opener, _, src := newPipeOpener()
	ctx, cancel := context.WithCancel(context.Background())
	dev, err := capture.Open(ctx, opener)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	cancel()

	select {
	case <-src.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("source not released after context cancellation")
	}
	select {
	case <-dev.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not finish")
	}
}

func TestOpenFailureIsDeviceUnavailable(t *testing.T) {
	t.Parallel()

	opener := capture.OpenerFunc(func(context.Context) (capture.Source, error) {
		return nil, errors.New("permission denied")
	})
	_, err := capture.Open(context.Background(), opener)
	if !errors.Is(err, services.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if _, err := capture.Open(context.Background(), nil); !errors.Is(err, services.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable for nil opener, got %v", err)
	}
}

func TestExecOpenerMissingBinary(t *testing.T) {
	t.Parallel()

	opener := capture.NewExecOpener([]string{"storyvoice-definitely-missing-recorder"})
	_, err := opener.Open(context.Background())
	if !errors.Is(err, services.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if _, err := capture.NewExecOpener(nil).Open(context.Background()); !errors.Is(err, services.ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable for empty command, got %v", err)
	}
}

func TestExecOpenerReadsRecorderStdout(t *testing.T) {
	t.Parallel()

	opener := capture.NewExecOpener([]string{"sh", "-c", "printf RIFFWAVE"})
	dev, err := capture.Open(context.Background(), opener)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	select {
	case <-dev.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("recorder output not drained")
	}
	payload, err := dev.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if string(payload.Data) != "RIFFWAVE" {
		t.Fatalf("payload = %q", payload.Data)
	}
}
