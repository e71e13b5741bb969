package audio_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"storyvoice/internal/audio"
	"storyvoice/internal/services"
)

func newManager(t *testing.T) *audio.Manager {
	t.Helper()
	mgr, err := audio.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestSetBytesReleasesPreviousHandle(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)
	first, err := mgr.SetBytes(audio.OriginCapture, []byte("RIFF....WAVEfmt "))
	if err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if _, err := os.Stat(first.Location()); err != nil {
		t.Fatalf("expected materialized file: %v", err)
	}

	second, err := mgr.SetBytes(audio.OriginFile, []byte("ID3 mp3 bytes"))
	if err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if !mgr.Released(first) {
		t.Fatal("expected first handle to be released")
	}
	if _, err := os.Stat(first.Location()); !os.IsNotExist(err) {
		t.Fatalf("expected first file removed, stat err = %v", err)
	}
	if mgr.Current() != second {
		t.Fatal("expected second handle to be current")
	}
	if mgr.Live() != 1 {
		t.Fatalf("expected exactly one live handle, got %d", mgr.Live())
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)
	h, err := mgr.SetBytes(audio.OriginCapture, []byte("data"))
	if err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	mgr.Release(h)
	mgr.Release(h)
	mgr.Release(nil)
	if mgr.Live() != 0 {
		t.Fatalf("expected no live handles, got %d", mgr.Live())
	}
	if mgr.Current() != nil {
		t.Fatal("expected no current handle")
	}
}

func TestRemoteSelectionOverridesPreview(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)
	if _, err := mgr.SetBytes(audio.OriginCapture, []byte("local")); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if mgr.Overridden() {
		t.Fatal("local preview should not be reported as overridden")
	}
	remote, err := mgr.SetBytes(audio.OriginRemote, []byte("remote"))
	if err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if !mgr.Overridden() || mgr.Current() != remote {
		t.Fatal("expected remote recording to override preview")
	}
	if _, err := mgr.SetBytes(audio.OriginFile, []byte("new local")); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if mgr.Overridden() {
		t.Fatal("new local result should replace the remote selection")
	}
}

func TestSetURLAndClose(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)
	h, err := mgr.SetURL(audio.OriginCanonical, " http://backend/story/u/s ")
	if err != nil {
		t.Fatalf("SetURL: %v", err)
	}
	if h.Location() != "http://backend/story/u/s" {
		t.Fatalf("location = %q", h.Location())
	}
	mgr.Close()
	if !mgr.Released(h) {
		t.Fatal("Close should release the live handle")
	}
	if _, err := mgr.SetBytes(audio.OriginCapture, []byte("x")); !errors.Is(err, audio.ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestExecPlayerRequiresHandle(t *testing.T) {
	t.Parallel()

	player := audio.NewExecPlayer([]string{"true"})
	if err := player.Play(context.Background(), nil); !errors.Is(err, services.ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
}

func TestExecPlayerRunsCommand(t *testing.T) {
	t.Parallel()

	mgr := newManager(t)
	h, err := mgr.SetBytes(audio.OriginCapture, []byte("data"))
	if err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if err := audio.NewExecPlayer([]string{"test", "-f"}).Play(context.Background(), h); err != nil {
		t.Fatalf("Play: %v", err)
	}
	missing := audio.NewExecPlayer([]string{"storyvoice-missing-player"})
	if err := missing.Play(context.Background(), h); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
