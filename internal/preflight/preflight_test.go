package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storyvoice/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckAPI_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stories/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	result := CheckAPI(context.Background(), srv.Client(), srv.URL+"/")
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckAPI_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := CheckAPI(context.Background(), nil, srv.URL)
	if result.Passed || !strings.Contains(result.Detail, "502") {
		t.Fatalf("expected status failure, got %#v", result)
	}
}

func TestCheckAPI_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	result := CheckAPI(context.Background(), nil, url)
	if result.Passed || !strings.HasPrefix(result.Detail, "Unable to connect to server") {
		t.Fatalf("expected connect failure, got %#v", result)
	}
}

func TestCheckAPI_MissingURL(t *testing.T) {
	result := CheckAPI(context.Background(), nil, "  ")
	if result.Passed {
		t.Fatal("expected failure for missing URL")
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	if results := RunAll(context.Background(), nil, nil); results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_ReportsEveryCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t,
		testsupport.WithBaseURL(srv.URL),
		testsupport.WithCaptureCommand("sh", "-c", "true"),
		testsupport.WithPlaybackCommand("clearly-not-present-player"),
	)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := RunAll(context.Background(), cfg, srv.Client())
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %#v", len(results), results)
	}
	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	for _, name := range []string{"Cache directory", "State directory", "Capture", "Backend API"} {
		if !byName[name].Passed {
			t.Errorf("check %q failed: %s", name, byName[name].Detail)
		}
	}
	playback := byName["Playback"]
	if playback.Passed || !playback.Optional {
		t.Fatalf("expected optional playback failure, got %#v", playback)
	}
	if Failed(results) {
		t.Fatal("optional failures must not fail the run")
	}
}

func TestFailed(t *testing.T) {
	if !Failed([]Result{{Name: "a", Passed: true}, {Name: "b"}}) {
		t.Fatal("expected required failure to fail")
	}
	if Failed([]Result{{Name: "a", Passed: true}, {Name: "b", Optional: true}}) {
		t.Fatal("expected optional failure to pass")
	}
}
