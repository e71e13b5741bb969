package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"storyvoice/internal/api"
)

const apiProbeTimeout = 5 * time.Second

// CheckAPI verifies that the backend answers the story catalog endpoint.
func CheckAPI(ctx context.Context, client api.HTTPDoer, baseURL string) Result {
	const name = "Backend API"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing base_url"}
	}
	if client == nil {
		client = &http.Client{Timeout: apiProbeTimeout}
	}

	checkCtx, cancel := context.WithTimeout(ctx, apiProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/stories/", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("invalid base_url (%v)", err)}
	}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: summarizeConnectError(err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", base)}
	}
	return Result{Name: name, Detail: fmt.Sprintf("%s (status %d)", base, resp.StatusCode)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

func summarizeConnectError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Unable to connect to server (timed out)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "Unable to connect to server (timed out)"
	}
	return fmt.Sprintf("Unable to connect to server (%v)", err)
}
