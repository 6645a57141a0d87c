package cdp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// darwinCandidates, linuxCandidates and windowsCandidates list well-known
// Chromium/Chrome install paths per platform, checked in order before
// falling back to a PATH lookup. Mirrors the reference driver's
// per-platform candidate lists.
var (
	darwinCandidates = []string{
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	}
	linuxCandidates = []string{
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
		"/usr/bin/microsoft-edge",
	}
	windowsCandidates = []string{
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files\Microsoft\Edge\Application\msedge.exe`,
	}
	pathLookupNames = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}
)

// findChrome locates a Chromium-family browser binary, checking well-known
// install paths for the current platform and falling back to PATH.
func findChrome() (string, error) {
	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = darwinCandidates
	case "windows":
		candidates = windowsCandidates
	default:
		candidates = linuxCandidates
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c, nil
		}
	}
	for _, name := range pathLookupNames {
		if p, err := exec.LookPath(name); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("cdp: no Chromium-family browser found; install Google Chrome or Chromium, or set CHROME_PATH")
}

// LaunchOptions configures a Chromium subprocess launch.
type LaunchOptions struct {
	// BinaryPath overrides auto-discovery (e.g. from $CHROME_PATH).
	BinaryPath string
	Port       int
	UserDataDir string
	Headless   bool
	// DownloadDir, if set, is applied via Page.setDownloadBehavior once the
	// target responds, best-effort (a failure here is non-fatal).
	DownloadDir string
}

// LaunchedBrowser holds a spawned Chromium subprocess plus its bound
// Browser driver.
type LaunchedBrowser struct {
	*Browser
	cmd *exec.Cmd
}

// Close terminates the Chromium subprocess.
func (l *LaunchedBrowser) Close() error {
	if l.cmd == nil || l.cmd.Process == nil {
		return nil
	}
	return l.cmd.Process.Kill()
}

// Launch starts a Chromium subprocess with remote debugging enabled and
// polls /json/version until it responds (or 10 seconds elapse), mirroring
// Browser.launch in the reference driver.
func Launch(ctx context.Context, opts LaunchOptions) (*LaunchedBrowser, error) {
	bin := opts.BinaryPath
	if bin == "" {
		bin = os.Getenv("CHROME_PATH")
	}
	if bin == "" {
		var err error
		bin, err = findChrome()
		if err != nil {
			return nil, err
		}
	}
	port := opts.Port
	if port == 0 {
		port = 9222
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.UserDataDir != "" {
		args = append(args, "--user-data-dir="+opts.UserDataDir)
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}

	cmd := exec.Command(bin, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("cdp: launch %s: %w", bin, err)
	}

	cdpURL := fmt.Sprintf("http://127.0.0.1:%d", port)
	browser, err := NewBrowser(cdpURL)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	deadline := time.Now().Add(10 * time.Second)
	client := &http.Client{Timeout: 500 * time.Millisecond}
	ready := false
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, cdpURL+"/json/version", nil)
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				ready = true
				break
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	if !ready {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("cdp: chromium did not become ready on port %d within 10s", port)
	}

	if opts.DownloadDir != "" {
		if sess, err := browser.connectPage(ctx, ""); err == nil {
			_, _ = sess.Send(ctx, "Page.setDownloadBehavior", map[string]any{
				"behavior":     "allow",
				"downloadPath": opts.DownloadDir,
			})
			sess.Close()
		}
		// best-effort: a stale/crashed page target here is not fatal to launch
	}

	return &LaunchedBrowser{Browser: browser, cmd: cmd}, nil
}
