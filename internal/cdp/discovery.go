package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Tab is a positional handle into the CDP /json/list page targets.
type Tab struct {
	Index int
	ID    string
	Title string
	URL   string
}

func (t Tab) String() string {
	title := t.Title
	if title == "" {
		title = "(untitled)"
	}
	return fmt.Sprintf("[%d] %s — %s", t.Index, title, t.URL)
}

// Element is an interactive DOM node indexed by elements().
type Element struct {
	Index int
	Label string
	Desc  string
}

func (e Element) String() string {
	return fmt.Sprintf("[%d] (%s) %s", e.Index, e.Label, e.Desc)
}

type targetInfo struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Browser is the high-level driver bound to one Chromium instance's HTTP
// discovery endpoint. Each page operation opens its own short-lived CDP
// WebSocket connection to the current target and closes it when done,
// matching the reference driver's per-call connection discipline — this
// keeps one Agent's Browser value free of any persistent-connection state
// that a concurrent Agent on the same profile could race against beyond
// what §9 open question 5 already accepts.
type Browser struct {
	CDPURL string
	port   int
	http   *http.Client
}

// NewBrowser binds to a CDP HTTP endpoint, default http://127.0.0.1:9222
// when cdpURL is empty. It does not read the environment: callers resolve
// the CDP_URL override (§4.4) before calling NewBrowser so the override is
// visible at the call site.
func NewBrowser(cdpURL string) (*Browser, error) {
	if cdpURL == "" {
		cdpURL = "http://127.0.0.1:9222"
	}
	port, err := portFromURL(cdpURL)
	if err != nil {
		return nil, err
	}
	return &Browser{
		CDPURL: cdpURL,
		port:   port,
		http:   &http.Client{Timeout: 5 * time.Second},
	}, nil
}

func portFromURL(cdpURL string) (int, error) {
	parts := strings.Split(cdpURL, ":")
	last := parts[len(parts)-1]
	last = strings.SplitN(last, "/", 2)[0]
	p, err := strconv.Atoi(last)
	if err != nil {
		return 0, fmt.Errorf("cdp: cannot parse port from %q: %w", cdpURL, err)
	}
	return p, nil
}

func (b *Browser) fetchJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.CDPURL+path, nil)
	if err != nil {
		return newBrowserNotRunning(b.CDPURL)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return newBrowserNotRunning(b.CDPURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return newBrowserNotRunning(b.CDPURL)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return newBrowserNotRunning(b.CDPURL)
	}
	return nil
}

func (b *Browser) getPages(ctx context.Context) ([]targetInfo, error) {
	var all []targetInfo
	if err := b.fetchJSON(ctx, "/json/list", &all); err != nil {
		return nil, err
	}
	pages := make([]targetInfo, 0, len(all))
	for _, t := range all {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

func (b *Browser) currentTarget(ctx context.Context) (targetInfo, error) {
	pages, err := b.getPages(ctx)
	if err != nil {
		return targetInfo{}, err
	}
	if len(pages) == 0 {
		return targetInfo{}, newCDPError(
			"No browser tabs open.\nHint: Open a tab in your browser, or use: browser(action=\"open\", url=\"https://example.com\")")
	}
	return pages[0], nil
}

func (b *Browser) targetByIndex(ctx context.Context, index int) (targetInfo, error) {
	pages, err := b.getPages(ctx)
	if err != nil {
		return targetInfo{}, err
	}
	if index < 0 || index >= len(pages) {
		return targetInfo{}, newCDPError("Tab index %d out of range (0–%d).\nHint: Run tabs() to see available tabs.", index, len(pages)-1)
	}
	return pages[index], nil
}

func (b *Browser) connectPage(ctx context.Context, targetID string) (*Session, error) {
	if targetID == "" {
		t, err := b.currentTarget(ctx)
		if err != nil {
			return nil, err
		}
		targetID = t.ID
	}
	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/devtools/page/%s", b.port, targetID)
	sess, err := Dial(ctx, wsURL)
	if err != nil {
		return nil, newBrowserNotRunning(b.CDPURL)
	}
	return sess, nil
}

var hostRewriteRe = regexp.MustCompile(`ws://[^/]+`)

// connectBrowserLevel connects to the browser-wide CDP endpoint by fetching
// /json/version and rewriting its advertised host to 127.0.0.1:<port> (the
// advertised host is sometimes "localhost" or a container-internal name).
func (b *Browser) connectBrowserLevel(ctx context.Context) (*Session, error) {
	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := b.fetchJSON(ctx, "/json/version", &version); err != nil {
		return nil, err
	}
	wsURL := hostRewriteRe.ReplaceAllString(version.WebSocketDebuggerURL, fmt.Sprintf("ws://127.0.0.1:%d", b.port))
	sess, err := Dial(ctx, wsURL)
	if err != nil {
		return nil, newBrowserNotRunning(b.CDPURL)
	}
	return sess, nil
}
