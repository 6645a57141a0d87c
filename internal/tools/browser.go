package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nodewerx/tappi-go/internal/cdp"
	"github.com/nodewerx/tappi-go/internal/profiles"
)

// screenshotThumbMaxWidth bounds the preview thumbnail written alongside
// every full-resolution screenshot, so a vision-capable model can be handed
// a small inline preview without the agent loop reading back the full PNG.
const screenshotThumbMaxWidth = 800

// BrowserTool wraps internal/cdp for the agent loop, per spec.md §4.4.
//
// Unlike the Python original's BrowserTool (browser_py/agent/tools/browser.py),
// which lazily reconnects to CDP on every single action, this adapter owns an
// explicit Open/Close lifecycle: the agent host calls Open once per chat turn
// (snapshotting pre-existing tabs) and Close once the turn or sub-agent ends
// (closing every tab it opened). A stale *cdp.Browser handle across actions
// within one turn is correct by construction — Chromium doesn't vanish
// mid-turn — so there is no reconnect-per-call cost or behavior to reproduce.
type BrowserTool struct {
	defaultProfile string
	profiles       *profiles.Store
	downloadDir    string

	browser     *cdp.Browser
	initialTabs map[string]bool
	openedTabs  map[string]bool
}

// NewBrowserTool constructs a BrowserTool. profileStore may be nil if the
// agent never needs named profile resolution (tests, sub-agents that only
// use CDP_URL).
func NewBrowserTool(defaultProfile, downloadDir string, profileStore *profiles.Store) *BrowserTool {
	return &BrowserTool{
		defaultProfile: defaultProfile,
		profiles:       profileStore,
		downloadDir:    downloadDir,
	}
}

func (t *BrowserTool) Name() string { return "browser" }

func (t *BrowserTool) Description() string {
	return "Control a real web browser via Chrome DevTools Protocol: navigate, click, type, read pages, take screenshots, manage tabs."
}

func (t *BrowserTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type": "string",
				"enum": []string{
					"launch", "tabs", "open", "tab", "newtab", "close_tab",
					"elements", "click", "type", "text", "html", "eval",
					"screenshot", "scroll", "url", "back", "forward", "refresh",
					"upload", "wait", "profiles",
				},
			},
			"url":        map[string]interface{}{"type": "string"},
			"index":      map[string]interface{}{"type": "integer"},
			"text":       map[string]interface{}{"type": "string"},
			"selector":   map[string]interface{}{"type": "string"},
			"expression": map[string]interface{}{"type": "string"},
			"direction":  map[string]interface{}{"type": "string", "enum": []string{"up", "down", "top", "bottom"}},
			"amount":     map[string]interface{}{"type": "integer"},
			"path":       map[string]interface{}{"type": "string"},
			"ms":         map[string]interface{}{"type": "integer"},
			"profile":    map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

// Open connects to the underlying CDP browser (the "launch" action starts
// one instead, see launch) and snapshots currently-open tabs, so Close later
// knows what's pre-existing vs. opened by this turn. Per spec.md §4.4, CDP_URL in the
// environment always overrides profile-based port resolution.
func (t *BrowserTool) Open(ctx context.Context) error {
	cdpURL := os.Getenv("CDP_URL")
	if cdpURL == "" {
		cdpURL = t.profileCDPURL()
	}
	b, err := cdp.NewBrowser(cdpURL)
	if err != nil {
		return err
	}
	t.browser = b
	t.openedTabs = map[string]bool{}
	t.snapshotTabs(ctx)
	return nil
}

func (t *BrowserTool) profileCDPURL() string {
	if t.profiles == nil {
		return ""
	}
	name := t.defaultProfile
	if name == "" {
		list, err := t.profiles.List()
		if err != nil || len(list) == 0 {
			return ""
		}
		for _, p := range list {
			if p.IsDefault {
				name = p.Name
				break
			}
		}
		if name == "" {
			name = list[0].Name
		}
	}
	p, ok, err := t.profiles.Get(name)
	if err != nil || !ok {
		return ""
	}
	return "http://127.0.0.1:" + strconv.Itoa(p.Port)
}

func (t *BrowserTool) snapshotTabs(ctx context.Context) {
	t.initialTabs = map[string]bool{}
	if t.browser == nil {
		return
	}
	tabs, err := t.browser.Tabs(ctx)
	if err != nil {
		return
	}
	for _, tab := range tabs {
		t.initialTabs[tab.ID] = true
	}
}

// Close closes every tab this tool opened during the turn (via "newtab")
// that is not in the pre-existing snapshot, then forgets the browser handle.
// It never closes tabs the user already had open.
func (t *BrowserTool) Close(ctx context.Context) {
	if t.browser == nil {
		return
	}
	for targetID := range t.openedTabs {
		if t.initialTabs[targetID] {
			continue
		}
		_ = t.browser.CloseTargetByID(ctx, targetID)
	}
	t.browser = nil
	t.openedTabs = nil
	t.initialTabs = nil
}

func (t *BrowserTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)

	if action == "profiles" {
		return t.listProfiles()
	}
	if action == "launch" {
		return t.launch(ctx, args)
	}

	if t.browser == nil {
		if err := t.Open(ctx); err != nil {
			return browserErrorResult(err)
		}
	}

	result, err := t.dispatch(ctx, action, args)
	if err != nil {
		return browserErrorResult(err)
	}
	return NewResult(result)
}

// browserErrorResult matches the two-tier catch the Python original uses:
// BrowserNotRunning gets a friendly launch hint, CDPError gets "Browser
// error: ...", anything else gets a plain "Error: ...".
func browserErrorResult(err error) *Result {
	switch err.(type) {
	case *cdp.BrowserNotRunning:
		return ErrorResult(err.Error())
	case *cdp.CDPError:
		return ErrorResult(fmt.Sprintf("Browser error: %s", err.Error()))
	default:
		return ErrorResult(fmt.Sprintf("Error: %s", err.Error()))
	}
}

func (t *BrowserTool) dispatch(ctx context.Context, action string, args map[string]interface{}) (string, error) {
	switch action {
	case "tabs":
		tabs, err := t.browser.Tabs(ctx)
		if err != nil {
			return "", err
		}
		if len(tabs) == 0 {
			return "No tabs open.", nil
		}
		out := ""
		for _, tb := range tabs {
			out += tb.String() + "\n"
		}
		return out, nil

	case "open":
		url, _ := args["url"].(string)
		if url == "" {
			return "", fmt.Errorf("action=open requires url")
		}
		return t.browser.Open(ctx, url)

	case "tab":
		return t.browser.Tab(ctx, intArg(args, "index"))

	case "newtab":
		url, _ := args["url"].(string)
		targetID, msg, err := t.browser.NewTab(ctx, url)
		if err != nil {
			return "", err
		}
		t.openedTabs[targetID] = true
		return msg, nil

	case "close_tab":
		idx := -1
		if _, ok := args["index"]; ok {
			idx = intArg(args, "index")
		}
		return t.browser.CloseTab(ctx, idx)

	case "elements":
		sel := stringPtrArg(args, "selector")
		els, err := t.browser.Elements(ctx, sel)
		if err != nil {
			return "", err
		}
		if len(els) == 0 {
			return "No interactive elements found.", nil
		}
		out := ""
		for _, e := range els {
			out += e.String() + "\n"
		}
		return out, nil

	case "click":
		return t.browser.Click(ctx, intArg(args, "index"))

	case "type":
		text, _ := args["text"].(string)
		return t.browser.Type(ctx, intArg(args, "index"), text)

	case "text":
		return t.browser.Text(ctx, stringPtrArg(args, "selector"))

	case "html":
		sel, _ := args["selector"].(string)
		if sel == "" {
			sel = "body"
		}
		return t.browser.HTML(ctx, sel)

	case "eval":
		expr, _ := args["expression"].(string)
		if expr == "" {
			return "", fmt.Errorf("action=eval requires expression")
		}
		v, err := t.browser.Eval(ctx, expr)
		if err != nil {
			return "", err
		}
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprintf("%v", v), nil

	case "screenshot":
		path, _ := args["path"].(string)
		written, err := t.browser.Screenshot(ctx, path, "png")
		if err != nil {
			return "", err
		}
		thumbPath, thumbErr := writeScreenshotThumbnail(written)
		if thumbErr != nil {
			return written, nil
		}
		return fmt.Sprintf("%s (preview: %s)", written, thumbPath), nil

	case "scroll":
		dir, _ := args["direction"].(string)
		amount := intArg(args, "amount")
		if amount == 0 {
			amount = 500
		}
		return t.browser.Scroll(ctx, dir, amount)

	case "url":
		return t.browser.URL(ctx)

	case "back":
		return t.browser.Back(ctx)

	case "forward":
		return t.browser.Forward(ctx)

	case "refresh":
		return t.browser.Refresh(ctx)

	case "upload":
		sel, _ := args["selector"].(string)
		path, _ := args["path"].(string)
		if path == "" {
			return "", fmt.Errorf("action=upload requires path")
		}
		return t.browser.Upload(ctx, sel, path)

	case "wait":
		ms := intArg(args, "ms")
		if ms == 0 {
			ms = 1000
		}
		return t.browser.Wait(ctx, ms)

	default:
		return "", fmt.Errorf("unknown browser action: %q", action)
	}
}

// writeScreenshotThumbnail downsizes a full-resolution screenshot to at most
// screenshotThumbMaxWidth pixels wide (preserving aspect ratio) and writes it
// next to the original as "<name>_thumb<ext>".
func writeScreenshotThumbnail(fullPath string) (string, error) {
	img, err := imaging.Open(fullPath)
	if err != nil {
		return "", err
	}
	if img.Bounds().Dx() > screenshotThumbMaxWidth {
		img = imaging.Resize(img, screenshotThumbMaxWidth, 0, imaging.Lanczos)
	}
	ext := filepath.Ext(fullPath)
	thumbPath := strings.TrimSuffix(fullPath, ext) + "_thumb" + ext
	if err := imaging.Save(img, thumbPath); err != nil {
		return "", err
	}
	return thumbPath, nil
}

func (t *BrowserTool) launch(ctx context.Context, args map[string]interface{}) *Result {
	profileName, _ := args["profile"].(string)
	if profileName == "" {
		profileName = t.defaultProfile
	}
	if profileName == "" {
		profileName = "default"
	}
	if t.profiles == nil {
		return ErrorResult("no profile store configured")
	}

	p, ok, err := t.profiles.Get(profileName)
	if err != nil {
		return ErrorResult(err.Error())
	}
	if !ok {
		p, err = t.profiles.Create(profileName, 0)
		if err != nil {
			return ErrorResult(err.Error())
		}
	}

	cdpURL := "http://127.0.0.1:" + strconv.Itoa(p.Port)
	if probe, err := cdp.NewBrowser(cdpURL); err == nil {
		if _, err := probe.Tabs(ctx); err == nil {
			t.browser = probe
			t.snapshotTabs(ctx)
			t.openedTabs = map[string]bool{}
			return NewResult(fmt.Sprintf("Already running on profile %q (port %d).", profileName, p.Port))
		}
	}

	launched, err := cdp.Launch(ctx, cdp.LaunchOptions{
		Port:        p.Port,
		UserDataDir: p.Path,
		DownloadDir: t.downloadDir,
	})
	if err != nil {
		return ErrorResult(err.Error())
	}
	t.browser = launched.Browser
	t.openedTabs = map[string]bool{}
	t.snapshotTabs(ctx)
	return NewResult(fmt.Sprintf("Launched browser on profile %q (port %d).", profileName, p.Port))
}

func (t *BrowserTool) listProfiles() *Result {
	if t.profiles == nil {
		return NewResult("No profile store configured.")
	}
	list, err := t.profiles.List()
	if err != nil {
		return ErrorResult(err.Error())
	}
	if len(list) == 0 {
		return NewResult("No profiles configured.")
	}
	out := ""
	for _, p := range list {
		suffix := ""
		if p.IsDefault {
			suffix = " (default)"
		}
		out += fmt.Sprintf("%s — port %d%s\n", p.Name, p.Port, suffix)
	}
	return NewResult(out)
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func stringPtrArg(args map[string]interface{}, key string) *string {
	s, ok := args[key].(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}
