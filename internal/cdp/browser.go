package cdp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nodewerx/tappi-go/internal/jsexpr"
)

// evalResult mirrors the shape of a CDP Runtime.evaluate response we care
// about: either a plain value, an exception, or an undefined result.
type evalResult struct {
	Result struct {
		Type        string          `json:"type"`
		Value       json.RawMessage `json:"value"`
		Description string          `json:"description"`
	} `json:"result"`
	ExceptionDetails *struct {
		Text      string `json:"text"`
		Exception struct {
			Description string `json:"description"`
		} `json:"exception"`
	} `json:"exceptionDetails"`
}

func (b *Browser) evalOnPage(ctx context.Context, sess *Session, js string) (json.RawMessage, error) {
	raw, err := sess.Send(ctx, "Runtime.evaluate", map[string]any{
		"expression":    js,
		"returnByValue": true,
		"awaitPromise":  true,
	})
	if err != nil {
		return nil, err
	}
	var r evalResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("cdp: decode eval result: %w", err)
	}
	if r.ExceptionDetails != nil {
		desc := r.ExceptionDetails.Exception.Description
		if desc == "" {
			desc = r.ExceptionDetails.Text
		}
		return nil, newCDPError("JS Error: %s", desc)
	}
	return r.Result.Value, nil
}

// eval evaluates js against the current tab, opening and closing its own
// page connection.
func (b *Browser) eval(ctx context.Context, js string) (json.RawMessage, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	return b.evalOnPage(ctx, sess, js)
}

func evalString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ensureIndexed probes whether stamps exist; if not, indexes the whole page.
func (b *Browser) ensureIndexed(ctx context.Context, sess *Session) error {
	raw, err := b.evalOnPage(ctx, sess, jsexpr.CheckIndexed())
	if err != nil {
		return err
	}
	var indexed bool
	_ = json.Unmarshal(raw, &indexed)
	if indexed {
		return nil
	}
	_, err = b.evalOnPage(ctx, sess, jsexpr.Elements(nil))
	return err
}

// Tabs lists all open tabs.
func (b *Browser) Tabs(ctx context.Context) ([]Tab, error) {
	pages, err := b.getPages(ctx)
	if err != nil {
		return nil, err
	}
	tabs := make([]Tab, len(pages))
	for i, p := range pages {
		tabs[i] = Tab{Index: i, ID: p.ID, Title: p.Title, URL: p.URL}
	}
	return tabs, nil
}

// Tab switches to and brings a tab to the front.
func (b *Browser) Tab(ctx context.Context, index int) (string, error) {
	t, err := b.targetByIndex(ctx, index)
	if err != nil {
		return "", err
	}
	sess, err := b.connectPage(ctx, t.ID)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "Page.bringToFront", nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("Switched to tab [%d]: %s — %s", index, t.Title, t.URL), nil
}

// NewTab opens a new tab, returning the created target id (for tab-ownership
// accounting by the browser-tool adapter).
func (b *Browser) NewTab(ctx context.Context, url string) (targetID string, msg string, err error) {
	if url == "" {
		url = "about:blank"
	}
	sess, err := b.connectBrowserLevel(ctx)
	if err != nil {
		return "", "", err
	}
	defer sess.Close()
	raw, err := sess.Send(ctx, "Target.createTarget", map[string]any{"url": url})
	if err != nil {
		return "", "", err
	}
	var res struct {
		TargetID string `json:"targetId"`
	}
	_ = json.Unmarshal(raw, &res)
	return res.TargetID, fmt.Sprintf("Opened new tab: %s", res.TargetID), nil
}

// CloseTab closes a tab by index, or the current tab if index is negative.
func (b *Browser) CloseTab(ctx context.Context, index int) (string, error) {
	var t targetInfo
	var err error
	if index >= 0 {
		t, err = b.targetByIndex(ctx, index)
	} else {
		t, err = b.currentTarget(ctx)
	}
	if err != nil {
		return "", err
	}
	sess, err := b.connectBrowserLevel(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "Target.closeTarget", map[string]any{"targetId": t.ID}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Closed tab: %s", t.Title), nil
}

// CloseTargetByID closes one target by id, used by tab-ownership cleanup.
func (b *Browser) CloseTargetByID(ctx context.Context, targetID string) error {
	sess, err := b.connectBrowserLevel(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()
	_, err = sess.Send(ctx, "Target.closeTarget", map[string]any{"targetId": targetID})
	return err
}

// Open navigates the current tab to url, auto-prepending https:// and
// waiting (up to 10s) for Page.loadEventFired.
func (b *Browser) Open(ctx context.Context, url string) (string, error) {
	if !strings.HasPrefix(url, "http") {
		url = "https://" + url
	}
	t, err := b.currentTarget(ctx)
	if err != nil {
		return "", err
	}
	sess, err := b.connectPage(ctx, t.ID)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "Page.enable", nil); err != nil {
		return "", err
	}
	if _, err := sess.SendAndWaitEvent(ctx, "Page.navigate", "Page.loadEventFired", 10*time.Second, map[string]any{"url": url}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Navigated to %s", url), nil
}

// URL returns the current tab's URL.
func (b *Browser) URL(ctx context.Context) (string, error) {
	t, err := b.currentTarget(ctx)
	if err != nil {
		return "", err
	}
	return t.URL, nil
}

type navigationHistory struct {
	CurrentIndex int `json:"currentIndex"`
	Entries      []struct {
		ID  int    `json:"id"`
		URL string `json:"url"`
	} `json:"entries"`
}

// Back navigates one step back in tab history.
func (b *Browser) Back(ctx context.Context) (string, error) {
	return b.navigateHistory(ctx, -1, "Already at first page in history.", "Back to: %s")
}

// Forward navigates one step forward in tab history.
func (b *Browser) Forward(ctx context.Context) (string, error) {
	return b.navigateHistory(ctx, 1, "Already at last page in history.", "Forward to: %s")
}

func (b *Browser) navigateHistory(ctx context.Context, dir int, noneMsg, fmtMsg string) (string, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	raw, err := sess.Send(ctx, "Page.getNavigationHistory", nil)
	if err != nil {
		return "", err
	}
	var hist navigationHistory
	if err := json.Unmarshal(raw, &hist); err != nil {
		return "", fmt.Errorf("cdp: decode navigation history: %w", err)
	}
	target := hist.CurrentIndex + dir
	if target < 0 || target >= len(hist.Entries) {
		return noneMsg, nil
	}
	entry := hist.Entries[target]
	if _, err := sess.Send(ctx, "Page.navigateToHistoryEntry", map[string]any{"entryId": entry.ID}); err != nil {
		return "", err
	}
	return fmt.Sprintf(fmtMsg, entry.URL), nil
}

// Refresh reloads the current tab.
func (b *Browser) Refresh(ctx context.Context) (string, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "Page.reload", nil); err != nil {
		return "", err
	}
	return "Refreshed.", nil
}

// Elements lists interactive elements under an optional selector scope.
func (b *Browser) Elements(ctx context.Context, selector *string) ([]Element, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return nil, err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "DOM.enable", nil); err != nil {
		return nil, err
	}
	if _, err := sess.Send(ctx, "Runtime.enable", nil); err != nil {
		return nil, err
	}
	raw, err := b.evalOnPage(ctx, sess, jsexpr.Elements(selector))
	if err != nil {
		return nil, err
	}
	var parsed []struct {
		Label string `json:"label"`
		Desc  string `json:"desc"`
	}
	s := evalString(raw)
	if strings.Contains(s, `"error"`) {
		var errObj struct {
			Error string `json:"error"`
		}
		if json.Unmarshal([]byte(s), &errObj) == nil && errObj.Error != "" {
			return nil, newCDPError("%s", errObj.Error)
		}
	}
	if err := json.Unmarshal([]byte(s), &parsed); err != nil {
		return nil, fmt.Errorf("cdp: decode elements: %w", err)
	}
	out := make([]Element, len(parsed))
	for i, e := range parsed {
		out[i] = Element{Index: i, Label: e.Label, Desc: e.Desc}
	}
	return out, nil
}

type clickInfo struct {
	Error string  `json:"error"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Label string  `json:"label"`
	Desc  string  `json:"desc"`
}

// Click clicks an element by its stamped index via real mouse events.
func (b *Browser) Click(ctx context.Context, index int) (string, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if err := b.ensureIndexed(ctx, sess); err != nil {
		return "", err
	}
	raw, err := b.evalOnPage(ctx, sess, jsexpr.ClickInfo(index))
	if err != nil {
		return "", err
	}
	var info clickInfo
	if err := json.Unmarshal([]byte(evalString(raw)), &info); err != nil {
		return "", fmt.Errorf("cdp: decode click info: %w", err)
	}
	if info.Error != "" {
		return "", newCDPError("%s", info.Error)
	}
	opts := map[string]any{"x": info.X, "y": info.Y, "button": "left", "clickCount": 1}
	for _, t := range []string{"mousePressed", "mouseReleased"} {
		o := cloneMap(opts)
		o["type"] = t
		if _, err := sess.Send(ctx, "Input.dispatchMouseEvent", o); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("Clicked: (%s) %s", info.Label, info.Desc), nil
}

type typeInfo struct {
	Error string  `json:"error"`
	OK    bool    `json:"ok"`
	Tag   string  `json:"tag"`
	CE    bool    `json:"ce"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Type clicks to focus, clears, then types text into an element by index.
func (b *Browser) Type(ctx context.Context, index int, text string) (string, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if err := b.ensureIndexed(ctx, sess); err != nil {
		return "", err
	}
	raw, err := b.evalOnPage(ctx, sess, jsexpr.TypeInfo(index))
	if err != nil {
		return "", err
	}
	var info typeInfo
	if err := json.Unmarshal([]byte(evalString(raw)), &info); err != nil {
		return "", fmt.Errorf("cdp: decode type info: %w", err)
	}
	if info.Error != "" {
		return "", newCDPError("%s", info.Error)
	}

	clickOpts := map[string]any{"x": info.X, "y": info.Y, "button": "left", "clickCount": 1}
	for _, t := range []string{"mousePressed", "mouseReleased"} {
		o := cloneMap(clickOpts)
		o["type"] = t
		if _, err := sess.Send(ctx, "Input.dispatchMouseEvent", o); err != nil {
			return "", err
		}
	}
	time.Sleep(100 * time.Millisecond)

	if info.CE {
		if _, err := b.evalOnPage(ctx, sess, jsexpr.ClearContentEditable(index)); err != nil {
			return "", err
		}
		if _, err := sess.Send(ctx, "Input.dispatchKeyEvent", map[string]any{"type": "keyDown", "key": "Backspace", "code": "Backspace"}); err != nil {
			return "", err
		}
		if _, err := sess.Send(ctx, "Input.dispatchKeyEvent", map[string]any{"type": "keyUp", "key": "Backspace", "code": "Backspace"}); err != nil {
			return "", err
		}
	} else {
		if _, err := b.evalOnPage(ctx, sess, jsexpr.ClearInput(index)); err != nil {
			return "", err
		}
	}

	if _, err := sess.Send(ctx, "Input.insertText", map[string]any{"text": text}); err != nil {
		for _, ch := range text {
			c := string(ch)
			if _, err := sess.Send(ctx, "Input.dispatchKeyEvent", map[string]any{"type": "keyDown", "text": c, "key": c, "unmodifiedText": c}); err != nil {
				return "", err
			}
			if _, err := sess.Send(ctx, "Input.dispatchKeyEvent", map[string]any{"type": "keyUp", "key": c}); err != nil {
				return "", err
			}
		}
	}

	if !info.CE {
		if _, err := b.evalOnPage(ctx, sess, jsexpr.SetInputValue(index, text)); err != nil {
			return "", err
		}
	}

	tag := info.Tag
	if tag == "" {
		tag = "element"
	}
	ce := ""
	if info.CE {
		ce = ", contenteditable"
	}
	return fmt.Sprintf("Typed into [%d] (%s%s)", index, tag, ce), nil
}

// Text extracts visible text, optionally scoped to a selector.
func (b *Browser) Text(ctx context.Context, selector *string) (string, error) {
	raw, err := b.eval(ctx, jsexpr.ExtractText(selector))
	if err != nil {
		return "", err
	}
	s := evalString(raw)
	if s == "" {
		return "(empty page)", nil
	}
	return s, nil
}

// HTML returns outerHTML of one element.
func (b *Browser) HTML(ctx context.Context, selector string) (string, error) {
	raw, err := b.eval(ctx, jsexpr.GetHTML(selector))
	if err != nil {
		return "", err
	}
	return evalString(raw), nil
}

// Eval runs arbitrary JS and returns the decoded result value.
func (b *Browser) Eval(ctx context.Context, js string) (any, error) {
	raw, err := b.eval(ctx, js)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return evalString(raw), nil
	}
	return v, nil
}

// Screenshot captures the current tab and writes it to path (or a default
// /tmp path), returning the path written.
func (b *Browser) Screenshot(ctx context.Context, path, format string) (string, error) {
	if format == "" {
		format = "png"
	}
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	raw, err := sess.Send(ctx, "Page.captureScreenshot", map[string]any{"format": format})
	if err != nil {
		return "", err
	}
	var res struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		return "", fmt.Errorf("cdp: decode screenshot: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(res.Data)
	if err != nil {
		return "", fmt.Errorf("cdp: decode screenshot base64: %w", err)
	}
	ext := format
	if format == "jpeg" {
		ext = "jpg"
	}
	outPath := path
	if outPath == "" {
		outPath = fmt.Sprintf("/tmp/tappi_screenshot_%d.%s", time.Now().Unix(), ext)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return "", fmt.Errorf("cdp: write screenshot: %w", err)
	}
	return outPath, nil
}

var scrollJS = map[string]string{
	"top":    "window.scrollTo(0, 0)",
	"bottom": "window.scrollTo(0, document.body.scrollHeight)",
}

// Scroll scrolls the page up/down/top/bottom.
func (b *Browser) Scroll(ctx context.Context, direction string, amount int) (string, error) {
	var js, suffix string
	switch direction {
	case "up":
		js = fmt.Sprintf("window.scrollBy(0, -%d)", amount)
		suffix = fmt.Sprintf(" %dpx", amount)
	case "down":
		js = fmt.Sprintf("window.scrollBy(0, %d)", amount)
		suffix = fmt.Sprintf(" %dpx", amount)
	default:
		var ok bool
		js, ok = scrollJS[direction]
		if !ok {
			return "", fmt.Errorf("invalid direction %q: use up, down, top, bottom", direction)
		}
	}
	if _, err := b.eval(ctx, js); err != nil {
		return "", err
	}
	return fmt.Sprintf("Scrolled %s%s", direction, suffix), nil
}

// ClickXY dispatches a raw mouse click at page coordinates, bypassing any
// element index — the only way to reach cross-origin iframes, captchas,
// or other overlays the indexer cannot see into.
func (b *Browser) ClickXY(ctx context.Context, x, y float64, double, right bool) (string, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	button := "left"
	if right {
		button = "right"
	}
	clickCount := 1
	if double {
		clickCount = 2
	}
	base := map[string]any{"x": x, "y": y, "button": button, "clickCount": clickCount}
	for _, t := range []string{"mousePressed", "mouseReleased"} {
		o := cloneMap(base)
		o["type"] = t
		if _, err := sess.Send(ctx, "Input.dispatchMouseEvent", o); err != nil {
			return "", err
		}
	}
	kind := "Clicked"
	if double {
		kind = "Double-clicked"
	}
	if right {
		kind = "Right-clicked"
	}
	return fmt.Sprintf("%s at (%.0f, %.0f)", kind, x, y), nil
}

// HoverXY moves the mouse to page coordinates without clicking.
func (b *Browser) HoverXY(ctx context.Context, x, y float64) (string, error) {
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
		"type": "mouseMoved", "x": x, "y": y,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Hovering at (%.0f, %.0f)", x, y), nil
}

// DragXY presses at (x,y), interpolates steps intermediate mouse moves, then
// releases at (x2,y2) — needed for sliders, resize handles, and sortable
// lists that only respond to a continuous drag gesture.
func (b *Browser) DragXY(ctx context.Context, x, y, x2, y2 float64) (string, error) {
	const steps = 10
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
		"type": "mousePressed", "x": x, "y": y, "button": "left", "clickCount": 1,
	}); err != nil {
		return "", err
	}
	for i := 1; i <= steps; i++ {
		frac := float64(i) / float64(steps)
		ix := x + (x2-x)*frac
		iy := y + (y2-y)*frac
		if _, err := sess.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
			"type": "mouseMoved", "x": ix, "y": iy, "button": "left",
		}); err != nil {
			return "", err
		}
	}
	if _, err := sess.Send(ctx, "Input.dispatchMouseEvent", map[string]any{
		"type": "mouseReleased", "x": x2, "y": y2, "button": "left", "clickCount": 1,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Dragged (%.0f, %.0f) → (%.0f, %.0f)", x, y, x2, y2), nil
}

type iframeRectResult struct {
	Error  string  `json:"error"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	CX     float64 `json:"cx"`
	CY     float64 `json:"cy"`
}

// IframeRect returns the page-coordinate bounding box of an iframe, so a
// caller can compute click_xy/drag_xy targets inside cross-origin content
// the CDP DOM domain cannot otherwise address.
func (b *Browser) IframeRect(ctx context.Context, selector string) (IframeRect, error) {
	js := fmt.Sprintf(`
(() => {
  const el = document.querySelector(%s);
  if (!el) return JSON.stringify({ error: 'Selector not found: ' + %s });
  const rect = el.getBoundingClientRect();
  return JSON.stringify({
    x: rect.x, y: rect.y, width: rect.width, height: rect.height,
    cx: rect.x + rect.width / 2, cy: rect.y + rect.height / 2
  });
})()
`, jsonSel(selector), jsonSel(selector))
	raw, err := b.eval(ctx, js)
	if err != nil {
		return IframeRect{}, err
	}
	var r iframeRectResult
	if err := json.Unmarshal([]byte(evalString(raw)), &r); err != nil {
		return IframeRect{}, fmt.Errorf("cdp: decode iframe rect: %w", err)
	}
	if r.Error != "" {
		return IframeRect{}, newCDPError("%s", r.Error)
	}
	return IframeRect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height, CX: r.CX, CY: r.CY}, nil
}

// IframeRect is the page-coordinate bounding box of an iframe element.
type IframeRect struct {
	X, Y, Width, Height, CX, CY float64
}

func jsonSel(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Upload sets files on a file input located by selector (default "input[type=file]")
// via DOM.setFileInputFiles — no OS file picker dialog is involved.
func (b *Browser) Upload(ctx context.Context, selector, path string) (string, error) {
	if selector == "" {
		selector = "input[type=file]"
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cdp: upload file not found: %w", err)
	}
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()
	if _, err := sess.Send(ctx, "DOM.enable", nil); err != nil {
		return "", err
	}
	docRaw, err := sess.Send(ctx, "DOM.getDocument", nil)
	if err != nil {
		return "", err
	}
	var doc struct {
		Root struct {
			NodeID int `json:"nodeId"`
		} `json:"root"`
	}
	if err := json.Unmarshal(docRaw, &doc); err != nil {
		return "", fmt.Errorf("cdp: decode document root: %w", err)
	}
	nodeRaw, err := sess.Send(ctx, "DOM.querySelector", map[string]any{
		"nodeId":   doc.Root.NodeID,
		"selector": selector,
	})
	if err != nil {
		return "", err
	}
	var node struct {
		NodeID int `json:"nodeId"`
	}
	if err := json.Unmarshal(nodeRaw, &node); err != nil {
		return "", fmt.Errorf("cdp: decode query result: %w", err)
	}
	if node.NodeID == 0 {
		return "", newCDPError("No file input found matching %q", selector)
	}
	if _, err := sess.Send(ctx, "DOM.setFileInputFiles", map[string]any{
		"files":  []string{path},
		"nodeId": node.NodeID,
	}); err != nil {
		return "", err
	}
	return fmt.Sprintf("Uploaded %s", path), nil
}

// Wait pauses for the given number of milliseconds, honoring context
// cancellation.
func (b *Browser) Wait(ctx context.Context, ms int) (string, error) {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return fmt.Sprintf("Waited %dms", ms), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
