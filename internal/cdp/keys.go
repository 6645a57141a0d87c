package cdp

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// namedKey describes one CDP Input.dispatchKeyEvent payload for a key that
// has no printable character — the modifier-free navigation and editing
// keys canvas apps (sheets, slides, diagram editors) rely on when there is
// no DOM element to target.
type namedKey struct {
	key             string
	code            string
	windowsVK       int
	nativeVK        int
}

// namedKeys maps a "--flag" action token to its CDP key event fields. Values
// follow the DOM UI Events key names CDP expects in Input.dispatchKeyEvent.
var namedKeys = map[string]namedKey{
	"--enter":     {key: "Enter", code: "Enter", windowsVK: 13, nativeVK: 13},
	"--tab":       {key: "Tab", code: "Tab", windowsVK: 9, nativeVK: 9},
	"--escape":    {key: "Escape", code: "Escape", windowsVK: 27, nativeVK: 27},
	"--backspace": {key: "Backspace", code: "Backspace", windowsVK: 8, nativeVK: 8},
	"--delete":    {key: "Delete", code: "Delete", windowsVK: 46, nativeVK: 46},
	"--up":        {key: "ArrowUp", code: "ArrowUp", windowsVK: 38, nativeVK: 38},
	"--down":      {key: "ArrowDown", code: "ArrowDown", windowsVK: 40, nativeVK: 40},
	"--left":      {key: "ArrowLeft", code: "ArrowLeft", windowsVK: 37, nativeVK: 37},
	"--right":     {key: "ArrowRight", code: "ArrowRight", windowsVK: 39, nativeVK: 39},
	"--home":      {key: "Home", code: "Home", windowsVK: 36, nativeVK: 36},
	"--end":       {key: "End", code: "End", windowsVK: 35, nativeVK: 35},
	"--space":     {key: " ", code: "Space", windowsVK: 32, nativeVK: 32},
}

// modifierBits are the CDP Input domain's modifier bitmask values.
const (
	modAlt   = 1
	modCtrl  = 2
	modMeta  = 4
	modShift = 8
)

func comboModifiers(parts []string) (int, string, error) {
	mods := 0
	var mainKey string
	for _, p := range parts {
		switch strings.ToLower(p) {
		case "ctrl", "control":
			mods |= modCtrl
		case "cmd", "command", "meta", "super":
			mods |= modMeta
		case "alt", "option":
			mods |= modAlt
		case "shift":
			mods |= modShift
		default:
			if mainKey != "" {
				return 0, "", fmt.Errorf("cdp: combo %q has more than one non-modifier key", strings.Join(parts, "+"))
			}
			mainKey = p
		}
	}
	if mainKey == "" {
		return 0, "", fmt.Errorf("cdp: combo %q has no base key", strings.Join(parts, "+"))
	}
	return mods, mainKey, nil
}

// Keys replays a mixed stream of plain text, named key flags ("--enter",
// "--tab", ...), "--combo key+key" modifier combos, and "--wait N"
// millisecond delays against the current tab via raw CDP Input events.
// Used to drive canvas-based apps (spreadsheets, slide editors, diagram
// tools) that expose no DOM element for the text to land on.
func (b *Browser) Keys(ctx context.Context, actions []string) (string, error) {
	if len(actions) == 0 {
		return "", fmt.Errorf("cdp: keys requires at least one action")
	}
	sess, err := b.connectPage(ctx, "")
	if err != nil {
		return "", err
	}
	defer sess.Close()

	var sent []string
	i := 0
	for i < len(actions) {
		a := actions[i]
		switch {
		case a == "--combo":
			if i+1 >= len(actions) {
				return "", fmt.Errorf("cdp: --combo requires a following key combo like cmd+b")
			}
			combo := actions[i+1]
			if err := b.sendCombo(ctx, sess, combo); err != nil {
				return "", err
			}
			sent = append(sent, "combo("+combo+")")
			i += 2
		case a == "--wait":
			if i+1 >= len(actions) {
				return "", fmt.Errorf("cdp: --wait requires a following millisecond count")
			}
			var ms int
			if _, err := fmt.Sscanf(actions[i+1], "%d", &ms); err != nil {
				return "", fmt.Errorf("cdp: invalid --wait duration %q: %w", actions[i+1], err)
			}
			time.Sleep(time.Duration(ms) * time.Millisecond)
			sent = append(sent, fmt.Sprintf("wait(%dms)", ms))
			i += 2
		case strings.HasPrefix(a, "--"):
			nk, ok := namedKeys[a]
			if !ok {
				return "", fmt.Errorf("cdp: unknown key flag %q", a)
			}
			if err := b.sendNamedKey(ctx, sess, nk, 0); err != nil {
				return "", err
			}
			sent = append(sent, a)
			i++
		default:
			if err := b.sendText(ctx, sess, a); err != nil {
				return "", err
			}
			sent = append(sent, fmt.Sprintf("text(%q)", a))
			i++
		}
	}
	return fmt.Sprintf("Sent %d key action(s): %s", len(sent), strings.Join(sent, ", ")), nil
}

func (b *Browser) sendText(ctx context.Context, sess *Session, text string) error {
	_, err := sess.Send(ctx, "Input.insertText", map[string]any{"text": text})
	return err
}

func (b *Browser) sendNamedKey(ctx context.Context, sess *Session, nk namedKey, modifiers int) error {
	base := map[string]any{
		"key":                   nk.key,
		"code":                  nk.code,
		"windowsVirtualKeyCode": nk.windowsVK,
		"nativeVirtualKeyCode":  nk.nativeVK,
		"modifiers":             modifiers,
	}
	down := cloneMap(base)
	down["type"] = "keyDown"
	if _, err := sess.Send(ctx, "Input.dispatchKeyEvent", down); err != nil {
		return err
	}
	up := cloneMap(base)
	up["type"] = "keyUp"
	if _, err := sess.Send(ctx, "Input.dispatchKeyEvent", up); err != nil {
		return err
	}
	return nil
}

func (b *Browser) sendCombo(ctx context.Context, sess *Session, combo string) error {
	parts := strings.Split(combo, "+")
	mods, mainKey, err := comboModifiers(parts)
	if err != nil {
		return err
	}
	if nk, ok := namedKeys["--"+strings.ToLower(mainKey)]; ok {
		return b.sendNamedKey(ctx, sess, nk, mods)
	}
	if len(mainKey) != 1 {
		return fmt.Errorf("cdp: unsupported combo base key %q", mainKey)
	}
	nk := namedKey{key: mainKey, code: "Key" + strings.ToUpper(mainKey), windowsVK: int(strings.ToUpper(mainKey)[0]), nativeVK: int(strings.ToUpper(mainKey)[0])}
	return b.sendNamedKey(ctx, sess, nk, mods)
}
