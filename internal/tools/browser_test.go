package tools

import (
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/nodewerx/tappi-go/internal/cdp"
)

func TestIntArgHandlesFloat64AndMissing(t *testing.T) {
	args := map[string]interface{}{"amount": float64(42)}
	if got := intArg(args, "amount"); got != 42 {
		t.Errorf("intArg = %d, want 42", got)
	}
	if got := intArg(args, "missing"); got != 0 {
		t.Errorf("intArg(missing) = %d, want 0", got)
	}
}

func TestStringPtrArgNilOnEmpty(t *testing.T) {
	if p := stringPtrArg(map[string]interface{}{"selector": ""}, "selector"); p != nil {
		t.Errorf("expected nil for empty string, got %q", *p)
	}
	p := stringPtrArg(map[string]interface{}{"selector": "#go"}, "selector")
	if p == nil || *p != "#go" {
		t.Errorf("expected pointer to #go, got %v", p)
	}
}

func TestBrowserErrorResultClassifiesErrorKinds(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantToken string
	}{
		{"not running", &cdp.BrowserNotRunning{CDPURL: "http://127.0.0.1:9222"}, "Browser is not running"},
		{"cdp error", &cdp.CDPError{Message: "boom"}, "Browser error: boom"},
		{"generic", errors.New("disk full"), "Error: disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := browserErrorResult(tt.err)
			if !res.IsError {
				t.Error("expected IsError=true")
			}
			if !strings.Contains(res.ForLLM, tt.wantToken) {
				t.Errorf("ForLLM = %q, want substring %q", res.ForLLM, tt.wantToken)
			}
		})
	}
}

func TestCloseIsNoopWithoutLiveBrowser(t *testing.T) {
	bt := &BrowserTool{
		initialTabs: map[string]bool{"pre-1": true},
		openedTabs:  map[string]bool{"pre-1": true, "new-1": true},
	}
	// With no live *cdp.Browser handle, Close must not panic and must leave
	// bookkeeping untouched — there is nothing to close yet.
	bt.Close(nil)
	if len(bt.openedTabs) != 2 {
		t.Error("expected openedTabs untouched when there is no browser handle")
	}
}

func TestWriteScreenshotThumbnailDownsizesWideImages(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "shot.png")

	img := image.NewRGBA(image.Rect(0, 0, 1600, 900))
	for y := 0; y < img.Bounds().Dy(); y++ {
		for x := 0; x < img.Bounds().Dx(); x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 255), G: uint8(y % 255), B: 0, A: 255})
		}
	}
	if err := imaging.Save(img, full); err != nil {
		t.Fatalf("save fixture: %v", err)
	}

	thumbPath, err := writeScreenshotThumbnail(full)
	if err != nil {
		t.Fatalf("writeScreenshotThumbnail: %v", err)
	}
	if !strings.Contains(thumbPath, "_thumb") {
		t.Errorf("thumbPath = %q, want _thumb suffix", thumbPath)
	}

	thumb, err := imaging.Open(thumbPath)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	if thumb.Bounds().Dx() > screenshotThumbMaxWidth {
		t.Errorf("thumbnail width = %d, want <= %d", thumb.Bounds().Dx(), screenshotThumbMaxWidth)
	}
}
