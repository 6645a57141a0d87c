package cdp

import (
	"strings"
	"testing"
)

func TestCDPErrorMessage(t *testing.T) {
	err := newCDPError("JS Error: %s", "ReferenceError: x is not defined")
	if !strings.Contains(err.Error(), "ReferenceError") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestBrowserNotRunningHint(t *testing.T) {
	err := newBrowserNotRunning("http://127.0.0.1:9222")
	msg := err.Error()
	if !strings.Contains(msg, "9222") {
		t.Error("expected port in hint")
	}
	if !strings.Contains(msg, "CDP_URL") {
		t.Error("expected CDP_URL override mentioned")
	}
}
