package cdp

import "fmt"

// CDPError is raised when Chromium returns an error field on a matching
// response id, or when injected page JavaScript throws.
type CDPError struct {
	Message string
}

func (e *CDPError) Error() string { return e.Message }

func newCDPError(format string, args ...any) *CDPError {
	return &CDPError{Message: fmt.Sprintf(format, args...)}
}

// BrowserNotRunning is raised when the CDP HTTP discovery endpoint is
// unreachable. It carries a human-readable hint naming the port and a
// suggested recovery command, matching the original driver's behaviour.
type BrowserNotRunning struct {
	CDPURL string
}

func (e *BrowserNotRunning) Error() string {
	return fmt.Sprintf(
		"Browser is not running at %s.\n"+
			"Hint: launch it first, e.g. `tappi profile launch` or `browser(action=\"launch\")`, "+
			"or set CDP_URL to an already-running Chromium instance.",
		e.CDPURL,
	)
}

func newBrowserNotRunning(cdpURL string) *BrowserNotRunning {
	return &BrowserNotRunning{CDPURL: cdpURL}
}
