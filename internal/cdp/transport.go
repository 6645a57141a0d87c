package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// wireRequest is the outgoing CDP envelope: {id, method, params}.
type wireRequest struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// wireFrame is any incoming frame — either a response (ID set, Result or
// Error set) or an event (Method set, no ID).
type wireFrame struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Session is a synchronous CDP client bound to one WebSocket connection —
// one page target, or the browser-level endpoint. Requests are serialized:
// only one Send/SendAndWaitEvent call is ever in flight at a time, mirroring
// the single-threaded request/response discipline of the original driver.
type Session struct {
	conn   *websocket.Conn
	nextID atomic.Int64
	mu     sync.Mutex
}

// connectWS dials a CDP WebSocket endpoint with no compression negotiated,
// following the same coder/websocket idiom used for the outbound chat-channel
// client this project's ambient stack is grounded on.
func connectWS(ctx context.Context, wsURL string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("cdp: dial %s: %w", wsURL, err)
	}
	conn.SetReadLimit(64 << 20) // 64MB: screenshots and large HTML dumps pass through here
	return conn, nil
}

// NewSession wraps an already-dialed WebSocket connection.
func NewSession(conn *websocket.Conn) *Session {
	return &Session{conn: conn}
}

// Dial connects a new Session to the given CDP WebSocket endpoint.
func Dial(ctx context.Context, wsURL string) (*Session, error) {
	conn, err := connectWS(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	return NewSession(conn), nil
}

// Close tears down the underlying connection, swallowing errors — matching
// the original driver's best-effort close semantics.
func (s *Session) Close() {
	_ = s.conn.Close(websocket.StatusNormalClosure, "")
}

// Send issues a request and reads frames until the matching response id is
// seen, discarding unrelated event frames along the way. An `error` field on
// the matching frame is raised as *CDPError.
func (s *Session) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sendLocked(ctx, method, params)
}

func (s *Session) sendLocked(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := s.nextID.Add(1)
	req := wireRequest{ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cdp: marshal request: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("cdp: write: %w", err)
	}

	for {
		frame, err := s.readFrame(ctx)
		if err != nil {
			return nil, err
		}
		if frame.ID != id {
			continue // unrelated event or stale response — discard
		}
		if frame.Error != nil {
			return nil, newCDPError("%s", frame.Error.Message)
		}
		return frame.Result, nil
	}
}

// SendAndWaitEvent issues a request and reads frames until BOTH the matching
// response and a named event have been observed, or timeout elapses. The
// response is returned even if the event never arrives within the timeout —
// only a read/connection error aborts early.
func (s *Session) SendAndWaitEvent(ctx context.Context, method, eventName string, timeout time.Duration, params any) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID.Add(1)
	req := wireRequest{ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("cdp: marshal request: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return nil, fmt.Errorf("cdp: write: %w", err)
	}

	deadline := time.Now().Add(timeout)
	var result json.RawMessage
	haveResult := false
	sawEvent := false

	for !(sawEvent && haveResult) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		readCtx, cancel := context.WithTimeout(ctx, remaining)
		frame, err := s.readFrame(readCtx)
		cancel()
		if err != nil {
			if !haveResult {
				return nil, err
			}
			break // timed out or connection hiccup after we already have the response
		}
		if frame.ID == id {
			if frame.Error != nil {
				return nil, newCDPError("%s", frame.Error.Message)
			}
			result = frame.Result
			haveResult = true
			continue
		}
		if frame.Method == eventName {
			sawEvent = true
		}
	}

	if !haveResult {
		result = json.RawMessage("{}")
	}
	return result, nil
}

func (s *Session) readFrame(ctx context.Context) (*wireFrame, error) {
	_, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("cdp: read: %w", err)
	}
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("cdp: decode frame: %w", err)
	}
	return &frame, nil
}
