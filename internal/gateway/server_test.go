package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nodewerx/tappi-go/internal/agent"
	"github.com/nodewerx/tappi-go/internal/bus"
	"github.com/nodewerx/tappi-go/internal/cron"
	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
	"github.com/nodewerx/tappi-go/internal/tools"
)

// fixedProvider always returns the same reply, ignoring history.
type fixedProvider struct {
	reply string
}

func (p *fixedProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return p.ChatStream(ctx, req, nil)
}

func (p *fixedProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: p.reply, Usage: &providers.Usage{TotalTokens: 5}}, nil
}

func (p *fixedProvider) DefaultModel() string { return "fixed-model" }
func (p *fixedProvider) Name() string         { return "fixed" }

func newTestServer(t *testing.T) (*Server, *sessions.Manager) {
	t.Helper()
	sessMgr := sessions.NewManager("")
	loop := agent.NewLoop(agent.LoopConfig{
		ID:        "test",
		Provider:  &fixedProvider{reply: "hello back"},
		Model:     "fixed-model",
		Workspace: t.TempDir(),
		Sessions:  sessMgr,
		Tools:     tools.NewRegistry(),
		Bus:       bus.NewHub(),
	})
	cronStore := cron.NewJobStore(t.TempDir() + "/jobs.json")
	sched := cron.NewScheduler(cronStore, func(ctx context.Context, job cron.Job) {}, 0)
	srv := NewServer("127.0.0.1:0", loop, bus.NewHub(), sessMgr, cronStore, sched)
	return srv, sessMgr
}

func mux(srv *Server) http.Handler {
	m := http.NewServeMux()
	m.HandleFunc("/health", srv.handleHealth)
	m.HandleFunc("/chat", srv.handleChat)
	m.HandleFunc("/sessions", srv.handleSessions)
	m.HandleFunc("/sessions/", srv.handleSessionByID)
	m.HandleFunc("/cron", srv.handleCron)
	return m
}

func TestHandleHealthReturnsOK(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestHandleChatRunsAgentAndReturnsContent(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(chatRequest{SessionID: "s1", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Content != "hello back" {
		t.Errorf("Content = %q, want %q", resp.Content, "hello back")
	}
	if resp.SessionID != "s1" {
		t.Errorf("SessionID = %q, want %q", resp.SessionID, "s1")
	}
}

func TestHandleChatAssignsSessionIDWhenAbsent(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(chatRequest{Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	mux(srv).ServeHTTP(rec, req)

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
}

func TestHandleChatRejectsNonPOST(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	rec := httptest.NewRecorder()
	mux(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleSessionsListsAfterChat(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(chatRequest{SessionID: "s1", Message: "hi"})
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewReader(body))
	mux(srv).ServeHTTP(httptest.NewRecorder(), req)

	listReq := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	listRec := httptest.NewRecorder()
	mux(srv).ServeHTTP(listRec, listReq)

	var infos []sessions.Info
	if err := json.Unmarshal(listRec.Body.Bytes(), &infos); err != nil {
		t.Fatalf("decode sessions list: %v", err)
	}
	if len(infos) != 1 || infos[0].ID != "s1" {
		t.Errorf("sessions list = %+v, want one session with ID s1", infos)
	}
}

func TestHandleSessionByIDDeletes(t *testing.T) {
	srv, sessMgr := newTestServer(t)
	sessMgr.GetOrCreate("s1")

	req := httptest.NewRequest(http.MethodDelete, "/sessions/s1", nil)
	rec := httptest.NewRecorder()
	mux(srv).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	found := false
	for _, info := range sessMgr.List() {
		if info.ID == "s1" {
			found = true
		}
	}
	if found {
		t.Error("expected session s1 to be deleted")
	}
}

func TestHandleCronAddThenList(t *testing.T) {
	srv, _ := newTestServer(t)
	body, _ := json.Marshal(cron.Job{Name: "nightly", Task: "summarize inbox", Type: cron.ScheduleInterval, IntervalMinutes: 60})
	addReq := httptest.NewRequest(http.MethodPost, "/cron", bytes.NewReader(body))
	addRec := httptest.NewRecorder()
	mux(srv).ServeHTTP(addRec, addReq)

	if addRec.Code != http.StatusOK {
		t.Fatalf("add status = %d, body = %s", addRec.Code, addRec.Body.String())
	}

	listReq := httptest.NewRequest(http.MethodGet, "/cron", nil)
	listRec := httptest.NewRecorder()
	mux(srv).ServeHTTP(listRec, listReq)

	var jobs []cron.Job
	if err := json.Unmarshal(listRec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].Name != "nightly" {
		t.Errorf("jobs = %+v, want one job named nightly", jobs)
	}
}
