// Package gateway exposes the running agent host over HTTP and WebSocket,
// per spec.md §6's "HTTP/WebSocket server" interface: a progress-event
// broadcast over WS, and a minimal REST surface for driving chat, sessions,
// and cron without a CLI attached: a method-dispatch router plus one
// goroutine per connected WebSocket client, streaming the broadcast hub's
// events out as they happen.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nodewerx/tappi-go/internal/agent"
	"github.com/nodewerx/tappi-go/internal/bus"
	"github.com/nodewerx/tappi-go/internal/cron"
	"github.com/nodewerx/tappi-go/internal/sessions"
)

// Server drives HTTP and WebSocket access to a single running agent Loop.
type Server struct {
	addr      string
	loop      *agent.Loop
	eventPub  bus.EventPublisher
	sessions  *sessions.Manager
	cronStore *cron.JobStore
	cronSched *cron.Scheduler

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient

	httpServer *http.Server
}

// NewServer constructs a gateway bound to a single agent Loop plus its
// session manager and cron store, listening on addr (host:port).
func NewServer(addr string, loop *agent.Loop, eventPub bus.EventPublisher, sessMgr *sessions.Manager, cronStore *cron.JobStore, cronSched *cron.Scheduler) *Server {
	return &Server{
		addr:      addr,
		loop:      loop,
		eventPub:  eventPub,
		sessions:  sessMgr,
		cronStore: cronStore,
		cronSched: cronSched,
		clients:   make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Start builds the mux and blocks serving HTTP until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ws/events", s.handleWebSocket)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/sessions/", s.handleSessionByID)
	mux.HandleFunc("/cron", s.handleCron)

	s.httpServer = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("gateway starting", "addr", s.addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// chatRequest is POST /chat's body: a session id (created if absent) and
// the user's message.
type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		req.SessionID = "http-" + uuid.NewString()[:8]
	}

	result, err := s.loop.Run(r.Context(), agent.RunRequest{SessionID: req.SessionID, Message: req.Message})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{SessionID: req.SessionID, Content: result.Content})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.sessions.List())
}

func (s *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Path[len("/sessions/"):]
	if id == "" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(s.sessions.GetHistory(id))
	case http.MethodDelete:
		if err := s.sessions.Delete(id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		jobs, err := s.cronStore.List()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(jobs)
	case http.MethodPost:
		var job cron.Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
			return
		}
		created, err := s.cronStore.Add(job)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(created)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleWebSocket upgrades the connection and streams every bus.Event
// broadcast to this client as JSON frames, until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	client := &wsClient{id: id, conn: conn, send: make(chan bus.Event, 64)}
	s.registerClient(client)
	defer func() {
		s.unregisterClient(client)
		conn.Close()
	}()

	go client.writeLoop()
	client.readLoop() // blocks until the client disconnects; we don't expect inbound frames
}

func (s *Server) registerClient(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c
	s.eventPub.Subscribe(c.id, func(event bus.Event) {
		select {
		case c.send <- event:
		default:
			slog.Warn("gateway: dropping event, client send buffer full", "client", c.id)
		}
	})
	slog.Info("gateway: client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *wsClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	s.eventPub.Unsubscribe(c.id)
	close(c.send)
	slog.Info("gateway: client disconnected", "id", c.id)
}

// wsClient pairs one WebSocket connection with its outbound event queue.
type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan bus.Event
}

func (c *wsClient) writeLoop() {
	for event := range c.send {
		if err := c.conn.WriteJSON(event); err != nil {
			return
		}
	}
}

// readLoop discards inbound frames (this endpoint is broadcast-only) and
// returns as soon as the connection errors or closes, so handleWebSocket's
// deferred cleanup runs.
func (c *wsClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
