// Package sessions persists conversation history: one Session per chat
// run, keyed by a session id, with the cumulative token counters and
// compaction bookkeeping the agent loop needs to decide when to summarize.
package sessions

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/nodewerx/tappi-go/internal/providers"
)

// Session is a persisted snapshot of one conversation, per spec.md §3: id,
// title, model, provider, timestamps, cumulative token counts, full message
// list.
type Session struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	Messages []providers.Message `json:"messages"`
	Summary  string              `json:"summary,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`

	Model    string `json:"model,omitempty"`
	Provider string `json:"provider,omitempty"`

	InputTokens  int64 `json:"inputTokens,omitempty"`
	OutputTokens int64 `json:"outputTokens,omitempty"`

	CompactionCount  int `json:"compactionCount,omitempty"`
	ContextWindow    int `json:"contextWindow,omitempty"`
	LastPromptTokens int `json:"lastPromptTokens,omitempty"`
	LastMessageCount int `json:"lastMessageCount,omitempty"`

	// SpawnedBy/SpawnDepth identify a sub-agent session's parent. The
	// decomposer records them (depth 1) for every subtask session; nothing
	// reads SpawnDepth back.
	SpawnedBy  string `json:"spawnedBy,omitempty"`
	SpawnDepth int    `json:"spawnDepth,omitempty"`
}

// Manager handles session lifecycle, persistence, and lookup.
type Manager struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	storage  string
}

// NewManager binds a Manager to a storage directory, loading any sessions
// already persisted there. An empty storage path means in-memory only.
func NewManager(storage string) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		storage:  storage,
	}
	if storage != "" {
		os.MkdirAll(storage, 0o755)
		m.loadAll()
	}
	return m
}

// GetOrCreate returns an existing session or creates a new empty one.
func (m *Manager) GetOrCreate(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	now := time.Now()
	s := &Session{ID: id, Messages: []providers.Message{}, Created: now, Updated: now}
	m.sessions[id] = s
	return s
}

// AddMessage appends a message, auto-deriving the session title from the
// first user message if one hasn't been set yet.
func (m *Manager) AddMessage(id string, msg providers.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id, Messages: []providers.Message{}, Created: time.Now()}
		m.sessions[id] = s
	}
	s.Messages = append(s.Messages, msg)
	s.Updated = time.Now()
	if s.Title == "" && msg.Role == "user" && msg.Content != "" {
		s.Title = deriveTitle(msg.Content)
	}
}

func deriveTitle(content string) string {
	const maxLen = 60
	title := strings.Join(strings.Fields(content), " ")
	runes := []rune(title)
	if len(runes) <= maxLen {
		return title
	}
	cut := runes[:maxLen]
	for i := len(cut) - 1; i > 0; i-- {
		if unicode.IsSpace(cut[i]) {
			return string(cut[:i]) + "…"
		}
	}
	return string(cut) + "…"
}

// GetHistory returns a copy of the message history.
func (m *Manager) GetHistory(id string) []providers.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil
	}
	msgs := make([]providers.Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

// GetSummary returns the session's rolling compaction summary.
func (m *Manager) GetSummary(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.Summary
	}
	return ""
}

// SetSummary replaces the compaction summary.
func (m *Manager) SetSummary(id, summary string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Summary = summary
		s.Updated = time.Now()
	}
}

// UpdateMetadata sets model/provider metadata on a session.
func (m *Manager) UpdateMetadata(id, model, provider string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		if model != "" {
			s.Model = model
		}
		if provider != "" {
			s.Provider = provider
		}
	}
}

// AccumulateTokens adds token counts from a completed LLM call. Per the
// iteration-cap / open-question-2 resolution, these cumulative counters
// reset to zero on compaction — they are for cost display only, not live
// context-pressure measurement (see LastPromptTokens for that).
func (m *Manager) AccumulateTokens(id string, inputTokens, outputTokens int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.InputTokens += inputTokens
		s.OutputTokens += outputTokens
	}
}

// IncrementCompaction bumps the compaction counter and resets the
// cumulative token counters, per spec.md §9 open question 2's resolution.
func (m *Manager) IncrementCompaction(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.CompactionCount++
		s.InputTokens = 0
		s.OutputTokens = 0
	}
}

// GetCompactionCount returns the current compaction count.
func (m *Manager) GetCompactionCount(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.CompactionCount
	}
	return 0
}

// SetSpawnInfo records sub-agent origin metadata on an existing session.
func (m *Manager) SetSpawnInfo(id, spawnedBy string, depth int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.SpawnedBy = spawnedBy
		s.SpawnDepth = depth
	}
}

// SetContextWindow caches the provider's context window on the session.
func (m *Manager) SetContextWindow(id string, cw int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.ContextWindow = cw
	}
}

// GetContextWindow returns the cached context window (0 if unset).
func (m *Manager) GetContextWindow(id string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.ContextWindow
	}
	return 0
}

// SetLastPromptTokens records the prompt-side token count of the most
// recent LLM call — the authoritative measure of live context pressure
// per spec.md §3's TokenUsage definition.
func (m *Manager) SetLastPromptTokens(id string, tokens, msgCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.LastPromptTokens = tokens
		s.LastMessageCount = msgCount
	}
}

// GetLastPromptTokens returns the last known prompt tokens and message count.
func (m *Manager) GetLastPromptTokens(id string) (int, int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.LastPromptTokens, s.LastMessageCount
	}
	return 0, 0
}

// TruncateHistory keeps only the last N messages, used by the compactor
// after it has folded older turns into Summary.
func (m *Manager) TruncateHistory(id string, keepLast int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return
	}
	if keepLast <= 0 {
		s.Messages = []providers.Message{}
	} else if len(s.Messages) > keepLast {
		s.Messages = s.Messages[len(s.Messages)-keepLast:]
	}
	s.Updated = time.Now()
}

// Reset clears a session's history and summary, keeping its id and metadata.
func (m *Manager) Reset(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		s.Messages = []providers.Message{}
		s.Summary = ""
		s.Updated = time.Now()
	}
}

// Delete removes a session entirely, including its persisted file.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()

	if m.storage != "" {
		path := filepath.Join(m.storage, sanitizeFilename(id)+".json")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Info is a lightweight session descriptor for listing.
type Info struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	MessageCount int       `json:"messageCount"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// List returns metadata for every known session, most recently updated
// first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Info, 0, len(m.sessions))
	for id, s := range m.sessions {
		result = append(result, Info{
			ID:           id,
			Title:        s.Title,
			MessageCount: len(s.Messages),
			Created:      s.Created,
			Updated:      s.Updated,
		})
	}
	for i := 1; i < len(result); i++ {
		for j := i; j > 0 && result[j].Updated.After(result[j-1].Updated); j-- {
			result[j], result[j-1] = result[j-1], result[j]
		}
	}
	return result
}

// Save persists one session to disk atomically (temp file + rename).
func (m *Manager) Save(id string) error {
	if m.storage == "" {
		return nil
	}

	m.mu.RLock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.RUnlock()
		return nil
	}
	snapshot := *s
	snapshot.Messages = make([]providers.Message, len(s.Messages))
	copy(snapshot.Messages, s.Messages)
	m.mu.RUnlock()

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("sessions: marshal %s: %w", id, err)
	}

	filename := sanitizeFilename(id)
	if filename == "." || !filepath.IsLocal(filename) || strings.ContainsAny(filename, `/\`) {
		return os.ErrInvalid
	}
	sessionPath := filepath.Join(m.storage, filename+".json")

	tmpFile, err := os.CreateTemp(m.storage, "session-*.tmp")
	if err != nil {
		return fmt.Errorf("sessions: create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sessions: write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sessions: sync temp file: %w", err)
	}
	tmpFile.Close()
	if err := os.Rename(tmpPath, sessionPath); err != nil {
		return fmt.Errorf("sessions: rename temp file: %w", err)
	}
	cleanup = false
	return nil
}

func (m *Manager) loadAll() {
	files, err := os.ReadDir(m.storage)
	if err != nil {
		return
	}
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(m.storage, f.Name()))
		if err != nil {
			continue
		}
		var s Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		m.sessions[s.ID] = &s
	}
}

func sanitizeFilename(id string) string {
	var b strings.Builder
	for _, r := range id {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
