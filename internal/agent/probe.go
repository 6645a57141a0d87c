package agent

import (
	"sync"
	"time"

	"github.com/nodewerx/tappi-go/internal/providers"
)

// Phase identifies what a Loop is doing right now, for Probe snapshots.
// decomposing/running_subtasks are not set by Loop itself — they belong to
// a wrapping decomposer that delegates through to an active sub-agent's
// own Probe.
type Phase string

const (
	PhaseStarting   Phase = "starting"
	PhaseCallingLLM Phase = "calling_llm"
	PhaseToolCall   Phase = "tool_call"
	PhaseFlushed    Phase = "flushed"
	PhaseDone       Phase = "done"
)

// Probe is a read-only snapshot of a Loop's state, safe to read from any
// goroutine while the loop is running.
type Probe struct {
	Phase         Phase            `json:"phase"`
	Iteration     int              `json:"iteration"`
	LastToolCall  string           `json:"last_tool_call,omitempty"`
	ElapsedSince  time.Duration    `json:"elapsed_since"`
	MessageCount  int              `json:"message_count"`
	Usage         *providers.Usage `json:"usage,omitempty"`
}

// probeState is the mutable state a running Loop updates as it progresses;
// Snapshot reads it under lock.
type probeState struct {
	mu           sync.RWMutex
	phase        Phase
	iteration    int
	lastToolCall string
	phaseStart   time.Time
	messageCount int
	usage        *providers.Usage
}

func newProbeState() *probeState {
	return &probeState{phase: PhaseStarting, phaseStart: time.Now()}
}

func (p *probeState) setPhase(phase Phase) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = phase
	p.phaseStart = time.Now()
}

func (p *probeState) setIteration(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.iteration = n
}

func (p *probeState) setLastToolCall(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastToolCall = name
}

func (p *probeState) setMessageCount(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageCount = n
}

func (p *probeState) setUsage(u *providers.Usage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage = u
}

// Snapshot returns the current Probe, safe to call concurrently with a
// running Loop.
func (p *probeState) Snapshot() Probe {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Probe{
		Phase:        p.phase,
		Iteration:    p.iteration,
		LastToolCall: p.lastToolCall,
		ElapsedSince: time.Since(p.phaseStart),
		MessageCount: p.messageCount,
		Usage:        p.usage,
	}
}
