package agent

import (
	"testing"
	"time"

	"github.com/nodewerx/tappi-go/internal/providers"
)

func TestProbeStateDefaultsToStarting(t *testing.T) {
	p := newProbeState()
	snap := p.Snapshot()
	if snap.Phase != PhaseStarting {
		t.Errorf("Phase = %q, want %q", snap.Phase, PhaseStarting)
	}
	if snap.Iteration != 0 {
		t.Errorf("Iteration = %d, want 0", snap.Iteration)
	}
}

func TestProbeStateTracksTransitions(t *testing.T) {
	p := newProbeState()
	p.setPhase(PhaseCallingLLM)
	p.setIteration(3)
	p.setLastToolCall("browser")
	p.setMessageCount(7)
	p.setUsage(&providers.Usage{PromptTokens: 100, TotalTokens: 150})

	snap := p.Snapshot()
	if snap.Phase != PhaseCallingLLM {
		t.Errorf("Phase = %q, want %q", snap.Phase, PhaseCallingLLM)
	}
	if snap.Iteration != 3 {
		t.Errorf("Iteration = %d, want 3", snap.Iteration)
	}
	if snap.LastToolCall != "browser" {
		t.Errorf("LastToolCall = %q, want browser", snap.LastToolCall)
	}
	if snap.MessageCount != 7 {
		t.Errorf("MessageCount = %d, want 7", snap.MessageCount)
	}
	if snap.Usage == nil || snap.Usage.TotalTokens != 150 {
		t.Errorf("Usage = %+v, want TotalTokens=150", snap.Usage)
	}
}

func TestProbeStateElapsedResetsOnPhaseChange(t *testing.T) {
	p := newProbeState()
	time.Sleep(5 * time.Millisecond)
	before := p.Snapshot().ElapsedSince

	p.setPhase(PhaseToolCall)
	after := p.Snapshot().ElapsedSince

	if after >= before {
		t.Errorf("expected ElapsedSince to reset after setPhase, before=%v after=%v", before, after)
	}
}
