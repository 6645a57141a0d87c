package decompose

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nodewerx/tappi-go/internal/agent"
	"github.com/nodewerx/tappi-go/internal/bus"
	"github.com/nodewerx/tappi-go/internal/providers"
	"github.com/nodewerx/tappi-go/internal/sessions"
	"github.com/nodewerx/tappi-go/internal/tools"
)

// RunnerPhase tracks what a Runner is doing, for RunnerProbe snapshots. The
// "decomposing" phase of spec.md §4.2's probe taxonomy belongs to whichever
// caller is still awaiting DecomposeTask/DecomposeResearch — by the time a
// Runner exists, its plan is already decided.
type RunnerPhase string

const (
	RunnerPhaseRunningSubtasks RunnerPhase = "running_subtasks"
	RunnerPhaseDone            RunnerPhase = "done"
)

// RunnerConfig configures one SubtaskRunner run.
type RunnerConfig struct {
	Workspace       string
	ParentSessionID string
	OriginalTask    string
	// ResearchQuery, when set, switches every browser subtask and the
	// compile step to the deep-research prompt variants.
	ResearchQuery string

	Provider      providers.Provider
	Model         string
	ContextWindow int

	MainMaxTokens     int
	SubagentMaxTokens int

	Sessions *sessions.Manager
	Tools    *tools.Registry
	Bus      bus.EventPublisher
}

// priorResult is the (short task description, output path) pair each
// subtask's prompt references when summarizing what came before it.
type priorResult struct {
	Task string
	Path string
}

// RunResult is what Run returns: every subtask's final status plus the
// compiled (or last-completed) output.
type RunResult struct {
	Subtasks        []*Subtask
	FinalOutput     string
	OutputDir       string
	Duration        time.Duration
	TotalTokens     int
	Aborted         bool
}

// RunnerProbe is a read-only snapshot of a Runner's progress.
type RunnerProbe struct {
	Phase        RunnerPhase
	SubtaskIndex int
	SubtaskTotal int
	Sub          *agent.Probe
}

// Runner executes an already-decomposed subtask plan sequentially, each
// subtask via a fresh sub-agent Loop, per spec.md §4.3.
type Runner struct {
	cfg      RunnerConfig
	subtasks []*Subtask

	runDir    string // absolute
	runDirRel string // relative to Workspace

	mu          sync.RWMutex
	phase       RunnerPhase
	activeLoop  *agent.Loop
	totalTokens int64

	abort atomic.Bool
}

// NewRunner prepares a Runner for subtasks, creating
// <workspace>/subtask_runs/run_<unix_ts>/ to hold every step's output file.
func NewRunner(cfg RunnerConfig, subtasks []*Subtask) (*Runner, error) {
	runDirRel := filepath.Join("subtask_runs", fmt.Sprintf("run_%d", time.Now().Unix()))
	runDir := filepath.Join(cfg.Workspace, runDirRel)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("decompose: create run dir: %w", err)
	}
	return &Runner{
		cfg:       cfg,
		subtasks:  subtasks,
		runDir:    runDir,
		runDirRel: runDirRel,
		phase:     RunnerPhaseRunningSubtasks,
	}, nil
}

// RequestAbort asks the Runner to stop before its next subtask; the
// currently running subtask still finishes and any already-completed
// subtask keeps its output, per spec.md §4.3's abort semantics.
func (r *Runner) RequestAbort() { r.abort.Store(true) }

// Probe returns a snapshot of the Runner's progress, including a reach-through
// to the currently active sub-agent's own Probe, if any.
func (r *Runner) Probe() RunnerProbe {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p := RunnerProbe{Phase: r.phase}
	if len(r.subtasks) > 0 {
		p.SubtaskTotal = r.subtasks[len(r.subtasks)-1].Total
	}
	for _, st := range r.subtasks {
		if st.Status == StatusRunning {
			p.SubtaskIndex = st.Index
		}
	}
	if r.activeLoop != nil {
		snap := r.activeLoop.Probe()
		p.Sub = &snap
	}
	return p
}

// Run executes every subtask in order, stopping early if RequestAbort was
// called, and returns the aggregate result.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()
	var prior []priorResult

	for _, st := range r.subtasks {
		if r.abort.Load() {
			st.Status = StatusFailed
			break
		}
		outputRel, err := r.runSubtask(ctx, st, prior)
		if err != nil && ctx.Err() != nil {
			break
		}
		prior = append(prior, priorResult{Task: truncate(st.Task, 80), Path: outputRel})
	}

	r.setPhase(RunnerPhaseDone)

	finalOutput := ""
	for i := len(r.subtasks) - 1; i >= 0; i-- {
		if r.subtasks[i].Status == StatusDone {
			if data, err := os.ReadFile(filepath.Join(r.runDir, r.subtasks[i].Output)); err == nil {
				finalOutput = string(data)
			}
			break
		}
	}

	return &RunResult{
		Subtasks:    r.subtasks,
		FinalOutput: finalOutput,
		OutputDir:   r.runDirRel,
		Duration:    time.Since(start),
		TotalTokens: int(atomic.LoadInt64(&r.totalTokens)),
		Aborted:     r.abort.Load(),
	}, nil
}

// runSubtask instantiates a fresh sub-agent for st, runs it to completion,
// and ensures st's output file exists (synthesizing it from the sub-agent's
// final text if the sub-agent never wrote it itself).
func (r *Runner) runSubtask(ctx context.Context, st *Subtask, prior []priorResult) (string, error) {
	startedAt := time.Now()
	st.Status = StatusRunning
	r.emitSubtaskProgress(bus.SubtaskPhaseSubtaskStart, st)

	outputRel := filepath.Join(r.runDirRel, st.Output)
	outputAbs := filepath.Join(r.runDir, st.Output)

	var systemPrompt string
	var maxTokens int
	if st.Tool == "compile" {
		systemPrompt = r.buildCompilePrompt(st)
		maxTokens = r.cfg.MainMaxTokens
	} else {
		systemPrompt = r.buildSubtaskPrompt(st, prior)
		maxTokens = r.cfg.SubagentMaxTokens
	}

	loop := agent.NewLoop(agent.LoopConfig{
		ID:                   fmt.Sprintf("subtask-%d", st.Index),
		Provider:             r.cfg.Provider,
		Model:                r.cfg.Model,
		Workspace:            r.cfg.Workspace,
		ContextWindow:        r.cfg.ContextWindow,
		MaxTokens:            maxTokens,
		Sessions:             r.cfg.Sessions,
		Tools:                r.cfg.Tools,
		Bus:                  r.cfg.Bus,
		Subagent:             true,
		SystemPromptOverride: systemPrompt,
	})
	r.setActiveLoop(loop)
	defer r.setActiveLoop(nil)

	sessionID := fmt.Sprintf("%s-subtask-%d", r.cfg.ParentSessionID, st.Index)
	if r.cfg.Sessions != nil {
		r.cfg.Sessions.GetOrCreate(sessionID)
		r.cfg.Sessions.SetSpawnInfo(sessionID, r.cfg.ParentSessionID, 1)
	}

	result, err := loop.Run(ctx, agent.RunRequest{SessionID: sessionID, Message: r.buildTaskPrompt(st, outputRel)})

	var runErr error
	if err != nil {
		st.Status = StatusFailed
		os.MkdirAll(filepath.Dir(outputAbs), 0o755)
		os.WriteFile(outputAbs, []byte(fmt.Sprintf("# Subtask %d — FAILED\n\n%v\n", st.Index+1, err)), 0o644)
		runErr = err
	} else {
		if result.Usage != nil {
			atomic.AddInt64(&r.totalTokens, int64(result.Usage.TotalTokens))
		}
		if _, statErr := os.Stat(outputAbs); statErr != nil && result.Content != "" {
			os.MkdirAll(filepath.Dir(outputAbs), 0o755)
			os.WriteFile(outputAbs, []byte(fmt.Sprintf("# Subtask %d\n\n%s\n", st.Index+1, result.Content)), 0o644)
		}
		st.Status = StatusDone
	}

	st.Duration = time.Since(startedAt)
	st.Result = outputRel
	r.emitSubtaskProgress(bus.SubtaskPhaseSubtaskDone, st)

	return outputRel, runErr
}

const subtaskSystemPromptTemplate = `You are a focused task executor. Today is %s.

Your one job is to complete the task below using the %s tool. Write your findings to: %s

Your workspace is: %s

Context window: %d tokens available. If the conversation gets compacted, use the files tool's grep action against context_dumps/ to recover details.

%s

Stay focused on exactly this task. Write your results to the output file using the files tool, and confirm what you wrote and where when you're done.`

const researchSubtaskSystemPromptTemplate = `You are a focused web researcher. Today is %s.

Your workspace is: %s

Research workflow:
1. Use the browser tool's search action to search your topic.
2. From the results, pick exactly 3 URLs that look most relevant.
3. Open each URL, read its text content, and extract the key findings.
4. Write all findings to: %s using the files tool, including source URLs.

You must visit exactly 3 URLs — not more, not fewer. Context window: %d tokens available.`

func (r *Runner) buildSubtaskPrompt(st *Subtask, prior []priorResult) string {
	if r.cfg.ResearchQuery != "" && st.Tool == "browser" {
		return fmt.Sprintf(researchSubtaskSystemPromptTemplate,
			today(), r.cfg.Workspace, filepath.Join(r.runDirRel, st.Output), r.cfg.ContextWindow)
	}

	priorContext := "This is the first subtask — no prior results."
	if len(prior) > 0 {
		var b strings.Builder
		b.WriteString("Previous subtasks completed:\n")
		for _, p := range prior {
			fmt.Fprintf(&b, "- %s: written to %s\n", p.Task, p.Path)
		}
		priorContext = strings.TrimRight(b.String(), "\n")
	}

	return fmt.Sprintf(subtaskSystemPromptTemplate,
		today(), st.Tool, filepath.Join(r.runDirRel, st.Output), r.cfg.Workspace, r.cfg.ContextWindow, priorContext)
}

const compileSystemPromptTemplate = `You are a compilation agent. Today is %s.

Read every subtask output file below and compile them into one comprehensive, well-structured response.

Your workspace is: %s

Subtask outputs:
%s

Original task: %s

Write the compiled result to: %s, then summarize what you wrote as your response. Use markdown.`

const researchCompilePromptTemplate = `You are a research report compiler. Today is %s.

Original research query: %s

Read all %d research findings files below, then compile them into one comprehensive research report. Write it to: %s

Findings files:
%s

Start with an executive summary, organize findings into sections, highlight key insights, and include a References section with every source URL. Use markdown.`

func (r *Runner) buildCompilePrompt(st *Subtask) string {
	if r.cfg.ResearchQuery != "" {
		var b strings.Builder
		for _, prior := range r.subtasks {
			if prior.Index >= st.Index {
				continue
			}
			fmt.Fprintf(&b, "- %s\n", filepath.Join(r.runDirRel, prior.Output))
		}
		return fmt.Sprintf(researchCompilePromptTemplate,
			today(), r.cfg.ResearchQuery, st.Index, filepath.Join(r.runDirRel, st.Output), strings.TrimRight(b.String(), "\n"))
	}

	var b strings.Builder
	found := false
	for _, prior := range r.subtasks {
		if prior.Index == st.Index {
			break
		}
		if prior.Status == StatusDone {
			fmt.Fprintf(&b, "- %s — %s\n", filepath.Join(r.runDirRel, prior.Output), truncate(prior.Task, 100))
			found = true
		}
	}
	outputsText := "No prior outputs found."
	if found {
		outputsText = strings.TrimRight(b.String(), "\n")
	}

	return fmt.Sprintf(compileSystemPromptTemplate,
		today(), r.cfg.Workspace, outputsText, r.cfg.OriginalTask, filepath.Join(r.runDirRel, st.Output))
}

func (r *Runner) buildTaskPrompt(st *Subtask, outputRel string) string {
	switch {
	case r.cfg.ResearchQuery != "" && st.Tool == "browser":
		return fmt.Sprintf("Research this subtopic: %s\n\nSearch, pick 3 relevant URLs from the results, visit each one, read the content, and write detailed findings to: %s", st.Task, outputRel)
	case st.Tool == "compile":
		return fmt.Sprintf("%s\n\nRead all the subtask output files listed in your instructions, compile them, and write the final result to: %s", st.Task, outputRel)
	default:
		return fmt.Sprintf("%s\n\nWrite your results to: %s", st.Task, outputRel)
	}
}

func today() string { return time.Now().Format("January 2, 2006") }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (r *Runner) setPhase(p RunnerPhase) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phase = p
}

func (r *Runner) setActiveLoop(l *agent.Loop) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activeLoop = l
}

func (r *Runner) emitSubtaskProgress(phase bus.SubtaskPhase, st *Subtask) {
	if r.cfg.Bus == nil {
		return
	}
	r.cfg.Bus.Broadcast(bus.Event{
		Name: bus.EventSubtaskProgress,
		Payload: bus.SubtaskProgressPayload{
			Phase:     phase,
			SubtaskID: fmt.Sprintf("%d", st.Index),
			Index:     st.Index,
			Total:     st.Total,
		},
	})
}
