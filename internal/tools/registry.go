// Package tools implements the agent's callable tool surface: browser
// control, file/shell/PDF/spreadsheet access, cron management, and the
// sub-agent spawn tools, each exposed through the Registry below.
package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/nodewerx/tappi-go/internal/providers"
)

// Tool is one callable function the agent loop can offer to the model.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// subagentDenyList names tools a decomposed sub-agent may not call, per
// spec.md §4.3: sub-agents run one subtask sequentially and must not
// recurse into scheduling or further decomposition. The shell tool registers
// as "shell", which is not on this list, so a subtask planned with
// "tool": "shell" can still run commands.
var subagentDenyList = map[string]bool{
	"exec":       true,
	"cron":       true,
	"spawn":      true,
	"decompose":  true,
	"session_status": true,
}

// Registry holds the live set of tools available to the agent loop,
// keyed by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Unregister removes a tool by name, if present.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool name, sorted for deterministic output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of registered tools.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ProviderDefs renders every registered tool as a provider-facing
// ToolDefinition, excluding the names in deny (used to strip sub-agent-only
// restrictions before a decomposed subtask's LLM call).
func (r *Registry) ProviderDefs(deny map[string]bool) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		if deny[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, name := range names {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// SubagentDefs renders the tool set available to a decomposed sub-agent,
// i.e. every tool except the ones in subagentDenyList.
func (r *Registry) SubagentDefs() []providers.ToolDefinition {
	return r.ProviderDefs(subagentDenyList)
}

// Execute runs the named tool with args, returning an error Result if the
// tool is unknown.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult("unknown tool: " + name)
	}
	return t.Execute(ctx, args)
}

// ToProviderDef converts a Tool into the wire ToolDefinition shape the
// provider layer sends to the model.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}
