// Package config loads, saves, and watches the agent's JSON configuration
// file — the single document described in spec.md §6: default profile,
// named profiles, and agent settings including per-provider credentials.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// Config is the root configuration document, matching spec.md §6's JSON
// shape.
type Config struct {
	Default  string                  `json:"default"`
	Profiles map[string]ProfileEntry `json:"profiles"`
	Agent    AgentConfig             `json:"agent"`

	mu sync.RWMutex
}

// ProfileEntry is one named browser profile's port assignment.
type ProfileEntry struct {
	Port int `json:"port"`
}

// AgentConfig holds the agent runtime's tunables.
type AgentConfig struct {
	Provider          string                    `json:"provider"`
	Model             string                    `json:"model"`
	Workspace         string                    `json:"workspace"`
	BrowserProfile    string                    `json:"browser_profile"`
	ShellEnabled      bool                      `json:"shell_enabled"`
	DecomposeEnabled  bool                      `json:"decompose_enabled"`
	TimeoutSeconds    int                       `json:"timeout"`
	MainMaxTokens     int                       `json:"main_max_tokens"`
	SubagentMaxTokens int                       `json:"subagent_max_tokens"`
	CDPURL            string                    `json:"cdp_url,omitempty"`
	Providers         map[string]ProviderConfig `json:"providers,omitempty"`
}

// ProviderConfig holds one LLM provider's credentials and overrides.
type ProviderConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	APIBase string `json:"api_base,omitempty"`
}

// Default returns a Config with sensible defaults for a fresh install.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Profiles: map[string]ProfileEntry{},
		Agent: AgentConfig{
			Provider:          "anthropic",
			Model:             "claude-sonnet-4-5-20250929",
			Workspace:         filepath.Join(home, ".tappi", "workspace"),
			BrowserProfile:    "default",
			ShellEnabled:      false,
			DecomposeEnabled:  true,
			TimeoutSeconds:    300,
			MainMaxTokens:     8192,
			SubagentMaxTokens: 4096,
			Providers:         map[string]ProviderConfig{},
		},
	}
}

// ExpandHome expands a leading "~" in path to the current user's home
// directory. Paths without a leading "~" are returned unchanged.
func ExpandHome(path string) string {
	if path == "~" {
		home, _ := os.UserHomeDir()
		return home
	}
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// Load reads config from a JSON5-tolerant file (comments and trailing
// commas allowed, per the teacher's own config parsing choice), then
// overlays environment variables. A missing file is not an error: Default()
// with env overrides applied is returned instead.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays TAPPI_-prefixed environment variables, which
// always take precedence over file values — matching the teacher's own
// env-override-wins convention.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("TAPPI_PROVIDER", &c.Agent.Provider)
	envStr("TAPPI_MODEL", &c.Agent.Model)
	envStr("TAPPI_WORKSPACE", &c.Agent.Workspace)
	envStr("TAPPI_BROWSER_PROFILE", &c.Agent.BrowserProfile)
	envStr("TAPPI_CDP_URL", &c.Agent.CDPURL)

	if v := os.Getenv("TAPPI_SHELL_ENABLED"); v != "" {
		c.Agent.ShellEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TAPPI_DECOMPOSE_ENABLED"); v != "" {
		c.Agent.DecomposeEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("TAPPI_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Agent.TimeoutSeconds = n
		}
	}

	for _, provider := range []string{"anthropic", "openai", "dashscope"} {
		envKey := "TAPPI_" + strings.ToUpper(provider) + "_API_KEY"
		if v := os.Getenv(envKey); v != "" {
			if c.Agent.Providers == nil {
				c.Agent.Providers = map[string]ProviderConfig{}
			}
			entry := c.Agent.Providers[provider]
			entry.APIKey = v
			c.Agent.Providers[provider] = entry
		}
	}
}

// Save writes cfg to path as indented JSON via temp-file + rename, matching
// the atomic-write idiom used across this project's persistence layers.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	data, err := json.MarshalIndent(cfg, "", "  ")
	cfg.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("config: create config dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return fmt.Errorf("config: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("config: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("config: sync temp file: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("config: rename temp file: %w", err)
	}
	cleanup = false
	return nil
}

// Watcher reloads the config file on write and invokes onReload with the
// freshly parsed Config.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Config)
	done     chan struct{}
}

// NewWatcher starts watching path's parent directory (watching the
// directory, not the file, survives editors that replace the file via
// rename-on-save rather than in-place write).
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", dir, err)
	}
	w := &Watcher{path: path, watcher: fw, onReload: onReload, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				slog.Warn("config: reload failed", "path", w.path, "error", err)
				continue
			}
			w.onReload(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "error", err)
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
