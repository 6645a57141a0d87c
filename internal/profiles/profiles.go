// Package profiles manages named Chromium browser profiles: each a
// dedicated user-data-dir plus an assigned CDP port, tracked in a single
// config file under the user's home directory.
package profiles

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

const basePort = 9222

var nameSanitizeRe = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Profile describes one browser profile as reported to callers.
type Profile struct {
	Name      string `json:"name"`
	Port      int    `json:"port"`
	Path      string `json:"path"`
	IsDefault bool   `json:"is_default"`
}

type profileEntry struct {
	Port int `json:"port"`
}

type fileConfig struct {
	Default  string                  `json:"default,omitempty"`
	Profiles map[string]profileEntry `json:"profiles"`
}

// Store manages profiles rooted at a config directory (normally
// ~/.tappi), keeping profile directories under <configDir>/profiles and the
// index at <configDir>/config.json.
type Store struct {
	configDir   string
	configFile  string
	profilesDir string
	mu          sync.Mutex
}

// NewStore binds a Store to configDir, creating no files until first use.
func NewStore(configDir string) *Store {
	return &Store{
		configDir:   configDir,
		configFile:  filepath.Join(configDir, "config.json"),
		profilesDir: filepath.Join(configDir, "profiles"),
	}
}

func (s *Store) loadConfig() fileConfig {
	cfg := fileConfig{Profiles: map[string]profileEntry{}}
	data, err := os.ReadFile(s.configFile)
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fileConfig{Profiles: map[string]profileEntry{}}
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profileEntry{}
	}
	return cfg
}

// saveConfig writes via temp-file + rename so a crash mid-write never
// corrupts the index, matching this project's session-store persistence
// idiom.
func (s *Store) saveConfig(cfg fileConfig) error {
	if err := os.MkdirAll(s.configDir, 0o755); err != nil {
		return fmt.Errorf("profiles: create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("profiles: marshal config: %w", err)
	}
	tmp, err := os.CreateTemp(s.configDir, "config-*.tmp")
	if err != nil {
		return fmt.Errorf("profiles: create temp config: %w", err)
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
		return fmt.Errorf("profiles: write temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("profiles: sync temp config: %w", err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, s.configFile); err != nil {
		return fmt.Errorf("profiles: rename temp config: %w", err)
	}
	cleanup = false
	return nil
}

func sanitizeName(name string) string {
	return nameSanitizeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

func nextPort(cfg fileConfig) int {
	used := make(map[int]bool, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		used[p.Port] = true
	}
	port := basePort
	for used[port] {
		port++
	}
	return port
}

// migrateLegacy moves a pre-profiles single ~/.tappi/profile directory into
// the named-profile layout as "default", once.
func (s *Store) migrateLegacy() {
	legacyDir := filepath.Join(s.configDir, "profile")
	info, err := os.Stat(legacyDir)
	if err != nil || !info.IsDir() {
		return
	}
	cfg := s.loadConfig()
	if _, exists := cfg.Profiles["default"]; exists {
		return
	}
	newDir := filepath.Join(s.profilesDir, "default")
	if _, err := os.Stat(newDir); err == nil {
		return
	}
	if err := os.MkdirAll(s.profilesDir, 0o755); err != nil {
		return
	}
	if err := os.Rename(legacyDir, newDir); err != nil {
		return
	}
	cfg.Profiles["default"] = profileEntry{Port: basePort}
	if cfg.Default == "" {
		cfg.Default = "default"
	}
	_ = s.saveConfig(cfg)
}

// List returns every known profile, sorted by name. It also adopts any
// profile directory found on disk but missing from the config index.
func (s *Store) List() ([]Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrateLegacy()
	cfg := s.loadConfig()

	if entries, err := os.ReadDir(s.profilesDir); err == nil {
		changed := false
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			if _, ok := cfg.Profiles[e.Name()]; !ok {
				cfg.Profiles[e.Name()] = profileEntry{Port: nextPort(cfg)}
				changed = true
			}
		}
		if changed {
			if err := s.saveConfig(cfg); err != nil {
				return nil, err
			}
		}
	}

	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Profile, 0, len(names))
	for _, name := range names {
		entry := cfg.Profiles[name]
		port := entry.Port
		if port == 0 {
			port = basePort
		}
		out = append(out, Profile{
			Name:      name,
			Port:      port,
			Path:      filepath.Join(s.profilesDir, name),
			IsDefault: name == cfg.Default,
		})
	}
	return out, nil
}

// Get resolves a profile by name, or the configured default, or "default"
// if neither is set.
func (s *Store) Get(name string) (Profile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrateLegacy()
	cfg := s.loadConfig()

	if name == "" {
		name = cfg.Default
	}
	if name == "" {
		name = "default"
	}

	entry, ok := cfg.Profiles[name]
	if !ok {
		return Profile{}, false, fmt.Errorf(
			"profile %q not found.\nAvailable profiles: %s\nCreate one with: profile create %s",
			name, availableNames(cfg), name)
	}
	port := entry.Port
	if port == 0 {
		port = basePort
	}
	profileDir := filepath.Join(s.profilesDir, name)
	_, isNewErr := os.Stat(filepath.Join(profileDir, "Default"))
	return Profile{
		Name:      name,
		Port:      port,
		Path:      profileDir,
		IsDefault: cfg.Default == name,
	}, isNewErr != nil, nil
}

func availableNames(cfg fileConfig) string {
	names := make([]string, 0, len(cfg.Profiles))
	for name := range cfg.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return "(none)"
	}
	return strings.Join(names, ", ")
}

// Create registers a new profile and creates its directory. port == 0
// auto-assigns the next free port from basePort.
func (s *Store) Create(name string, port int) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrateLegacy()
	name = sanitizeName(name)
	if name == "" {
		return Profile{}, fmt.Errorf("profiles: name cannot be empty")
	}

	cfg := s.loadConfig()
	if _, exists := cfg.Profiles[name]; exists {
		return Profile{}, fmt.Errorf("profile %q already exists. Use: profile launch %s", name, name)
	}

	if port == 0 {
		port = nextPort(cfg)
	}
	cfg.Profiles[name] = profileEntry{Port: port}
	if cfg.Default == "" {
		cfg.Default = name
	}
	if err := s.saveConfig(cfg); err != nil {
		return Profile{}, err
	}

	profileDir := filepath.Join(s.profilesDir, name)
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return Profile{}, fmt.Errorf("profiles: create profile dir: %w", err)
	}

	return Profile{
		Name:      name,
		Port:      port,
		Path:      profileDir,
		IsDefault: cfg.Default == name,
	}, nil
}

// SetDefault marks an existing profile as the default.
func (s *Store) SetDefault(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrateLegacy()
	cfg := s.loadConfig()
	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found. Available: %s", name, availableNames(cfg))
	}
	cfg.Default = name
	return s.saveConfig(cfg)
}

// Delete removes a profile from the index and deletes its directory.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.migrateLegacy()
	cfg := s.loadConfig()
	if _, ok := cfg.Profiles[name]; !ok {
		return fmt.Errorf("profile %q not found", name)
	}
	delete(cfg.Profiles, name)
	if cfg.Default == name {
		cfg.Default = ""
		for remaining := range cfg.Profiles {
			cfg.Default = remaining
			break
		}
	}
	if err := s.saveConfig(cfg); err != nil {
		return err
	}
	profileDir := filepath.Join(s.profilesDir, name)
	if err := os.RemoveAll(profileDir); err != nil {
		return fmt.Errorf("profiles: remove profile dir: %w", err)
	}
	return nil
}
