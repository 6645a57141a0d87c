package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobStore persists Job definitions to a flat JSON file, mirroring cron.py's
// own _load_jobs/_save_jobs pair — keyed by ID, rewritten in full on every
// mutation.
type JobStore struct {
	path string
	mu   sync.Mutex
}

// NewJobStore binds a JobStore to a file path (typically
// "<config dir>/jobs.json"), creating its parent directory.
func NewJobStore(path string) *JobStore {
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	return &JobStore{path: path}
}

func (s *JobStore) load() (map[string]Job, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]Job{}, nil
	}
	if err != nil {
		return nil, err
	}
	var jobs map[string]Job
	if err := json.Unmarshal(data, &jobs); err != nil {
		return map[string]Job{}, nil
	}
	return jobs, nil
}

func (s *JobStore) save(jobs map[string]Job) error {
	data, err := json.MarshalIndent(jobs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, append(data, '\n'), 0o644)
}

// Add creates a new job with a fresh short ID and persists it.
func (s *JobStore) Add(j Job) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return Job{}, err
	}
	j.ID = uuid.NewString()[:8]
	jobs[j.ID] = j
	if err := s.save(jobs); err != nil {
		return Job{}, err
	}
	return j, nil
}

// List returns every job, in no particular order (callers sort if needed).
func (s *JobStore) List() ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j)
	}
	return out, nil
}

// Get returns one job by ID.
func (s *JobStore) Get(id string) (Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return Job{}, false, err
	}
	j, ok := jobs[id]
	return j, ok, nil
}

// Remove deletes a job by ID.
func (s *JobStore) Remove(id string) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return Job{}, err
	}
	j, ok := jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}
	delete(jobs, id)
	return j, s.save(jobs)
}

// SetPaused pauses or resumes a job by ID.
func (s *JobStore) SetPaused(id string, paused bool) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return Job{}, err
	}
	j, ok := jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}
	j.Paused = paused
	jobs[id] = j
	return j, s.save(jobs)
}

// MarkRan records a job's last-run time (and, for one-shot jobs, that it has
// run at all) after the scheduler or an explicit run_now fires it.
func (s *JobStore) MarkRan(id string, at time.Time) (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return Job{}, err
	}
	j, ok := jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}
	j.LastRun = at
	if j.Type == ScheduleDate {
		j.Ran = true
	}
	jobs[id] = j
	return j, s.save(jobs)
}
