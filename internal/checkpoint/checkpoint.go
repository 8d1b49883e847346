package checkpoint

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"litreview/internal/util"
)

// Version guards the on-disk layout. A checkpoint written by an incompatible
// build is ignored rather than misread.
const Version = "1.0"

// State is the resumable progress record for one project run.
type State struct {
	Version   string            `json:"version"`
	Project   string            `json:"project"`
	UpdatedAt time.Time         `json:"updated_at"`
	Processed []string          `json:"processed"`
	Failed    map[string]string `json:"failed"`
}

// NewState returns an empty state for the given project.
func NewState(project string) *State {
	return &State{
		Version:   Version,
		Project:   project,
		Processed: []string{},
		Failed:    map[string]string{},
	}
}

// Seen reports whether identity already has an outcome in this state.
func (s *State) Seen(identity string) bool {
	if _, ok := s.Failed[identity]; ok {
		return true
	}
	for _, id := range s.Processed {
		if id == identity {
			return true
		}
	}
	return false
}

// MarkProcessed records a success, clearing any earlier failure for the
// same identity.
func (s *State) MarkProcessed(identity string) {
	delete(s.Failed, identity)
	for _, id := range s.Processed {
		if id == identity {
			return
		}
	}
	s.Processed = append(s.Processed, identity)
}

// MarkFailed records a failure with its reason.
func (s *State) MarkFailed(identity, reason string) {
	if s.Failed == nil {
		s.Failed = map[string]string{}
	}
	s.Failed[identity] = reason
}

// Manager loads and saves the checkpoint file for one project.
type Manager struct {
	path    string
	project string
	log     *log.Logger
}

// NewManager binds a manager to a checkpoint file path and project name.
func NewManager(path, project string, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{path: path, project: project, log: logger}
}

// Load reads the checkpoint. It returns ok=false with a fresh empty state
// when the file is absent, unreadable, or belongs to a different version or
// project; a stale checkpoint must never silently skip another project's
// papers.
func (m *Manager) Load() (*State, bool) {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Printf("checkpoint: read %s failed (%v), starting fresh", m.path, err)
		}
		return NewState(m.project), false
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		m.log.Printf("checkpoint: %s is corrupt (%v), starting fresh", m.path, err)
		return NewState(m.project), false
	}
	if st.Version != Version {
		m.log.Printf("checkpoint: version %q does not match %q, starting fresh", st.Version, Version)
		return NewState(m.project), false
	}
	if st.Project != m.project {
		m.log.Printf("checkpoint: belongs to project %q, not %q, starting fresh", st.Project, m.project)
		return NewState(m.project), false
	}
	if st.Processed == nil {
		st.Processed = []string{}
	}
	if st.Failed == nil {
		st.Failed = map[string]string{}
	}
	return &st, true
}

// Save writes the state atomically. The version and timestamp are stamped
// here so callers never persist a half-filled header.
func (m *Manager) Save(st *State) error {
	st.Version = Version
	st.Project = m.project
	st.UpdatedAt = time.Now().UTC()
	if err := util.WriteJSONAtomic(m.path, st); err != nil {
		return fmt.Errorf("checkpoint: save %s: %w", m.path, err)
	}
	return nil
}

// Clear removes the checkpoint file. Missing files are not an error.
func (m *Manager) Clear() error {
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: clear %s: %w", m.path, err)
	}
	return nil
}
