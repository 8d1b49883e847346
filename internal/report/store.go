package report

import (
	"encoding/json"
	"fmt"
	"os"

	"litreview/internal/models"
	"litreview/internal/util"
)

// Store persists the accumulated per-paper results as one JSON document.
// The whole file is rewritten atomically after every update, so a crash
// never leaves a partially written record behind.
type Store struct {
	path string
}

// NewStore binds a store to its output file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save overwrites the document with the given results.
func (s *Store) Save(results []models.ProcessingResult) error {
	if err := util.WriteJSONAtomic(s.path, results); err != nil {
		return fmt.Errorf("report: save %s: %w", s.path, err)
	}
	return nil
}

// Load reads back previously saved results. A missing file yields an empty
// slice so a fresh run and a resumed run go through the same path.
func (s *Store) Load() ([]models.ProcessingResult, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.ProcessingResult{}, nil
		}
		return nil, fmt.Errorf("report: read %s: %w", s.path, err)
	}
	var results []models.ProcessingResult
	if err := json.Unmarshal(raw, &results); err != nil {
		return nil, fmt.Errorf("report: parse %s: %w", s.path, err)
	}
	return results, nil
}
