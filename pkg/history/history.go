package history

import (
	"sync"

	"github.com/steadystate/havoc/pkg/types"
)

const defaultCapacity = 512

// Store keeps the most recent terminal execution records in memory,
// newest first. It backs the admin run-history surface.
type Store struct {
	mu       sync.RWMutex
	capacity int
	records  []types.ExperimentExecution
}

func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Store{capacity: capacity}
}

// Append records one terminal execution, evicting the oldest entry once
// the capacity is reached.
func (s *Store) Append(execution types.ExperimentExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append([]types.ExperimentExecution{execution}, s.records...)
	if len(s.records) > s.capacity {
		s.records = s.records[:s.capacity]
	}
}

// All returns every stored record, newest first.
func (s *Store) All() []types.ExperimentExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ExperimentExecution, len(s.records))
	copy(out, s.records)
	return out
}

// ForDefinition returns the stored records of one definition, newest
// first.
func (s *Store) ForDefinition(definitionID string) []types.ExperimentExecution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ExperimentExecution
	for _, record := range s.records {
		if record.DefinitionID == definitionID {
			out = append(out, record)
		}
	}
	return out
}

// Get returns the record of one run, if still retained.
func (s *Store) Get(runID string) (types.ExperimentExecution, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, record := range s.records {
		if record.RunID == runID {
			return record, true
		}
	}
	return types.ExperimentExecution{}, false
}
