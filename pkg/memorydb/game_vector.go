package memorydb

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gameindex/pkg/embedding"
	"gameindex/repository"
)

// Store keeps vectors in process memory and searches them by brute force.
type Store struct {
	mu      sync.RWMutex
	records map[string]repository.VectorRecord
	dim     int
}

func New(dim int) *Store {
	return &Store{
		records: make(map[string]repository.VectorRecord),
		dim:     dim,
	}
}

func (s *Store) Upsert(ctx context.Context, records []repository.VectorRecord) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	for _, r := range records {
		if s.dim > 0 && len(r.Values) != s.dim {
			return 0, fmt.Errorf("%w: %s has %d, want %d", repository.ErrDimensionMismatch, r.ID, len(r.Values), s.dim)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		values := make([]float32, len(r.Values))
		copy(values, r.Values)
		r.Values = values
		s.records[r.ID] = r
	}
	return len(records), nil
}

func (s *Store) Search(ctx context.Context, vector []float32, limit int) ([]repository.ScoredVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	results := make([]repository.ScoredVector, 0, len(s.records))
	for id, r := range s.records {
		results = append(results, repository.ScoredVector{
			ID:       id,
			Score:    embedding.CosineSimilarity(vector, r.Values),
			Metadata: r.Metadata,
		})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Get returns a stored record by id.
func (s *Store) Get(id string) (repository.VectorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
