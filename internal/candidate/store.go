package candidate

import (
	"context"
	"sync"

	"github.com/nao1215/streamscout/internal/model"
)

// Store accumulates unique candidate URLs in order of first observation.
// Insert is idempotent on the exact URL string. All methods are safe for
// concurrent use.
type Store struct {
	mu    sync.RWMutex
	index map[string]int
	items []model.Candidate
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]int),
		items: make([]model.Candidate, 0),
	}
}

// Insert records a signal. It returns true when the signal introduced a new
// URL. A duplicate URL only bumps the observation count; the first channel
// and first-seen timestamp are kept.
func (s *Store) Insert(sig model.Signal) bool {
	if sig.URL == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i, ok := s.index[sig.URL]; ok {
		s.items[i].Observations++
		return false
	}

	s.index[sig.URL] = len(s.items)
	s.items = append(s.items, model.NewCandidate(sig, len(s.items)))
	return true
}

// Snapshot returns a copy of the candidates in insertion order.
func (s *Store) Snapshot() []model.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Candidate, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of unique candidates.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Consume inserts every signal from ch until ch is closed or ctx is done.
// The optional onNew callback runs for each signal that added a new URL.
func (s *Store) Consume(ctx context.Context, ch <-chan model.Signal, onNew func(model.Signal)) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-ch:
			if !ok {
				return
			}
			if s.Insert(sig) && onNew != nil {
				onNew(sig)
			}
		}
	}
}
