package storage

import (
	"context"
	"sort"
	"sync"
)

// memoryStore keeps everything in maps. It backs the "memory" driver and is
// embedded by the file driver, which snapshots it after each mutation.
type memoryStore struct {
	mu      sync.RWMutex
	closed  bool
	nextID  int64
	filters map[string]FilterRecord // by lower-cased source
	words   map[int64][]string
	muted   map[string]struct{}
	audit   []AuditEntry
}

// NewMemory returns a non-persistent Store.
func NewMemory() Store { return newMemoryStore() }

func newMemoryStore() *memoryStore {
	return &memoryStore{
		filters: map[string]FilterRecord{},
		words:   map[int64][]string{},
		muted:   map[string]struct{}{},
	}
}

func (s *memoryStore) LookupFilter(ctx context.Context, source string) (FilterRecord, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return FilterRecord{}, false, ErrClosed
	}
	rec, ok := s.filters[source]
	return rec, ok, nil
}

func (s *memoryStore) LookupFilterEntries(ctx context.Context, filterID int64) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return append([]string(nil), s.words[filterID]...), nil
}

func (s *memoryStore) PutFilter(ctx context.Context, rec FilterRecord, words []string) (FilterRecord, error) {
	_ = ctx
	rec.Source = normalizeSource(rec.Source)
	if rec.Source == "" {
		return FilterRecord{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return FilterRecord{}, ErrClosed
	}
	if old, ok := s.filters[rec.Source]; ok {
		rec.ID = old.ID
	} else {
		s.nextID++
		rec.ID = s.nextID
	}
	s.filters[rec.Source] = rec
	s.words[rec.ID] = cleanWords(words)
	return rec, nil
}

func (s *memoryStore) DeleteFilter(ctx context.Context, source string) (bool, error) {
	_ = ctx
	source = normalizeSource(source)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	rec, ok := s.filters[source]
	if !ok {
		return false, nil
	}
	delete(s.filters, source)
	delete(s.words, rec.ID)
	return true, nil
}

func (s *memoryStore) ListFilters(ctx context.Context) ([]FilterRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]FilterRecord, 0, len(s.filters))
	for _, rec := range s.filters {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out, nil
}

func (s *memoryStore) IsMuted(ctx context.Context, pkg string) (bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.muted[pkg]
	return ok, nil
}

func (s *memoryStore) AddMute(ctx context.Context, pkg string) error {
	_ = ctx
	if pkg == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.muted[pkg] = struct{}{}
	return nil
}

func (s *memoryStore) RemoveMute(ctx context.Context, pkg string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	_, ok := s.muted[pkg]
	delete(s.muted, pkg)
	return ok, nil
}

func (s *memoryStore) ListMuted(ctx context.Context) ([]string, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make([]string, 0, len(s.muted))
	for pkg := range s.muted {
		out = append(out, pkg)
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.audit = append(s.audit, e)
	if len(s.audit) > 500 {
		s.audit = s.audit[len(s.audit)-500:]
	}
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
