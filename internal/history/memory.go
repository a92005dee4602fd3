package history

import (
	"context"
	"sort"
	"sync"
)

const maxRecords = 1000

// MemoryRepository stores run records in memory with FIFO eviction.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string // insertion order for FIFO eviction
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]*Record),
	}
}

func (r *MemoryRepository) Create(_ context.Context, record *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// FIFO eviction when at capacity.
	if len(r.order) >= maxRecords {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.records, oldest)
	}

	r.records[record.ID] = record
	r.order = append(r.order, record.ID)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepository) List(_ context.Context, workflow string, limit, offset int) ([]*Record, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []*Record
	for _, rec := range r.records {
		if workflow == "" || rec.Workflow == workflow {
			filtered = append(filtered, rec)
		}
	}

	// Newest first.
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}
