// Package vectorindex implements the vector index backends: an in-memory
// index with a roaring bitmap metadata index, a bbolt-persisted index that
// keeps the in-memory index as its search cache, and a sqlite-vec index.
package vectorindex

import (
	"context"
	"sync"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

var filterFields = []string{domain.FieldProcedureType, domain.FieldSpecialty, domain.FieldRecordID}

// MemoryIndex is an exact brute-force index held in memory.
//
// Metadata filters compile to roaring bitmaps over an inverted index
// (field -> value -> ids) before any distance is computed.
type MemoryIndex struct {
	mu         sync.RWMutex
	dimension  int
	collection string
	closed     bool

	entries  map[int64]domain.IndexEntry
	inverted map[string]map[string]*roaring64.Bitmap
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex(collection string, dimension int) *MemoryIndex {
	return &MemoryIndex{
		dimension:  dimension,
		collection: collection,
		entries:    make(map[int64]domain.IndexEntry),
		inverted:   make(map[string]map[string]*roaring64.Bitmap),
	}
}

func (m *MemoryIndex) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	return m.UpsertBatch(ctx, []domain.IndexEntry{entry})
}

func (m *MemoryIndex) UpsertBatch(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "upsert cancelled")
	}
	for _, e := range entries {
		if err := checkDimension(len(e.Embedding), m.dimension, "entry"); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed(m.collection)
	}
	for _, e := range entries {
		m.putLocked(e)
	}
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "delete cancelled")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed(m.collection)
	}
	m.removeLocked(id)
	return nil
}

func (m *MemoryIndex) Query(ctx context.Context, embedding []float32, k int, filter domain.Filter) ([]domain.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err, "query cancelled")
	}
	if err := checkDimension(len(embedding), m.dimension, "query"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed(m.collection)
	}

	matches := make([]domain.Match, 0, k)
	score := func(id int64) {
		e := m.entries[id]
		matches = append(matches, domain.Match{
			ID:       id,
			Document: e.Document,
			Distance: cosineDistance(embedding, e.Embedding),
		})
	}

	if filter == nil {
		for id := range m.entries {
			score(id)
		}
		return topK(matches, k), nil
	}

	candidates := m.compileLocked(filter)
	it := candidates.Iterator()
	for it.HasNext() {
		id := int64(it.Next())
		if _, ok := m.entries[id]; ok {
			score(id)
		}
	}
	return topK(matches, k), nil
}

func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, errClosed(m.collection)
	}
	return len(m.entries), nil
}

func (m *MemoryIndex) DropAndRecreate(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed(m.collection)
	}
	m.entries = make(map[int64]domain.IndexEntry)
	m.inverted = make(map[string]map[string]*roaring64.Bitmap)
	return nil
}

func (m *MemoryIndex) Dimension() int {
	return m.dimension
}

func (m *MemoryIndex) Stats(ctx context.Context) (domain.CollectionStats, error) {
	n, err := m.Count(ctx)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	return domain.CollectionStats{
		TotalDocuments: n,
		Collection:     m.collection,
		Backend:        "memory",
	}, nil
}

func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// compileLocked ANDs the posting bitmaps of every condition.
// Unknown fields and absent values yield an empty set.
func (m *MemoryIndex) compileLocked(filter domain.Filter) *roaring64.Bitmap {
	var result *roaring64.Bitmap
	for _, c := range filter.Conditions() {
		bitmap, ok := m.inverted[c.Field][c.Value]
		if !ok {
			return roaring64.New()
		}
		if result == nil {
			result = bitmap.Clone()
			continue
		}
		result.And(bitmap)
		if result.IsEmpty() {
			return result
		}
	}
	if result == nil {
		return roaring64.New()
	}
	return result
}

func (m *MemoryIndex) putLocked(e domain.IndexEntry) {
	m.removeLocked(e.ID)

	e.Embedding = copyVector(e.Embedding)
	m.entries[e.ID] = e
	for _, field := range filterFields {
		value, _ := e.Metadata.Field(field)
		values, ok := m.inverted[field]
		if !ok {
			values = make(map[string]*roaring64.Bitmap)
			m.inverted[field] = values
		}
		bitmap, ok := values[value]
		if !ok {
			bitmap = roaring64.New()
			values[value] = bitmap
		}
		bitmap.Add(uint64(e.ID))
	}
}

func (m *MemoryIndex) removeLocked(id int64) {
	old, ok := m.entries[id]
	if !ok {
		return
	}
	delete(m.entries, id)
	for _, field := range filterFields {
		value, _ := old.Metadata.Field(field)
		bitmap, ok := m.inverted[field][value]
		if !ok {
			continue
		}
		bitmap.Remove(uint64(id))
		if bitmap.IsEmpty() {
			delete(m.inverted[field], value)
		}
	}
}

func unavailable(err error, msg string) error {
	return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, msg)
}

func errClosed(collection string) error {
	return surgerr.New(surgerr.CodeIndexBackendUnavailable, "index is closed",
		surgerr.FieldCollection(collection))
}
