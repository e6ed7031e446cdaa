// Package memstore is an in-memory record store, used for tests and dry runs.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	reports map[int64]domain.Report
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:  1,
		reports: make(map[int64]domain.Report),
		now:     time.Now,
	}
}

func (s *MemoryStore) AddReport(ctx context.Context, r domain.NewReport) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.reports[id] = domain.Report{
		ID:             id,
		ProcedureType:  r.ProcedureType,
		Specialty:      r.Specialty,
		ReportName:     r.ReportName,
		ReportText:     r.ReportText,
		Keywords:       r.Keywords,
		Source:         r.Source,
		IsDeidentified: r.IsDeidentified,
		AddedAt:        s.now().UTC(),
	}
	return id, nil
}

// Put stores a report under its own id, replacing any existing one.
func (s *MemoryStore) Put(r domain.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[r.ID] = r
	if r.ID >= s.nextID {
		s.nextID = r.ID + 1
	}
}

func (s *MemoryStore) GetReport(ctx context.Context, id int64) (domain.Report, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	return r, ok, nil
}

func (s *MemoryStore) GetRecord(ctx context.Context, id int64) (domain.Record, bool, error) {
	r, ok, err := s.GetReport(ctx, id)
	return r.Record(), ok, err
}

func (s *MemoryStore) ListRecords(ctx context.Context, pageSize, offset int) ([]domain.Record, error) {
	if pageSize <= 0 || offset < 0 {
		return nil, surgerr.New(surgerr.CodeStoreInputInvalid, "invalid page")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedIDsLocked()
	if offset >= len(ids) {
		return []domain.Record{}, nil
	}
	end := offset + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	records := make([]domain.Record, 0, end-offset)
	for _, id := range ids[offset:end] {
		records = append(records, s.reports[id].Record())
	}
	return records, nil
}

func (s *MemoryStore) DeleteReport(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.reports[id]
	delete(s.reports, id)
	return ok, nil
}

func (s *MemoryStore) SearchReports(ctx context.Context, q domain.ReportQuery) ([]domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	var out []domain.Report
	for _, id := range s.sortedIDsLocked() {
		r := s.reports[id]
		if !contains(r.Specialty, q.Specialty) || !contains(r.ProcedureType, q.ProcedureType) ||
			!contains(r.Keywords, q.Keyword) || (q.Source != "" && r.Source != q.Source) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) CountBySource(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, r := range s.reports {
		counts[r.Source]++
	}
	return counts, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) sortedIDsLocked() []int64 {
	ids := make([]int64, 0, len(s.reports))
	for id := range s.reports {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// contains mirrors SQL LIKE '%sub%' (case-insensitive for ASCII).
func contains(s, sub string) bool {
	if sub == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
