package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"surgrag/internal/adapter/embedding"
	"surgrag/internal/adapter/memstore"
	"surgrag/internal/adapter/vectorindex"
	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

const testDim = 64

// recordingIndex wraps the memory index, records batch sizes and fails on
// demand.
type recordingIndex struct {
	*vectorindex.MemoryIndex

	mu         sync.Mutex
	batches    []int
	failIDs    map[int64]bool
	failBatch  bool
	failDrop   bool
	queryCalls int
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{
		MemoryIndex: vectorindex.NewMemoryIndex("medical_reports", testDim),
		failIDs:     make(map[int64]bool),
	}
}

func induced(id int64) error {
	return surgerr.New(surgerr.CodeIndexBackendUnavailable, "induced failure", surgerr.FieldRecordID(id))
}

func (r *recordingIndex) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	r.mu.Lock()
	fail := r.failIDs[entry.ID]
	r.mu.Unlock()
	if fail {
		return induced(entry.ID)
	}
	return r.MemoryIndex.Upsert(ctx, entry)
}

func (r *recordingIndex) UpsertBatch(ctx context.Context, entries []domain.IndexEntry) error {
	r.mu.Lock()
	fail := r.failBatch
	if !fail {
		r.batches = append(r.batches, len(entries))
	}
	r.mu.Unlock()
	if fail {
		return induced(0)
	}
	return r.MemoryIndex.UpsertBatch(ctx, entries)
}

func (r *recordingIndex) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	fail := r.failIDs[id]
	r.mu.Unlock()
	if fail {
		return induced(id)
	}
	return r.MemoryIndex.Delete(ctx, id)
}

func (r *recordingIndex) Query(ctx context.Context, emb []float32, k int, filter domain.Filter) ([]domain.Match, error) {
	r.mu.Lock()
	r.queryCalls++
	r.mu.Unlock()
	return r.MemoryIndex.Query(ctx, emb, k, filter)
}

func (r *recordingIndex) DropAndRecreate(ctx context.Context) error {
	if r.failDrop {
		return induced(0)
	}
	return r.MemoryIndex.DropAndRecreate(ctx)
}

func (r *recordingIndex) setFail(id int64, fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failIDs[id] = fail
}

// ids returns every indexed id in ascending order.
func (r *recordingIndex) ids(t *testing.T) []int64 {
	t.Helper()
	ctx := context.Background()
	n, err := r.MemoryIndex.Count(ctx)
	require.NoError(t, err)
	if n == 0 {
		return []int64{}
	}
	probe := make([]float32, testDim)
	probe[0] = 1
	matches, err := r.MemoryIndex.Query(ctx, probe, n, nil)
	require.NoError(t, err)
	out := make([]int64, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// countingEncoder wraps the hashing encoder. Texts containing "ENCODE-FAIL"
// are rejected.
type countingEncoder struct {
	*embedding.HashingEncoder

	mu    sync.Mutex
	calls int
}

func newEncoder(t *testing.T) *countingEncoder {
	t.Helper()
	enc, err := embedding.NewHashingEncoder(testDim, 100000)
	require.NoError(t, err)
	return &countingEncoder{HashingEncoder: enc}
}

func (e *countingEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if strings.Contains(text, "ENCODE-FAIL") {
		return nil, surgerr.New(surgerr.CodeEmbeddingEncodeFailure, "induced encode failure")
	}
	return e.HashingEncoder.Encode(ctx, text)
}

func (e *countingEncoder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fixture struct {
	store   *memstore.MemoryStore
	index   *recordingIndex
	encoder *countingEncoder
	sync    *SyncCoordinator
	ingest  *Ingestor
}

func newFixture(t *testing.T, opts ...SyncOption) *fixture {
	t.Helper()
	f := &fixture{
		store:   memstore.NewMemoryStore(),
		index:   newRecordingIndex(),
		encoder: newEncoder(t),
	}
	coord, err := NewSyncCoordinator(f.index, f.encoder, f.store, opts...)
	require.NoError(t, err)
	f.sync = coord
	f.ingest = NewIngestor(f.store, coord, nil)
	return f
}

// seed stores reports with ids 1..n without touching the index.
func (f *fixture) seed(n int) {
	specialties := []string{"General Surgery", "Gastroenterology", "Urology"}
	for i := 1; i <= n; i++ {
		f.store.Put(domain.Report{
			ID:            int64(i),
			ProcedureType: fmt.Sprintf("Procedure %d", i%5),
			Specialty:     specialties[i%len(specialties)],
			ReportText:    fmt.Sprintf("Operative report %d laparoscopic procedure findings", i),
			Source:        "test",
		})
	}
}

func idRange(from, to int64) []int64 {
	out := make([]int64, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, id)
	}
	return out
}
