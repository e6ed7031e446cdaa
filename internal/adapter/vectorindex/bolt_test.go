package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

// snapshot returns the entries held by the memory index.
func (m *MemoryIndex) snapshot() map[int64]domain.IndexEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]domain.IndexEntry, len(m.entries))
	for id, e := range m.entries {
		out[id] = e
	}
	return out
}

func TestBoltIndex_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := OpenBolt(path, Options{Dimension: testDim, Model: "m1"})
	require.NoError(t, err)
	require.NoError(t, idx.UpsertBatch(ctx, []domain.IndexEntry{
		entry(1, "Urology", "TURP", 1, 0, 0, 0),
		entry(2, "Neurosurgery", "Laminectomy", 0, 1, 0, 0),
	}))
	require.NoError(t, idx.Delete(ctx, 2))
	require.NoError(t, idx.Close())

	reopened, err := OpenBolt(path, Options{Dimension: testDim, Model: "m1"})
	require.NoError(t, err)
	defer reopened.Close()

	snap := reopened.cache.snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "Urology", snap[1].Metadata.Specialty)
	assert.Equal(t, "report TURP", snap[1].Document)
	assert.False(t, reopened.Migration().NeedsRebuild)

	matches, err := reopened.Query(ctx, []float32{1, 0, 0, 0}, 1, domain.Eq(domain.FieldSpecialty, "Urology"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(1), matches[0].ID)
}

func TestBoltIndex_ModelChangeNeedsRebuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := OpenBolt(path, Options{Dimension: testDim, Model: "m1"})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, entry(1, "S", "P", 1, 0, 0, 0)))
	require.NoError(t, idx.Close())

	reopened, err := OpenBolt(path, Options{Dimension: testDim, Model: "m2"})
	require.NoError(t, err)
	defer reopened.Close()

	m := reopened.Migration()
	assert.True(t, m.NeedsRebuild)
	assert.False(t, m.DimensionMismatch)
	assert.Contains(t, m.Reason, "model changed")

	// same width, so the old vectors stay usable until rebuilt
	require.NoError(t, reopened.Upsert(ctx, entry(2, "S", "P", 0, 1, 0, 0)))

	require.NoError(t, reopened.DropAndRecreate(ctx))
	assert.False(t, reopened.Migration().NeedsRebuild)
}

func TestBoltIndex_DimensionChangeRefusesWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := OpenBolt(path, Options{Dimension: testDim, Model: "m1"})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, entry(1, "S", "P", 1, 0, 0, 0)))
	require.NoError(t, idx.Close())

	reopened, err := OpenBolt(path, Options{Dimension: 2, Model: "m1"})
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.Migration().DimensionMismatch)

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "stale entries are still counted")

	err = reopened.Upsert(ctx, domain.IndexEntry{ID: 2, Embedding: []float32{1, 0}})
	assert.True(t, surgerr.IsDimensionMismatch(err))
	_, err = reopened.Query(ctx, []float32{1, 0}, 1, nil)
	assert.True(t, surgerr.IsDimensionMismatch(err))

	require.NoError(t, reopened.DropAndRecreate(ctx))
	require.NoError(t, reopened.Upsert(ctx, domain.IndexEntry{ID: 2, Embedding: []float32{1, 0}}))

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.False(t, stats.NeedsRebuild)
	assert.Equal(t, "bolt", stats.Backend)
}

func TestBoltIndex_SeparateCollections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	a, err := OpenBolt(path, Options{Collection: "reports_a", Dimension: testDim, Model: "m"})
	require.NoError(t, err)
	require.NoError(t, a.Upsert(ctx, entry(1, "S", "P", 1, 0, 0, 0)))
	require.NoError(t, a.Close())

	b, err := OpenBolt(path, Options{Collection: "reports_b", Dimension: testDim, Model: "m"})
	require.NoError(t, err)
	defer b.Close()

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCheckMeta(t *testing.T) {
	current := CollectionMeta{SchemaVersion: SchemaVersion, Model: "m", Dimension: 384}

	tests := []struct {
		name     string
		stored   *CollectionMeta
		rebuild  bool
		mismatch bool
	}{
		{"fresh", nil, false, false},
		{"same", &CollectionMeta{SchemaVersion: SchemaVersion, Model: "m", Dimension: 384}, false, false},
		{"model", &CollectionMeta{SchemaVersion: SchemaVersion, Model: "other", Dimension: 384}, true, false},
		{"dimension", &CollectionMeta{SchemaVersion: SchemaVersion, Model: "m", Dimension: 768}, true, true},
		{"newer schema", &CollectionMeta{SchemaVersion: SchemaVersion + 1, Model: "m", Dimension: 384}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckMeta(tt.stored, current)
			assert.Equal(t, tt.rebuild, got.NeedsRebuild)
			assert.Equal(t, tt.mismatch, got.DimensionMismatch)
			if tt.rebuild {
				assert.NotEmpty(t, got.Reason)
			}
		})
	}
}
