package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	surgerr "surgrag/pkg/errors"
)

func TestSQLiteVecIndex_RejectsUnsafeCollection(t *testing.T) {
	_, err := OpenSQLiteVec(filepath.Join(t.TempDir(), "v.db"), Options{
		Collection: "reports; DROP TABLE x", Dimension: testDim,
	})
	assert.Equal(t, surgerr.CodeIndexConfigInvalid, surgerr.CodeOf(err))
}

func TestSQLiteVecIndex_DimensionChangeNeedsRebuild(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	ctx := context.Background()

	idx, err := OpenSQLiteVec(path, Options{Dimension: testDim, Model: "m1"})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, entry(1, "S", "P", 1, 0, 0, 0)))
	require.NoError(t, idx.Close())

	reopened, err := OpenSQLiteVec(path, Options{Dimension: 2, Model: "m1"})
	require.NoError(t, err)
	defer reopened.Close()

	m := reopened.Migration()
	assert.True(t, m.NeedsRebuild)
	assert.True(t, m.DimensionMismatch)

	_, err = reopened.Query(ctx, []float32{1, 0}, 1, nil)
	assert.True(t, surgerr.IsDimensionMismatch(err))

	require.NoError(t, reopened.DropAndRecreate(ctx))
	require.NoError(t, reopened.UpsertBatch(ctx, nil))

	matches, err := reopened.Query(ctx, []float32{1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSQLiteVecIndex_ModelChangeKeepsTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	ctx := context.Background()

	idx, err := OpenSQLiteVec(path, Options{Dimension: testDim, Model: "m1"})
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(ctx, entry(1, "S", "P", 1, 0, 0, 0)))
	require.NoError(t, idx.Close())

	reopened, err := OpenSQLiteVec(path, Options{Dimension: testDim, Model: "m2"})
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.NeedsRebuild)
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, "sqlitevec", stats.Backend)
}
