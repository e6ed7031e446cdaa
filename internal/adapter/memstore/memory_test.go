package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surgrag/internal/domain"
)

func TestMemoryStore_Lifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id1, err := s.AddReport(ctx, domain.NewReport{ReportText: "a", Specialty: "Urology", Source: "manual"})
	require.NoError(t, err)
	id2, err := s.AddReport(ctx, domain.NewReport{ReportText: "b", Specialty: "Neurosurgery", Source: "csv"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)
	assert.Equal(t, int64(2), id2)

	s.Put(domain.Report{ID: 10, ReportText: "c", Source: "csv"})
	id3, err := s.AddReport(ctx, domain.NewReport{ReportText: "d"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), id3)

	page, err := s.ListRecords(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(2), page[0].ID)
	assert.Equal(t, int64(10), page[1].ID)

	found, err := s.SearchReports(ctx, domain.ReportQuery{Specialty: "uro"})
	require.NoError(t, err)
	require.Len(t, found, 2, "substring match, like the SQLite store")

	found, err = s.SearchReports(ctx, domain.ReportQuery{Specialty: "urol"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, id1, found[0].ID)

	counts, err := s.CountBySource(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts["csv"])

	deleted, err := s.DeleteReport(ctx, id1)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = s.DeleteReport(ctx, id1)
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
