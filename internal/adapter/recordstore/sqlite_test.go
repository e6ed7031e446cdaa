package recordstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "reports.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s *SQLiteStore) []int64 {
	t.Helper()
	ctx := context.Background()
	reports := []domain.NewReport{
		{ProcedureType: "Laparoscopic Cholecystectomy", Specialty: "General Surgery", ReportText: "gallbladder removed",
			Keywords: "gallbladder, laparoscopic", Source: "MTSamples/Kaggle", IsDeidentified: true},
		{ProcedureType: "Colonoscopy", Specialty: "Gastroenterology", ReportText: "cecum reached",
			Keywords: "colon, polyp", Source: "MTSamples/Kaggle", IsDeidentified: true},
		{ProcedureType: "EGD", Specialty: "Gastroenterology", ReportText: "mild gastritis",
			Source: "Bulk Import", IsDeidentified: true},
	}
	ids := make([]int64, len(reports))
	for i, r := range reports {
		id, err := s.AddReport(ctx, r)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestSQLiteStore_AddAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seed(t, s)

	assert.Equal(t, []int64{1, 2, 3}, ids)

	r, ok, err := s.GetReport(ctx, ids[0])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Laparoscopic Cholecystectomy", r.ProcedureType)
	assert.Equal(t, "gallbladder, laparoscopic", r.Keywords)
	assert.True(t, r.IsDeidentified)
	assert.False(t, r.AddedAt.IsZero())
	assert.Empty(t, r.ReportName)

	rec, ok, err := s.GetRecord(ctx, ids[1])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.Record{ID: 2, Text: "cecum reached", ProcedureType: "Colonoscopy", Specialty: "Gastroenterology"}, rec)

	_, ok, err = s.GetReport(ctx, 999)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteStore_ListRecordsPages(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s)

	first, err := s.ListRecords(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, int64(1), first[0].ID)

	second, err := s.ListRecords(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, int64(3), second[0].ID)

	empty, err := s.ListRecords(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.ListRecords(ctx, 0, 0)
	assert.Equal(t, surgerr.CodeStoreInputInvalid, surgerr.CodeOf(err))
}

func TestSQLiteStore_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ids := seed(t, s)

	deleted, err := s.DeleteReport(ctx, ids[1])
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteReport(ctx, ids[1])
	require.NoError(t, err)
	assert.False(t, deleted)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSQLiteStore_SearchReports(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	seed(t, s)

	tests := []struct {
		name string
		q    domain.ReportQuery
		want []int64
	}{
		{"all", domain.ReportQuery{}, []int64{1, 2, 3}},
		{"specialty substring", domain.ReportQuery{Specialty: "gastro"}, []int64{2, 3}},
		{"procedure", domain.ReportQuery{ProcedureType: "Cholecyst"}, []int64{1}},
		{"keyword", domain.ReportQuery{Keyword: "polyp"}, []int64{2}},
		{"source exact", domain.ReportQuery{Source: "Bulk Import"}, []int64{3}},
		{"source is not substring", domain.ReportQuery{Source: "Bulk"}, nil},
		{"combined", domain.ReportQuery{Specialty: "Gastro", Source: "MTSamples/Kaggle"}, []int64{2}},
		{"limit", domain.ReportQuery{Limit: 1}, []int64{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SearchReports(ctx, tt.q)
			require.NoError(t, err)
			var ids []int64
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestSQLiteStore_CountBySource(t *testing.T) {
	s := openTestStore(t)
	seed(t, s)

	counts, err := s.CountBySource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"MTSamples/Kaggle": 2, "Bulk Import": 1}, counts)
}

func TestSQLiteStore_ClosedFails(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "reports.db"), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.AddReport(context.Background(), domain.NewReport{ReportText: "x"})
	assert.Equal(t, surgerr.CodeStoreDatabaseFailure, surgerr.CodeOf(err))
}
