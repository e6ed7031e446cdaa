package port

import (
	"context"

	"surgrag/internal/domain"
)

// RecordSource is the read side of the record store used by rebuilds.
type RecordSource interface {
	// ListRecords returns one page of records in a stable order.
	ListRecords(ctx context.Context, pageSize, offset int) ([]domain.Record, error)

	// GetRecord returns the record for id and whether it exists.
	GetRecord(ctx context.Context, id int64) (domain.Record, bool, error)
}

// RecordCounter is implemented by sources that know their size up front.
type RecordCounter interface {
	Count(ctx context.Context) (int, error)
}

// RecordStore is the authoritative report store.
type RecordStore interface {
	RecordSource
	RecordCounter

	AddReport(ctx context.Context, report domain.NewReport) (int64, error)
	GetReport(ctx context.Context, id int64) (domain.Report, bool, error)
	DeleteReport(ctx context.Context, id int64) (bool, error)
	SearchReports(ctx context.Context, q domain.ReportQuery) ([]domain.Report, error)
	CountBySource(ctx context.Context) (map[string]int, error)
	Close() error
}
