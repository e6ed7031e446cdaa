package usecase

import (
	"context"

	"go.uber.org/zap"

	"surgrag/internal/domain"
	"surgrag/internal/port"
	surgerr "surgrag/pkg/errors"
)

// Ingestor writes reports to the record store and propagates each write to
// the index. The store write is authoritative: when the index half fails the
// store change stands and a DriftDetected error is returned.
type Ingestor struct {
	store  port.RecordStore
	sync   *SyncCoordinator
	logger *zap.Logger
}

func NewIngestor(store port.RecordStore, sync *SyncCoordinator, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{store: store, sync: sync, logger: logger}
}

// AddResult reports what happened to a stored report.
type AddResult struct {
	ID      int64 `json:"id"`
	Indexed bool  `json:"indexed"`
}

// Add stores the report and indexes it. On drift the result still carries
// the store-assigned id.
func (i *Ingestor) Add(ctx context.Context, report domain.NewReport) (AddResult, error) {
	id, err := i.store.AddReport(ctx, report)
	if err != nil {
		return AddResult{}, err
	}

	rec := domain.Record{
		ID:            id,
		Text:          report.ReportText,
		ProcedureType: report.ProcedureType,
		Specialty:     report.Specialty,
	}
	indexed, err := i.sync.OnRecordAdded(ctx, rec)
	if err != nil {
		i.logger.Warn("record stored but not indexed, rebuild required", zap.Int64("id", id), zap.Error(err))
		return AddResult{ID: id}, surgerr.Mark(err, surgerr.CodeSyncIndexDrift,
			"record stored but index update failed", surgerr.FieldRecordID(id))
	}
	return AddResult{ID: id, Indexed: indexed}, nil
}

// Delete removes the report from the store and the index. The index delete
// runs even when the store had no such record, clearing any stale entry.
func (i *Ingestor) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := i.store.DeleteReport(ctx, id)
	if err != nil {
		return false, err
	}
	if err := i.sync.OnRecordDeleted(ctx, id); err != nil {
		i.logger.Warn("record deleted but index entry remains, rebuild required", zap.Int64("id", id), zap.Error(err))
		return deleted, surgerr.Mark(err, surgerr.CodeSyncIndexDrift,
			"record deleted but index update failed", surgerr.FieldRecordID(id))
	}
	return deleted, nil
}
