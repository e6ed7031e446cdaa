package usecase

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"surgrag/internal/domain"
	"surgrag/internal/port"
	surgerr "surgrag/pkg/errors"
)

const (
	DefaultBatchSize = 100
	DefaultPageSize  = 500
)

// ProgressFunc is called after every flushed batch with the number of
// records processed so far and the total when known (0 otherwise).
type ProgressFunc func(processed, total int)

// SyncCoordinator keeps the vector index in step with the record store.
//
// Single-record propagation takes the read side of mu and a rebuild takes the
// write side, so inserts and deletes for different ids run in parallel while a
// rebuild has the index to itself.
type SyncCoordinator struct {
	index     port.VectorIndex
	encoder   port.Encoder
	records   port.RecordSource
	batchSize int
	pageSize  int
	logger    *zap.Logger
	onWrite   func()

	mu    sync.RWMutex
	batch []domain.IndexEntry // reused across flushes, guarded by mu write side
}

type SyncOption func(*SyncCoordinator)

func WithBatchSize(n int) SyncOption {
	return func(c *SyncCoordinator) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func WithPageSize(n int) SyncOption {
	return func(c *SyncCoordinator) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithSyncLogger(logger *zap.Logger) SyncOption {
	return func(c *SyncCoordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithWriteHook registers fn to run after every index write attempt,
// successful or not. The query cache uses it to invalidate.
func WithWriteHook(fn func()) SyncOption {
	return func(c *SyncCoordinator) {
		c.onWrite = fn
	}
}

// NewSyncCoordinator wires the coordinator. The encoder and index must agree
// on the embedding dimension.
func NewSyncCoordinator(index port.VectorIndex, encoder port.Encoder, records port.RecordSource, opts ...SyncOption) (*SyncCoordinator, error) {
	if index.Dimension() != encoder.Dimension() {
		return nil, surgerr.New(surgerr.CodeIndexDimensionMismatch,
			"encoder and index disagree on embedding dimension",
			surgerr.Field("encoder", encoder.Dimension()), surgerr.Field("index", index.Dimension()))
	}
	c := &SyncCoordinator{
		index:     index,
		encoder:   encoder,
		records:   records,
		batchSize: DefaultBatchSize,
		pageSize:  DefaultPageSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.batch = make([]domain.IndexEntry, 0, c.batchSize)
	return c, nil
}

// OnRecordAdded indexes rec. Records whose trimmed text is empty are not
// indexed and report indexed=false without error.
func (c *SyncCoordinator) OnRecordAdded(ctx context.Context, rec domain.Record) (bool, error) {
	if !rec.Indexable() {
		c.logger.Debug("skipping record without text", zap.Int64("id", rec.ID))
		return false, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, err := c.encode(ctx, rec)
	if err != nil {
		return false, err
	}

	err = c.index.Upsert(ctx, entry)
	c.wrote()
	if err != nil {
		c.logger.Warn("index upsert failed", zap.Int64("id", rec.ID), zap.Error(err))
		return false, err
	}
	return true, nil
}

// OnRecordDeleted removes id from the index. An id that was never indexed
// is not an error.
func (c *SyncCoordinator) OnRecordDeleted(ctx context.Context, id int64) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	err := c.index.Delete(ctx, id)
	c.wrote()
	if err != nil {
		c.logger.Warn("index delete failed", zap.Int64("id", id), zap.Error(err))
		return err
	}
	return nil
}

// Rebuild drops the collection and re-indexes every record in the store.
// On failure the index is left partially populated and the returned error
// reports RebuildInterrupted wrapping the cause; the stats describe what was
// flushed before the failure.
func (c *SyncCoordinator) Rebuild(ctx context.Context, progress ProgressFunc) (domain.RebuildStats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	defer c.wrote()

	stats := domain.NewRebuildStats()
	interrupted := func(err error, stage string, fields ...surgerr.Attr) (domain.RebuildStats, error) {
		c.batch = c.batch[:0]
		c.logger.Error("rebuild interrupted", zap.String("stage", stage),
			zap.Int("indexed", stats.Indexed), zap.Error(err))
		fields = append(fields, surgerr.Field("stage", stage), surgerr.Field("indexed", stats.Indexed))
		return stats, surgerr.Mark(err, surgerr.CodeSyncRebuildInterrupted, "rebuild interrupted during "+stage, fields...)
	}

	if err := c.index.DropAndRecreate(ctx); err != nil {
		return interrupted(err, "drop")
	}

	total := 0
	if counter, ok := c.records.(port.RecordCounter); ok {
		if n, err := counter.Count(ctx); err == nil {
			total = n
		}
	}

	seen := make(map[int64]struct{})
	processed := 0
	flush := func() error {
		if len(c.batch) == 0 {
			return nil
		}
		if err := c.index.UpsertBatch(ctx, c.batch); err != nil {
			return err
		}
		for _, e := range c.batch {
			stats.Indexed++
			stats.BySpecialty[e.Metadata.Specialty]++
			stats.ByProcedureType[e.Metadata.ProcedureType]++
		}
		c.batch = c.batch[:0]
		if progress != nil {
			progress(processed, total)
		}
		return nil
	}

	for offset := 0; ; {
		if err := ctx.Err(); err != nil {
			return interrupted(err, "enumerate")
		}
		page, err := c.records.ListRecords(ctx, c.pageSize, offset)
		if err != nil {
			return interrupted(err, "enumerate")
		}
		offset += len(page)

		for _, rec := range page {
			if _, dup := seen[rec.ID]; dup {
				continue
			}
			seen[rec.ID] = struct{}{}
			stats.Total++
			processed++

			if !rec.Indexable() {
				stats.Skipped++
				continue
			}
			entry, err := c.encode(ctx, rec)
			if err != nil {
				return interrupted(err, "encode", surgerr.FieldRecordID(rec.ID))
			}
			c.batch = append(c.batch, entry)
			if len(c.batch) >= c.batchSize {
				if err := flush(); err != nil {
					return interrupted(err, "write")
				}
			}
		}

		if len(page) < c.pageSize {
			break
		}
	}

	if err := flush(); err != nil {
		return interrupted(err, "write")
	}
	if progress != nil {
		progress(processed, total)
	}

	c.logger.Info("rebuild complete",
		zap.Int("total", stats.Total), zap.Int("indexed", stats.Indexed), zap.Int("skipped", stats.Skipped))
	return stats, nil
}

func (c *SyncCoordinator) encode(ctx context.Context, rec domain.Record) (domain.IndexEntry, error) {
	vec, err := c.encoder.Encode(ctx, rec.Text)
	if err != nil {
		return domain.IndexEntry{}, err
	}
	return domain.IndexEntry{
		ID:        rec.ID,
		Embedding: vec,
		Metadata:  rec.Metadata(),
		Document:  rec.Text,
	}, nil
}

func (c *SyncCoordinator) wrote() {
	if c.onWrite != nil {
		c.onWrite()
	}
}
