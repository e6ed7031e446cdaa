package cli

import (
	"time"

	"go.uber.org/zap"

	"surgrag/config"
	"surgrag/internal/adapter/cache"
	"surgrag/internal/adapter/embedding"
	"surgrag/internal/adapter/recordstore"
	"surgrag/internal/adapter/vectorindex"
	"surgrag/internal/port"
	"surgrag/internal/usecase"
	surgerr "surgrag/pkg/errors"
)

// app holds the components a command works with.
type app struct {
	cfg       *config.Config
	store     port.RecordStore
	index     port.VectorIndex
	encoder   port.Encoder
	cache     *cache.QueryCache
	sync      *usecase.SyncCoordinator
	engine    *usecase.QueryEngine
	ingestor  *usecase.Ingestor
	assembler *usecase.ContextAssembler
	indexPath string
}

// openApp opens the record store and the vector index under the root dir and
// wires the use cases on top of them.
func openApp() (*app, error) {
	cfg := GetConfig()
	dir := GetRootDir()

	if err := config.EnsureDataDir(dir); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeCLISetupFailure, "failed to create data directory")
	}

	encoder, err := embedding.New(cfg.Embedding, logger.Named("embedding"))
	if err != nil {
		return nil, err
	}

	st, err := recordstore.OpenSQLite(config.ResolvePath(dir, cfg.Records.Path), logger.Named("store"))
	if err != nil {
		return nil, err
	}

	indexPath := config.ResolvePath(dir, cfg.Index.Path)
	idx, err := vectorindex.Open(cfg.Index, indexPath, encoder, logger.Named("index"))
	if err != nil {
		st.Close()
		return nil, err
	}
	if m := vectorindex.MigrationOf(idx); m.NeedsRebuild {
		logger.Warn("index needs rebuild", zap.String("reason", m.Reason))
	}

	qc := cache.NewQueryCache(cfg.Retrieve.CacheSize, time.Duration(cfg.Retrieve.CacheTTLSecs)*time.Second)
	coord, err := usecase.NewSyncCoordinator(idx, encoder, st,
		usecase.WithBatchSize(cfg.Index.BatchSize),
		usecase.WithPageSize(cfg.Index.PageSize),
		usecase.WithSyncLogger(logger.Named("sync")),
		usecase.WithWriteHook(qc.Invalidate),
	)
	if err != nil {
		idx.Close()
		st.Close()
		return nil, err
	}
	engine := usecase.NewQueryEngine(idx, encoder,
		usecase.WithCache(qc),
		usecase.WithQueryLogger(logger.Named("query")),
	)

	return &app{
		cfg:       cfg,
		store:     st,
		index:     idx,
		encoder:   encoder,
		cache:     qc,
		sync:      coord,
		engine:    engine,
		ingestor:  usecase.NewIngestor(st, coord, logger.Named("ingest")),
		assembler: usecase.NewContextAssembler(engine, cfg.Context.MaxChars),
		indexPath: indexPath,
	}, nil
}

func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		logger.Warn("failed to close index", zap.Error(err))
	}
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close record store", zap.Error(err))
	}
}
