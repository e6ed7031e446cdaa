package vectorindex

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

var bucketMeta = []byte("surgrag_meta")

// Options configures a persistent index.
type Options struct {
	Collection string
	Dimension  int
	Model      string
	Logger     *zap.Logger
}

func (o *Options) defaults() {
	if o.Collection == "" {
		o.Collection = "medical_reports"
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// BoltIndex persists entries in a bbolt bucket named after the collection
// and serves queries from an in-memory MemoryIndex loaded at open.
type BoltIndex struct {
	db     *bbolt.DB
	ownsDB bool
	bucket []byte
	opts   Options
	logger *zap.Logger

	mu        sync.Mutex // serializes writes so disk and cache apply in the same order
	cache     *MemoryIndex
	migration MigrationResult
}

type storedEntry struct {
	Vector   []float32       `json:"v"`
	Document string          `json:"d"`
	Metadata domain.Metadata `json:"m"`
}

// OpenBolt opens (or creates) the bbolt file at path.
func OpenBolt(path string, opts Options) (*BoltIndex, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "open bolt index",
			surgerr.Field("path", path))
	}
	idx, err := NewBoltIndex(db, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	idx.ownsDB = true
	return idx, nil
}

// NewBoltIndex uses an already opened db. The caller keeps ownership of db.
func NewBoltIndex(db *bbolt.DB, opts Options) (*BoltIndex, error) {
	opts.defaults()
	idx := &BoltIndex{
		db:     db,
		bucket: []byte(opts.Collection),
		opts:   opts,
		logger: opts.Logger.With(zap.String("collection", opts.Collection), zap.String("backend", "bolt")),
		cache:  NewMemoryIndex(opts.Collection, opts.Dimension),
	}

	current := idx.currentMeta()
	err := db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(idx.bucket); err != nil {
			return err
		}

		var stored *CollectionMeta
		if raw := meta.Get(idx.bucket); raw != nil {
			stored = &CollectionMeta{}
			if err := json.Unmarshal(raw, stored); err != nil {
				stored.SchemaVersion = 0
			}
		}
		idx.migration = CheckMeta(stored, current)
		if stored == nil {
			return putMeta(meta, idx.bucket, current)
		}
		return nil
	})
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "initialize bolt collection",
			surgerr.FieldCollection(opts.Collection))
	}

	if idx.migration.NeedsRebuild {
		idx.logger.Warn("collection needs rebuild", zap.String("reason", idx.migration.Reason))
	}
	if !idx.migration.DimensionMismatch {
		if err := idx.load(); err != nil {
			return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "load bolt collection",
				surgerr.FieldCollection(opts.Collection))
		}
	}
	return idx, nil
}

func (b *BoltIndex) currentMeta() CollectionMeta {
	return CollectionMeta{SchemaVersion: SchemaVersion, Model: b.opts.Model, Dimension: b.opts.Dimension}
}

func putMeta(bucket *bbolt.Bucket, key []byte, meta CollectionMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return bucket.Put(key, data)
}

// load reads every stored entry into the cache.
func (b *BoltIndex) load() error {
	var entries []domain.IndexEntry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var stored storedEntry
			if err := json.Unmarshal(v, &stored); err != nil || len(k) != 8 {
				b.logger.Warn("skipping corrupted entry", zap.ByteString("key", k))
				return nil
			}
			if len(stored.Vector) != b.opts.Dimension {
				b.logger.Warn("skipping entry with foreign dimension",
					zap.Int64("id", decodeID(k)), zap.Int("dimension", len(stored.Vector)))
				return nil
			}
			entries = append(entries, domain.IndexEntry{
				ID:        decodeID(k),
				Embedding: stored.Vector,
				Document:  stored.Document,
				Metadata:  stored.Metadata,
			})
			return nil
		})
	})
	if err != nil {
		return err
	}
	return b.cache.UpsertBatch(context.Background(), entries)
}

func (b *BoltIndex) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	return b.UpsertBatch(ctx, []domain.IndexEntry{entry})
}

// UpsertBatch commits the whole batch in one bolt transaction, then applies
// it to the cache.
func (b *BoltIndex) UpsertBatch(ctx context.Context, entries []domain.IndexEntry) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "upsert cancelled")
	}
	if err := b.writable(); err != nil {
		return err
	}
	for _, e := range entries {
		if err := checkDimension(len(e.Embedding), b.opts.Dimension, "entry"); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return bbolt.ErrBucketNotFound
		}
		for _, e := range entries {
			data, err := json.Marshal(storedEntry{Vector: e.Embedding, Document: e.Document, Metadata: e.Metadata})
			if err != nil {
				return err
			}
			if err := bucket.Put(encodeID(e.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "write entries",
			surgerr.FieldCollection(b.opts.Collection), surgerr.Field("entries", len(entries)))
	}
	return b.cache.UpsertBatch(ctx, entries)
}

func (b *BoltIndex) Delete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return unavailable(err, "delete cancelled")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.Delete(encodeID(id))
	})
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "delete entry",
			surgerr.FieldCollection(b.opts.Collection), surgerr.FieldRecordID(id))
	}
	return b.cache.Delete(ctx, id)
}

func (b *BoltIndex) Query(ctx context.Context, embedding []float32, k int, filter domain.Filter) ([]domain.Match, error) {
	if err := b.writable(); err != nil {
		return nil, err
	}
	return b.cache.Query(ctx, embedding, k, filter)
}

// Count reads the bucket so it stays correct for collections that could not be loaded.
func (b *BoltIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := b.db.View(func(tx *bbolt.Tx) error {
		if bucket := tx.Bucket(b.bucket); bucket != nil {
			n = bucket.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return 0, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "count entries",
			surgerr.FieldCollection(b.opts.Collection))
	}
	return n, nil
}

// DropAndRecreate deletes the collection bucket and rewrites its meta for the
// current encoder, clearing any pending rebuild state.
func (b *BoltIndex) DropAndRecreate(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(b.bucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		if _, err := tx.CreateBucket(b.bucket); err != nil {
			return err
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		return putMeta(meta, b.bucket, b.currentMeta())
	})
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "recreate collection",
			surgerr.FieldCollection(b.opts.Collection))
	}

	b.migration = MigrationResult{}
	return b.cache.DropAndRecreate(ctx)
}

func (b *BoltIndex) Dimension() int {
	return b.opts.Dimension
}

// Migration reports how the stored collection relates to the running encoder.
func (b *BoltIndex) Migration() MigrationResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.migration
}

func (b *BoltIndex) Stats(ctx context.Context) (domain.CollectionStats, error) {
	n, err := b.Count(ctx)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	m := b.Migration()
	return domain.CollectionStats{
		TotalDocuments: n,
		Collection:     b.opts.Collection,
		EmbeddingModel: b.opts.Model,
		Backend:        "bolt",
		Location:       b.db.Path(),
		NeedsRebuild:   m.NeedsRebuild,
		RebuildReason:  m.Reason,
	}, nil
}

func (b *BoltIndex) Close() error {
	_ = b.cache.Close()
	if !b.ownsDB {
		return nil
	}
	if err := b.db.Close(); err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "close bolt index")
	}
	return nil
}

func (b *BoltIndex) writable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.migration.DimensionMismatch {
		return surgerr.New(surgerr.CodeIndexDimensionMismatch,
			"collection was built with a different dimension; rebuild required",
			surgerr.FieldCollection(b.opts.Collection), surgerr.Field("reason", b.migration.Reason))
	}
	return nil
}

func encodeID(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func decodeID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key))
}
