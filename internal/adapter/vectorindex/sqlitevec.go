package vectorindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"sync"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"surgrag/internal/domain"
	surgerr "surgrag/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// largest k vec0 accepts in a KNN query
const knnLimit = 4096

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// metadata columns of the vec0 table usable in KNN constraints
var knnColumns = map[string]string{
	domain.FieldSpecialty:     "specialty",
	domain.FieldProcedureType: "procedure_type",
}

// SQLiteVecIndex stores the collection in a sqlite-vec vec0 virtual table
// with cosine distance and filterable metadata columns.
type SQLiteVecIndex struct {
	db     *sql.DB
	path   string
	table  string
	opts   Options
	logger *zap.Logger

	mu        sync.RWMutex
	migration MigrationResult
}

// OpenSQLiteVec opens (or creates) the database at path and the collection table.
func OpenSQLiteVec(path string, opts Options) (*SQLiteVecIndex, error) {
	opts.defaults()
	if !identifierPattern.MatchString(opts.Collection) {
		return nil, surgerr.New(surgerr.CodeIndexConfigInvalid,
			"collection name must be a plain identifier", surgerr.FieldCollection(opts.Collection))
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "open sqlite-vec index",
			surgerr.Field("path", path))
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "ping sqlite-vec index",
			surgerr.Field("path", path))
	}

	idx := &SQLiteVecIndex{
		db:     db,
		path:   path,
		table:  opts.Collection,
		opts:   opts,
		logger: opts.Logger.With(zap.String("collection", opts.Collection), zap.String("backend", "sqlitevec")),
	}
	if err := idx.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "initialize sqlite-vec collection",
			surgerr.FieldCollection(opts.Collection))
	}
	if idx.migration.NeedsRebuild {
		idx.logger.Warn("collection needs rebuild", zap.String("reason", idx.migration.Reason))
	}
	return idx, nil
}

const collectionsDDL = `
CREATE TABLE IF NOT EXISTS surgrag_collections (
	name           TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	model          TEXT NOT NULL,
	dimension      INTEGER NOT NULL
)`

func (s *SQLiteVecIndex) tableDDL() string {
	return fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
	record_id integer primary key,
	embedding float[%d] distance_metric=cosine,
	specialty text,
	procedure_type text,
	+document text
)`, s.table, s.opts.Dimension)
}

func (s *SQLiteVecIndex) currentMeta() CollectionMeta {
	return CollectionMeta{SchemaVersion: SchemaVersion, Model: s.opts.Model, Dimension: s.opts.Dimension}
}

func (s *SQLiteVecIndex) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, collectionsDDL); err != nil {
		return fmt.Errorf("creating collections table: %w", err)
	}

	var stored CollectionMeta
	err := s.db.QueryRowContext(ctx,
		`SELECT schema_version, model, dimension FROM surgrag_collections WHERE name = ?`, s.table,
	).Scan(&stored.SchemaVersion, &stored.Model, &stored.Dimension)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.ExecContext(ctx, s.tableDDL()); err != nil {
			return fmt.Errorf("creating vec0 table: %w", err)
		}
		return s.writeMeta(ctx, s.db)
	case err != nil:
		return fmt.Errorf("reading collection meta: %w", err)
	}

	s.migration = CheckMeta(&stored, s.currentMeta())
	if s.migration.DimensionMismatch {
		// the existing table has the old width; leave it until DropAndRecreate
		return nil
	}
	if _, err := s.db.ExecContext(ctx, s.tableDDL()); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteVecIndex) writeMeta(ctx context.Context, db execer) error {
	m := s.currentMeta()
	_, err := db.ExecContext(ctx, `
INSERT INTO surgrag_collections (name, schema_version, model, dimension) VALUES (?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET schema_version = excluded.schema_version, model = excluded.model, dimension = excluded.dimension`,
		s.table, m.SchemaVersion, m.Model, m.Dimension)
	if err != nil {
		return fmt.Errorf("writing collection meta: %w", err)
	}
	return nil
}

func (s *SQLiteVecIndex) Upsert(ctx context.Context, entry domain.IndexEntry) error {
	return s.UpsertBatch(ctx, []domain.IndexEntry{entry})
}

// UpsertBatch writes the batch in one transaction. vec0 has no ON CONFLICT,
// so each entry is deleted before it is inserted.
func (s *SQLiteVecIndex) UpsertBatch(ctx context.Context, entries []domain.IndexEntry) error {
	if err := s.writable(); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	blobs := make([][]byte, len(entries))
	for i, e := range entries {
		if err := checkDimension(len(e.Embedding), s.opts.Dimension, "entry"); err != nil {
			return err
		}
		blob, err := sqlite_vec.SerializeFloat32(e.Embedding)
		if err != nil {
			return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "serialize embedding",
				surgerr.FieldRecordID(e.ID))
		}
		blobs[i] = blob
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		del := fmt.Sprintf(`DELETE FROM %s WHERE record_id = ?`, s.table)
		ins := fmt.Sprintf(`INSERT INTO %s (record_id, embedding, specialty, procedure_type, document) VALUES (?, ?, ?, ?, ?)`, s.table)
		for i, e := range entries {
			if _, err := tx.ExecContext(ctx, del, e.ID); err != nil {
				return fmt.Errorf("deleting %d: %w", e.ID, err)
			}
			if _, err := tx.ExecContext(ctx, ins, e.ID, blobs[i], e.Metadata.Specialty, e.Metadata.ProcedureType, e.Document); err != nil {
				return fmt.Errorf("inserting %d: %w", e.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "write entries",
			surgerr.FieldCollection(s.table), surgerr.Field("entries", len(entries)))
	}
	return nil
}

func (s *SQLiteVecIndex) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE record_id = ?`, s.table), id)
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "delete entry",
			surgerr.FieldCollection(s.table), surgerr.FieldRecordID(id))
	}
	return nil
}

// Query pushes specialty and procedure_type equality into the KNN search.
// Any other condition falls back to a full scan with exact distances.
func (s *SQLiteVecIndex) Query(ctx context.Context, embedding []float32, k int, filter domain.Filter) ([]domain.Match, error) {
	if err := s.writable(); err != nil {
		return nil, err
	}
	if err := checkDimension(len(embedding), s.opts.Dimension, "query"); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.Match{}, nil
	}
	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "serialize query")
	}

	var conds []domain.Condition
	if filter != nil {
		conds = filter.Conditions()
	}

	if pushdown(conds) {
		return s.knn(ctx, blob, k, conds)
	}

	var where []string
	args := []any{blob}
	for _, c := range conds {
		col, value, ok := scanCondition(c)
		if !ok {
			return []domain.Match{}, nil
		}
		where = append(where, col+" = ?")
		args = append(args, value)
	}
	args = append(args, k)
	query := fmt.Sprintf(`SELECT record_id, document, COALESCE(vec_distance_cosine(embedding, ?), 1.0) AS distance FROM %s
WHERE %s
ORDER BY distance, record_id LIMIT ?`, s.table, strings.Join(where, " AND "))

	matches, err := s.queryMatches(ctx, k, query, args...)
	if err != nil {
		return nil, err
	}
	return topK(matches, k), nil
}

// knn runs the vec0 KNN search. vec0 orders by distance only, so entries
// tied with the k-th match may be cut arbitrarily; the window is widened
// until the match after the k-th is strictly farther, then re-sorted by id.
func (s *SQLiteVecIndex) knn(ctx context.Context, blob []byte, k int, conds []domain.Condition) ([]domain.Match, error) {
	var where strings.Builder
	for _, c := range conds {
		fmt.Fprintf(&where, " AND %s = ?", knnColumns[c.Field])
	}
	query := fmt.Sprintf(`SELECT record_id, document, distance FROM %s
WHERE embedding MATCH ? AND k = ?%s
ORDER BY distance`, s.table, where.String())

	fetch := min(k+1, knnLimit)
	for {
		args := []any{blob, fetch}
		for _, c := range conds {
			args = append(args, c.Value)
		}
		matches, err := s.queryMatches(ctx, fetch, query, args...)
		if err != nil {
			return nil, err
		}
		sortMatches(matches)
		if len(matches) < fetch || fetch <= k || fetch == knnLimit ||
			matches[fetch-1].Distance > matches[k-1].Distance {
			return topK(matches, k), nil
		}
		fetch = min(fetch*2, knnLimit)
	}
}

func (s *SQLiteVecIndex) queryMatches(ctx context.Context, capacity int, query string, args ...any) ([]domain.Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "query collection",
			surgerr.FieldCollection(s.table))
	}
	defer rows.Close()

	matches := make([]domain.Match, 0, capacity)
	for rows.Next() {
		var (
			m        domain.Match
			doc      sql.NullString
			distance sql.NullFloat64
		)
		if err := rows.Scan(&m.ID, &doc, &distance); err != nil {
			return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "scan match")
		}
		m.Document = doc.String
		// NULL for zero-norm vectors; same as cosineDistance.
		m.Distance = 1
		if distance.Valid && !math.IsNaN(distance.Float64) {
			m.Distance = distance.Float64
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "iterate matches")
	}
	return matches, nil
}

func pushdown(conds []domain.Condition) bool {
	for _, c := range conds {
		if _, ok := knnColumns[c.Field]; !ok {
			return false
		}
	}
	return true
}

// scanCondition maps a condition onto a column and a typed argument.
// Conditions that can never match report ok=false.
func scanCondition(c domain.Condition) (string, any, bool) {
	if c.Field == domain.FieldRecordID {
		id, err := strconv.ParseInt(c.Value, 10, 64)
		if err != nil {
			return "", nil, false
		}
		return "record_id", id, true
	}
	col, ok := knnColumns[c.Field]
	return col, c.Value, ok
}

func (s *SQLiteVecIndex) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "count entries",
			surgerr.FieldCollection(s.table))
	}
	return n, nil
}

func (s *SQLiteVecIndex) DropAndRecreate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.table)); err != nil {
			return fmt.Errorf("dropping vec0 table: %w", err)
		}
		if _, err := tx.ExecContext(ctx, s.tableDDL()); err != nil {
			return fmt.Errorf("creating vec0 table: %w", err)
		}
		return s.writeMeta(ctx, tx)
	})
	if err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "recreate collection",
			surgerr.FieldCollection(s.table))
	}
	s.migration = MigrationResult{}
	return nil
}

func (s *SQLiteVecIndex) Dimension() int {
	return s.opts.Dimension
}

func (s *SQLiteVecIndex) Migration() MigrationResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.migration
}

func (s *SQLiteVecIndex) Stats(ctx context.Context) (domain.CollectionStats, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return domain.CollectionStats{}, err
	}
	m := s.Migration()
	return domain.CollectionStats{
		TotalDocuments: n,
		Collection:     s.table,
		EmbeddingModel: s.opts.Model,
		Backend:        "sqlitevec",
		Location:       s.path,
		NeedsRebuild:   m.NeedsRebuild,
		RebuildReason:  m.Reason,
	}, nil
}

func (s *SQLiteVecIndex) Close() error {
	if err := s.db.Close(); err != nil {
		return surgerr.Wrap(err, surgerr.CodeIndexBackendUnavailable, "close sqlite-vec index")
	}
	return nil
}

func (s *SQLiteVecIndex) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLiteVecIndex) mismatched() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.migration.DimensionMismatch
}

func (s *SQLiteVecIndex) writable() error {
	if !s.mismatched() {
		return nil
	}
	m := s.Migration()
	return surgerr.New(surgerr.CodeIndexDimensionMismatch,
		"collection was built with a different dimension; rebuild required",
		surgerr.FieldCollection(s.table), surgerr.Field("reason", m.Reason))
}
