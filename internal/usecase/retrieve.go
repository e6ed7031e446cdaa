package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"surgrag/internal/domain"
	"surgrag/internal/port"
	surgerr "surgrag/pkg/errors"
)

// MatchCache caches query results. Implementations return copies.
// Put must discard results whose generation is no longer current.
type MatchCache interface {
	Get(query string, topK int, filter string) ([]domain.Match, bool)
	Put(query string, topK int, filter string, gen uint64, results []domain.Match)
	Generation() uint64
}

// QueryEngine answers similarity queries against the vector index.
type QueryEngine struct {
	index   port.VectorIndex
	encoder port.Encoder
	cache   MatchCache
	logger  *zap.Logger
}

type QueryOption func(*QueryEngine)

func WithCache(cache MatchCache) QueryOption {
	return func(q *QueryEngine) {
		q.cache = cache
	}
}

func WithQueryLogger(logger *zap.Logger) QueryOption {
	return func(q *QueryEngine) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// NewQueryEngine creates a new query engine.
func NewQueryEngine(index port.VectorIndex, encoder port.Encoder, opts ...QueryOption) *QueryEngine {
	q := &QueryEngine{
		index:   index,
		encoder: encoder,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Retrieve returns the documents of the k nearest matches, nearest first.
func (q *QueryEngine) Retrieve(ctx context.Context, query string, k int, filters domain.Filters) ([]string, error) {
	matches, err := q.RetrieveMatches(ctx, query, k, filters)
	if err != nil {
		return nil, err
	}
	docs := make([]string, len(matches))
	for i, m := range matches {
		docs[i] = m.Document
	}
	return docs, nil
}

// RetrieveMatches is Retrieve with ids and distances.
func (q *QueryEngine) RetrieveMatches(ctx context.Context, query string, k int, filters domain.Filters) ([]domain.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, surgerr.New(surgerr.CodeQueryInputEmpty, "query is empty")
	}
	if k <= 0 {
		return nil, surgerr.New(surgerr.CodeQueryInputInvalid, "k must be positive", surgerr.Field("k", k))
	}

	filter := filters.Expr()
	key := domain.FilterKey(filter)
	var gen uint64
	if q.cache != nil {
		gen = q.cache.Generation()
		if cached, ok := q.cache.Get(query, k, key); ok {
			q.logger.Debug("query cache hit", zap.Int("k", k), zap.String("filter", key))
			return cached, nil
		}
	}

	vec, err := q.encoder.Encode(ctx, query)
	if err != nil {
		return nil, err
	}
	matches, err := q.index.Query(ctx, vec, k, filter)
	if err != nil {
		return nil, err
	}
	if matches == nil {
		matches = []domain.Match{}
	}

	if q.cache != nil {
		q.cache.Put(query, k, key, gen, matches)
	}
	q.logger.Debug("query", zap.Int("k", k), zap.String("filter", key), zap.Int("matches", len(matches)))
	return matches, nil
}
