package port

import (
	"context"

	"surgrag/internal/domain"
)

// VectorIndex stores embeddings for one named collection, keyed by record id.
type VectorIndex interface {
	// Upsert inserts or replaces the entry with entry.ID. Last writer wins.
	Upsert(ctx context.Context, entry domain.IndexEntry) error

	// UpsertBatch upserts every entry. Implementations must not retain the slice.
	UpsertBatch(ctx context.Context, entries []domain.IndexEntry) error

	// Delete removes the entry for id. Deleting an absent id is not an error.
	Delete(ctx context.Context, id int64) error

	// Query returns up to k entries nearest to embedding that satisfy filter,
	// nearest first, ties broken by ascending id. A nil filter matches all.
	Query(ctx context.Context, embedding []float32, k int, filter domain.Filter) ([]domain.Match, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int, error)

	// DropAndRecreate empties the collection.
	DropAndRecreate(ctx context.Context) error

	// Dimension returns the embedding width the index accepts.
	Dimension() int

	Close() error
}

// IndexInspector is implemented by indexes that can describe themselves.
type IndexInspector interface {
	Stats(ctx context.Context) (domain.CollectionStats, error)
}
