package port

import (
	"context"

	"surgrag/internal/domain"
)

// Retriever returns the documents most similar to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, filters domain.Filters) ([]string, error)
}
