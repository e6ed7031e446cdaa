package port

import "context"

// Encoder turns text into a fixed-dimension embedding vector.
type Encoder interface {
	// Encode embeds a single text. The result always has Dimension() entries.
	// Implementations are deterministic for a pinned model.
	Encode(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the pinned embedding model.
	ModelName() string
}
