package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode/utf8"

	"surgrag/internal/adapter/analyzer"
	surgerr "surgrag/pkg/errors"
)

const trigramWeight = 0.5

// HashingEncoder is an offline feature-hashing encoder. Word tokens and their
// character trigrams are hashed into a signed, L2-normalized vector.
type HashingEncoder struct {
	dimension int
	maxChars  int
	tokenizer *analyzer.Tokenizer
}

// NewHashingEncoder creates a hashing encoder. maxChars <= 0 disables the length limit.
func NewHashingEncoder(dimension, maxChars int) (*HashingEncoder, error) {
	if dimension <= 0 {
		return nil, surgerr.New(surgerr.CodeEmbeddingConfigInvalid,
			fmt.Sprintf("dimension must be positive, got %d", dimension))
	}
	return &HashingEncoder{
		dimension: dimension,
		maxChars:  maxChars,
		tokenizer: analyzer.NewTokenizer(),
	}, nil
}

// Encode embeds text. Text with no word token left after stopword removal
// ("N/A", a lone stopword) is hashed from its trimmed, lowercased characters,
// so only blank text yields the zero vector.
func (e *HashingEncoder) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, surgerr.Wrap(err, surgerr.CodeEmbeddingEncodeFailure, "encode cancelled")
	}
	if e.maxChars > 0 {
		if n := utf8.RuneCountInString(text); n > e.maxChars {
			return nil, surgerr.New(surgerr.CodeEmbeddingEncodeFailure, "text exceeds encoder limit",
				surgerr.Field("chars", n), surgerr.Field("max_chars", e.maxChars))
		}
	}

	acc := make([]float64, e.dimension)
	tokens := e.tokenizer.Tokenize(text)
	for _, token := range tokens {
		e.add(acc, "w:"+token, 1)
		for _, gram := range analyzer.Trigrams(token) {
			e.add(acc, "c:"+gram, trigramWeight)
		}
	}
	if len(tokens) == 0 {
		if raw := strings.ToLower(strings.TrimSpace(text)); raw != "" {
			e.add(acc, "r:"+raw, 1)
			for _, gram := range analyzer.Trigrams(raw) {
				e.add(acc, "c:"+gram, trigramWeight)
			}
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, e.dimension)
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (e *HashingEncoder) add(acc []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	bucket := int(sum % uint64(e.dimension))
	if sum>>63 == 1 {
		weight = -weight
	}
	acc[bucket] += weight
}

func (e *HashingEncoder) Dimension() int {
	return e.dimension
}

func (e *HashingEncoder) ModelName() string {
	return fmt.Sprintf("hashing-v1-%d", e.dimension)
}
