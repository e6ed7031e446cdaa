package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"surgrag/internal/domain"
)

func matches(ids ...int64) []domain.Match {
	out := make([]domain.Match, len(ids))
	for i, id := range ids {
		out[i] = domain.Match{ID: id, Document: "doc", Distance: float64(i) / 10}
	}
	return out
}

func TestQueryCache_HitAndKeyParts(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("appendectomy", 3, "", c.Generation(), matches(1, 2))

	got, ok := c.Get("appendectomy", 3, "")
	assert.True(t, ok)
	assert.Equal(t, matches(1, 2), got)

	_, ok = c.Get("appendectomy", 4, "")
	assert.False(t, ok, "k is part of the key")
	_, ok = c.Get("appendectomy", 3, "specialty=Urology")
	assert.False(t, ok, "filter is part of the key")
}

func TestQueryCache_ReturnsCopies(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	results := matches(1)
	c.Put("q", 1, "", c.Generation(), results)
	results[0].ID = 99

	got, _ := c.Get("q", 1, "")
	assert.Equal(t, int64(1), got[0].ID)
	got[0].ID = 42

	again, _ := c.Get("q", 1, "")
	assert.Equal(t, int64(1), again[0].ID)
}

func TestQueryCache_InvalidateBumpsGeneration(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	c.Put("q", 1, "", c.Generation(), matches(1))

	c.Invalidate()
	assert.Equal(t, uint64(1), c.Generation())
	assert.Zero(t, c.Size())

	_, ok := c.Get("q", 1, "")
	assert.False(t, ok)
}

func TestQueryCache_TTL(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	c.Put("q", 1, "", c.Generation(), matches(1))
	now = now.Add(2 * time.Minute)

	_, ok := c.Get("q", 1, "")
	assert.False(t, ok)
	assert.Zero(t, c.Size())
}

func TestQueryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewQueryCache(2, time.Minute)
	c.Put("a", 1, "", c.Generation(), matches(1))
	c.Put("b", 1, "", c.Generation(), matches(2))

	_, _ = c.Get("a", 1, "")
	c.Put("c", 1, "", c.Generation(), matches(3))

	_, okA := c.Get("a", 1, "")
	_, okB := c.Get("b", 1, "")
	_, okC := c.Get("c", 1, "")
	assert.True(t, okA)
	assert.False(t, okB)
	assert.True(t, okC)
}

func TestQueryCache_DropsResultsFromOlderGeneration(t *testing.T) {
	c := NewQueryCache(10, time.Minute)
	gen := c.Generation()

	c.Invalidate()
	c.Put("q", 1, "", gen, matches(1))

	_, ok := c.Get("q", 1, "")
	assert.False(t, ok)
	assert.Zero(t, c.Size())

	c.Put("q", 1, "", c.Generation(), matches(2))
	got, ok := c.Get("q", 1, "")
	assert.True(t, ok)
	assert.Equal(t, matches(2), got)
}
