package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xhad/docbot/internal/models"
)

// MemoryIndex keeps chunk vectors in process memory. It is meant to live for
// one session's document and is rebuilt from scratch on every upload.
type MemoryIndex struct {
	mtx     sync.RWMutex
	entries []memoryEntry
}

type memoryEntry struct {
	chunk  models.Chunk
	vector []float32
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

func (m *MemoryIndex) Reset(ctx context.Context) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	m.entries = nil
	return nil
}

func (m *MemoryIndex) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	m.mtx.Lock()
	defer m.mtx.Unlock()

	for i, c := range chunks {
		cpy := make([]float32, len(vectors[i]))
		copy(cpy, vectors[i])
		m.entries = append(m.entries, memoryEntry{chunk: c, vector: cpy})
	}
	return nil
}

// Search returns the limit chunks closest to vector by cosine similarity,
// best first. Equal scores keep document order.
func (m *MemoryIndex) Search(ctx context.Context, vector []float32, limit int) ([]models.ScoredChunk, error) {
	if limit < 1 {
		return nil, nil
	}

	m.mtx.RLock()
	defer m.mtx.RUnlock()

	candidates := make([]models.ScoredChunk, 0, len(m.entries))
	for _, e := range m.entries {
		candidates = append(candidates, models.ScoredChunk{
			Chunk: e.chunk,
			Score: float32(CosineSimilarity(vector, e.vector)),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (m *MemoryIndex) Len() int {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return len(m.entries)
}

func (m *MemoryIndex) Close() {}

func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
