package store

import (
	"context"
	"fmt"

	"github.com/xhad/docbot/internal/models"
	"github.com/xhad/docbot/internal/types"
)

// Retriever embeds chunks into an index and answers similarity queries
// against it.
type Retriever struct {
	embedder types.Embedder
	index    types.VectorIndex
}

func NewRetriever(embedder types.Embedder, index types.VectorIndex) *Retriever {
	return &Retriever{embedder: embedder, index: index}
}

// Build replaces whatever the index held with the given chunks.
func (r *Retriever) Build(ctx context.Context, chunks []models.Chunk) error {
	if err := r.index.Reset(ctx); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := r.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return err
	}

	if err := r.index.Add(ctx, chunks, vectors); err != nil {
		return fmt.Errorf("failed to index chunks: %w", err)
	}
	return nil
}

// Query returns the k chunks most similar to query.
func (r *Retriever) Query(ctx context.Context, query string, k int) ([]models.ScoredChunk, error) {
	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	chunks, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}
	return chunks, nil
}

func (r *Retriever) Close() {
	r.index.Close()
}
