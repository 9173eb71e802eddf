package types

import (
	"context"

	"github.com/xhad/docbot/internal/models"
)

// Core interfaces
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

type VectorIndex interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, limit int) ([]models.ScoredChunk, error)
	Close()
}

type Answerer interface {
	Answer(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error)
}

type StreamAnswerer interface {
	Answerer
	AnswerStream(ctx context.Context, question string, chunks []models.ScoredChunk, onChunk func(string) error) (string, error)
}
