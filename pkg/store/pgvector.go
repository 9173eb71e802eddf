package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/docbot/internal/models"
)

type VectorStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
}

// VectorStore owns the pgvector table. Each session reads and writes its own
// rows through the PgIndex returned by ForSession.
type VectorStore struct {
	config VectorStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig) (*VectorStore, error) {
	if config.TableName == "" {
		config.TableName = "document_chunks"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536 // Default for OpenAI embeddings
	}

	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	vs := &VectorStore{
		config: config,
		pool:   pool,
	}

	if err := vs.initialize(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return vs, nil
}

func (vs *VectorStore) initialize(ctx context.Context) error {
	// Enable pgvector extension
	_, err := vs.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding vector(%d)
		)`, vs.config.TableName, vs.config.VectorDim)

	_, err = vs.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_session_idx
		ON %s (session_id)`,
		vs.config.TableName, vs.config.TableName)

	_, err = vs.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// ForSession returns the index view of one session's chunks.
func (vs *VectorStore) ForSession(sessionID string) *PgIndex {
	return &PgIndex{store: vs, sessionID: sessionID}
}

func (vs *VectorStore) Close() {
	if vs.pool != nil {
		vs.pool.Close()
	}
}

type PgIndex struct {
	store     *VectorStore
	sessionID string
}

func (ix *PgIndex) Reset(ctx context.Context) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE session_id = $1`, ix.store.config.TableName)
	if _, err := ix.store.pool.Exec(ctx, stmt, ix.sessionID); err != nil {
		return fmt.Errorf("failed to reset session chunks: %w", err)
	}
	return nil
}

func (ix *PgIndex) Add(ctx context.Context, chunks []models.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	// Begin transaction
	tx, err := ix.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, session_id, chunk_index, start_offset, content, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ix.store.config.TableName)

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(stmt,
			uuid.New().String(),
			ix.sessionID,
			c.Index,
			c.Start,
			c.Text,
			pgvector.NewVector(vectors[i]),
		)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (ix *PgIndex) Search(ctx context.Context, vector []float32, limit int) ([]models.ScoredChunk, error) {
	if limit < 1 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT chunk_index, start_offset, content, 1 - (embedding <=> $2) AS score
		FROM %s
		WHERE session_id = $1
		ORDER BY embedding <=> $2, chunk_index
		LIMIT $3`,
		ix.store.config.TableName)

	rows, err := ix.store.pool.Query(ctx, query, ix.sessionID, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.ScoredChunk
	for rows.Next() {
		var (
			c     models.ScoredChunk
			score float64
		)
		if err := rows.Scan(&c.Index, &c.Start, &c.Text, &score); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		c.Score = float32(score)
		chunks = append(chunks, c)
	}

	return chunks, rows.Err()
}

// Close drops the session's rows. The pool stays open for other sessions.
func (ix *PgIndex) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = ix.Reset(ctx)
}
