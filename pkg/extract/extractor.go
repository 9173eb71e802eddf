package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xhad/docbot/internal/models"
	"github.com/xhad/docbot/internal/types"
	"github.com/xhad/docbot/pkg/processor"
	"github.com/xhad/docbot/pkg/store"
	"go.uber.org/zap"
)

const DefaultTopK = 4

// IndexFactory returns an empty index for the document with the given id.
type IndexFactory func(key string) types.VectorIndex

type Option func(*Extractor)

func WithTopK(k int) Option {
	return func(e *Extractor) {
		if k > 0 {
			e.topK = k
		}
	}
}

func WithIndexFactory(f IndexFactory) Option {
	return func(e *Extractor) {
		if f != nil {
			e.newIndex = f
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Extractor runs the chunk, embed, retrieve and prompt pipeline for one
// document at a time.
type Extractor struct {
	embedder types.Embedder
	answerer types.Answerer
	newIndex IndexFactory
	topK     int
	logger   *zap.Logger
}

func New(embedder types.Embedder, answerer types.Answerer, opts ...Option) *Extractor {
	e := &Extractor{
		embedder: embedder,
		answerer: answerer,
		newIndex: func(string) types.VectorIndex { return store.NewMemoryIndex() },
		topK:     DefaultTopK,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Outcome is the result of one extraction. Structured templates fill Record;
// the free-form template fills Answer and keeps Retriever open for follow-up
// questions.
type Outcome struct {
	Type      DocType
	Record    *Record
	Answer    string
	Chunks    int
	Retriever *store.Retriever
}

// Close releases the retained index, if any.
func (o *Outcome) Close() {
	if o != nil && o.Retriever != nil {
		o.Retriever.Close()
		o.Retriever = nil
	}
}

// Run indexes doc and prompts the model with the template for docType. For
// the free-form template an empty question only builds the index. When the
// model reports a type mismatch the outcome is returned together with an
// error wrapping ErrDocTypeMismatch.
func (e *Extractor) Run(ctx context.Context, doc models.Document, docType DocType, question string) (*Outcome, error) {
	t, err := Lookup(docType)
	if err != nil {
		return nil, err
	}

	proc, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    t.ChunkSize,
		ChunkOverlap: t.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}
	chunks := proc.Process(doc)

	r := store.NewRetriever(e.embedder, e.newIndex(doc.ID))
	if err := r.Build(ctx, chunks); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to index document: %w", err)
	}

	e.logger.Info("document indexed",
		zap.String("document", doc.Name),
		zap.String("type", string(docType)),
		zap.Int("chunks", len(chunks)))

	out := &Outcome{Type: docType, Chunks: len(chunks), Retriever: r}

	if t.FreeForm() {
		if strings.TrimSpace(question) == "" {
			return out, nil
		}
		answer, err := e.Ask(ctx, r, question, nil)
		if err != nil {
			out.Close()
			return nil, err
		}
		out.Answer = answer
		return out, nil
	}

	// Structured templates are one-shot.
	defer out.Close()

	raw, err := e.Ask(ctx, r, t.Query(question), nil)
	if err != nil {
		return nil, err
	}

	record, err := Parse(t, raw)
	if err != nil {
		if errors.Is(err, ErrDocTypeMismatch) {
			e.logger.Info("document rejected by type check",
				zap.String("document", doc.Name),
				zap.String("type", string(docType)))
			out.Record = record
			return out, err
		}
		var perr *ParseError
		if errors.As(err, &perr) {
			e.logger.Warn("model reply did not parse",
				zap.String("type", string(docType)),
				zap.String("raw", perr.Raw),
				zap.Error(perr.Err))
		}
		return nil, err
	}

	out.Record = record
	return out, nil
}

// Ask retrieves the chunks closest to question and sends them with it to the
// model. When onChunk is set the answer is streamed through it.
func (e *Extractor) Ask(ctx context.Context, r *store.Retriever, question string, onChunk func(string) error) (string, error) {
	chunks, err := r.Query(ctx, question, e.topK)
	if err != nil {
		return "", err
	}

	if onChunk == nil {
		return e.answerer.Answer(ctx, question, chunks)
	}

	if s, ok := e.answerer.(types.StreamAnswerer); ok {
		return s.AnswerStream(ctx, question, chunks, onChunk)
	}
	answer, err := e.answerer.Answer(ctx, question, chunks)
	if err != nil {
		return "", err
	}
	return answer, onChunk(answer)
}
