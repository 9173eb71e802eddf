package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/chains"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"github.com/xhad/docbot/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrContextTooLong is returned when the provider rejects the prompt because
// the retrieved chunks plus the instructions exceed the model's context.
var ErrContextTooLong = errors.New("the document is too long for the model, please shorten the document and try again")

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Provider          string
	Model             string
	APIKey            string
	BaseURL           string // Ollama server URL
	Temperature       float64
	MaxTokens         int
	RequestsPerSecond float64
}

// ChatEngine answers a question over retrieved chunks with a "stuff" QA
// chain: every chunk is placed into a single prompt.
type ChatEngine struct {
	config  ChatConfig
	llm     llms.Model
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig, logger *zap.Logger) (*ChatEngine, error) {
	if config.Provider == "" {
		config.Provider = "openai"
	}

	var model llms.Model
	switch config.Provider {
	case "openai":
		if config.Model == "" {
			config.Model = "gpt-3.5-turbo"
		}
		llm, err := openai.New(openai.WithToken(config.APIKey), openai.WithModel(config.Model))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
	case "ollama":
		if config.Model == "" {
			config.Model = "mistral"
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434"
		}
		llm, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM: %w", err)
		}
		model = llm
	default:
		return nil, fmt.Errorf("unknown llm provider %q", config.Provider)
	}

	return NewWithModel(model, config, logger), nil
}

// NewWithModel creates a ChatEngine around an already constructed model.
func NewWithModel(model llms.Model, config ChatConfig, logger *zap.Logger) *ChatEngine {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 1024
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChatEngine{
		config:  config,
		llm:     model,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), 1),
		logger:  logger,
	}
}

// Answer runs the QA chain and returns the raw model text.
func (ce *ChatEngine) Answer(ctx context.Context, question string, chunks []models.ScoredChunk) (string, error) {
	return ce.run(ctx, question, chunks)
}

// AnswerStream is Answer with every generated piece passed to onChunk as it
// arrives. The full text is still returned.
func (ce *ChatEngine) AnswerStream(ctx context.Context, question string, chunks []models.ScoredChunk, onChunk func(string) error) (string, error) {
	return ce.run(ctx, question, chunks, chains.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		return onChunk(string(chunk))
	}))
}

func (ce *ChatEngine) run(ctx context.Context, question string, chunks []models.ScoredChunk, extra ...chains.ChainCallOption) (string, error) {
	if err := ce.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("chat rate limit: %w", err)
	}

	options := []chains.ChainCallOption{
		chains.WithTemperature(ce.config.Temperature),
		chains.WithMaxTokens(ce.config.MaxTokens),
	}
	options = append(options, extra...)

	chain := chains.LoadStuffQA(ce.llm)
	result, err := chains.Call(ctx, chain, map[string]any{
		"input_documents": toDocuments(chunks),
		"question":        question,
	}, options...)
	if err != nil {
		if IsContextTooLong(err) {
			ce.logger.Warn("llm rejected prompt as too long",
				zap.Int("chunks", len(chunks)),
				zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrContextTooLong, err)
		}
		return "", fmt.Errorf("chat error: %w", err)
	}

	text, ok := result[chain.GetOutputKeys()[0]].(string)
	if !ok {
		return "", errors.New("chat error: chain returned no text")
	}

	ce.logger.Debug("llm answered",
		zap.Int("chunks", len(chunks)),
		zap.Int("answer_len", len(text)))

	return text, nil
}

// IsContextTooLong reports whether a provider error means the prompt exceeded
// the model's context window.
func IsContextTooLong(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrContextTooLong) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"context_length_exceeded",
		"maximum context length",
		"context length",
		"too many tokens",
		"prompt is too long",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func toDocuments(chunks []models.ScoredChunk) []schema.Document {
	docs := make([]schema.Document, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, schema.Document{
			PageContent: c.Text,
			Metadata: map[string]any{
				"chunk": c.Index,
				"start": c.Start,
			},
			Score: c.Score,
		})
	}
	return docs
}
