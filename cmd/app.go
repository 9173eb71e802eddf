package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/docbot/internal/types"
	"github.com/xhad/docbot/pkg/config"
	"github.com/xhad/docbot/pkg/extract"
	"github.com/xhad/docbot/pkg/llm"
	"github.com/xhad/docbot/pkg/loader"
	"github.com/xhad/docbot/pkg/store"
	"go.uber.org/zap"
)

// app holds the services every command needs.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	loader    *loader.Loader
	extractor *extract.Extractor
	vectors   *store.VectorStore
}

// newApp loads configuration and builds the extraction pipeline. Validation
// errors in sections the command does not use are ignored.
func newApp(ctx context.Context, g *Globals, sections ...string) (*app, error) {
	cfg, err := config.LoadConfig(g.Config)
	if err != nil {
		return nil, err
	}
	if g.Debug {
		cfg.Log.Development = true
		cfg.Log.Level = "debug"
	}

	var problems []string
	for _, verr := range cfg.Validate() {
		if relevant(verr.Field, sections) {
			problems = append(problems, verr.Error())
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(problems, "\n  "))
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, err
	}

	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider: cfg.Embedder.Provider,
		Model:    cfg.Embedder.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.Embedder.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	chat, err := llm.NewWithConfig(llm.ChatConfig{
		Provider:          cfg.LLM.Provider,
		Model:             cfg.LLM.Model,
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	a := &app{cfg: cfg, logger: logger, loader: loader.New(logger)}

	opts := []extract.Option{
		extract.WithTopK(cfg.Index.TopK),
		extract.WithLogger(logger),
	}
	if cfg.Index.Backend == "pgvector" {
		vs, err := store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			TableName:  cfg.Database.TableName,
			VectorDim:  cfg.Database.VectorDim,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize vector store: %w", err)
		}
		a.vectors = vs
		opts = append(opts, extract.WithIndexFactory(func(key string) types.VectorIndex {
			return vs.ForSession(key)
		}))
	}

	a.extractor = extract.New(embedder, chat, opts...)
	return a, nil
}

func (a *app) Close() {
	if a.vectors != nil {
		a.vectors.Close()
	}
	_ = a.logger.Sync()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level
	return zc.Build()
}

// relevant reports whether a validation error for field matters to a command
// that only uses the given config sections. No sections means all of them.
func relevant(field string, sections []string) bool {
	if len(sections) == 0 {
		return true
	}
	for _, s := range sections {
		if field == s || strings.HasPrefix(field, s+".") {
			return true
		}
	}
	return false
}
