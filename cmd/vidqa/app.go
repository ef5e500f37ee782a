package main

import (
	"context"
	"io"

	"github.com/mohammad-safakhou/vidqa/config"
	"github.com/mohammad-safakhou/vidqa/internal/index"
	"github.com/mohammad-safakhou/vidqa/internal/pipeline"
	"github.com/mohammad-safakhou/vidqa/internal/provider"
	"github.com/mohammad-safakhou/vidqa/internal/session"
	"github.com/mohammad-safakhou/vidqa/internal/session/inmemory"
	redissession "github.com/mohammad-safakhou/vidqa/internal/session/redis"
	"github.com/mohammad-safakhou/vidqa/internal/store"
)

// app holds the assembled service dependencies shared by the serve and
// ask commands.
type app struct {
	cfg     *config.Config
	store   *store.Store
	index   *index.TranscriptIndex
	buffers session.Store
	pipe    *pipeline.Pipeline
}

func buildApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg := config.LoadConfig(cfgPath)

	dsn, err := cfg.Storage.Postgres.DSN()
	if err != nil {
		return nil, err
	}
	st, err := store.New(ctx, dsn, cfg.Retrieval.EmbeddingDimensions, nil)
	if err != nil {
		return nil, err
	}
	prov, err := provider.NewLLMProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}

	// Lexical leg: in-memory BM25 index by default, ts_rank in Postgres
	// as the zero-extra-state alternative.
	var lexical pipeline.LexicalSearcher = st
	var idx *index.TranscriptIndex
	if cfg.Retrieval.Lexical != "postgres" {
		idx, err = index.New(nil)
		if err != nil {
			return nil, err
		}
		if err := idx.Refresh(ctx, st); err != nil {
			return nil, err
		}
		lexical = idx
	}

	var buffers session.Store
	if cfg.Storage.Redis.Addr != "" {
		buffers = redissession.NewStore(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB, cfg.Storage.Redis.TTL)
	} else {
		buffers = inmemory.NewStore()
	}

	policy := pipeline.ThresholdPolicy{
		Keep:        cfg.Retrieval.KeepThreshold,
		Sufficiency: cfg.Retrieval.SufficiencyThreshold,
	}
	memory := pipeline.NewSessionMemory(buffers, prov, cfg.LLM.Fast, cfg.Memory.TokenBudget, cfg.Memory.MaxTurns, nil)
	resolver := pipeline.NewResolver(prov, cfg.LLM.Fast, nil)
	retriever := pipeline.NewHybridRetriever(lexical, st, prov, cfg.LLM.Embedding, policy, cfg.Retrieval.FetchK, nil)
	external := pipeline.NewExternalGateway(cfg.External.APIKey, cfg.External.BaseURL, cfg.External.Model, cfg.External.Timeout, policy.Sufficiency, nil)
	selector := pipeline.ModelSelector{Fast: cfg.LLM.Fast, Quality: cfg.LLM.Quality}
	pipe := pipeline.New(memory, resolver, retriever, external, selector, prov, st, st, nil)

	return &app{cfg: cfg, store: st, index: idx, buffers: buffers, pipe: pipe}, nil
}

func (a *app) Close() {
	if c, ok := a.buffers.(io.Closer); ok {
		_ = c.Close()
	}
	_ = a.store.DB.Close()
}
