package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/raknampuna/anchor/config"
	"github.com/raknampuna/anchor/internal/agent"
	"github.com/raknampuna/anchor/internal/llm"
	"github.com/raknampuna/anchor/internal/logger"
	"github.com/raknampuna/anchor/internal/observe"
	"github.com/raknampuna/anchor/internal/session"
	"github.com/raknampuna/anchor/internal/store"
)

// app holds the wired-up components shared by the commands.
type app struct {
	cfg      *config.Config
	log      *log.Logger
	obs      observe.Observer
	loc      *time.Location
	store    store.Store
	sessions *session.Manager
}

func openStore(ctx context.Context, cfg *config.Config, loc *time.Location) (store.Store, error) {
	opts := store.Options{RetentionDays: cfg.RetentionDays, Location: loc}
	switch cfg.StoreBackend {
	case "sqlite":
		return store.OpenSQLite(cfg.DatabasePath, opts)
	case "redis":
		return store.NewRedis(ctx, cfg.RedisURL, opts)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}

// setup builds the store, logger and, when withSessions is set, the model
// client and session manager.
func setup(ctx context.Context, cfg *config.Config, withSessions bool) (*app, error) {
	l, err := logger.New(logger.Config{Debug: cfg.Debug, Dir: cfg.LogDir})
	if err != nil {
		return nil, fmt.Errorf("setting up logging: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		l.Warn("falling back to local time", "err", err)
	}
	interactions, err := logger.OpenInteractions(cfg.LogDir, l)
	if err != nil {
		return nil, fmt.Errorf("opening interaction log: %w", err)
	}

	s, err := openStore(ctx, cfg, loc)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a := &app{cfg: cfg, log: l, obs: interactions, loc: loc, store: s}
	if !withSessions {
		return a, nil
	}

	client, err := llm.NewClient(ctx, llm.ProviderConfig{
		Provider:  cfg.LLMProvider,
		APIKey:    cfg.APIKey(),
		AuthToken: cfg.AnthropicToken,
		Model:     cfg.LLMModel,
		BaseURL:   cfg.OllamaBaseURL,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating LLM client: %w", err)
	}
	now := func() time.Time { return time.Now().In(loc) }
	ag := agent.New(client, a.obs,
		agent.WithTimeout(cfg.LLMTimeout),
		agent.WithDefaultDuration(cfg.DefaultDuration),
		agent.WithClock(now),
	)
	a.sessions = session.NewManager(ag, s, a.obs, session.Options{Location: loc, Now: now})
	a.obs.Observe(observe.Event{
		Type:      observe.EventSystem,
		Component: "main",
		Message:   "started",
		Fields:    map[string]any{"provider": cfg.LLMProvider, "store": cfg.StoreBackend},
	})
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Error("closing store", "err", err)
	}
}
