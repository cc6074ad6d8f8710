package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"wechat_digest/internal/config"
	"wechat_digest/internal/discovery"
	"wechat_digest/internal/service"
	"wechat_digest/internal/session"
	"wechat_digest/internal/storage/sqlite"
	"wechat_digest/internal/summary"
	"wechat_digest/internal/vault"
)

type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB

	vault      vault.Vault
	sessions   *session.Store
	subs       *sqlite.SubscriptionStore
	articles   *sqlite.ArticleStore
	reads      *sqlite.ReadStateStore
	watermarks *sqlite.WatermarkStore

	sync     *service.SyncService
	views    *service.ViewService
	reading  *service.ReadService
	coverage *service.CoverageService
}

func newApp(configPath string) (*app, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := setupLogger(cfg.LogLevel)

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	v, err := vault.Open(cfg.Session.Backend, cfg.Session.VaultDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open credential vault: %w", err)
	}
	sessions := session.NewStore(v, cfg.Session.Provider, cfg.Session.TTL, logger)

	subs := sqlite.NewSubscriptionStore(db)
	articles := sqlite.NewArticleStore(db)
	reads := sqlite.NewReadStateStore(db)
	watermarks := sqlite.NewWatermarkStore(db)
	snapshots := sqlite.NewSnapshotStore(db)
	runs := sqlite.NewRunStore(db)
	txManager := sqlite.NewTransactionManager(db)

	chain := buildChain(cfg, sessions, logger)
	summarizer := summary.NewSummarizer(summary.Config{
		APIKey:           cfg.AI.APIKey,
		BaseURL:          cfg.AI.BaseURL,
		ChatModel:        cfg.AI.ChatModel,
		EmbedModel:       cfg.AI.EmbedModel,
		SourceCharLimit:  cfg.AI.SourceCharLimit,
		FetchTimeoutSecs: cfg.AI.FetchTimeoutSecs,
	}, logger)

	syncSvc := service.NewSyncService(
		subs, articles, watermarks, snapshots, runs, txManager,
		chain, summarizer, logger, cfg.Sync, cfg.Session.StrictAuth,
	)
	recommend := service.NewRecommendService(articles)
	views := service.NewViewService(articles, snapshots, recommend)
	reading := service.NewReadService(articles, reads)
	coverage := service.NewCoverageService(runs, cfg.Sync.CoverageSLATarget)

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		vault:      v,
		sessions:   sessions,
		subs:       subs,
		articles:   articles,
		reads:      reads,
		watermarks: watermarks,
		sync:       syncSvc,
		views:      views,
		reading:    reading,
		coverage:   coverage,
	}, nil
}

// buildChain assembles the discovery strategies in fallback order: open
// feeds first, credentialed strategies last.
func buildChain(cfg *config.Config, sessions *session.Store, logger *slog.Logger) *discovery.Chain {
	timeout := cfg.Sources.HTTPTimeout
	materializer := discovery.NewMaterializer(timeout)

	strategies := []discovery.Strategy{
		discovery.NewFeedTemplateStrategy(cfg.Sources.FeedTemplates, timeout),
		discovery.NewDirectoryStrategy(cfg.Sources.DirectoryIndex, timeout),
		discovery.NewPublicSearchStrategy(cfg.Sources.SearchEndpoint, timeout, materializer),
		discovery.NewSessionSearchStrategy(cfg.Sources.SessionEndpoint, cfg.Session.Provider, sessions, timeout, materializer),
		discovery.NewAccountConnectStrategy(cfg.Session.Provider, sessions, timeout, materializer),
	}

	return discovery.NewChain(strategies, discovery.Policy{
		StrictAuth:  cfg.Session.StrictAuth,
		CallTimeout: cfg.Sync.Timeout,
	}, logger)
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) syncTimeout() time.Duration {
	per := cfgOrDefault(a.cfg.Sync.Timeout, 15*time.Second)
	// Covers the whole run: every strategy of every subscription batch.
	return per * 20
}

func cfgOrDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
