// Package app wires configuration into the service's collaborators.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/uitrack/distributor-tracker/internal/api"
	"github.com/uitrack/distributor-tracker/internal/clock/system"
	"github.com/uitrack/distributor-tracker/internal/config"
	"github.com/uitrack/distributor-tracker/internal/mapping"
	"github.com/uitrack/distributor-tracker/internal/metrics"
	"github.com/uitrack/distributor-tracker/internal/pipeline"
	pubpublisher "github.com/uitrack/distributor-tracker/internal/publisher/pubsub"
	"github.com/uitrack/distributor-tracker/internal/reconcile"
	"github.com/uitrack/distributor-tracker/internal/scraper"
	"github.com/uitrack/distributor-tracker/internal/source"
	"github.com/uitrack/distributor-tracker/internal/storage/archive"
	"github.com/uitrack/distributor-tracker/internal/storage/postgres"
	"github.com/uitrack/distributor-tracker/internal/syncer"
	"github.com/uitrack/distributor-tracker/internal/tracker"
	"github.com/uitrack/distributor-tracker/internal/workspace"
)

// App holds the wired service graph.
type App struct {
	Cfg    config.Config
	Logger *zap.Logger

	Store    *postgres.DistributorStore
	History  *postgres.HistoryStore
	Mappings *mapping.Manager

	Scanner    *scraper.Scanner
	Reconciler *reconcile.Engine
	Syncer     *syncer.Engine
	Pipeline   *pipeline.Pipeline
	Server     *api.Server

	pubsubClient  *pubsub.Client
	storageClient *gcstorage.Client
	publisher     *pubpublisher.Publisher
}

// New builds the full graph from configuration.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	metrics.Init()
	clk := system.New()

	dbCfg := postgres.Config{
		DSN:      cfg.DB.DSN,
		MaxConns: cfg.DB.MaxConns,
		MinConns: cfg.DB.MinConns,
	}
	pool, err := postgres.Connect(ctx, dbCfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	store, err := postgres.NewDistributorStoreWithPool(pool)
	if err != nil {
		return nil, err
	}
	history, err := postgres.NewHistoryStoreWithPool(pool)
	if err != nil {
		return nil, err
	}
	mappingStore, err := postgres.NewMappingStoreWithPool(pool)
	if err != nil {
		return nil, err
	}

	client := source.New(source.Config{
		BaseURL:   cfg.Source.BaseURL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.SourceTimeout(),
	})
	limiter := rate.NewLimiter(rate.Limit(cfg.Source.RequestsPerSecond), 1)

	discoverer := mapping.NewDiscoverer(client, limiter, mapping.DiscovererConfig{
		ProbeCountryCap: cfg.Source.ProbeCountryCap,
		ValidateCap:     cfg.Source.ProbeValidateCap,
	}, logger)
	mappings := mapping.NewManager(discoverer, mappingStore, clk, logger)

	scanner := scraper.NewScanner(client, limiter, clk, logger)
	reconciler := reconcile.New(store, history, clk, logger)

	app := &App{
		Cfg:        cfg,
		Logger:     logger,
		Store:      store,
		History:    history,
		Mappings:   mappings,
		Scanner:    scanner,
		Reconciler: reconciler,
	}

	if cfg.Sync.Enabled {
		ws := workspace.New(workspace.Config{
			BaseURL:    cfg.Sync.BaseURL,
			Token:      cfg.Sync.Token,
			DatabaseID: cfg.Sync.DatabaseID,
			Timeout:    cfg.SourceTimeout(),
		}, logger)
		app.Syncer = syncer.New(store, ws, clk, logger, syncer.Config{
			BatchSize:  cfg.Sync.BatchSize,
			BatchPause: cfg.BatchPause(),
		})
	}

	var archiver tracker.Archiver
	if cfg.Archive.GCSBucket != "" {
		app.storageClient, err = gcstorage.NewClient(ctx)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		archiver, err = archive.NewGCS(app.storageClient, archive.Config{
			Bucket: cfg.Archive.GCSBucket,
			Prefix: cfg.Archive.Prefix,
		})
		if err != nil {
			app.Close()
			return nil, err
		}
	}

	var pub tracker.Publisher
	if cfg.Events.ProjectID != "" && cfg.Events.TopicName != "" {
		app.pubsubClient, err = pubsub.NewClient(ctx, cfg.Events.ProjectID)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		app.publisher = pubpublisher.New(app.pubsubClient.Topic(cfg.Events.TopicName))
		pub = app.publisher
	}

	var pipelineSyncer pipeline.Syncer
	if app.Syncer != nil {
		pipelineSyncer = app.Syncer
	}
	app.Pipeline = pipeline.New(mappings, scanner, reconciler, pipelineSyncer,
		archiver, pub, clk, logger, pipeline.Config{
			SyncEnabled:      cfg.Sync.Enabled,
			RetentionHorizon: cfg.RetentionHorizon(),
		})

	var apiSyncer api.SyncRunner
	if app.Syncer != nil {
		apiSyncer = app.Syncer
	}
	app.Server = api.NewServer(store, history, mappings, app.Pipeline, apiSyncer, clk, logger)

	return app, nil
}

// Close releases external resources.
func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.Logger.Error("close pubsub client", zap.Error(err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			a.Logger.Error("close storage client", zap.Error(err))
		}
	}
	if a.Store != nil {
		a.Store.Close()
	}
}
