package main

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/samirrijal/carparkfinder/internal/adapters/datamall"
	natsadapter "github.com/samirrijal/carparkfinder/internal/adapters/nats"
	"github.com/samirrijal/carparkfinder/internal/adapters/objectstore"
	"github.com/samirrijal/carparkfinder/internal/adapters/postgres"
	"github.com/samirrijal/carparkfinder/internal/pkg/config"
	"github.com/samirrijal/carparkfinder/internal/pkg/logging"
	"github.com/samirrijal/carparkfinder/internal/workflows"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("carparkfinder-catalogsync")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DataMall.AccountKey == "" {
		log.Fatal("datamall.account_key is required")
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)
	ctx := context.Background()

	acts := &workflows.CatalogSyncActivities{
		Pages:  datamall.New(cfg.DataMall.BaseURL, cfg.DataMall.AccountKey, cfg.DataMall.Timeout),
		Logger: logger,
	}

	// Sinks: Postgres and/or MinIO, whichever is reachable.
	dbCtx, dbCancel := context.WithTimeout(ctx, 5*time.Second)
	db, err := postgres.New(dbCtx, cfg.Database.DSN(), 4)
	dbCancel()
	if err != nil {
		slog.Warn("database unavailable, skipping postgres sink", "error", err)
	} else {
		defer db.Close()
		acts.Writer = postgres.NewCarparkRepo(db)
	}

	if cfg.MinIO.AccessKey != "" {
		store, err := objectstore.New(objectstore.Options{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
			Object:    cfg.Catalog.Object,
		}, logger)
		if err != nil {
			slog.Warn("object store unavailable, skipping minio sink", "error", err)
		} else if err := store.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure bucket failed, skipping minio sink", "error", err)
		} else {
			acts.Uploader = store
		}
	}

	if acts.Writer == nil && acts.Uploader == nil {
		log.Fatal("no catalog sink available: configure postgres or minio")
	}

	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, catalog updates will not be announced", "error", err)
		} else {
			defer pub.Close()
			acts.Announcer = pub
		}
	}

	// Connect to Temporal
	c, err := client.Dial(client.Options{
		HostPort: cfg.Temporal.HostPort,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w := worker.New(c, cfg.Temporal.TaskQueue, worker.Options{})

	// Register workflow & activities
	w.RegisterWorkflow(workflows.CatalogSyncWorkflow)
	w.RegisterActivity(acts)

	// Schedule the sync. A run that is already open is reused.
	run, err := c.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:           workflows.CatalogSyncWorkflowID,
		TaskQueue:    cfg.Temporal.TaskQueue,
		CronSchedule: cfg.Temporal.CatalogCron,
	}, workflows.CatalogSyncWorkflow, workflows.CatalogSyncInput{
		PageSize:  cfg.DataMall.PageSize,
		MaxSkip:   cfg.DataMall.MaxSkip,
		PageDelay: cfg.DataMall.PageDelay,
	})
	if err != nil {
		log.Fatalf("start catalog sync: %v", err)
	}
	slog.Info("catalog sync scheduled", "workflow_id", run.GetID(), "run_id", run.GetRunID(), "cron", cfg.Temporal.CatalogCron)

	slog.Info("catalog sync worker started", "task_queue", cfg.Temporal.TaskQueue)
	if err := w.Run(worker.InterruptCh()); err != nil {
		log.Fatalf("worker: %v", err)
	}
}
