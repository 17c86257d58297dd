package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/samirrijal/carparkfinder/internal/adapters/csvcatalog"
	natsadapter "github.com/samirrijal/carparkfinder/internal/adapters/nats"
	"github.com/samirrijal/carparkfinder/internal/adapters/objectstore"
	"github.com/samirrijal/carparkfinder/internal/adapters/postgres"
	"github.com/samirrijal/carparkfinder/internal/pkg/config"
	"github.com/samirrijal/carparkfinder/internal/pkg/logging"
)

// ingestor loads a facility-location CSV into Postgres and, when configured,
// mirrors it to the object store and announces the new catalog.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("carparkfinder-ingestor")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	path := cfg.Catalog.Path
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("open %s: %v", path, err)
	}
	items, err := csvcatalog.Parse(f, logger)
	f.Close()
	if err != nil {
		log.Fatalf("parse %s: %v", path, err)
	}
	slog.Info("catalog parsed", "path", path, "rows", len(items))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	repo := postgres.NewCarparkRepo(db)
	if err := repo.UpsertBatch(ctx, items); err != nil {
		log.Fatalf("upsert: %v", err)
	}
	stored, err := repo.Count(ctx)
	if err != nil {
		log.Fatalf("count: %v", err)
	}
	slog.Info("catalog stored", "rows", len(items), "total", stored)

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
			log.Fatalf("minio: %v", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			log.Fatalf("ensure bucket: %v", err)
		}
		if err := store.Upload(ctx, items); err != nil {
			log.Fatalf("upload: %v", err)
		}
	}

	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable, skipping announcement", "error", err)
			return
		}
		defer pub.Close()
		ev := natsadapter.CatalogUpdated{Source: "ingestor", Rows: len(items), At: time.Now().UTC()}
		if err := pub.PublishCatalogUpdated(ctx, ev); err != nil {
			slog.Warn("catalog announcement failed", "error", err)
		}
	}

	slog.Info("ingestion complete")
}
