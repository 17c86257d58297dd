package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/joho/godotenv"

	"github.com/samirrijal/carparkfinder/internal/adapters/carparkapi"
	"github.com/samirrijal/carparkfinder/internal/adapters/csvcatalog"
	"github.com/samirrijal/carparkfinder/internal/adapters/google"
	"github.com/samirrijal/carparkfinder/internal/adapters/http"
	"github.com/samirrijal/carparkfinder/internal/adapters/memory"
	natsadapter "github.com/samirrijal/carparkfinder/internal/adapters/nats"
	"github.com/samirrijal/carparkfinder/internal/adapters/objectstore"
	"github.com/samirrijal/carparkfinder/internal/adapters/onemap"
	"github.com/samirrijal/carparkfinder/internal/adapters/postgres"
	"github.com/samirrijal/carparkfinder/internal/adapters/valkey"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
	"github.com/samirrijal/carparkfinder/internal/pkg/authtoken"
	"github.com/samirrijal/carparkfinder/internal/pkg/config"
	"github.com/samirrijal/carparkfinder/internal/pkg/logging"
	"github.com/samirrijal/carparkfinder/internal/pkg/telemetry"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load("carparkfinder-api")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
		} else {
			defer shutdown()
		}
	}

	loc, err := time.LoadLocation(cfg.Locator.Timezone)
	if err != nil {
		log.Fatalf("timezone: %v", err)
	}

	deps := &http.Dependencies{
		Location:       loc,
		SearchDebounce: cfg.Geocoder.Debounce,
		AllowOrigins:   cfg.Server.AllowOrigins,
	}

	// Catalog source
	var source ports.CatalogSource
	switch cfg.Catalog.Source {
	case "postgres":
		db, err := postgres.New(ctx, cfg.Database.DSN(), 8)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		deps.DB = db
		deps.Carparks = postgres.NewCarparkRepo(db)
		source = deps.Carparks
	case "minio":
		store, err := objectstore.New(objectstore.Options{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			UseSSL:    cfg.MinIO.UseSSL,
			Bucket:    cfg.MinIO.Bucket,
			Object:    cfg.Catalog.Object,
		}, logger)
		if err != nil {
			log.Fatalf("object store: %v", err)
		}
		deps.Objects = store
		source = store
	default:
		source = csvcatalog.FileSource{Path: cfg.Catalog.Path, Logger: logger}
	}

	catalog := usecases.NewCatalogService(source, logger)
	if err := catalog.Load(ctx); err != nil {
		// Serve anyway; /v1/ready reports the empty catalog until a reload succeeds.
		slog.Error("initial catalog load failed", "source", cfg.Catalog.Source, "error", err)
	}
	deps.Catalog = catalog

	// Cache
	var cacheSvc ports.CacheService
	if cfg.Valkey.Enabled {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer cache.Close()
			deps.Cache = cache
			cacheSvc = cache
		}
	}

	// NATS
	var events ports.EventPublisher
	if cfg.NATS.Enabled {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			events = pub
			deps.NATS = pub.Conn()
		}

		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats catalog subscriber unavailable", "error", err)
		} else {
			defer sub.Close()
			host, _ := os.Hostname()
			err := sub.SubscribeCatalogUpdates(ctx, "api-"+host, func(ctx context.Context, ev natsadapter.CatalogUpdated) error {
				slog.Info("catalog update announced", "source", ev.Source, "rows", ev.Rows)
				return catalog.Load(ctx)
			})
			if err != nil {
				slog.Warn("catalog update subscription failed", "error", err)
			}
		}
	}

	// Remote query service
	client := carparkapi.New(carparkapi.Options{
		BaseURL:  cfg.CarparkAPI.BaseURL,
		Timeout:  cfg.CarparkAPI.Timeout,
		Location: loc,
	})

	// Sessions
	sessions := usecases.NewSessionManager(
		usecases.SessionDeps{Catalog: catalog, Client: client, Events: events, Logger: logger},
		usecases.SessionConfig{
			RadiusKm:       cfg.Locator.RadiusKm,
			DefaultLotType: domain.LotType(cfg.Locator.DefaultLotType),
			DefaultWindow:  cfg.Locator.DefaultWindow,
			MapCenter:      domain.GeoPoint{Lat: cfg.Locator.MapCenterLat, Lon: cfg.Locator.MapCenterLon},
			PollInterval:   cfg.Locator.PollInterval,
			BatchSize:      cfg.CarparkAPI.MaxIDsPerRequest,
		},
		cfg.Locator.SessionIdleTTL,
	)
	go sessions.Run(ctx)
	defer sessions.CloseAll()
	deps.Sessions = sessions

	// Place search
	deps.Search = usecases.NewSearchService(
		onemap.New(cfg.Geocoder.BaseURL, cfg.Geocoder.Timeout),
		cacheSvc,
		cfg.Geocoder.CacheTTL,
		cfg.Geocoder.Limit,
	)

	// Favorites
	var favorites ports.FavoriteRepository = memory.NewFavoriteRepo()
	if deps.Cache != nil {
		favorites = valkey.NewFavoriteRepo(deps.Cache)
	}
	deps.Favorites = usecases.NewFavoriteService(favorites, catalog)

	// Sign-in
	if cfg.Identity.JWTSecret != "" {
		deps.Auth = usecases.NewAuthService(
			google.NewUserInfo(cfg.Identity.UserInfoURL, cfg.Geocoder.Timeout),
			client,
			authtoken.NewIssuer(cfg.Identity.JWTSecret, cfg.Identity.TokenTTL),
		)
	} else {
		slog.Warn("identity.jwt_secret not set, sign-in and favorites disabled")
	}

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    1024 * 1024, // 1 MB max request body
		AppName:      "Car Park Finder API",
	})

	http.SetupRoutes(app, deps)

	// Graceful shutdown
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("API server starting", "addr", addr, "catalog_source", cfg.Catalog.Source)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received, draining connections...", "signal", sig.String())

	// Give in-flight requests up to 10s to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("server stopped")
}
