package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samirrijal/carparkfinder/internal/adapters/datamall"
	natsadapter "github.com/samirrijal/carparkfinder/internal/adapters/nats"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
)

// PageFetcher reads one page of the upstream location feed.
type PageFetcher interface {
	FetchPage(ctx context.Context, skip int) (datamall.Page, error)
}

// CatalogUploader stores the rendered catalog where API replicas load it from.
type CatalogUploader interface {
	Upload(ctx context.Context, items []domain.FacilityLocation) error
}

// CatalogAnnouncer tells running API replicas that a new catalog is available.
type CatalogAnnouncer interface {
	PublishCatalogUpdated(ctx context.Context, ev natsadapter.CatalogUpdated) error
}

// CatalogSyncActivities holds the activity implementations for the catalog sync workflow.
// Uploader, Writer and Announcer are optional; at least one sink must be set.
type CatalogSyncActivities struct {
	Pages     PageFetcher
	Uploader  CatalogUploader
	Writer    ports.CatalogWriter
	Announcer CatalogAnnouncer
	Logger    *slog.Logger
}

func (a *CatalogSyncActivities) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// FetchLocationPage returns the feed page starting at skip.
func (a *CatalogSyncActivities) FetchLocationPage(ctx context.Context, skip int) (datamall.Page, error) {
	page, err := a.Pages.FetchPage(ctx, skip)
	if err != nil {
		return datamall.Page{}, fmt.Errorf("fetch page skip=%d: %w", skip, err)
	}
	a.logger().Info("location page fetched", "skip", skip, "rows", page.Rows, "locations", len(page.Locations))
	return page, nil
}

// PublishCatalog writes items to every configured sink and announces the
// new catalog. It returns the number of rows published.
func (a *CatalogSyncActivities) PublishCatalog(ctx context.Context, items []domain.FacilityLocation) (int, error) {
	if a.Uploader == nil && a.Writer == nil {
		return 0, errors.New("no catalog sink configured")
	}
	if a.Uploader != nil {
		if err := a.Uploader.Upload(ctx, items); err != nil {
			return 0, fmt.Errorf("upload catalog: %w", err)
		}
	}
	if a.Writer != nil {
		if err := a.Writer.UpsertBatch(ctx, items); err != nil {
			return 0, fmt.Errorf("store catalog: %w", err)
		}
	}
	if a.Announcer != nil {
		ev := natsadapter.CatalogUpdated{Source: "datamall", Rows: len(items), At: time.Now().UTC()}
		if err := a.Announcer.PublishCatalogUpdated(ctx, ev); err != nil {
			// The catalog is stored; replicas pick it up on their next reload.
			a.logger().Warn("catalog announcement failed", "error", err)
		}
	}
	a.logger().Info("catalog published", "rows", len(items))
	return len(items), nil
}
