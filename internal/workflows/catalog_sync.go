package workflows

import (
	"errors"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/carparkfinder/internal/adapters/datamall"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
)

// CatalogSyncWorkflowID is the fixed id that keeps at most one sync running.
const CatalogSyncWorkflowID = "catalog-sync"

// CatalogSyncInput bounds the feed walk.
type CatalogSyncInput struct {
	PageSize int
	MaxSkip  int
	// PageDelay spaces page requests to stay under the feed's rate limit.
	PageDelay time.Duration
}

// CatalogSyncResult summarizes one run.
type CatalogSyncResult struct {
	Pages int
	Rows  int
}

// ErrNoLocations is returned when the feed yields nothing usable.
var ErrNoLocations = errors.New("no locations collected")

// CatalogSyncWorkflow pages through the location feed, keeps the first
// occurrence of each id and publishes the result as the new catalog.
func CatalogSyncWorkflow(ctx workflow.Context, input CatalogSyncInput) (CatalogSyncResult, error) {
	logger := workflow.GetLogger(ctx)
	if input.PageSize <= 0 {
		input.PageSize = 500
	}
	if input.MaxSkip < 0 {
		input.MaxSkip = 0
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 1.5,
			MaximumAttempts:    3,
		},
	})

	var (
		result CatalogSyncResult
		items  []domain.FacilityLocation
		seen   = make(map[string]struct{})
	)
	for skip := 0; skip <= input.MaxSkip; skip += input.PageSize {
		var page datamall.Page
		if err := workflow.ExecuteActivity(ctx, "FetchLocationPage", skip).Get(ctx, &page); err != nil {
			return result, err
		}
		if page.Rows == 0 {
			break
		}
		result.Pages++
		for _, loc := range page.Locations {
			if _, dup := seen[loc.ID]; dup {
				continue
			}
			seen[loc.ID] = struct{}{}
			items = append(items, loc)
		}
		if input.PageDelay > 0 {
			if err := workflow.Sleep(ctx, input.PageDelay); err != nil {
				return result, err
			}
		}
	}

	if len(items) == 0 {
		logger.Warn("catalog sync collected no locations", "pages", result.Pages)
		return result, temporal.NewNonRetryableApplicationError(ErrNoLocations.Error(), "NoLocations", ErrNoLocations)
	}

	if err := workflow.ExecuteActivity(ctx, "PublishCatalog", items).Get(ctx, &result.Rows); err != nil {
		return result, err
	}

	logger.Info("catalog sync complete", "pages", result.Pages, "rows", result.Rows)
	return result, nil
}
