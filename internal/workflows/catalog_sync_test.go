package workflows_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/samirrijal/carparkfinder/internal/adapters/datamall"
	natsadapter "github.com/samirrijal/carparkfinder/internal/adapters/nats"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/workflows"
)

func loc(id string) domain.FacilityLocation {
	return domain.FacilityLocation{ID: id, Latitude: 1.3, Longitude: 103.8}
}

func TestCatalogSyncWorkflow_PagesUntilEmpty(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&workflows.CatalogSyncActivities{})

	env.OnActivity("FetchLocationPage", mock.Anything, 0).Return(datamall.Page{Rows: 2, Locations: []domain.FacilityLocation{loc("A"), loc("B")}}, nil)
	env.OnActivity("FetchLocationPage", mock.Anything, 2).Return(datamall.Page{Rows: 2, Locations: []domain.FacilityLocation{loc("B"), loc("C")}}, nil)
	env.OnActivity("FetchLocationPage", mock.Anything, 4).Return(datamall.Page{}, nil)

	var published []domain.FacilityLocation
	env.OnActivity("PublishCatalog", mock.Anything, mock.Anything).Return(
		func(_ context.Context, items []domain.FacilityLocation) (int, error) {
			published = items
			return len(items), nil
		})

	env.ExecuteWorkflow(workflows.CatalogSyncWorkflow, workflows.CatalogSyncInput{PageSize: 2, MaxSkip: 10})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res workflows.CatalogSyncResult
	require.NoError(t, env.GetWorkflowResult(&res))
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 3, res.Rows)
	require.Len(t, published, 3)
	assert.Equal(t, "B", published[1].ID)
}

func TestCatalogSyncWorkflow_NoLocations(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&workflows.CatalogSyncActivities{})

	env.OnActivity("FetchLocationPage", mock.Anything, mock.Anything).Return(datamall.Page{}, nil)

	env.ExecuteWorkflow(workflows.CatalogSyncWorkflow, workflows.CatalogSyncInput{PageSize: 500, MaxSkip: 2500})

	require.True(t, env.IsWorkflowCompleted())
	assert.Error(t, env.GetWorkflowError())
}

type fakeSinks struct {
	uploaded  int
	written   int
	announced int
	uploadErr error
}

func (f *fakeSinks) Upload(_ context.Context, items []domain.FacilityLocation) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploaded = len(items)
	return nil
}

func (f *fakeSinks) UpsertBatch(_ context.Context, items []domain.FacilityLocation) error {
	f.written = len(items)
	return nil
}

func (f *fakeSinks) PublishCatalogUpdated(_ context.Context, ev natsadapter.CatalogUpdated) error {
	f.announced = ev.Rows
	return nil
}

func TestPublishCatalog(t *testing.T) {
	sinks := &fakeSinks{}
	acts := &workflows.CatalogSyncActivities{Uploader: sinks, Writer: sinks, Announcer: sinks}

	n, err := acts.PublishCatalog(context.Background(), []domain.FacilityLocation{loc("A"), loc("B")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, sinks.uploaded)
	assert.Equal(t, 2, sinks.written)
	assert.Equal(t, 2, sinks.announced)

	_, err = (&workflows.CatalogSyncActivities{}).PublishCatalog(context.Background(), nil)
	assert.Error(t, err)

	failing := &workflows.CatalogSyncActivities{Uploader: &fakeSinks{uploadErr: errors.New("denied")}}
	_, err = failing.PublishCatalog(context.Background(), nil)
	assert.Error(t, err)
}
