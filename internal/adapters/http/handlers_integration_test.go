//go:build integration
// +build integration

package http_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	handler "github.com/samirrijal/carparkfinder/internal/adapters/http"
	"github.com/samirrijal/carparkfinder/internal/adapters/postgres"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
	"github.com/samirrijal/carparkfinder/internal/pkg/config"
)

// setupTestDB connects to the test database, applies the schema and seeds
// the test facilities.
func setupTestDB(t *testing.T) *postgres.DB {
	t.Helper()
	cfg, err := config.Load("carparkfinder-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Database.DSN(), 4)
	if err != nil {
		t.Skipf("database not available: %v", err)
	}
	t.Cleanup(db.Close)

	schema, err := os.ReadFile("../../../migrations/001_carparks.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("apply migration: %v", err)
	}
	if _, err := db.Pool.Exec(ctx, `TRUNCATE carparks`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	if err := postgres.NewCarparkRepo(db).UpsertBatch(ctx, facilities); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return db
}

// setupTestDeps loads the catalog from Postgres instead of the fixture.
func setupTestDeps(t *testing.T, db *postgres.DB) *handler.Dependencies {
	repo := postgres.NewCarparkRepo(db)
	catalog := usecases.NewCatalogService(repo, nil)
	if err := catalog.Load(context.Background()); err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return makeDeps(func(d *handler.Dependencies) {
		d.Catalog = catalog
		d.DB = db
		d.Carparks = repo
	})
}

func TestIntegration_CatalogFromPostgres(t *testing.T) {
	db := setupTestDB(t)
	app := setupApp(setupTestDeps(t, db))

	req := httptest.NewRequest("GET", "/v1/catalog/status", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status handler.CatalogStatus
	json.NewDecoder(resp.Body).Decode(&status)
	if status.Facilities != len(facilities) {
		t.Errorf("expected %d facilities, got %d", len(facilities), status.Facilities)
	}
	if status.StoredRows == nil || *status.StoredRows != len(facilities) {
		t.Errorf("expected stored_rows %d, got %v", len(facilities), status.StoredRows)
	}
}

func TestIntegration_ReadyWithDB(t *testing.T) {
	db := setupTestDB(t)
	app := setupApp(setupTestDeps(t, db))

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result struct {
		Checks map[string]string `json:"checks"`
	}
	json.NewDecoder(resp.Body).Decode(&result)
	if result.Checks["database"] != "ok" {
		t.Errorf("expected database ok, got %q", result.Checks["database"])
	}
}
