package http_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
)

// findOpenAPIDocument locates the openapi.yaml file by walking up from the test directory.
func findOpenAPIDocument(t *testing.T) string {
	dir, _ := os.Getwd()

	for i := 0; i < 5; i++ {
		candidate := filepath.Join(dir, "api", "openapi.yaml")
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		dir = filepath.Dir(dir)
	}

	t.Fatalf("could not find api/openapi.yaml")
	return ""
}

// TestOpenAPIDocument checks that api/openapi.yaml loads and validates.
func TestOpenAPIDocument(t *testing.T) {
	docPath := findOpenAPIDocument(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("OpenAPI document validation failed: %v", err)
	}

	expectedPaths := []string{
		"/v1/health",
		"/v1/ready",
		"/v1/carparks",
		"/v1/carparks/{id}",
		"/v1/catalog/status",
		"/v1/lot-types",
		"/v1/geocode/search",
		"/v1/sessions",
		"/v1/sessions/{id}",
		"/v1/sessions/{id}/location",
		"/v1/sessions/{id}/selection",
		"/v1/sessions/{id}/window",
		"/v1/sessions/{id}/lot-type",
		"/v1/sessions/{id}/radius",
		"/v1/sessions/{id}/nearby",
		"/v1/sessions/{id}/availability",
		"/v1/sessions/{id}/availability/refetch",
		"/v1/sessions/{id}/focus",
		"/v1/sessions/{id}/favorites",
		"/v1/auth/google-login",
		"/v1/favorites",
		"/v1/favorites/{id}",
		"/graphql",
	}

	for _, path := range expectedPaths {
		if item := doc.Paths.Find(path); item == nil {
			t.Errorf("expected path %s not found in document", path)
		}
	}

	expectedSchemas := []string{
		"FacilityLocation",
		"Occupancy",
		"NearbyFacility",
		"NearbyState",
		"AvailabilityState",
		"FocusState",
		"SessionSnapshot",
		"FavoriteView",
		"Place",
		"APIError",
		"Pagination",
	}

	for _, schema := range expectedSchemas {
		if doc.Components.Schemas[schema] == nil {
			t.Errorf("expected schema %s not found", schema)
		}
	}

	t.Logf("OpenAPI document valid: %d paths, %d schemas", len(doc.Paths.Map()), len(doc.Components.Schemas))
}

// TestOpenAPIInfo verifies document metadata.
func TestOpenAPIInfo(t *testing.T) {
	docPath := findOpenAPIDocument(t)
	data, err := os.ReadFile(docPath)
	if err != nil {
		t.Fatalf("failed to read openapi.yaml: %v", err)
	}

	loader := &openapi3.Loader{IsExternalRefsAllowed: false}
	doc, err := loader.LoadFromData(data)
	if err != nil {
		t.Fatalf("failed to parse OpenAPI document: %v", err)
	}

	if doc.Info.Title != "Car Park Finder API" {
		t.Errorf("expected title 'Car Park Finder API', got %q", doc.Info.Title)
	}

	if doc.Info.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %q", doc.Info.Version)
	}

	if doc.Info.Description == "" {
		t.Error("expected non-empty description")
	}

	if len(doc.Servers) == 0 {
		t.Error("expected at least one server")
	}

	t.Logf("OpenAPI Info: %s v%s @ %s", doc.Info.Title, doc.Info.Version, doc.Servers[0].URL)
}
