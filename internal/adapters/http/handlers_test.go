package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/samirrijal/carparkfinder/internal/adapters/http"
	"github.com/samirrijal/carparkfinder/internal/adapters/memory"
	"github.com/samirrijal/carparkfinder/internal/core/domain"
	"github.com/samirrijal/carparkfinder/internal/core/ports"
	"github.com/samirrijal/carparkfinder/internal/core/usecases"
	"github.com/samirrijal/carparkfinder/internal/pkg/authtoken"
)

// ---- Stub collaborators ----

type stubQueryClient struct{}

func (stubQueryClient) QueryLots(ctx context.Context, q ports.CarparkQuery) ([]domain.LotsRecord, error) {
	out := make([]domain.LotsRecord, 0, len(q.IDs))
	for _, id := range q.IDs {
		total, available := 10, 4
		out = append(out, domain.LotsRecord{ID: id, Lots: []domain.LotCount{
			{Type: string(q.LotType), Total: &total, Available: &available},
		}})
	}
	return out, nil
}

func (stubQueryClient) QueryRates(ctx context.Context, q ports.CarparkQuery) ([]domain.RateRecord, error) {
	out := make([]domain.RateRecord, 0, len(q.IDs))
	for _, id := range q.IDs {
		addr, fee := "1 Test Road", 2.4
		out = append(out, domain.RateRecord{ID: id, Address: &addr, Rates: []domain.Rate{{EstimatedFee: &fee}}})
	}
	return out, nil
}

func (stubQueryClient) QueryInfo(ctx context.Context, q ports.CarparkQuery) ([]domain.InfoRecord, error) {
	out := make([]domain.InfoRecord, 0, len(q.IDs))
	for _, id := range q.IDs {
		addr := "1 Test Road"
		out = append(out, domain.InfoRecord{ID: id, Address: &addr})
	}
	return out, nil
}

type stubGeocoder struct {
	searchFn func(ctx context.Context, query string) ([]domain.Place, error)
}

func (g *stubGeocoder) Search(ctx context.Context, query string) ([]domain.Place, error) {
	if g.searchFn != nil {
		return g.searchFn(ctx, query)
	}
	return []domain.Place{{DisplayName: "ORCHARD ROAD", Lat: 1.3040, Lon: 103.8318}}, nil
}

type stubIdentity struct{}

func (stubIdentity) Email(ctx context.Context, accessToken string) (string, error) {
	if accessToken != "good-token" {
		return "", fmt.Errorf("invalid token")
	}
	return "driver@example.com", nil
}

// Facilities A and B are within 1 km of the map center; C is not.
var (
	testCenter = domain.GeoPoint{Lat: 1.3000, Lon: 103.8000}
	facilities = []domain.FacilityLocation{
		{ID: "A", Latitude: 1.3000, Longitude: 103.8000},
		{ID: "B", Latitude: 1.3040, Longitude: 103.8000},
		{ID: "C", Latitude: 1.3500, Longitude: 103.8000},
	}
)

func setupApp(deps *handler.Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func makeDeps(opts ...func(*handler.Dependencies)) *handler.Dependencies {
	catalog := usecases.NewCatalogService(nil, nil)
	catalog.Replace(facilities)

	sessions := usecases.NewSessionManager(
		usecases.SessionDeps{Catalog: catalog, Client: stubQueryClient{}},
		usecases.SessionConfig{MapCenter: testCenter},
		0,
	)

	d := &handler.Dependencies{
		Catalog:   catalog,
		Sessions:  sessions,
		Search:    usecases.NewSearchService(&stubGeocoder{}, nil, 60, 5),
		Favorites: usecases.NewFavoriteService(memory.NewFavoriteRepo(), catalog),
		Auth:      usecases.NewAuthService(stubIdentity{}, nil, authtoken.NewIssuer("test-secret", time.Hour)),
		Location:  time.UTC,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func readBody(t *testing.T, body io.Reader) []byte {
	t.Helper()
	b, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, []byte) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp.StatusCode, readBody(t, resp.Body)
}

// createSession starts a session and waits for its initial runs.
func createSession(t *testing.T, app *fiber.App, deps *handler.Dependencies) string {
	t.Helper()
	code, body := doJSON(t, app, "POST", "/v1/sessions", "")
	if code != 201 {
		t.Fatalf("expected 201, got %d: %s", code, body)
	}
	var snap usecases.SessionSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	t.Cleanup(func() { _ = deps.Sessions.Delete(snap.ID) })
	waitSession(t, deps, snap.ID)
	return snap.ID
}

func waitSession(t *testing.T, deps *handler.Dependencies, id string) {
	t.Helper()
	s, err := deps.Sessions.Get(id)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	s.Wait()
}

func decodeAPIError(t *testing.T, body []byte) handler.APIError {
	t.Helper()
	var apiErr handler.APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		t.Fatalf("decode error: %v (%s)", err, body)
	}
	return apiErr
}

// ---- System ----

func TestHealth_Returns200(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var result map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&result)
	if result["status"] != "healthy" {
		t.Errorf("expected healthy status, got %v", result["status"])
	}
}

func TestReady_CatalogLoaded(t *testing.T) {
	// DB, NATS, Cache and object store are nil → not configured, still ready
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "GET", "/v1/ready", "")
	if code != 200 {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	var result struct {
		Checks map[string]string `json:"checks"`
	}
	json.Unmarshal(body, &result)
	if result.Checks["database"] != "not configured" {
		t.Errorf("database check = %q", result.Checks["database"])
	}
	if !strings.HasPrefix(result.Checks["catalog"], "ok") {
		t.Errorf("catalog check = %q", result.Checks["catalog"])
	}
}

func TestReady_EmptyCatalog(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Catalog = usecases.NewCatalogService(nil, nil)
	})
	app := setupApp(deps)

	req := httptest.NewRequest("GET", "/v1/ready", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
}

func TestAPIVersionHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/health", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	v := resp.Header.Get("X-API-Version")
	if v != "1.0.0" {
		t.Errorf("expected X-API-Version 1.0.0, got %q", v)
	}
}

// ---- Catalog ----

func TestListCarparks_LinkHeader(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/carparks?offset=0&limit=2", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	link := resp.Header.Get("Link")
	if !strings.Contains(link, `rel="next"`) {
		t.Errorf("expected rel=next in Link header, got %q", link)
	}
	if !strings.Contains(link, "/v1/carparks?offset=2&limit=2") {
		t.Errorf("expected next page link, got %q", link)
	}

	var page struct {
		Data       []domain.FacilityLocation `json:"data"`
		Pagination handler.Pagination        `json:"pagination"`
	}
	json.NewDecoder(resp.Body).Decode(&page)
	if len(page.Data) != 2 || page.Pagination.Total != 3 {
		t.Errorf("expected 2 of 3, got %d of %d", len(page.Data), page.Pagination.Total)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "public, max-age=3600" {
		t.Errorf("expected catalog Cache-Control, got %q", cc)
	}
}

func TestGetCarpark(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "GET", "/v1/carparks/B", "")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var loc domain.FacilityLocation
	json.Unmarshal(body, &loc)
	if loc.ID != "B" || loc.Latitude != 1.3040 {
		t.Errorf("unexpected facility %+v", loc)
	}

	code, body = doJSON(t, app, "GET", "/v1/carparks/NOPE", "")
	if code != 404 {
		t.Fatalf("expected 404, got %d", code)
	}
	if apiErr := decodeAPIError(t, body); apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %q", apiErr.Code)
	}
}

func TestCatalogStatus(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "GET", "/v1/catalog/status", "")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var status handler.CatalogStatus
	json.Unmarshal(body, &status)
	if status.Facilities != 3 || status.Version != 1 || status.StoredRows != nil {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestLotTypes(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "GET", "/v1/lot-types", "")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var types []domain.LotTypeInfo
	json.Unmarshal(body, &types)
	if len(types) != 6 || types[0].Code != domain.LotTypeCar || types[0].Label != "Cars" {
		t.Errorf("unexpected lot types %+v", types)
	}
}

// ---- Geocode ----

func TestGeocodeSearch(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "GET", "/v1/geocode/search?q=orchard", "")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var result struct {
		Results []domain.Place `json:"results"`
	}
	json.Unmarshal(body, &result)
	if len(result.Results) != 1 || result.Results[0].DisplayName != "ORCHARD ROAD" {
		t.Errorf("unexpected results %+v", result.Results)
	}
}

func TestGeocodeSearch_MissingQuery(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "GET", "/v1/geocode/search?q=%20", "")
	if code != 400 {
		t.Fatalf("expected 400, got %d", code)
	}
	if apiErr := decodeAPIError(t, body); apiErr.Code != "bad_request" {
		t.Errorf("expected bad_request, got %q", apiErr.Code)
	}
}

func TestGeocodeSearch_UpstreamFailure(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) {
		d.Search = usecases.NewSearchService(&stubGeocoder{
			searchFn: func(ctx context.Context, query string) ([]domain.Place, error) {
				return nil, fmt.Errorf("connection refused")
			},
		}, nil, 60, 5)
	})
	app := setupApp(deps)

	code, body := doJSON(t, app, "GET", "/v1/geocode/search?q=orchard", "")
	if code != 502 {
		t.Fatalf("expected 502, got %d", code)
	}
	if apiErr := decodeAPIError(t, body); apiErr.Code != "upstream_error" {
		t.Errorf("expected upstream_error, got %q", apiErr.Code)
	}
}

// ---- Sessions ----

func TestSession_NearbyAfterCreate(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	req := httptest.NewRequest("GET", "/v1/sessions/"+id+"/nearby", nil)
	resp, _ := app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-store" {
		t.Errorf("expected no-store, got %q", cc)
	}

	var st domain.NearbyState
	json.NewDecoder(resp.Body).Decode(&st)
	if st.Status != domain.StatusReady {
		t.Fatalf("expected ready, got %q", st.Status)
	}
	if len(st.Results) != 2 || st.Results[0].ID != "A" || st.Results[1].ID != "B" {
		t.Fatalf("expected [A B] by distance, got %+v", st.Results)
	}
	a := st.Results[0]
	if a.AvailableLots == nil || *a.AvailableLots != 4 || a.CongestionLevel != domain.CongestionMedium {
		t.Errorf("unexpected occupancy %+v", a.Occupancy)
	}
	if a.Address != "1 Test Road" {
		t.Errorf("expected address from rates, got %q", a.Address)
	}
}

func TestSession_NotFound(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "GET", "/v1/sessions/does-not-exist/nearby", "")
	if code != 404 {
		t.Fatalf("expected 404, got %d", code)
	}
	if apiErr := decodeAPIError(t, body); apiErr.Code != "not_found" {
		t.Errorf("expected not_found, got %q", apiErr.Code)
	}
}

func TestSession_SelectLocation(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	// Far from every facility
	code, body := doJSON(t, app, "PUT", "/v1/sessions/"+id+"/selection", `{"lat":1.45,"lon":103.70}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	var snap usecases.SessionSnapshot
	json.Unmarshal(body, &snap)
	if snap.Anchor.Selected == nil || snap.Anchor.Selected.Lat != 1.45 || snap.Anchor.Current != nil {
		t.Errorf("unexpected anchor %+v", snap.Anchor)
	}

	waitSession(t, deps, id)
	_, body = doJSON(t, app, "GET", "/v1/sessions/"+id+"/nearby", "")
	var st domain.NearbyState
	json.Unmarshal(body, &st)
	if st.Status != domain.StatusEmpty || len(st.Results) != 0 {
		t.Errorf("expected empty result, got %q with %d", st.Status, len(st.Results))
	}
}

func TestSession_BadInputs(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	cases := []struct {
		name, method, path, body string
	}{
		{"missing lon", "PUT", "/location", `{"lat":1.3}`},
		{"lat out of range", "PUT", "/selection", `{"lat":91,"lon":103.8}`},
		{"malformed body", "PUT", "/selection", `{"lat":`},
		{"end before start", "PUT", "/window", `{"start":"2025-01-01 10:00:00","end":"2025-01-01 09:00:00"}`},
		{"unparseable time", "PUT", "/window", `{"start":"tomorrow","end":"2025-01-01 09:00:00"}`},
		{"unknown lot type", "PUT", "/lot-type", `{"lot_type":"Z"}`},
		{"zero radius", "PUT", "/radius", `{"radius_km":0}`},
		{"bad sort", "GET", "/nearby?sort=cheapest", ""},
		{"empty focus id", "PUT", "/focus", `{"id":" "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := doJSON(t, app, tc.method, "/v1/sessions/"+id+tc.path, tc.body)
			if code != 400 {
				t.Fatalf("expected 400, got %d: %s", code, body)
			}
			if apiErr := decodeAPIError(t, body); apiErr.Code != "bad_request" {
				t.Errorf("expected bad_request, got %q", apiErr.Code)
			}
		})
	}
}

func TestSession_WindowAndLotType(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	code, body := doJSON(t, app, "PUT", "/v1/sessions/"+id+"/window", `{"start":"2025-03-01 08:00:00","end":"2025-03-01 10:30:00"}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	var snap usecases.SessionSnapshot
	json.Unmarshal(body, &snap)
	want := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	if !snap.Window.Start.Equal(want) {
		t.Errorf("expected window start %v, got %v", want, snap.Window.Start)
	}

	code, body = doJSON(t, app, "PUT", "/v1/sessions/"+id+"/lot-type", `{"lot_type":"Y"}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	json.Unmarshal(body, &snap)
	if snap.LotType != domain.LotTypeMotorcycle {
		t.Errorf("expected lot type Y, got %q", snap.LotType)
	}
}

func TestSession_Availability(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	code, body := doJSON(t, app, "GET", "/v1/sessions/"+id+"/availability", "")
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	var st domain.AvailabilityState
	json.Unmarshal(body, &st)
	if len(st.Availability) != 3 || st.Error != nil {
		t.Fatalf("expected 3 entries and no error, got %d, %v", len(st.Availability), st.Error)
	}

	code, _ = doJSON(t, app, "POST", "/v1/sessions/"+id+"/availability/refetch", "")
	if code != 202 {
		t.Fatalf("expected 202, got %d", code)
	}
}

func TestSession_Focus(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	code, body := doJSON(t, app, "PUT", "/v1/sessions/"+id+"/focus", `{"id":"NOPE"}`)
	if code != 404 {
		t.Fatalf("expected 404 for unknown facility, got %d: %s", code, body)
	}

	code, body = doJSON(t, app, "PUT", "/v1/sessions/"+id+"/focus", `{"id":"B"}`)
	if code != 202 {
		t.Fatalf("expected 202, got %d: %s", code, body)
	}

	waitSession(t, deps, id)
	_, body = doJSON(t, app, "GET", "/v1/sessions/"+id+"/focus", "")
	var st domain.FocusState
	json.Unmarshal(body, &st)
	if st.ID == nil || *st.ID != "B" || st.Facility == nil || st.Loading {
		t.Fatalf("unexpected focus state %s", body)
	}
	if st.Facility.Address != "1 Test Road" {
		t.Errorf("expected address from info, got %q", st.Facility.Address)
	}

	code, _ = doJSON(t, app, "DELETE", "/v1/sessions/"+id+"/focus", "")
	if code != 204 {
		t.Fatalf("expected 204, got %d", code)
	}
	_, body = doJSON(t, app, "GET", "/v1/sessions/"+id+"/focus", "")
	json.Unmarshal(body, &st)
	if st.ID != nil || st.Facility != nil {
		t.Errorf("expected cleared focus, got %s", body)
	}
}

func TestSession_Delete(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	code, _ := doJSON(t, app, "DELETE", "/v1/sessions/"+id, "")
	if code != 204 {
		t.Fatalf("expected 204, got %d", code)
	}
	code, _ = doJSON(t, app, "GET", "/v1/sessions/"+id, "")
	if code != 404 {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

// ---- Auth & favorites ----

func login(t *testing.T, app *fiber.App) string {
	t.Helper()
	code, body := doJSON(t, app, "POST", "/v1/auth/google-login", `{"access_token":"good-token"}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d: %s", code, body)
	}
	var sess domain.AuthSession
	json.Unmarshal(body, &sess)
	if sess.Email != "driver@example.com" || sess.Token == "" {
		t.Fatalf("unexpected auth session %s", body)
	}
	return sess.Token
}

func TestLogin_Rejected(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "POST", "/v1/auth/google-login", `{"access_token":"bad"}`)
	if code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
	if apiErr := decodeAPIError(t, body); apiErr.Code != "unauthorized" {
		t.Errorf("expected unauthorized, got %q", apiErr.Code)
	}

	code, _ = doJSON(t, app, "POST", "/v1/auth/google-login", `{}`)
	if code != 400 {
		t.Fatalf("expected 400 for missing token, got %d", code)
	}
}

func TestFavorites_RequireBearer(t *testing.T) {
	app := setupApp(makeDeps())

	for _, auth := range []string{"", "Bearer ", "Bearer not-a-jwt", "Basic abc"} {
		req := httptest.NewRequest("GET", "/v1/favorites", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != 401 {
			t.Errorf("Authorization %q: expected 401, got %d", auth, resp.StatusCode)
		}
	}
}

func TestFavorites_ToggleAndList(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	token := login(t, app)

	toggle := func(id string) (int, map[string]interface{}) {
		req := httptest.NewRequest("PUT", "/v1/favorites/"+id, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, _ := app.Test(req, -1)
		var out map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	if code, out := toggle("B"); code != 200 || out["added"] != true {
		t.Fatalf("expected B added, got %d %v", code, out)
	}
	if code, _ := toggle("A"); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if code, out := toggle("B"); code != 200 || out["added"] != false {
		t.Fatalf("expected B removed, got %d %v", code, out)
	}
	if code, _ := toggle("NOPE"); code != 404 {
		t.Fatalf("expected 404 for unknown facility, got %d", code)
	}

	req := httptest.NewRequest("GET", "/v1/favorites", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ := app.Test(req, -1)
	var list struct {
		IDs []string `json:"ids"`
	}
	json.NewDecoder(resp.Body).Decode(&list)
	if len(list.IDs) != 1 || list.IDs[0] != "A" {
		t.Errorf("expected [A], got %v", list.IDs)
	}

	id := createSession(t, app, deps)
	req = httptest.NewRequest("GET", "/v1/sessions/"+id+"/favorites", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var views struct {
		Data []usecases.FavoriteView `json:"data"`
	}
	json.NewDecoder(resp.Body).Decode(&views)
	if len(views.Data) != 1 || views.Data[0].Summary != "4/10 lots • Vacancy 40%" {
		t.Errorf("unexpected favorite views %+v", views.Data)
	}
}

// ---- GraphQL ----

func TestGraphQL_Nearby(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	query := fmt.Sprintf(`{"query":"{ nearby(session: \"%s\", sort: \"availability\") { status results { id available_lots congestion_level estimated_fee } } lotTypes { code } }"}`, id)
	code, body := doJSON(t, app, "POST", "/graphql", query)
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}

	var result struct {
		Data struct {
			Nearby struct {
				Status  string `json:"status"`
				Results []struct {
					ID            string   `json:"id"`
					AvailableLots *int     `json:"available_lots"`
					EstimatedFee  *float64 `json:"estimated_fee"`
				} `json:"results"`
			} `json:"nearby"`
			LotTypes []struct {
				Code string `json:"code"`
			} `json:"lotTypes"`
		} `json:"data"`
		Errors []interface{} `json:"errors"`
	}
	json.Unmarshal(body, &result)
	if len(result.Errors) > 0 {
		t.Fatalf("graphql errors: %v", result.Errors)
	}
	if result.Data.Nearby.Status != "ready" || len(result.Data.Nearby.Results) != 2 {
		t.Fatalf("unexpected nearby %s", body)
	}
	r := result.Data.Nearby.Results[0]
	if r.AvailableLots == nil || *r.AvailableLots != 4 || r.EstimatedFee == nil || *r.EstimatedFee != 2.4 {
		t.Errorf("unexpected facility %+v", r)
	}
	if len(result.Data.LotTypes) != 6 {
		t.Errorf("expected 6 lot types, got %d", len(result.Data.LotTypes))
	}
}

func TestGraphQL_UnknownSession(t *testing.T) {
	app := setupApp(makeDeps())

	code, body := doJSON(t, app, "POST", "/graphql", `{"query":"{ focused(session: \"nope\") { id } }"}`)
	if code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if !strings.Contains(string(body), "session not found") {
		t.Errorf("expected session error, got %s", body)
	}
}

// ---- Middleware ----

func TestAccessLogMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	app := fiber.New()
	app.Use(handler.AccessLogMiddleware())
	app.Get("/test/:id", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/test/42", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	line := buf.String()
	for _, want := range []string{`"msg":"http request"`, `"route":"/test/:id"`, `"path":"/test/42"`, `"status":200`} {
		if !strings.Contains(line, want) {
			t.Errorf("access log missing %s: %s", want, line)
		}
	}
}

func TestETag_NotModified(t *testing.T) {
	app := setupApp(makeDeps())

	req := httptest.NewRequest("GET", "/v1/carparks/A", nil)
	resp, _ := app.Test(req, -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on catalog response")
	}

	req = httptest.NewRequest("GET", "/v1/carparks/A", nil)
	req.Header.Set("If-None-Match", etag)
	resp, _ = app.Test(req, -1)
	if resp.StatusCode != 304 {
		t.Errorf("expected 304, got %d", resp.StatusCode)
	}
}

func TestETag_MatchesListAndWildcard(t *testing.T) {
	app := setupApp(makeDeps())

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/lot-types", nil), -1)
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("expected ETag on lot types")
	}

	for _, header := range []string{`W/"other", ` + etag, "*", strings.TrimPrefix(etag, "W/")} {
		req := httptest.NewRequest("GET", "/v1/lot-types", nil)
		req.Header.Set("If-None-Match", header)
		resp, _ := app.Test(req, -1)
		if resp.StatusCode != 304 {
			t.Errorf("If-None-Match %q: expected 304, got %d", header, resp.StatusCode)
		}
	}
}

func TestETag_SkipsSessionState(t *testing.T) {
	deps := makeDeps()
	app := setupApp(deps)
	id := createSession(t, app, deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/v1/sessions/"+id+"/nearby", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("ETag") != "" {
		t.Errorf("session responses must not carry an ETag, got %q", resp.Header.Get("ETag"))
	}
}

func TestDocs_ServesJSONDocument(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) { d.OpenAPIPath = "../../../api/openapi.yaml" })
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/docs/openapi.json", nil), -1)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var doc struct {
		OpenAPI string `json:"openapi"`
		Info    struct {
			Title string `json:"title"`
		} `json:"info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.OpenAPI != "3.0.3" || doc.Info.Title != "Car Park Finder API" {
		t.Errorf("unexpected document header: %+v", doc)
	}
}

func TestDocs_MissingDocument(t *testing.T) {
	deps := makeDeps(func(d *handler.Dependencies) { d.OpenAPIPath = "does/not/exist.yaml" })
	app := setupApp(deps)

	resp, _ := app.Test(httptest.NewRequest("GET", "/docs/openapi.yaml", nil), -1)
	if resp.StatusCode != 404 {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}
