package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/isoplanner/backend/internal/logging"
	"github.com/isoplanner/backend/internal/observability"
	"github.com/isoplanner/backend/internal/repository/postgres"
	"github.com/isoplanner/backend/internal/service"
)

type stubFetcher struct{}

func (stubFetcher) FetchIsochrones(_ context.Context, q service.IsochroneQuery) ([]*geojson.Feature, error) {
	x, y := q.Coord[0], q.Coord[1]
	f := geojson.NewFeature(orb.Polygon{{{x, y}, {x + 0.01, y}, {x + 0.01, y + 0.01}, {x, y}}})
	f.Properties = geojson.Properties{"total_pop": 250.0}
	return []*geojson.Feature{f}, nil
}

type testServer struct {
	app     *fiber.App
	handler *Handler
	repo    *postgres.MockRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	metrics, err := observability.NewCollector(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	log := logging.Noop()
	registry := service.NewSessionRegistry(service.NewOrchestrator(stubFetcher{}, metrics, log), metrics, log)
	repo := postgres.NewMockRepository()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	handler := SetupRoutes(app, registry, repo, metrics, log)
	return &testServer{app: app, handler: handler, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, []byte, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, data, resp.Header.Get(fiber.HeaderContentDisposition)
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	status, body, _ := s.do(t, "POST", "/api/v1/sessions", "")
	if status != fiber.StatusCreated {
		t.Fatalf("create session status = %d: %s", status, body)
	}
	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Data.ID
}

type errorBody struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

func decodeError(t *testing.T, body []byte) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body %q: %v", body, err)
	}
	if !e.Error {
		t.Fatalf("error flag not set: %s", body)
	}
	return e
}

func TestGenerateAndExportFlow(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)
	base := "/api/v1/sessions/" + id

	for _, body := range []string{`{"lng":-0.3763,"lat":39.4699}`, `{"lng":-0.35,"lat":39.48}`} {
		if status, resp, _ := srv.do(t, "POST", base+"/points", body); status != fiber.StatusCreated {
			t.Fatalf("add point status = %d: %s", status, resp)
		}
	}

	status, body, _ := srv.do(t, "POST", base+"/isochrones", `{"times":"5,10","mode":"driving-car"}`)
	if status != fiber.StatusOK {
		t.Fatalf("generate status = %d: %s", status, body)
	}
	var gen struct {
		Data []struct {
			IdentifierSimp string `json:"identifier_simp"`
			TimeInMinutes  int    `json:"timeInMinutes"`
			Mode           string `json:"mode"`
		} `json:"data"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(body, &gen); err != nil {
		t.Fatal(err)
	}
	if gen.Count != 4 || len(gen.Data) != 4 {
		t.Fatalf("generated rows = %d: %s", gen.Count, body)
	}
	for _, row := range gen.Data {
		if row.Mode != "Car" || (row.TimeInMinutes != 5 && row.TimeInMinutes != 10) {
			t.Fatalf("unexpected row %+v", row)
		}
	}

	status, body, _ = srv.do(t, "GET", base+"/table", "")
	if status != fiber.StatusOK || !bytes.Contains(body, []byte(`"count":4`)) {
		t.Fatalf("table status = %d: %s", status, body)
	}

	status, body, disposition := srv.do(t, "GET", base+"/export", "")
	if status != fiber.StatusOK {
		t.Fatalf("export status = %d: %s", status, body)
	}
	if !strings.HasPrefix(disposition, "attachment") || !strings.Contains(disposition, "isochrones.geojson") {
		t.Fatalf("Content-Disposition = %q", disposition)
	}
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		t.Fatalf("export is not a FeatureCollection: %v", err)
	}
	if len(fc.Features) != 4 {
		t.Fatalf("features = %d, want 4", len(fc.Features))
	}

	status, _, disposition = srv.do(t, "GET", base+"/export?format=shp", "")
	if status != fiber.StatusOK || !strings.Contains(disposition, "isochrones.zip") {
		t.Fatalf("shapefile export status = %d disposition = %q", status, disposition)
	}

	srv.handler.WaitBackground()
	records, err := srv.repo.ListExports(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("export history = %d records, want 2", len(records))
	}
	if records[0].SessionID != id || records[0].FeatureCount != 4 || records[0].PointCount != 2 {
		t.Fatalf("unexpected record %+v", records[0])
	}

	status, body, _ = srv.do(t, "GET", "/api/v1/exports?limit=1", "")
	if status != fiber.StatusOK || !bytes.Contains(body, []byte(`"count":1`)) {
		t.Fatalf("export history status = %d: %s", status, body)
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)
	base := "/api/v1/sessions/" + id

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown session", "GET", "/api/v1/sessions/6f1c1c35-6f0a-4a55-9d3b-5b8b8f0c1e2a/points", "", fiber.StatusNotFound},
		{"malformed session id", "GET", "/api/v1/sessions/nope/table", "", fiber.StatusNotFound},
		{"generate without points", "POST", base + "/isochrones", `{"times":"5","mode":"driving-car"}`, fiber.StatusBadRequest},
		{"move unknown point", "PUT", base + "/points/ISO-7", `{"lng":1,"lat":1}`, fiber.StatusNotFound},
		{"remove unknown point", "DELETE", base + "/points/ISO-7", "", fiber.StatusNotFound},
		{"point out of range", "POST", base + "/points", `{"lng":1,"lat":91}`, fiber.StatusBadRequest},
		{"point missing lat", "POST", base + "/points", `{"lng":1}`, fiber.StatusBadRequest},
		{"degenerate ring", "POST", base + "/avoid-polygons", `{"ring":[[0,0],[1,1]]}`, fiber.StatusBadRequest},
		{"unsupported format", "GET", base + "/export?format=kml", "", fiber.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			status, body, _ := srv.do(t, c.method, c.path, c.body)
			if status != c.want {
				t.Fatalf("status = %d, want %d: %s", status, c.want, body)
			}
			decodeError(t, body)
		})
	}
}

func TestGenerateRejectsBadInput(t *testing.T) {
	srv := newTestServer(t)
	base := "/api/v1/sessions/" + srv.createSession(t)
	srv.do(t, "POST", base+"/points", `{"lng":1,"lat":1}`)

	for _, body := range []string{`{"times":"","mode":"driving-car"}`, `{"times":"5,abc","mode":"driving-car"}`, `{"times":"5","mode":""}`, `{"times":"5","mode":"driving-car/../../admin?x=1#"}`} {
		status, resp, _ := srv.do(t, "POST", base+"/isochrones", body)
		if status != fiber.StatusBadRequest {
			t.Fatalf("%s: status = %d: %s", body, status, resp)
		}
	}
}

func TestAvoidPolygonLifecycle(t *testing.T) {
	srv := newTestServer(t)
	base := "/api/v1/sessions/" + srv.createSession(t)

	status, body, _ := srv.do(t, "POST", base+"/avoid-polygons", `{"ring":[[0,0],[1,0],[1,1],[0,1]]}`)
	if status != fiber.StatusCreated {
		t.Fatalf("add status = %d: %s", status, body)
	}

	status, body, _ = srv.do(t, "PUT", base+"/avoid-polygons", `{"old":[[5,5],[6,5],[6,6],[5,5]],"new":[[0,0],[2,0],[2,2],[0,0]]}`)
	if status != fiber.StatusOK || !bytes.Contains(body, []byte(`"matched":false`)) {
		t.Fatalf("unmatched edit status = %d: %s", status, body)
	}

	status, body, _ = srv.do(t, "PUT", base+"/avoid-polygons", `{"old":[[0,0],[1,0],[1,1],[0,1],[0,0]],"new":[[0,0],[2,0],[2,2],[0,0]]}`)
	if status != fiber.StatusOK || !bytes.Contains(body, []byte(`"matched":true`)) {
		t.Fatalf("matched edit status = %d: %s", status, body)
	}

	if status, _, _ := srv.do(t, "DELETE", base+"/avoid-polygons", ""); status != fiber.StatusNoContent {
		t.Fatalf("reset status = %d", status)
	}
}

func TestResetAndCloseSession(t *testing.T) {
	srv := newTestServer(t)
	id := srv.createSession(t)
	base := "/api/v1/sessions/" + id

	srv.do(t, "POST", base+"/points", `{"lng":1,"lat":1}`)
	status, body, _ := srv.do(t, "POST", base+"/reset", "")
	if status != fiber.StatusOK || !bytes.Contains(body, []byte(`"state":"empty"`)) {
		t.Fatalf("reset status = %d: %s", status, body)
	}

	if status, _, _ := srv.do(t, "DELETE", base, ""); status != fiber.StatusNoContent {
		t.Fatalf("close status = %d", status)
	}
	if status, _, _ := srv.do(t, "GET", base, ""); status != fiber.StatusNotFound {
		t.Fatalf("closed session status = %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	srv.createSession(t)

	status, body, _ := srv.do(t, "GET", "/health", "")
	if status != fiber.StatusOK || !bytes.Contains(body, []byte(`"sessions":1`)) {
		t.Fatalf("health status = %d: %s", status, body)
	}

	status, body, _ = srv.do(t, "GET", "/metrics", "")
	if status != fiber.StatusOK || !bytes.Contains(body, []byte("isochrone_active_sessions 1")) {
		t.Fatalf("metrics status = %d: %s", status, body)
	}
}
