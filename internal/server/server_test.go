package server

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"sonar-sim-go/internal/config"
	"sonar-sim-go/internal/types"
)

func testGeometry() types.ScanGeometry {
	return types.ScanGeometry{
		HorizontalFOV:    1.04,
		VerticalFOV:      0.26,
		NearClip:         0.1,
		FarClip:          30,
		CameraCount:      2,
		RangeCountWidth:  640,
		RangeCountHeight: 8,
	}
}

func decodePayload(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func postGeometry(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.handleGeometry(rec, httptest.NewRequest("POST", "/geometry", strings.NewReader(body)))
	return rec
}

func TestHandleConfig(t *testing.T) {
	srv := New(config.AppConfig{
		Port:      9999,
		FrameRate: 10,
		Geometry:  testGeometry(),
	}, Hooks{}, nil)

	req := httptest.NewRequest("GET", "/config", nil)
	rec := httptest.NewRecorder()
	srv.handleConfig(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	payload := decodePayload(t, rec)
	if payload["port"].(float64) != 9999 {
		t.Fatalf("unexpected port: %v", payload["port"])
	}
	if math.Abs(payload["total_hfov"].(float64)-2.08) > 1e-9 {
		t.Fatalf("unexpected total_hfov: %v", payload["total_hfov"])
	}
	geom := payload["geometry"].(map[string]any)
	if geom["range_count_width"].(float64) != 640 {
		t.Fatalf("unexpected range_count_width: %v", geom["range_count_width"])
	}
}

func TestHandleConfigPrefersAppliedGeometry(t *testing.T) {
	applied := testGeometry()
	applied.CameraCount = 3
	srv := New(config.AppConfig{Geometry: testGeometry()}, Hooks{
		Geometry: func() (types.ScanGeometry, bool) { return applied, true },
	}, nil)

	rec := httptest.NewRecorder()
	srv.handleConfig(rec, httptest.NewRequest("GET", "/config", nil))

	geom := decodePayload(t, rec)["geometry"].(map[string]any)
	if geom["camera_count"].(float64) != 3 {
		t.Fatalf("expected applied geometry, got camera_count %v", geom["camera_count"])
	}
}

func TestHandleStatusCountsClients(t *testing.T) {
	srv := New(config.AppConfig{}, Hooks{
		Status: func() map[string]any {
			return map[string]any{"state": "rendering", "metrics": map[string]any{"frames": 3}}
		},
	}, nil)

	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))

	payload := decodePayload(t, rec)
	if payload["state"] != "rendering" {
		t.Fatalf("unexpected state: %v", payload["state"])
	}
	metrics := payload["metrics"].(map[string]any)
	if metrics["ws_clients"].(float64) != 0 {
		t.Fatalf("unexpected ws_clients: %v", metrics["ws_clients"])
	}
}

func TestHandleGeometryPost(t *testing.T) {
	var got types.ScanGeometry
	srv := New(config.AppConfig{}, Hooks{
		SetGeometry: func(g types.ScanGeometry) error {
			got = g
			return g.Validate()
		},
	}, nil)

	body, err := json.Marshal(testGeometry())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec := postGeometry(t, srv, string(body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if diff := cmp.Diff(testGeometry(), got); diff != "" {
		t.Fatalf("geometry mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleGeometryRejectsInvalid(t *testing.T) {
	srv := New(config.AppConfig{}, Hooks{
		SetGeometry: func(g types.ScanGeometry) error {
			return errors.Wrap(g.Validate(), "rejected")
		},
	}, nil)

	bad := testGeometry()
	bad.CameraCount = 4
	body, err := json.Marshal(bad)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if rec := postGeometry(t, srv, string(body)); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid geometry: unexpected status %d", rec.Code)
	}
	if rec := postGeometry(t, srv, "{"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json: unexpected status %d", rec.Code)
	}

	rec := httptest.NewRecorder()
	srv.handleGeometry(rec, httptest.NewRequest("DELETE", "/geometry", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("delete: unexpected status %d", rec.Code)
	}
}

func TestHandlerServesIndex(t *testing.T) {
	handler, err := New(config.AppConfig{}, Hooks{}, nil).Handler()
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "sonar-sim") {
		t.Fatalf("index page not served")
	}
}
