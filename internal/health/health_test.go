package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/visema/internal/health"
	"github.com/MrWong99/visema/pkg/types"
)

// ─── helpers ─────────────────────────────────────────────────────────────────

type fixedProbe struct {
	status types.HealthStatus
}

func (p fixedProbe) Health(context.Context) types.HealthStatus { return p.status }

func doRequest(t *testing.T, h http.HandlerFunc, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

// ─── liveness ────────────────────────────────────────────────────────────────

func TestHealthzAlwaysOK(t *testing.T) {
	t.Parallel()

	h := health.New(health.Checker{
		Name:  "doomed",
		Check: func(context.Context) error { return errors.New("down") },
	})
	rec, body := doRequest(t, h.Healthz, "/healthz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if body["status"] != "ok" {
		t.Errorf("body status = %v, want ok", body["status"])
	}
}

// ─── readiness ───────────────────────────────────────────────────────────────

func TestReadyzAllPass(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "a", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "b", Check: func(context.Context) error { return nil }},
	)
	rec, body := doRequest(t, h.Readyz, "/readyz")

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	checks := body["checks"].(map[string]any)
	if checks["a"] != "ok" || checks["b"] != "ok" {
		t.Errorf("checks = %v, want all ok", checks)
	}
}

func TestReadyzFailurePropagates(t *testing.T) {
	t.Parallel()

	h := health.New(
		health.Checker{Name: "good", Check: func(context.Context) error { return nil }},
		health.Checker{Name: "bad", Check: func(context.Context) error { return errors.New("no route") }},
	)
	rec, body := doRequest(t, h.Readyz, "/readyz")

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if body["status"] != "fail" {
		t.Errorf("body status = %v, want fail", body["status"])
	}
	checks := body["checks"].(map[string]any)
	if !strings.Contains(checks["bad"].(string), "no route") {
		t.Errorf("bad check = %v, want the failure text", checks["bad"])
	}
}

// ─── generator adapter ───────────────────────────────────────────────────────

func TestForGeneratorHealthy(t *testing.T) {
	t.Parallel()

	c := health.ForGenerator("tts", fixedProbe{types.HealthStatus{Healthy: true}})
	if err := c.Check(context.Background()); err != nil {
		t.Errorf("Check: %v, want nil", err)
	}
}

func TestForGeneratorUnhealthyCarriesDetail(t *testing.T) {
	t.Parallel()

	c := health.ForGenerator("llm", fixedProbe{types.HealthStatus{
		Healthy: false,
		Detail:  "401 invalid api key",
	}})
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("Check = %v, want the detail text", err)
	}
}

func TestForGeneratorUnhealthyWithoutDetail(t *testing.T) {
	t.Parallel()

	c := health.ForGenerator("avatar", fixedProbe{types.HealthStatus{Healthy: false}})
	err := c.Check(context.Background())
	if err == nil || !strings.Contains(err.Error(), "avatar") {
		t.Errorf("Check = %v, want a named failure", err)
	}
}

func TestRegisterMountsRoutes(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	health.New().Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, rec.Code)
		}
	}
}
