package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestReadyzReportsFailingDependency(t *testing.T) {
	mux := NewBaseMux(nil,
		ReadyCheck{Name: "db", Check: func(context.Context) error { return nil }},
		ReadyCheck{Name: "kafka", Check: func(context.Context) error { return errors.New("unreachable") }},
	)

	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rw.Code)
	}
	var report struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Status != "unavailable" || report.Checks["kafka"] != "unreachable" || report.Checks["db"] != "ok" {
		t.Fatalf("unexpected report %+v", report)
	}

	rw = httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200 from healthz, got %d", rw.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	mux := NewBaseMux(reg)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if !strings.Contains(rw.Body.String(), "test_total 1") {
		t.Fatalf("expected counter in output, got %q", rw.Body.String())
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("DEBUG") != slog.LevelDebug || ParseLevel("") != slog.LevelInfo || ParseLevel("warning") != slog.LevelWarn {
		t.Fatal("unexpected level mapping")
	}
}

func TestReadyzWithoutChecks(t *testing.T) {
	rw := httptest.NewRecorder()
	NewBaseMux(nil).ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected response %d %s", rw.Code, rw.Body.String())
	}
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "booking-service", "info", "", "dev").Info("hello")
	if !strings.Contains(buf.String(), `"service":"booking-service"`) || !strings.Contains(buf.String(), `"env":"dev"`) {
		t.Fatalf("unexpected json record %q", buf.String())
	}

	buf.Reset()
	newLogger(&buf, "scheduler-service", "warn", "text", "").Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn, got %q", buf.String())
	}
	newLogger(&buf, "scheduler-service", "warn", "TEXT", "").Warn("kept")
	if !strings.Contains(buf.String(), "service=scheduler-service") {
		t.Fatalf("unexpected text record %q", buf.String())
	}
}
