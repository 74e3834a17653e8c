package runtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// ReadyCheck is a named dependency check for /readyz.
type ReadyCheck struct {
	Name  string
	Check func(context.Context) error
}

const readyTimeout = 2 * time.Second

type readyReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewBaseMux registers /healthz, /readyz and /metrics (served from gatherer).
// Readiness checks run concurrently, each bounded by a short timeout.
func NewBaseMux(gatherer prometheus.Gatherer, checks ...ReadyCheck) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		report := runChecks(r.Context(), checks)
		status := http.StatusOK
		if report.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

func runChecks(ctx context.Context, checks []ReadyCheck) readyReport {
	results := make([]string, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		if c.Check == nil {
			results[i] = "ok"
			continue
		}
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, readyTimeout)
			defer cancel()
			if err := c.Check(checkCtx); err != nil {
				results[i] = err.Error()
				return nil
			}
			results[i] = "ok"
			return nil
		})
	}
	_ = g.Wait()

	report := readyReport{Status: "ok"}
	if len(checks) > 0 {
		report.Checks = make(map[string]string, len(checks))
	}
	for i, c := range checks {
		name := c.Name
		if name == "" {
			name = "dependency"
		}
		report.Checks[name] = results[i]
		if results[i] != "ok" {
			report.Status = "unavailable"
		}
	}
	return report
}
