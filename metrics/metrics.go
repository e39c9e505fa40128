// Package metrics exports reconciliation results as Prometheus metrics.
//
// lynxsync runs as a short-lived job, so nothing is served over HTTP;
// after every run the registry is written to a node_exporter textfile
// collector file.
package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yllada/lynxsync/common"
	"github.com/yllada/lynxsync/vpn"
)

const namespace = "lynxsync"

// Exporter aggregates run reports into Prometheus collectors.
// It implements vpn.Observer.
type Exporter struct {
	registry *prometheus.Registry
	path     string

	runs          prometheus.Counter
	outcomes      *prometheus.CounterVec
	failures      *prometheus.CounterVec
	serverLoad    *prometheus.GaugeVec
	lastRun       prometheus.Gauge
	lastDuration  prometheus.Gauge
	lastRunFailed prometheus.Gauge
}

// NewExporter creates an exporter writing to path. An empty path keeps
// the metrics in memory only.
func NewExporter(path string) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		path:     path,
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Reconciliation runs performed.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_outcomes_total",
			Help:      "Profile reconciliation outcomes.",
		}, []string{"profile", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_failures_total",
			Help:      "Failed profile reconciliations by failure kind.",
		}, []string{"kind"}),
		serverLoad: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_load_percent",
			Help:      "Last known load of the server each profile points at.",
		}, []string{"profile", "server"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRunFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_failed_profiles",
			Help:      "Profiles that failed in the last run.",
		}),
	}
	e.registry.MustRegister(e.runs, e.outcomes, e.failures, e.serverLoad,
		e.lastRun, e.lastDuration, e.lastRunFailed)
	return e
}

// Registry exposes the underlying registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Observe records report and rewrites the textfile.
func (e *Exporter) Observe(_ context.Context, report *vpn.Report) error {
	e.runs.Inc()
	for _, res := range report.Results {
		e.outcomes.WithLabelValues(res.ProfileID, res.Outcome.String()).Inc()
		if res.Err != nil {
			e.failures.WithLabelValues(common.FailureKind(res.Err)).Inc()
			continue
		}
		if res.Settings != nil {
			// One series per profile: drop the previous server's.
			e.serverLoad.DeletePartialMatch(prometheus.Labels{"profile": res.ProfileID})
			e.serverLoad.WithLabelValues(res.ProfileID, res.Settings.ServerName).Set(float64(res.Settings.Load.Percent))
		}
	}
	e.lastRun.Set(float64(report.Finished.UnixMilli()) / 1000)
	e.lastDuration.Set(report.Duration().Seconds())
	e.lastRunFailed.Set(float64(report.Failed()))

	return e.Flush()
}

// Flush writes the registry to the textfile, if one is configured.
func (e *Exporter) Flush() error {
	if e.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(e.path), 0o755); err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	if err := prometheus.WriteToTextfile(e.path, e.registry); err != nil {
		return fmt.Errorf("metrics: write %s: %w", e.path, err)
	}
	return nil
}
