// Package metrics exposes run counters for the node_exporter textfile
// collector. The pipeline is a batch job, so nothing is served over HTTP;
// the registry is written once when the run ends.
package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
)

// Recorder holds the run's metrics in a private registry.
type Recorder struct {
	reg *prometheus.Registry

	DayOutcomes  *prometheus.CounterVec
	TierAttempts *prometheus.CounterVec
	RunDuration  prometheus.Gauge
	LastRun      prometheus.Gauge
}

// New registers the run metrics.
func New() (*Recorder, error) {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		reg: reg,
		DayOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnssproc_day_outcomes_total",
			Help: "Station/days processed, by terminal status.",
		}, []string{"status"}),
		TierAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gnssproc_tier_attempts_total",
			Help: "Orbit tier attempts, by tier and result.",
		}, []string{"tier", "result"}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gnssproc_run_duration_seconds",
			Help: "Wall-clock duration of the last run.",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gnssproc_last_run_timestamp_seconds",
			Help: "Unix time the last run finished.",
		}),
	}
	for _, c := range []prometheus.Collector{r.DayOutcomes, r.TierAttempts, r.RunDuration, r.LastRun} {
		if err := reg.Register(c); err != nil {
			return nil, eris.Wrap(err, "metrics: register")
		}
	}
	return r, nil
}

// Day counts a finished station/day.
func (r *Recorder) Day(status string) {
	if r == nil {
		return
	}
	r.DayOutcomes.WithLabelValues(status).Inc()
}

// Attempt counts one tier attempt.
func (r *Recorder) Attempt(tier, result string) {
	if r == nil {
		return
	}
	r.TierAttempts.WithLabelValues(tier, result).Inc()
}

// Finish records the run duration and completion time.
func (r *Recorder) Finish(d time.Duration, at time.Time) {
	if r == nil {
		return
	}
	r.RunDuration.Set(d.Seconds())
	r.LastRun.Set(float64(at.Unix()))
}

// Gatherer returns the registry for inspection.
func (r *Recorder) Gatherer() prometheus.Gatherer { return r.reg }

// WriteTextfile writes the registry in the text exposition format. An empty
// path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "metrics: create textfile directory")
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return eris.Wrapf(err, "metrics: write %s", path)
	}
	return nil
}
