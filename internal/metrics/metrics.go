// Package metrics holds the prometheus collectors for srcweb.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "srcweb"

var (
	// buildsTotal counts builds by outcome (completed, failed).
	buildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "build",
		Name:      "total",
		Help:      "Builds run, by outcome",
	}, []string{"outcome"})

	buildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "build",
		Name:      "duration_seconds",
		Help:      "Wall time from spawn to subprocess exit",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
	})

	// diagnosticsTotal counts lowered diagnostics by compiler level.
	diagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "build",
		Name:      "diagnostics_total",
		Help:      "Diagnostics streamed to clients, by level",
	}, []string{"level"})

	// softErrorsTotal counts skipped input by kind (diagnostic_json, analysis_file, stdout).
	softErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "soft_errors_total",
		Help:      "Malformed input that was logged and skipped",
	}, []string{"kind"})

	indexRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "rebuild_seconds",
		Help:      "Time to load and ingest analysis artifacts",
		Buckets:   prometheus.DefBuckets,
	})

	indexSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "index",
		Name:      "entries",
		Help:      "Entries in the current cross-reference index, by table",
	}, []string{"table"})

	pullEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pull",
		Name:      "entries",
		Help:      "Entries held by the pull cache",
	})

	fileCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "filecache",
		Name:      "lookups_total",
		Help:      "File cache lookups, by result (hit, miss)",
	}, []string{"result"})
)

// RecordBuild records a finished build.
func RecordBuild(success bool, duration time.Duration) {
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	buildsTotal.WithLabelValues(outcome).Inc()
	if duration > 0 {
		buildDuration.Observe(duration.Seconds())
	}
}

func RecordDiagnostic(level string) {
	diagnosticsTotal.WithLabelValues(level).Inc()
}

func RecordSoftError(kind string) {
	softErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordIndexRebuild records an index swap and its table sizes.
func RecordIndexRebuild(duration time.Duration, defs, refs, crates int) {
	indexRebuildDuration.Observe(duration.Seconds())
	indexSize.WithLabelValues("defs").Set(float64(defs))
	indexSize.WithLabelValues("refs").Set(float64(refs))
	indexSize.WithLabelValues("crates").Set(float64(crates))
}

func SetPullEntries(n int) {
	pullEntries.Set(float64(n))
}

func RecordFileCacheLookup(hit bool) {
	if hit {
		fileCacheLookups.WithLabelValues("hit").Inc()
		return
	}
	fileCacheLookups.WithLabelValues("miss").Inc()
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
