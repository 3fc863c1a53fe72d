package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "lefse"

var (
	// RunsTotal counts finished pipeline runs by outcome (ok or failed).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Pipeline runs by outcome.",
	}, []string{"outcome"})

	// StageDuration observes tool chain stage wall time.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "stage_duration_seconds",
		Help:      "Wall time of external tool chain stages.",
		Buckets:   prometheus.ExponentialBuckets(0.25, 2, 12),
	}, []string{"stage", "outcome"})

	PortalRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "portal_requests_total",
		Help:      "Signed portal requests by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	ArtifactUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "artifact_uploads_total",
		Help:      "Artifact uploads to object storage by outcome.",
	}, []string{"outcome"})
)

// Outcome label values.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeSkip   = "skipped"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
