// Package metrics exposes refresh token lifecycle counters to Prometheus.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dtroode/refreshkeeper/internal/model"
)

const namespace = "refreshkeeper"

// Failure reasons attached to the failures counter.
const (
	ReasonInvalidToken   = "invalid_token"
	ReasonConflict       = "conflict"
	ReasonChainCorrupted = "chain_corrupted"
	ReasonNotFound       = "not_found"
	ReasonInternal       = "internal"
)

// Recorder implements the token service metrics sink.
type Recorder struct {
	rotations   prometheus.Counter
	reuses      prometheus.Counter
	descendants prometheus.Counter
	revocations prometheus.Counter
	pruned      prometheus.Counter
	failures    *prometheus.CounterVec
}

// NewRecorder creates the counters and registers them with registerer.
func NewRecorder(registerer prometheus.Registerer) *Recorder {
	r := &Recorder{
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_rotations_total",
			Help:      "Refresh tokens successfully rotated",
		}),
		reuses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_reuse_detected_total",
			Help:      "Revoked refresh tokens presented for rotation",
		}),
		descendants: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_reuse_revoked_descendants_total",
			Help:      "Active refresh tokens revoked by reuse detection",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_revocations_total",
			Help:      "Refresh tokens revoked on request",
		}),
		pruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_pruned_total",
			Help:      "Inactive refresh tokens removed after the retention period",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_failures_total",
			Help:      "Failed token operations by reason",
		}, []string{"operation", "reason"}),
	}

	registerer.MustRegister(r.rotations, r.reuses, r.descendants, r.revocations, r.pruned, r.failures)

	return r
}

func (r *Recorder) ObserveRotation() {
	r.rotations.Inc()
}

func (r *Recorder) ObserveReuse(revokedDescendants int) {
	r.reuses.Inc()
	r.descendants.Add(float64(revokedDescendants))
}

func (r *Recorder) ObserveRevocation() {
	r.revocations.Inc()
}

func (r *Recorder) ObservePruned(n int) {
	if n > 0 {
		r.pruned.Add(float64(n))
	}
}

func (r *Recorder) ObserveFailure(operation string, err error) {
	r.failures.WithLabelValues(operation, Reason(err)).Inc()
}

// Reason maps an operation error to a failure label.
func Reason(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidToken):
		return ReasonInvalidToken
	case errors.Is(err, model.ErrPersistenceConflict):
		return ReasonConflict
	case errors.Is(err, model.ErrChainCorrupted):
		return ReasonChainCorrupted
	case errors.Is(err, model.ErrNotFound):
		return ReasonNotFound
	default:
		return ReasonInternal
	}
}

// Handler serves the metrics gathered by gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
