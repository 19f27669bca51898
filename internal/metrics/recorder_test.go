package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/refreshkeeper/internal/model"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveRotation()
	r.ObserveRotation()
	r.ObserveReuse(1)
	r.ObserveReuse(0)
	r.ObserveRevocation()
	r.ObservePruned(3)
	r.ObservePruned(0)
	r.ObserveFailure("refresh", model.ErrInvalidToken)
	r.ObserveFailure("refresh", fmt.Errorf("failed to save user: %w", model.ErrPersistenceConflict))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.rotations))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.reuses))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.descendants))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.revocations))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.pruned))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("refresh", ReasonInvalidToken)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failures.WithLabelValues("refresh", ReasonConflict)))
}

func TestRecorder_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}

func TestReason(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: model.ErrInvalidToken, want: ReasonInvalidToken},
		{err: fmt.Errorf("wrapped: %w", model.ErrPersistenceConflict), want: ReasonConflict},
		{err: model.ErrChainCorrupted, want: ReasonChainCorrupted},
		{err: model.ErrNotFound, want: ReasonNotFound},
		{err: errors.New("disk full"), want: ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Reason(tt.err))
		})
	}
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)
	r.ObserveRotation()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "refreshkeeper_token_rotations_total 1")
}
