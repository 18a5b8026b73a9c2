package services

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

var _ ConsentRecorder = (*MonitoringService)(nil)

func TestMonitoringGateCounters(t *testing.T) {
	svc := &MonitoringService{}

	before := testutil.ToFloat64(consentDecisionsTotal.WithLabelValues("declined", "prompt"))
	svc.ConsentRecorded("declined", "prompt")
	assert.Equal(t, before+1, testutil.ToFloat64(consentDecisionsTotal.WithLabelValues("declined", "prompt")))

	open := testutil.ToFloat64(rateLimitErrorsTotal.WithLabelValues("open"))
	closed := testutil.ToFloat64(rateLimitErrorsTotal.WithLabelValues("closed"))
	svc.RateLimitError(true)
	svc.RateLimitError(false)
	svc.RateLimitError(false)
	assert.Equal(t, open+1, testutil.ToFloat64(rateLimitErrorsTotal.WithLabelValues("open")))
	assert.Equal(t, closed+2, testutil.ToFloat64(rateLimitErrorsTotal.WithLabelValues("closed")))
}
