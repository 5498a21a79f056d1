package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := keywordsTotal
	Init()
	require.NotNil(t, first)
	assert.Same(t, first, keywordsTotal)
}

func TestObserveFunctions(t *testing.T) {
	Init()

	beforeCandidates := testutil.ToFloat64(candidatesTotal)
	beforeBytes := testutil.ToFloat64(mediaBytesTotal)
	beforeBlocked := testutil.ToFloat64(blockedTotal)

	ObserveKeyword("observe-test")
	AddCandidates(3)
	AddCandidates(-1)
	ObserveDetail("observe-test")
	ObserveMedia("observe-test", 2048)
	ObserveMedia("observe-test", 0)
	ObserveBlocked()
	ObserveRetry("observe-test")
	ObservePacingDelay(1500 * time.Millisecond)
	ObserveExport("xlsx", "observe-test")

	assert.Equal(t, 1.0, testutil.ToFloat64(keywordsTotal.WithLabelValues("observe-test")))
	assert.Equal(t, 3.0, testutil.ToFloat64(candidatesTotal)-beforeCandidates)
	assert.Equal(t, 1.0, testutil.ToFloat64(detailsTotal.WithLabelValues("observe-test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(mediaTotal.WithLabelValues("observe-test")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(mediaBytesTotal)-beforeBytes)
	assert.Equal(t, 1.0, testutil.ToFloat64(blockedTotal)-beforeBlocked)
	assert.Equal(t, 1.0, testutil.ToFloat64(retriesTotal.WithLabelValues("observe-test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(exportsTotal.WithLabelValues("xlsx", "observe-test")))
	assert.Equal(t, 1, testutil.CollectAndCount(pacingDelaySeconds, "prodrefs_pacing_delay_seconds"))
}

func TestHandlerServesCollectors(t *testing.T) {
	ObserveKeyword("handler-test")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `prodrefs_keywords_total{status="handler-test"} 1`), body)
}
