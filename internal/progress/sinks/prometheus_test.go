package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/prodrefs/internal/progress"
)

func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := "0190d6c4-9a51-7cc2-8c1e-3b9f1f7d2a11"
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageKeywordStart, Keyword: "a", Index: 1, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageKeywordDone, Keyword: "a", Index: 1, Total: 3, Count: 4, Dur: 20 * time.Second},
		{RunID: runID, TS: now, Stage: progress.StageKeywordStart, Keyword: "b", Index: 2, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageKeywordDone, Keyword: "b", Index: 2, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageKeywordStart, Keyword: "c", Index: 3, Total: 3},
		{RunID: runID, TS: now, Stage: progress.StageBlocked, Keyword: "c", Index: 3, Total: 3},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.keywordTotal))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.keywordPosition))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.keywordsDone.WithLabelValues("rows")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.keywordsDone.WithLabelValues("empty")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.keywordsDone.WithLabelValues("blocked")))
	require.Equal(t, 4.0, testutil.ToFloat64(sink.rowsProduced))
	require.Equal(t, 1, testutil.CollectAndCount(sink.keywordRuntime, "prodrefs_keyword_runtime_seconds"))

	done := progress.Event{RunID: runID, TS: now, Stage: progress.StageRunDone, Dur: time.Minute, Note: "blocked"}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("error")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("success")))
}

func TestPrometheusSinkDoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
