package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/quality-watch/internal/pipeline"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

var at = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func sampleRun(passed, changed bool) *pipeline.Run {
	return &pipeline.Run{Summary: types.Summary{
		RunID:     "r-1",
		TableName: "shop.orders",
		IsPassed:  passed,
		SchemaCheckResult: types.SchemaCheck{
			ExecutionDT:   types.NewDateTime(at),
			SchemaChanged: changed,
		},
		RecordCount: &types.RecordCount{Measurements: 12, TestResults: 3},
	}}
}

func TestObserve(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.Observe(sampleRun(true, true))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunPassed.WithLabelValues("shop.orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemaChanged.WithLabelValues("shop.orders")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.HistoryRecords.WithLabelValues("shop.orders", "measurements")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.HistoryRecords.WithLabelValues("shop.orders", "test_results")))
	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.LastRun.WithLabelValues("shop.orders")))

	failed := sampleRun(false, false)
	failed.WriteErr = errors.New("store down")
	failed.Summary.RecordCount = nil
	m.Observe(failed)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunPassed.WithLabelValues("shop.orders")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SchemaChanged.WithLabelValues("shop.orders")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PersistFailures.WithLabelValues("shop.orders")))
	// counts keep the last successful write
	assert.Equal(t, 12.0, testutil.ToFloat64(m.HistoryRecords.WithLabelValues("shop.orders", "measurements")))
}

func TestPusher_Publish(t *testing.T) {
	var (
		method string
		path   string
		body   string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	p := NewPusher(ts.URL, "qualitywatch")
	require.NoError(t, p.Publish(context.Background(), sampleRun(true, false)))
	assert.Equal(t, http.MethodPut, method)
	assert.True(t, strings.HasPrefix(path, "/metrics/job/qualitywatch/table/"), path)
	assert.NotEmpty(t, body)
}

func TestPusher_GatewayError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := NewPusher(ts.URL, "qualitywatch").Publish(context.Background(), sampleRun(true, false))
	assert.Error(t, err)
}
