package metrics

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/alexanderjulianmartinez/quality-watch/internal/pipeline"
)

// Metrics holds the gauges describing the latest run per table.
type Metrics struct {
	RunPassed       *prometheus.GaugeVec
	SchemaChanged   *prometheus.GaugeVec
	HistoryRecords  *prometheus.GaugeVec
	LastRun         *prometheus.GaugeVec
	PersistFailures *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		RunPassed: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qualitywatch_run_passed",
				Help: "1 when the latest scan of the table passed",
			},
			[]string{"table"},
		),
		SchemaChanged: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qualitywatch_schema_changed",
				Help: "1 when the latest scan saw a schema different from the previous one",
			},
			[]string{"table"},
		),
		HistoryRecords: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qualitywatch_history_records",
				Help: "Rows present in each history target after the latest write",
			},
			[]string{"table", "target"},
		),
		LastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qualitywatch_last_run_timestamp_seconds",
				Help: "Execution timestamp of the latest scan",
			},
			[]string{"table"},
		),
		PersistFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qualitywatch_persist_failures_total",
				Help: "Runs whose history write failed",
			},
			[]string{"table"},
		),
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Observe records one finished run.
func (m *Metrics) Observe(run *pipeline.Run) {
	s := run.Summary
	m.RunPassed.WithLabelValues(s.TableName).Set(boolGauge(s.IsPassed))
	m.SchemaChanged.WithLabelValues(s.TableName).Set(boolGauge(s.SchemaCheckResult.SchemaChanged))
	m.LastRun.WithLabelValues(s.TableName).Set(float64(s.SchemaCheckResult.ExecutionDT.Unix()))
	if run.WriteErr != nil {
		m.PersistFailures.WithLabelValues(s.TableName).Inc()
	}
	if s.RecordCount != nil {
		m.HistoryRecords.WithLabelValues(s.TableName, "measurements").Set(float64(s.RecordCount.Measurements))
		m.HistoryRecords.WithLabelValues(s.TableName, "test_results").Set(float64(s.RecordCount.TestResults))
	}
}

const pushTimeout = 10 * time.Second

// Pusher observes each run and pushes the registry to a Pushgateway,
// grouped by table.
type Pusher struct {
	metrics  *Metrics
	gatherer prometheus.Gatherer
	url      string
	job      string
}

func NewPusher(url, job string) *Pusher {
	reg := prometheus.NewRegistry()
	return &Pusher{
		metrics:  NewMetrics(reg),
		gatherer: reg,
		url:      url,
		job:      job,
	}
}

func (p *Pusher) Name() string {
	return "pushgateway"
}

func (p *Pusher) Publish(ctx context.Context, run *pipeline.Run) error {
	p.metrics.Observe(run)

	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()
	err := push.New(p.url, p.job).
		Gatherer(p.gatherer).
		Grouping("table", run.Summary.TableName).
		PushContext(ctx)
	return errors.Wrap(err, "push metrics")
}
