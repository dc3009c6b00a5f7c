package report

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

// ErrNotFound is returned when no run was recorded at the requested time.
var ErrNotFound = errors.New("no history recorded")

type MetricValue struct {
	Metric string
	Value  string
}

// Profile is the measurement view of one table at one execution time.
type Profile struct {
	Table             string
	ExecutionDatetime types.DateTime
	// Overview holds table-level metrics other than schema bookkeeping.
	Overview []MetricValue
	// Columns maps column name to metric to value.
	Columns      map[string]map[string]string
	Schema       schema.Schema
	SchemaChange schema.ChangeResult
	// PreviousSchema and Changes are set only when the schema changed.
	PreviousSchema schema.Schema
	Changes        []schema.Change
}

// ColumnNames returns the pivot's row labels in name order.
func (p *Profile) ColumnNames() []string {
	names := make([]string, 0, len(p.Columns))
	for name := range p.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnMetrics returns every metric appearing in the pivot, in name order.
func (p *Profile) ColumnMetrics() []string {
	seen := map[string]bool{}
	var metrics []string
	for _, byMetric := range p.Columns {
		for metric := range byMetric {
			if !seen[metric] {
				seen[metric] = true
				metrics = append(metrics, metric)
			}
		}
	}
	sort.Strings(metrics)
	return metrics
}

// TestSummary is the test view of one execution time.
type TestSummary struct {
	ExecutionDatetime types.DateTime
	NumTests          int
	NumFailed         int
	NumSkipped        int
	// SuccessRate is the truncated integer percentage of passed tests, 0
	// when there are none.
	SuccessRate int
	Failed      []record.TestResult
}

type Reporter struct {
	reader store.Reader
	cache  *Cache
}

// NewReporter reads through cache when it is non-nil.
func NewReporter(reader store.Reader, cache *Cache) *Reporter {
	return &Reporter{reader: reader, cache: cache}
}

func (r *Reporter) measurements(ctx context.Context, table string, at time.Time) ([]record.Measurement, error) {
	key := "measurements:" + table + "@" + types.NewDateTime(at).String()
	return cached(r.cache, key, func() ([]record.Measurement, error) {
		return r.reader.Measurements(ctx, table, at)
	})
}

func (r *Reporter) ExecutionTimes(ctx context.Context, target store.Target) ([]time.Time, error) {
	return cached(r.cache, "execution_times:"+string(target), func() ([]time.Time, error) {
		return r.reader.ExecutionTimes(ctx, target)
	})
}

func (r *Reporter) Tables(ctx context.Context) ([]string, error) {
	return cached(r.cache, "tables", func() ([]string, error) {
		return r.reader.TableNames(ctx)
	})
}

func (r *Reporter) Profile(ctx context.Context, table string, at time.Time) (*Profile, error) {
	ms, err := r.measurements(ctx, table, at)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, errors.Wrapf(ErrNotFound, "table %s at %s", table, types.NewDateTime(at))
	}

	p := &Profile{
		Table:             table,
		ExecutionDatetime: types.NewDateTime(at),
		Columns:           map[string]map[string]string{},
	}
	var schemaValue string
	for _, m := range ms {
		switch {
		case m.ColumnName != nil:
			byMetric, ok := p.Columns[*m.ColumnName]
			if !ok {
				byMetric = map[string]string{}
				p.Columns[*m.ColumnName] = byMetric
			}
			byMetric[m.Metric] = m.Value
		case m.Metric == schema.MetricSchema:
			schemaValue = m.Value
		case m.Metric == schema.MetricSchemaChange:
			if err := decodeChange(m.Value, &p.SchemaChange); err != nil {
				return nil, err
			}
		default:
			p.Overview = append(p.Overview, MetricValue{Metric: m.Metric, Value: m.Value})
		}
	}

	if schemaValue == "" {
		return nil, errors.Errorf("no %s measurement for %s at %s", schema.MetricSchema, table, p.ExecutionDatetime)
	}
	if p.Schema, err = schema.Parse(schemaValue); err != nil {
		return nil, err
	}

	if p.SchemaChange.SchemaChanged && p.SchemaChange.LatestExecutionDT != nil {
		prev, err := r.schemaAt(ctx, table, p.SchemaChange.LatestExecutionDT.Time)
		if err != nil {
			return nil, errors.Wrap(err, "previous schema")
		}
		p.PreviousSchema = prev
		p.Changes = schema.Diff(prev, p.Schema)
	}
	return p, nil
}

func (r *Reporter) schemaAt(ctx context.Context, table string, at time.Time) (schema.Schema, error) {
	ms, err := r.measurements(ctx, table, at)
	if err != nil {
		return nil, err
	}
	for _, m := range ms {
		if m.Metric == schema.MetricSchema && m.ColumnName == nil {
			return schema.Parse(m.Value)
		}
	}
	return nil, errors.Wrapf(ErrNotFound, "%s measurement for %s at %s", schema.MetricSchema, table, types.NewDateTime(at))
}

func (r *Reporter) Tests(ctx context.Context, at time.Time) (*TestSummary, error) {
	key := "test_results@" + types.NewDateTime(at).String()
	trs, err := cached(r.cache, key, func() ([]record.TestResult, error) {
		return r.reader.TestResults(ctx, at)
	})
	if err != nil {
		return nil, err
	}

	s := &TestSummary{ExecutionDatetime: types.NewDateTime(at), NumTests: len(trs)}
	passed := 0
	for _, tr := range trs {
		if tr.Passed {
			passed++
		} else {
			s.NumFailed++
			s.Failed = append(s.Failed, tr)
		}
		if tr.Skipped {
			s.NumSkipped++
		}
	}
	if s.NumTests > 0 {
		s.SuccessRate = passed * 100 / s.NumTests
	}
	return s, nil
}

func decodeChange(value string, out *schema.ChangeResult) error {
	if err := json.Unmarshal([]byte(value), out); err != nil {
		return errors.Wrapf(err, "decode %s value", schema.MetricSchemaChange)
	}
	return nil
}
