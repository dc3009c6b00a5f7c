package scan

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

// ErrMalformed marks a scan result that lacks a field the pipeline requires.
var ErrMalformed = errors.New("malformed scan result")

// Scanner is the scanning collaborator producing one result per run.
type Scanner interface {
	Scan(ctx context.Context) (*Result, error)
}

type Measurement struct {
	Metric     string  `json:"metric" yaml:"metric"`
	ColumnName *string `json:"columnName,omitempty" yaml:"columnName,omitempty"`
	Value      any     `json:"value" yaml:"value"`
}

type TestResult struct {
	ID          string         `json:"id" yaml:"id"`
	Title       string         `json:"title" yaml:"title"`
	Description *string        `json:"description,omitempty" yaml:"description,omitempty"`
	Expression  *string        `json:"expression,omitempty" yaml:"expression,omitempty"`
	ColumnName  *string        `json:"columnName,omitempty" yaml:"columnName,omitempty"`
	Source      *string        `json:"source,omitempty" yaml:"source,omitempty"`
	Passed      *bool          `json:"passed" yaml:"passed"`
	Skipped     *bool          `json:"skipped" yaml:"skipped"`
	Values      map[string]any `json:"values,omitempty" yaml:"values,omitempty"`
}

// Document is the raw output of a scan engine.
type Document struct {
	TableName    string        `json:"tableName,omitempty" yaml:"tableName,omitempty"`
	Measurements []Measurement `json:"measurements" yaml:"measurements"`
	TestResults  []TestResult  `json:"testResults" yaml:"testResults"`
	Errors       []string      `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// Passed reports whether the scan raised no errors and no test failed.
func (d Document) Passed() bool {
	if len(d.Errors) > 0 {
		return false
	}
	for _, tr := range d.TestResults {
		if tr.Passed != nil && !*tr.Passed {
			return false
		}
	}
	return true
}

// Result wraps a scan engine document with the table it ran against and the
// moment the scan completed.
type Result struct {
	tableName    string
	executedAt   types.DateTime
	passed       bool
	measurements []Measurement
	testResults  []TestResult
}

func NewResult(dialect Dialect, tableName string, executedAt time.Time, doc Document) *Result {
	return &Result{
		tableName:    dialect.NormalizeTableName(tableName),
		executedAt:   types.NewDateTime(executedAt),
		passed:       doc.Passed(),
		measurements: append([]Measurement(nil), doc.Measurements...),
		testResults:  append([]TestResult(nil), doc.TestResults...),
	}
}

func (r *Result) TableName() string {
	return r.tableName
}

func (r *Result) ExecutionDatetime() types.DateTime {
	return r.executedAt
}

func (r *Result) IsPassed() bool {
	return r.passed
}

func (r *Result) Measurements() []Measurement {
	return append([]Measurement(nil), r.measurements...)
}

func (r *Result) TestResults() []TestResult {
	return append([]TestResult(nil), r.testResults...)
}

// Measurement returns the first measurement with the given metric and column.
// An empty column selects table-level measurements.
func (r *Result) Measurement(metric, column string) (Measurement, bool) {
	for _, m := range r.measurements {
		if m.Metric != metric {
			continue
		}
		name := ""
		if m.ColumnName != nil {
			name = *m.ColumnName
		}
		if name == column {
			return m, true
		}
	}
	return Measurement{}, false
}

// Schema decodes the table-level schema measurement.
func (r *Result) Schema() (schema.Schema, error) {
	m, ok := r.Measurement(schema.MetricSchema, "")
	if !ok {
		return nil, errors.Wrapf(ErrMalformed, "no %q measurement for table %s", schema.MetricSchema, r.tableName)
	}
	s, err := schema.FromValue(m.Value)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "%s measurement: %v", schema.MetricSchema, err)
	}
	return s, nil
}

// AddSchemaCheckResult appends the drift outcome as a synthetic measurement.
func (r *Result) AddSchemaCheckResult(res schema.ChangeResult) {
	r.measurements = append(r.measurements, Measurement{
		Metric: schema.MetricSchemaChange,
		Value:  res,
	})
}
