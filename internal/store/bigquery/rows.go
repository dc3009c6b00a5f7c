package bigquery

import (
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

var measurementSchema = bq.Schema{
	{Name: "metric", Type: bq.StringFieldType},
	{Name: "value", Type: bq.StringFieldType},
	{Name: "table_name", Type: bq.StringFieldType},
	{Name: "column_name", Type: bq.StringFieldType},
	{Name: "execution_datetime", Type: bq.DateTimeFieldType},
}

var testResultSchema = bq.Schema{
	{Name: "id", Type: bq.StringFieldType},
	{Name: "title", Type: bq.StringFieldType},
	{Name: "description", Type: bq.StringFieldType},
	{Name: "expression", Type: bq.StringFieldType},
	{Name: "table_name", Type: bq.StringFieldType},
	{Name: "column_name", Type: bq.StringFieldType},
	{Name: "source", Type: bq.StringFieldType},
	{Name: "passed", Type: bq.BooleanFieldType},
	{Name: "skipped", Type: bq.BooleanFieldType},
	{Name: "row_count", Type: bq.IntegerFieldType},
	{Name: "expression_result", Type: bq.FloatFieldType},
	{Name: "invalid_percentage", Type: bq.FloatFieldType},
	{Name: "execution_datetime", Type: bq.DateTimeFieldType},
}

// loadMeasurement is one newline-delimited JSON row of a load job.
type loadMeasurement struct {
	Metric            string  `json:"metric"`
	Value             string  `json:"value"`
	TableName         string  `json:"table_name"`
	ColumnName        *string `json:"column_name"`
	ExecutionDatetime string  `json:"execution_datetime"`
}

type loadTestResult struct {
	ID                string   `json:"id"`
	Title             string   `json:"title"`
	Description       *string  `json:"description"`
	Expression        *string  `json:"expression"`
	TableName         string   `json:"table_name"`
	ColumnName        *string  `json:"column_name"`
	Source            *string  `json:"source"`
	Passed            bool     `json:"passed"`
	Skipped           bool     `json:"skipped"`
	RowCount          *int64   `json:"row_count"`
	ExpressionResult  *float64 `json:"expression_result"`
	InvalidPercentage *float64 `json:"invalid_percentage"`
	ExecutionDatetime string   `json:"execution_datetime"`
}

func formatDateTime(t time.Time) string {
	return types.NewDateTime(t).String()
}

func toLoadMeasurement(m record.Measurement) loadMeasurement {
	return loadMeasurement{
		Metric:            m.Metric,
		Value:             m.Value,
		TableName:         m.TableName,
		ColumnName:        m.ColumnName,
		ExecutionDatetime: formatDateTime(m.ExecutionDatetime),
	}
}

func toLoadTestResult(r record.TestResult) loadTestResult {
	return loadTestResult{
		ID:                r.ID,
		Title:             r.Title,
		Description:       r.Description,
		Expression:        r.Expression,
		TableName:         r.TableName,
		ColumnName:        r.ColumnName,
		Source:            r.Source,
		Passed:            r.Passed,
		Skipped:           r.Skipped,
		RowCount:          r.RowCount,
		ExpressionResult:  r.ExpressionResult,
		InvalidPercentage: r.InvalidPercentage,
		ExecutionDatetime: formatDateTime(r.ExecutionDatetime),
	}
}

// queryMeasurement and queryTestResult receive query rows.
type queryMeasurement struct {
	Metric            string          `bigquery:"metric"`
	Value             string          `bigquery:"value"`
	TableName         string          `bigquery:"table_name"`
	ColumnName        bq.NullString   `bigquery:"column_name"`
	ExecutionDatetime bq.NullDateTime `bigquery:"execution_datetime"`
}

type queryTestResult struct {
	ID                string          `bigquery:"id"`
	Title             string          `bigquery:"title"`
	Description       bq.NullString   `bigquery:"description"`
	Expression        bq.NullString   `bigquery:"expression"`
	TableName         string          `bigquery:"table_name"`
	ColumnName        bq.NullString   `bigquery:"column_name"`
	Source            bq.NullString   `bigquery:"source"`
	Passed            bool            `bigquery:"passed"`
	Skipped           bool            `bigquery:"skipped"`
	RowCount          bq.NullInt64    `bigquery:"row_count"`
	ExpressionResult  bq.NullFloat64  `bigquery:"expression_result"`
	InvalidPercentage bq.NullFloat64  `bigquery:"invalid_percentage"`
	ExecutionDatetime bq.NullDateTime `bigquery:"execution_datetime"`
}

func nullString(ns bq.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.StringVal
	return &v
}

func dateTime(dt bq.NullDateTime) time.Time {
	if !dt.Valid {
		return time.Time{}
	}
	return dt.DateTime.In(time.UTC)
}

func (q queryMeasurement) record() record.Measurement {
	return record.Measurement{
		Metric:            q.Metric,
		Value:             q.Value,
		TableName:         q.TableName,
		ColumnName:        nullString(q.ColumnName),
		ExecutionDatetime: dateTime(q.ExecutionDatetime),
	}
}

func (q queryTestResult) record() record.TestResult {
	r := record.TestResult{
		ID:                q.ID,
		Title:             q.Title,
		Description:       nullString(q.Description),
		Expression:        nullString(q.Expression),
		TableName:         q.TableName,
		ColumnName:        nullString(q.ColumnName),
		Source:            nullString(q.Source),
		Passed:            q.Passed,
		Skipped:           q.Skipped,
		ExecutionDatetime: dateTime(q.ExecutionDatetime),
	}
	if q.RowCount.Valid {
		v := q.RowCount.Int64
		r.RowCount = &v
	}
	if q.ExpressionResult.Valid {
		v := q.ExpressionResult.Float64
		r.ExpressionResult = &v
	}
	if q.InvalidPercentage.Valid {
		v := q.InvalidPercentage.Float64
		r.InvalidPercentage = &v
	}
	return r
}

type tableRef struct {
	Project string
	Dataset string
	Table   string
}

// parseTableRef accepts project.dataset.table or dataset.table, optionally
// wrapped in backticks.
func parseTableRef(defaultProject, name string) (tableRef, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(name), "`"), ".")
	for _, p := range parts {
		if p == "" {
			return tableRef{}, errors.Errorf("invalid bigquery table %q", name)
		}
	}
	switch len(parts) {
	case 3:
		return tableRef{Project: parts[0], Dataset: parts[1], Table: parts[2]}, nil
	case 2:
		if defaultProject == "" {
			return tableRef{}, errors.Errorf("bigquery table %q needs a project", name)
		}
		return tableRef{Project: defaultProject, Dataset: parts[0], Table: parts[1]}, nil
	default:
		return tableRef{}, errors.Errorf("invalid bigquery table %q", name)
	}
}

func (t tableRef) String() string {
	return "`" + t.Project + "." + t.Dataset + "." + t.Table + "`"
}
