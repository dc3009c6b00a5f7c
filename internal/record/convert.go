package record

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/scan"
	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
)

// Keys read from a test result's values mapping.
const (
	valueRowCount          = "row_count"
	valueExpressionResult  = "expression_result"
	valueInvalidPercentage = "invalid_percentage"
)

// Convert flattens a scan result into measurement and test result records,
// preserving the order of the input collections.
func Convert(res *scan.Result, tableName string, executedAt time.Time) ([]Measurement, []TestResult, error) {
	measurements, err := ConvertMeasurements(res.Measurements(), tableName, executedAt)
	if err != nil {
		return nil, nil, err
	}
	testResults, err := ConvertTestResults(res.TestResults(), tableName, executedAt)
	if err != nil {
		return nil, nil, err
	}
	return measurements, testResults, nil
}

func ConvertMeasurements(in []scan.Measurement, tableName string, executedAt time.Time) ([]Measurement, error) {
	out := make([]Measurement, 0, len(in))
	for i, m := range in {
		if m.Metric == "" {
			return nil, errors.Wrapf(scan.ErrMalformed, "measurement %d has no metric", i)
		}
		value, err := encodeValue(m)
		if err != nil {
			return nil, errors.Wrapf(scan.ErrMalformed, "measurement %s: encode value: %v", m.Metric, err)
		}
		out = append(out, Measurement{
			Metric:            m.Metric,
			Value:             string(value),
			TableName:         tableName,
			ColumnName:        cloneString(m.ColumnName),
			ExecutionDatetime: executedAt,
		})
	}
	return out, nil
}

// encodeValue renders a measurement value as JSON. The table-level schema is
// always stored as a list of columns, whatever shape the scan reported it in.
func encodeValue(m scan.Measurement) ([]byte, error) {
	if m.Metric == schema.MetricSchema && (m.ColumnName == nil || *m.ColumnName == "") {
		s, err := schema.FromValue(m.Value)
		if err != nil {
			return nil, err
		}
		if s == nil {
			s = schema.Schema{}
		}
		return json.Marshal(s)
	}
	return json.Marshal(m.Value)
}

func ConvertTestResults(in []scan.TestResult, tableName string, executedAt time.Time) ([]TestResult, error) {
	out := make([]TestResult, 0, len(in))
	for i, tr := range in {
		switch {
		case tr.ID == "":
			return nil, errors.Wrapf(scan.ErrMalformed, "test result %d has no id", i)
		case tr.Title == "":
			return nil, errors.Wrapf(scan.ErrMalformed, "test result %s has no title", tr.ID)
		case tr.Passed == nil:
			return nil, errors.Wrapf(scan.ErrMalformed, "test result %s has no passed flag", tr.ID)
		case tr.Skipped == nil:
			return nil, errors.Wrapf(scan.ErrMalformed, "test result %s has no skipped flag", tr.ID)
		}

		rowCount, err := intValue(tr.Values, valueRowCount)
		if err != nil {
			return nil, errors.Wrapf(scan.ErrMalformed, "test result %s: %v", tr.ID, err)
		}
		exprResult, err := floatValue(tr.Values, valueExpressionResult)
		if err != nil {
			return nil, errors.Wrapf(scan.ErrMalformed, "test result %s: %v", tr.ID, err)
		}
		invalidPct, err := floatValue(tr.Values, valueInvalidPercentage)
		if err != nil {
			return nil, errors.Wrapf(scan.ErrMalformed, "test result %s: %v", tr.ID, err)
		}

		out = append(out, TestResult{
			ID:                tr.ID,
			Title:             tr.Title,
			Description:       cloneString(tr.Description),
			Expression:        cloneString(tr.Expression),
			TableName:         tableName,
			ColumnName:        cloneString(tr.ColumnName),
			Source:            cloneString(tr.Source),
			Passed:            *tr.Passed,
			Skipped:           *tr.Skipped,
			RowCount:          rowCount,
			ExpressionResult:  exprResult,
			InvalidPercentage: invalidPct,
			ExecutionDatetime: executedAt,
		})
	}
	return out, nil
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func floatValue(values map[string]any, key string) (*float64, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return nil, errors.Wrapf(err, "%s", key)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s", key)
		}
		f = parsed
	default:
		return nil, errors.Errorf("%s: unsupported value type %T", key, raw)
	}
	return &f, nil
}

func intValue(values map[string]any, key string) (*int64, error) {
	raw, ok := values[key]
	if !ok || raw == nil {
		return nil, nil
	}
	if n, ok := raw.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			return &i, nil
		}
	}
	f, err := floatValue(values, key)
	if err != nil {
		return nil, err
	}
	if *f != math.Trunc(*f) {
		return nil, errors.Errorf("%s: %v is not an integer", key, *f)
	}
	i := int64(*f)
	return &i, nil
}
