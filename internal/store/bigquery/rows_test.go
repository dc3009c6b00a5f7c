package bigquery

import (
	"encoding/json"
	"testing"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
)

func TestParseTableRef(t *testing.T) {
	ref, err := parseTableRef("", "`proj.dq.measurements`")
	require.NoError(t, err)
	assert.Equal(t, tableRef{Project: "proj", Dataset: "dq", Table: "measurements"}, ref)
	assert.Equal(t, "`proj.dq.measurements`", ref.String())

	ref, err = parseTableRef("fallback", "dq.test_results")
	require.NoError(t, err)
	assert.Equal(t, "fallback", ref.Project)

	for _, bad := range []string{"measurements", "dq.", "a.b.c.d", ""} {
		_, err := parseTableRef("p", bad)
		assert.Error(t, err, bad)
	}
	_, err = parseTableRef("", "dq.test_results")
	assert.Error(t, err)
}

func TestLoadRowsEncodeNulls(t *testing.T) {
	at := time.Date(2024, 4, 5, 6, 7, 8, 900, time.UTC)
	data, err := json.Marshal(toLoadMeasurement(record.Measurement{
		Metric: "row_count", Value: "12", TableName: "orders", ExecutionDatetime: at,
	}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"metric":"row_count","value":"12","table_name":"orders","column_name":null,"execution_datetime":"2024-04-05 06:07:08"}`, string(data))

	pct := 1.5
	data, err = json.Marshal(toLoadTestResult(record.TestResult{
		ID: "t", Title: "x", TableName: "orders", Passed: true, InvalidPercentage: &pct, ExecutionDatetime: at,
	}))
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Nil(t, decoded["row_count"])
	assert.Nil(t, decoded["description"])
	assert.Equal(t, 1.5, decoded["invalid_percentage"])
	assert.Equal(t, true, decoded["passed"])
	assert.Equal(t, false, decoded["skipped"])
}

func TestQueryRowsToRecords(t *testing.T) {
	q := queryTestResult{
		ID:        "t1",
		Title:     "rows",
		TableName: "orders",
		Passed:    true,
		RowCount:  bq.NullInt64{Int64: 3, Valid: true},
		Source:    bq.NullString{StringVal: "soda", Valid: true},
	}
	r := q.record()
	require.NotNil(t, r.RowCount)
	assert.Equal(t, int64(3), *r.RowCount)
	assert.Equal(t, "soda", *r.Source)
	assert.Nil(t, r.ExpressionResult)
	assert.Nil(t, r.Description)
	assert.True(t, r.ExecutionDatetime.IsZero())
}

func TestSchemasMatchRecordShapes(t *testing.T) {
	assert.Len(t, measurementSchema, 5)
	assert.Len(t, testResultSchema, 13)
	assert.Equal(t, bq.DateTimeFieldType, measurementSchema[4].Type)
}

func TestIsAlreadyExists(t *testing.T) {
	assert.True(t, isAlreadyExists(errors.Wrap(&googleapi.Error{Code: 409}, "create")))
	assert.False(t, isAlreadyExists(&googleapi.Error{Code: 403}))
	assert.False(t, isAlreadyExists(errors.New("boom")))
}
