package scan

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestNewResult_NormalizesTableAndTimestamp(t *testing.T) {
	at := time.Date(2024, 5, 2, 10, 11, 12, 987654321, time.FixedZone("CET", 3600))
	res := NewResult(BigQuery, "`proj.ds.orders`", at, Document{})

	assert.Equal(t, "proj.ds.orders", res.TableName())
	assert.Equal(t, "2024-05-02 09:11:12", res.ExecutionDatetime().String())
	assert.True(t, res.IsPassed())
}

func TestDocument_Passed(t *testing.T) {
	ok := Document{TestResults: []TestResult{{ID: "1", Passed: boolPtr(true), Skipped: boolPtr(false)}}}
	assert.True(t, ok.Passed())

	failed := Document{TestResults: []TestResult{
		{ID: "1", Passed: boolPtr(true)},
		{ID: "2", Passed: boolPtr(false)},
	}}
	assert.False(t, failed.Passed())

	errored := Document{Errors: []string{"query timeout"}}
	assert.False(t, errored.Passed())
}

func TestResult_Schema(t *testing.T) {
	doc := Document{Measurements: []Measurement{
		{Metric: "row_count", Value: 10},
		{Metric: "schema", Value: []any{map[string]any{"name": "id", "type": "INT", "nullable": false}}},
		{Metric: "schema", ColumnName: strPtr("id"), Value: "ignored"},
	}}
	res := NewResult(MySQL, "orders", time.Now(), doc)

	s, err := res.Schema()
	require.NoError(t, err)
	assert.Equal(t, schema.Schema{{Name: "id", Type: "INT"}}, s)
}

func TestResult_SchemaMissing(t *testing.T) {
	res := NewResult(MySQL, "orders", time.Now(), Document{})

	_, err := res.Schema()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestResult_AddSchemaCheckResult(t *testing.T) {
	doc := Document{Measurements: []Measurement{{Metric: "row_count", Value: 1}}}
	res := NewResult(MySQL, "orders", time.Now(), doc)
	res.AddSchemaCheckResult(schema.ChangeResult{SchemaChanged: true})

	ms := res.Measurements()
	require.Len(t, ms, 2)
	assert.Equal(t, schema.MetricSchemaChange, ms[1].Metric)
	assert.Nil(t, ms[1].ColumnName)
	assert.Equal(t, schema.ChangeResult{SchemaChanged: true}, ms[1].Value)
	// the input document is not aliased
	assert.Len(t, doc.Measurements, 1)
}
