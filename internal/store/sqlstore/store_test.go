package sqlstore

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
)

func strPtr(s string) *string { return &s }

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()
	db, err := sql.Open(DriverSQLite, ":memory:")
	require.NoError(t, err)
	// every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	s, err := New(db, DriverSQLite, "measurements", "test_results", nil)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func at(day, hour int) time.Time {
	return time.Date(2024, 3, day, hour, 0, 0, 0, time.UTC)
}

func TestSQLiteStore_AppendAndRead(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)

	ms := []record.Measurement{
		{Metric: "schema", Value: `[{"name":"id","type":"INT","nullable":false}]`, TableName: "orders", ExecutionDatetime: at(1, 8)},
		{Metric: "row_count", Value: "10", TableName: "orders", ExecutionDatetime: at(1, 8)},
		{Metric: "missing_count", Value: "2", TableName: "orders", ColumnName: strPtr("email"), ExecutionDatetime: at(1, 8)},
		{Metric: "schema", Value: `[{"name":"id","type":"STRING","nullable":false}]`, TableName: "orders", ExecutionDatetime: at(2, 8)},
		{Metric: "schema", Value: `[]`, TableName: "customers", ExecutionDatetime: at(3, 8)},
	}
	require.NoError(t, s.AppendMeasurements(ctx, ms))

	rowCount := int64(10)
	pct := 2.5
	trs := []record.TestResult{
		{ID: "t1", Title: "rows", TableName: "orders", Passed: true, RowCount: &rowCount, ExecutionDatetime: at(1, 8)},
		{ID: "t2", Title: "emails", TableName: "orders", ColumnName: strPtr("email"), Passed: false, Skipped: false,
			InvalidPercentage: &pct, Expression: strPtr("invalid_percentage < 1"), ExecutionDatetime: at(1, 8)},
	}
	require.NoError(t, s.AppendTestResults(ctx, trs))

	n, err := s.Count(ctx, store.Measurements)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	n, err = s.Count(ctx, store.TestResults)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	latest, err := s.LatestMeasurement(ctx, "orders", "schema")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, `[{"name":"id","type":"STRING","nullable":false}]`, latest.Value)
	assert.True(t, at(2, 8).Equal(latest.ExecutionDatetime))

	none, err := s.LatestMeasurement(ctx, "invoices", "schema")
	require.NoError(t, err)
	assert.Nil(t, none)

	got, err := s.Measurements(ctx, "orders", at(1, 8))
	require.NoError(t, err)
	require.Len(t, got, 3)
	if diff := cmp.Diff(ms[:3], got); diff != "" {
		t.Fatalf("measurements mismatch (-want +got):\n%s", diff)
	}

	gotTests, err := s.TestResults(ctx, at(1, 8))
	require.NoError(t, err)
	if diff := cmp.Diff(trs, gotTests); diff != "" {
		t.Fatalf("test results mismatch (-want +got):\n%s", diff)
	}

	times, err := s.ExecutionTimes(ctx, store.Measurements)
	require.NoError(t, err)
	require.Len(t, times, 3)
	assert.True(t, at(3, 8).Equal(times[0]))
	assert.True(t, at(1, 8).Equal(times[2]))

	tables, err := s.TableNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "customers"}, tables)
}

func TestSQLiteStore_AppendIsAdditive(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	ms := []record.Measurement{{Metric: "row_count", Value: "1", TableName: "orders", ExecutionDatetime: at(1, 0)}}

	require.NoError(t, s.AppendMeasurements(ctx, ms))
	require.NoError(t, s.AppendMeasurements(ctx, ms))
	require.NoError(t, s.AppendMeasurements(ctx, nil))

	n, err := s.Count(ctx, store.Measurements)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLiteStore_EnsureSchemaIsRepeatable(t *testing.T) {
	s := newSQLiteStore(t)
	assert.NoError(t, s.EnsureSchema(context.Background()))
}

func TestPostgresStore_RebindsPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, DriverPostgres, "dq.measurements", "dq.test_results", nil)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT metric, value, table_name, column_name, execution_datetime FROM dq.measurements WHERE table_name = $1 AND metric = $2 ORDER BY execution_datetime DESC LIMIT 1",
	)).WithArgs("orders", "schema").WillReturnRows(
		sqlmock.NewRows([]string{"metric", "value", "table_name", "column_name", "execution_datetime"}).
			AddRow("schema", "[]", "orders", nil, at(4, 1)),
	)

	m, err := s.LatestMeasurement(context.Background(), "orders", "schema")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Nil(t, m.ColumnName)
	assert.True(t, at(4, 1).Equal(m.ExecutionDatetime))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AppendRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, DriverMySQL, "measurements", "test_results", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO measurements (metric, value, table_name, column_name, execution_datetime) VALUES (?, ?, ?, ?, ?)"))
	prep.ExpectExec().WithArgs("row_count", "1", "orders", nil, sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = s.AppendMeasurements(context.Background(), []record.Measurement{
		{Metric: "row_count", Value: "1", TableName: "orders", ExecutionDatetime: at(1, 0)},
		{Metric: "row_count", Value: "2", TableName: "orders", ExecutionDatetime: at(1, 0)},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ReadFailureIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, DriverMySQL, "measurements", "test_results", nil)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT").WillReturnError(sql.ErrConnDone)

	_, err = s.LatestMeasurement(context.Background(), "orders", "schema")
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(nil, "oracle", "m", "t", nil)
	assert.Error(t, err)

	_, err = New(nil, DriverSQLite, "m; DROP TABLE x", "t", nil)
	assert.Error(t, err)
}

func TestStore_ExecutionTimesBadValueIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s, err := New(db, DriverMySQL, "measurements", "test_results", nil)
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT DISTINCT execution_datetime FROM measurements ORDER BY execution_datetime DESC")).
		WillReturnRows(sqlmock.NewRows([]string{"execution_datetime"}).AddRow("yesterday"))

	_, err = s.ExecutionTimes(context.Background(), store.Measurements)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	assert.Contains(t, err.Error(), "yesterday")
	require.NoError(t, mock.ExpectationsWereMet())
}
