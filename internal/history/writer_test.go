package history

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store/sqlstore"
)

var at = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleRecords() ([]record.Measurement, []record.TestResult) {
	ms := []record.Measurement{
		{Metric: "row_count", Value: "3", TableName: "orders", ExecutionDatetime: at},
		{Metric: "schema_change", Value: `{"schema_changed":false,"latest_execution_dt":null}`, TableName: "orders", ExecutionDatetime: at},
	}
	trs := []record.TestResult{{ID: "t1", Title: "rows", TableName: "orders", Passed: true, ExecutionDatetime: at}}
	return ms, trs
}

func newSQLite(t *testing.T) *sqlstore.Store {
	t.Helper()
	db, err := sql.Open(sqlstore.DriverSQLite, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	s, err := sqlstore.New(db, sqlstore.DriverSQLite, "measurements", "test_results", nil)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestAppend_ReturnsTotals(t *testing.T) {
	s := newSQLite(t)
	w := NewWriter(s, nil)
	ms, trs := sampleRecords()

	count, err := w.Append(context.Background(), ms, trs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count.Measurements)
	assert.Equal(t, int64(1), count.TestResults)

	// no deduplication: a second append doubles the history
	count, err = w.Append(context.Background(), ms, trs)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count.Measurements)
	assert.Equal(t, int64(2), count.TestResults)
}

func TestAppend_PartialWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s, err := sqlstore.New(db, sqlstore.DriverMySQL, "measurements", "test_results", nil)
	require.NoError(t, err)

	mock.ExpectBegin()
	mp := mock.ExpectPrepare(regexp.QuoteMeta("INSERT INTO measurements"))
	mp.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mp.ExpectExec().WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectBegin().WillReturnError(errors.New("server has gone away"))

	ms, trs := sampleRecords()
	_, err = NewWriter(s, nil).Append(context.Background(), ms, trs)
	require.Error(t, err)

	var pw *PartialWriteError
	require.True(t, errors.As(err, &pw))
	assert.Equal(t, store.Measurements, pw.Written)
	assert.Equal(t, store.TestResults, pw.Failed)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_MeasurementFailureWritesNothing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s, err := sqlstore.New(db, sqlstore.DriverMySQL, "measurements", "test_results", nil)
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	ms, trs := sampleRecords()
	_, err = NewWriter(s, nil).Append(context.Background(), ms, trs)
	require.Error(t, err)

	var pw *PartialWriteError
	assert.False(t, errors.As(err, &pw))
	assert.True(t, errors.Is(err, store.ErrUnavailable))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppend_CountFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s, err := sqlstore.New(db, sqlstore.DriverMySQL, "measurements", "test_results", nil)
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM measurements")).WillReturnError(errors.New("timeout"))

	_, err = NewWriter(s, nil).Append(context.Background(), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrUnavailable))
}
