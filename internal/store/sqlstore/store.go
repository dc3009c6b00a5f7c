package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
)

const (
	measurementColumns = "metric, value, table_name, column_name, execution_datetime"
	testResultColumns  = "id, title, description, expression, table_name, column_name, source, passed, skipped, " +
		"row_count, expression_result, invalid_percentage, execution_datetime"
)

type Config struct {
	Driver            string
	DSN               string
	MeasurementsTable string
	TestResultsTable  string
}

// Store keeps measurement and test result history in a SQL database.
type Store struct {
	db           *sql.DB
	driver       string
	measurements string
	testResults  string
	logger       *zap.Logger
}

// Open connects to the database and verifies it answers.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if err := validateDriver(cfg.Driver); err != nil {
		return nil, err
	}
	dsn, err := normalizeDSN(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s store", cfg.Driver)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, store.Unavailable(cfg.Driver+" ping", err)
	}
	return New(db, cfg.Driver, cfg.MeasurementsTable, cfg.TestResultsTable, logger)
}

// New wraps an existing handle.
func New(db *sql.DB, driver, measurementsTable, testResultsTable string, logger *zap.Logger) (*Store, error) {
	if err := validateDriver(driver); err != nil {
		return nil, err
	}
	for _, name := range []string{measurementsTable, testResultsTable} {
		if err := validateTableName(name); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:           db,
		driver:       driver,
		measurements: measurementsTable,
		testResults:  testResultsTable,
		logger:       logger,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the history tables and their indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.driver, s.measurements, s.testResults) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			if isDuplicateIndex(err) {
				continue
			}
			return store.Unavailable("ensure schema", err)
		}
	}
	return nil
}

func (s *Store) q(query string) string {
	return rebind(s.driver, query)
}

func (s *Store) table(target store.Target) (string, error) {
	switch target {
	case store.Measurements:
		return s.measurements, nil
	case store.TestResults:
		return s.testResults, nil
	default:
		return "", errors.Errorf("unknown history target %q", target)
	}
}

func (s *Store) AppendMeasurements(ctx context.Context, records []record.Measurement) error {
	if len(records) == 0 {
		return nil
	}
	query := s.q(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?)", s.measurements, measurementColumns))
	return s.inTx(ctx, "append measurements", query, len(records), func(stmt *sql.Stmt, i int) error {
		r := records[i]
		_, err := stmt.ExecContext(ctx, r.Metric, r.Value, r.TableName, r.ColumnName, r.ExecutionDatetime.UTC())
		return err
	})
}

func (s *Store) AppendTestResults(ctx context.Context, records []record.TestResult) error {
	if len(records) == 0 {
		return nil
	}
	query := s.q(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", s.testResults, testResultColumns))
	return s.inTx(ctx, "append test results", query, len(records), func(stmt *sql.Stmt, i int) error {
		r := records[i]
		_, err := stmt.ExecContext(ctx,
			r.ID, r.Title, r.Description, r.Expression, r.TableName, r.ColumnName, r.Source,
			r.Passed, r.Skipped, r.RowCount, r.ExpressionResult, r.InvalidPercentage,
			r.ExecutionDatetime.UTC(),
		)
		return err
	})
}

// inTx runs one prepared insert per row inside a single transaction so a
// record set lands completely or not at all.
func (s *Store) inTx(ctx context.Context, op, query string, n int, exec func(*sql.Stmt, int) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Unavailable(op, err)
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return store.Unavailable(op, err)
	}
	for i := 0; i < n; i++ {
		if err := exec(stmt, i); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			return store.Unavailable(op, errors.Wrapf(err, "row %d", i))
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return store.Unavailable(op, err)
	}
	if err := tx.Commit(); err != nil {
		return store.Unavailable(op, err)
	}
	s.logger.Debug("appended rows", zap.String("op", op), zap.Int("rows", n))
	return nil
}

func (s *Store) Count(ctx context.Context, target store.Target) (int64, error) {
	table, err := s.table(target)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
		return 0, store.Unavailable("count "+string(target), err)
	}
	return n, nil
}

func (s *Store) LatestMeasurement(ctx context.Context, table, metric string) (*record.Measurement, error) {
	query := s.q(fmt.Sprintf(
		"SELECT %s FROM %s WHERE table_name = ? AND metric = ? ORDER BY execution_datetime DESC LIMIT 1",
		measurementColumns, s.measurements,
	))
	rows, err := s.db.QueryContext(ctx, query, table, metric)
	if err != nil {
		return nil, store.Unavailable("latest "+metric, err)
	}
	ms, err := scanMeasurements(rows)
	if err != nil {
		return nil, store.Unavailable("latest "+metric, err)
	}
	if len(ms) == 0 {
		return nil, nil
	}
	return &ms[0], nil
}

func (s *Store) Measurements(ctx context.Context, table string, at time.Time) ([]record.Measurement, error) {
	query := s.q(fmt.Sprintf(
		"SELECT %s FROM %s WHERE table_name = ? AND execution_datetime = ?",
		measurementColumns, s.measurements,
	))
	rows, err := s.db.QueryContext(ctx, query, table, at.UTC())
	if err != nil {
		return nil, store.Unavailable("measurements", err)
	}
	ms, err := scanMeasurements(rows)
	if err != nil {
		return nil, store.Unavailable("measurements", err)
	}
	return ms, nil
}

func (s *Store) TestResults(ctx context.Context, at time.Time) ([]record.TestResult, error) {
	query := s.q(fmt.Sprintf("SELECT %s FROM %s WHERE execution_datetime = ?", testResultColumns, s.testResults))
	rows, err := s.db.QueryContext(ctx, query, at.UTC())
	if err != nil {
		return nil, store.Unavailable("test results", err)
	}
	trs, err := scanTestResults(rows)
	if err != nil {
		return nil, store.Unavailable("test results", err)
	}
	return trs, nil
}

func (s *Store) ExecutionTimes(ctx context.Context, target store.Target) ([]time.Time, error) {
	table, err := s.table(target)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT execution_datetime FROM %s ORDER BY execution_datetime DESC", table,
	))
	if err != nil {
		return nil, store.Unavailable("execution times", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, store.Unavailable("execution times", err)
		}
		t, err := parseDBTime(raw)
		if err != nil {
			return nil, store.Unavailable("execution times", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("execution times", err)
	}
	return out, nil
}

func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT table_name FROM %s ORDER BY table_name DESC", s.measurements,
	))
	if err != nil {
		return nil, store.Unavailable("table names", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, store.Unavailable("table names", err)
		}
		out = append(out, name)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("table names", err)
	}
	return out, nil
}

func scanMeasurements(rows *sql.Rows) ([]record.Measurement, error) {
	defer rows.Close()
	var out []record.Measurement
	for rows.Next() {
		var (
			m      record.Measurement
			column sql.NullString
			rawDT  any
		)
		if err := rows.Scan(&m.Metric, &m.Value, &m.TableName, &column, &rawDT); err != nil {
			return nil, err
		}
		dt, err := parseDBTime(rawDT)
		if err != nil {
			return nil, err
		}
		m.ColumnName = nullString(column)
		m.ExecutionDatetime = dt
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanTestResults(rows *sql.Rows) ([]record.TestResult, error) {
	defer rows.Close()
	var out []record.TestResult
	for rows.Next() {
		var (
			tr                                   record.TestResult
			description, expression, column, src sql.NullString
			rowCount                             sql.NullInt64
			exprResult, invalidPct               sql.NullFloat64
			rawDT                                any
		)
		if err := rows.Scan(
			&tr.ID, &tr.Title, &description, &expression, &tr.TableName, &column, &src,
			&tr.Passed, &tr.Skipped, &rowCount, &exprResult, &invalidPct, &rawDT,
		); err != nil {
			return nil, err
		}
		dt, err := parseDBTime(rawDT)
		if err != nil {
			return nil, err
		}
		tr.Description = nullString(description)
		tr.Expression = nullString(expression)
		tr.ColumnName = nullString(column)
		tr.Source = nullString(src)
		if rowCount.Valid {
			v := rowCount.Int64
			tr.RowCount = &v
		}
		if exprResult.Valid {
			v := exprResult.Float64
			tr.ExpressionResult = &v
		}
		if invalidPct.Valid {
			v := invalidPct.Float64
			tr.InvalidPercentage = &v
		}
		tr.ExecutionDatetime = dt
		out = append(out, tr)
	}
	return out, rows.Err()
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
