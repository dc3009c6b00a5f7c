package sqlstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func validateTableName(name string) error {
	if !identRe.MatchString(name) {
		return errors.Errorf("invalid history table name %q", name)
	}
	return nil
}

func validateDriver(driver string) error {
	switch driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
		return nil
	default:
		return errors.Errorf("unsupported sql store driver %q", driver)
	}
}

// rebind rewrites ? placeholders for drivers that use numbered parameters.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeDSN makes the mysql driver return DATETIME columns as UTC time.Time.
func normalizeDSN(driver, dsn string) (string, error) {
	if driver != DriverMySQL {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

func indexName(table, suffix string) string {
	return "idx_" + strings.ReplaceAll(table, ".", "_") + "_" + suffix
}

// schemaStatements returns the DDL creating both history tables.
func schemaStatements(driver, measurements, testResults string) []string {
	var (
		text, key, ts, boolean, integer, float string
	)
	switch driver {
	case DriverMySQL:
		text, key, ts, boolean, integer, float = "TEXT", "VARCHAR(255)", "DATETIME", "BOOLEAN", "BIGINT", "DOUBLE"
	case DriverPostgres:
		text, key, ts, boolean, integer, float = "TEXT", "TEXT", "TIMESTAMP", "BOOLEAN", "BIGINT", "DOUBLE PRECISION"
	default:
		text, key, ts, boolean, integer, float = "TEXT", "TEXT", "DATETIME", "BOOLEAN", "INTEGER", "REAL"
	}

	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	metric %s NOT NULL,
	value %s NOT NULL,
	table_name %s NOT NULL,
	column_name %s NULL,
	execution_datetime %s NOT NULL
)`, measurements, key, text, key, key, ts),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s NOT NULL,
	title %s NOT NULL,
	description %s NULL,
	expression %s NULL,
	table_name %s NOT NULL,
	column_name %s NULL,
	source %s NULL,
	passed %s NOT NULL,
	skipped %s NOT NULL,
	row_count %s NULL,
	expression_result %s NULL,
	invalid_percentage %s NULL,
	execution_datetime %s NOT NULL
)`, testResults, key, text, text, text, key, key, key, boolean, boolean, integer, float, float, ts),
	}

	mIdx := indexName(measurements, "table_metric_dt")
	tIdx := indexName(testResults, "dt")
	if driver == DriverMySQL {
		// MySQL has no CREATE INDEX IF NOT EXISTS; EnsureSchema ignores duplicate key name errors.
		stmts = append(stmts,
			fmt.Sprintf("CREATE INDEX %s ON %s (table_name, metric, execution_datetime)", mIdx, measurements),
			fmt.Sprintf("CREATE INDEX %s ON %s (execution_datetime)", tIdx, testResults),
		)
		return stmts
	}
	return append(stmts,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (table_name, metric, execution_datetime)", mIdx, measurements),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (execution_datetime)", tIdx, testResults),
	)
}

// mysqlDuplicateKeyName is ER_DUP_KEYNAME.
const mysqlDuplicateKeyName = 1061

func isDuplicateIndex(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateKeyName
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z07:00",
	time.RFC3339Nano,
}

// parseDBTime accepts the representations drivers hand back for DATETIME columns.
func parseDBTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return parseTimeString(string(t))
	case string:
		return parseTimeString(t)
	case nil:
		return time.Time{}, errors.New("execution_datetime is NULL")
	default:
		return time.Time{}, errors.Errorf("unsupported time value %T", v)
	}
}

func parseTimeString(s string) (time.Time, error) {
	for _, layout := range dbTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized time value %q", s)
}
