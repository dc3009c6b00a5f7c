package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

const defaultTimeout = 5 * time.Second

// timestampCandidates are probed, in order, for the table's freshness.
var timestampCandidates = []string{"updated_at", "created_at", "modified_at"}

type Inspector struct {
	db      *sql.DB
	schema  string
	timeout time.Duration
}

func NewInspector(dsn string, schemaName string) (*Inspector, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "mysql ping failed")
	}
	return NewInspectorWithDB(db, schemaName), nil
}

func NewInspectorWithDB(db *sql.DB, schemaName string) *Inspector {
	return &Inspector{
		db:      db,
		schema:  schemaName,
		timeout: defaultTimeout,
	}
}

func (i *Inspector) Close() error {
	return i.db.Close()
}

// FetchSchema returns the table's columns in ordinal order.
func (i *Inspector) FetchSchema(ctx context.Context, tableName string) (schema.Schema, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	rows, err := i.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, i.schema, tableName)
	if err != nil {
		return nil, errors.Wrap(err, "query columns")
	}
	defer rows.Close()

	var cols schema.Schema
	for rows.Next() {
		var name, dataType, nullable string
		if err := rows.Scan(&name, &dataType, &nullable); err != nil {
			return nil, err
		}
		cols = append(cols, schema.Column{
			Name:     name,
			Type:     strings.ToUpper(dataType),
			Nullable: nullable == "YES",
		})
	}
	return cols, rows.Err()
}

func (i *Inspector) FetchRowCount(ctx context.Context, tableName string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", i.qualified(tableName))
	if err := i.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count rows")
	}
	return count, nil
}

// FetchMissingCounts counts NULLs for every column in a single pass.
func (i *Inspector) FetchMissingCounts(ctx context.Context, tableName string, cols schema.Schema) (map[string]int64, error) {
	if len(cols) == 0 {
		return map[string]int64{}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	exprs := make([]string, len(cols))
	for n, col := range cols {
		exprs[n] = fmt.Sprintf("SUM(CASE WHEN %s IS NULL THEN 1 ELSE 0 END)", quoteIdent(col.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), i.qualified(tableName))

	sums := make([]sql.NullInt64, len(cols))
	dest := make([]any, len(cols))
	for n := range sums {
		dest[n] = &sums[n]
	}
	if err := i.db.QueryRowContext(ctx, query).Scan(dest...); err != nil {
		return nil, errors.Wrap(err, "count missing values")
	}

	out := make(map[string]int64, len(cols))
	for n, col := range cols {
		// SUM over an empty table is NULL
		out[col.Name] = sums[n].Int64
	}
	return out, nil
}

// FetchLatestTimestamp returns MAX of the first candidate timestamp column
// present in cols, or the zero time when there is none or it holds no rows.
func (i *Inspector) FetchLatestTimestamp(ctx context.Context, tableName string, cols schema.Schema) (time.Time, error) {
	present := make(map[string]bool, len(cols))
	for _, col := range cols {
		present[col.Name] = true
	}

	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	for _, col := range timestampCandidates {
		if !present[col] {
			continue
		}
		query := fmt.Sprintf("SELECT MAX(%s) FROM %s", quoteIdent(col), i.qualified(tableName))
		var ts sql.NullTime
		if err := i.db.QueryRowContext(ctx, query).Scan(&ts); err != nil {
			return time.Time{}, errors.Wrapf(err, "latest %s", col)
		}
		if ts.Valid {
			return ts.Time, nil
		}
	}
	return time.Time{}, nil
}

func (i *Inspector) qualified(tableName string) string {
	return quoteIdent(i.schema) + "." + quoteIdent(tableName)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return types.NewDateTime(t).String()
}
