package scan

import (
	"strings"

	"github.com/pkg/errors"
)

// Dialect identifies the warehouse a scan ran against.
type Dialect string

const (
	BigQuery  Dialect = "bigquery"
	MySQL     Dialect = "mysql"
	Postgres  Dialect = "postgres"
	Snowflake Dialect = "snowflake"
)

var tableNameNormalizers = map[Dialect]func(string) string{
	BigQuery:  func(name string) string { return strings.Trim(name, "`") },
	MySQL:     func(name string) string { return strings.ReplaceAll(name, "`", "") },
	Postgres:  func(name string) string { return strings.ReplaceAll(name, `"`, "") },
	Snowflake: func(name string) string { return strings.ReplaceAll(name, `"`, "") },
}

func ParseDialect(s string) (Dialect, error) {
	d := Dialect(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tableNameNormalizers[d]; !ok {
		return "", errors.Errorf("unsupported warehouse dialect: %q", s)
	}
	return d, nil
}

// NormalizeTableName strips the dialect's identifier quoting so that history
// is keyed by the bare qualified table name.
func (d Dialect) NormalizeTableName(name string) string {
	name = strings.TrimSpace(name)
	if fn, ok := tableNameNormalizers[d]; ok {
		return fn(name)
	}
	return name
}
