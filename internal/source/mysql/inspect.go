package mysql

import (
	"context"

	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/scan"
	"github.com/alexanderjulianmartinez/quality-watch/internal/source"
)

// Inspect profiles one table.
func (i *Inspector) Inspect(ctx context.Context, tableName string) (*source.TableProfile, error) {
	cols, err := i.FetchSchema(ctx, tableName)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.Errorf("table %s.%s not found or has no columns", i.schema, tableName)
	}

	rowCount, err := i.FetchRowCount(ctx, tableName)
	if err != nil {
		return nil, err
	}
	missing, err := i.FetchMissingCounts(ctx, tableName, cols)
	if err != nil {
		return nil, err
	}
	latest, err := i.FetchLatestTimestamp(ctx, tableName, cols)
	if err != nil {
		return nil, err
	}

	return &source.TableProfile{
		Name:            i.schema + "." + tableName,
		Columns:         cols,
		RowCount:        rowCount,
		MissingCounts:   missing,
		LatestTimestamp: formatTimestamp(latest),
	}, nil
}

// Scanner profiles a MySQL table as a scan.
type Scanner struct {
	inspector *Inspector
	table     string
	opts      scan.Options
}

func NewScanner(inspector *Inspector, table string, opts scan.Options) *Scanner {
	return &Scanner{inspector: inspector, table: table, opts: opts}
}

func (s *Scanner) Scan(ctx context.Context) (*scan.Result, error) {
	profile, err := s.inspector.Inspect(ctx, s.table)
	if err != nil {
		return nil, errors.Wrapf(err, "profile %s", s.table)
	}
	return scan.NewResult(s.opts.Dialect, profile.Name, s.opts.CompletedAt(), profile.Document()), nil
}
