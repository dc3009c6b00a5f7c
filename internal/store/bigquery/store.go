package bigquery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	bq "cloud.google.com/go/bigquery"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
)

type Config struct {
	ProjectID         string
	CredentialsFile   string
	Location          string
	MeasurementsTable string
	TestResultsTable  string
}

// Store keeps history in two BigQuery tables. Appends run as load jobs, which
// commit atomically per job.
type Store struct {
	client       *bq.Client
	measurements tableRef
	testResults  tableRef
	logger       *zap.Logger
}

func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	measurements, err := parseTableRef(cfg.ProjectID, cfg.MeasurementsTable)
	if err != nil {
		return nil, err
	}
	testResults, err := parseTableRef(cfg.ProjectID, cfg.TestResultsTable)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{}
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(strings.TrimSpace(cfg.CredentialsFile)))
	}
	client, err := bq.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, store.Unavailable("bigquery client", err)
	}
	if cfg.Location != "" {
		client.Location = cfg.Location
	}
	return &Store{
		client:       client,
		measurements: measurements,
		testResults:  testResults,
		logger:       logger,
	}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// EnsureSchema creates both history tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, t := range []struct {
		ref    tableRef
		schema bq.Schema
	}{
		{s.measurements, measurementSchema},
		{s.testResults, testResultSchema},
	} {
		table := s.client.DatasetInProject(t.ref.Project, t.ref.Dataset).Table(t.ref.Table)
		err := table.Create(ctx, &bq.TableMetadata{Schema: t.schema})
		if err != nil && !isAlreadyExists(err) {
			return store.Unavailable("create "+t.ref.String(), err)
		}
	}
	return nil
}

func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func (s *Store) ref(target store.Target) (tableRef, error) {
	switch target {
	case store.Measurements:
		return s.measurements, nil
	case store.TestResults:
		return s.testResults, nil
	default:
		return tableRef{}, errors.Errorf("unknown history target %q", target)
	}
}

func (s *Store) AppendMeasurements(ctx context.Context, records []record.Measurement) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, toLoadMeasurement(r))
	}
	return s.load(ctx, "append measurements", s.measurements, measurementSchema, rows)
}

func (s *Store) AppendTestResults(ctx context.Context, records []record.TestResult) error {
	if len(records) == 0 {
		return nil
	}
	rows := make([]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, toLoadTestResult(r))
	}
	return s.load(ctx, "append test results", s.testResults, testResultSchema, rows)
}

func (s *Store) load(ctx context.Context, op string, ref tableRef, schema bq.Schema, rows []any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return errors.Wrapf(err, "%s: encode row", op)
		}
	}

	src := bq.NewReaderSource(&buf)
	src.SourceFormat = bq.JSON
	src.Schema = schema

	loader := s.client.DatasetInProject(ref.Project, ref.Dataset).Table(ref.Table).LoaderFrom(src)
	loader.WriteDisposition = bq.WriteAppend
	loader.CreateDisposition = bq.CreateIfNeeded

	job, err := loader.Run(ctx)
	if err != nil {
		return store.Unavailable(op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return store.Unavailable(op, err)
	}
	if err := status.Err(); err != nil {
		return store.Unavailable(op, err)
	}
	s.logger.Debug("load job done", zap.String("op", op), zap.String("job", job.ID()), zap.Int("rows", len(rows)))
	return nil
}

func (s *Store) Count(ctx context.Context, target store.Target) (int64, error) {
	ref, err := s.ref(target)
	if err != nil {
		return 0, err
	}
	it, err := s.client.Query(fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", ref)).Read(ctx)
	if err != nil {
		return 0, store.Unavailable("count "+string(target), err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil {
		return 0, store.Unavailable("count "+string(target), err)
	}
	return row.N, nil
}

func (s *Store) LatestMeasurement(ctx context.Context, table, metric string) (*record.Measurement, error) {
	q := s.client.Query(fmt.Sprintf(`SELECT metric, value, table_name, column_name, execution_datetime
FROM %s
WHERE table_name = @table_name AND metric = @metric
ORDER BY execution_datetime DESC
LIMIT 1`, s.measurements))
	q.Parameters = []bq.QueryParameter{
		{Name: "table_name", Value: table},
		{Name: "metric", Value: metric},
	}
	ms, err := readMeasurements(ctx, q)
	if err != nil {
		return nil, store.Unavailable("latest "+metric, err)
	}
	if len(ms) == 0 {
		return nil, nil
	}
	return &ms[0], nil
}

func (s *Store) Measurements(ctx context.Context, table string, at time.Time) ([]record.Measurement, error) {
	q := s.client.Query(fmt.Sprintf(`SELECT metric, value, table_name, column_name, execution_datetime
FROM %s
WHERE table_name = @table_name AND execution_datetime = CAST(@at AS DATETIME)`, s.measurements))
	q.Parameters = []bq.QueryParameter{
		{Name: "table_name", Value: table},
		{Name: "at", Value: formatDateTime(at)},
	}
	ms, err := readMeasurements(ctx, q)
	if err != nil {
		return nil, store.Unavailable("measurements", err)
	}
	return ms, nil
}

func (s *Store) TestResults(ctx context.Context, at time.Time) ([]record.TestResult, error) {
	q := s.client.Query(fmt.Sprintf(`SELECT *
FROM %s
WHERE execution_datetime = CAST(@at AS DATETIME)`, s.testResults))
	q.Parameters = []bq.QueryParameter{{Name: "at", Value: formatDateTime(at)}}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, store.Unavailable("test results", err)
	}
	var out []record.TestResult
	for {
		var row queryTestResult
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Unavailable("test results", err)
		}
		out = append(out, row.record())
	}
	return out, nil
}

func (s *Store) ExecutionTimes(ctx context.Context, target store.Target) ([]time.Time, error) {
	ref, err := s.ref(target)
	if err != nil {
		return nil, err
	}
	it, err := s.client.Query(fmt.Sprintf(
		"SELECT DISTINCT execution_datetime FROM %s ORDER BY execution_datetime DESC", ref,
	)).Read(ctx)
	if err != nil {
		return nil, store.Unavailable("execution times", err)
	}
	var out []time.Time
	for {
		var row struct {
			ExecutionDatetime bq.NullDateTime `bigquery:"execution_datetime"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Unavailable("execution times", err)
		}
		out = append(out, dateTime(row.ExecutionDatetime))
	}
	return out, nil
}

func (s *Store) TableNames(ctx context.Context) ([]string, error) {
	it, err := s.client.Query(fmt.Sprintf(
		"SELECT DISTINCT table_name FROM %s ORDER BY table_name DESC", s.measurements,
	)).Read(ctx)
	if err != nil {
		return nil, store.Unavailable("table names", err)
	}
	var out []string
	for {
		var row struct {
			TableName string `bigquery:"table_name"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, store.Unavailable("table names", err)
		}
		out = append(out, row.TableName)
	}
	return out, nil
}

func readMeasurements(ctx context.Context, q *bq.Query) ([]record.Measurement, error) {
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	var out []record.Measurement
	for {
		var row queryMeasurement
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row.record())
	}
	return out, nil
}
