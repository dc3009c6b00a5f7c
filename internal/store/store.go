package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
)

// ErrUnavailable matches any failure to reach the historical store.
var ErrUnavailable = errors.New("historical store unavailable")

// UnavailableError wraps a driver or transport error from a store operation.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return e.Op + ": " + ErrUnavailable.Error() + ": " + e.Err.Error()
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UnavailableError{Op: op, Err: err}
}

// Target names one of the two history tables.
type Target string

const (
	Measurements Target = "measurements"
	TestResults  Target = "test_results"
)

// Writer appends records. Each call lands all rows or none.
type Writer interface {
	AppendMeasurements(ctx context.Context, records []record.Measurement) error
	AppendTestResults(ctx context.Context, records []record.TestResult) error
	Count(ctx context.Context, target Target) (int64, error)
}

// Reader serves filtered, timestamp-ordered reads over the history.
type Reader interface {
	// LatestMeasurement returns the most recent record for table and metric,
	// or nil when none was ever stored.
	LatestMeasurement(ctx context.Context, table, metric string) (*record.Measurement, error)
	Measurements(ctx context.Context, table string, at time.Time) ([]record.Measurement, error)
	TestResults(ctx context.Context, at time.Time) ([]record.TestResult, error)
	ExecutionTimes(ctx context.Context, target Target) ([]time.Time, error)
	TableNames(ctx context.Context) ([]string, error)
}

type Store interface {
	Reader
	Writer
	Close() error
}
