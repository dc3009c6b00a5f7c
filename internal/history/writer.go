package history

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

// PartialWriteError reports that one record set of a run was persisted and
// the other was not, leaving the history inconsistent for that execution.
type PartialWriteError struct {
	Written store.Target
	Failed  store.Target
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: %s persisted but %s failed: %v", e.Written, e.Failed, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// Writer appends a run's records to the history. It is not idempotent:
// appending the same records twice stores them twice.
type Writer struct {
	store  store.Writer
	logger *zap.Logger
}

func NewWriter(w store.Writer, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{store: w, logger: logger}
}

// Append writes measurements, then test results, and returns the number of
// rows each target now holds.
func (w *Writer) Append(ctx context.Context, measurements []record.Measurement, testResults []record.TestResult) (types.RecordCount, error) {
	if err := w.store.AppendMeasurements(ctx, measurements); err != nil {
		return types.RecordCount{}, err
	}
	if err := w.store.AppendTestResults(ctx, testResults); err != nil {
		if len(measurements) == 0 {
			return types.RecordCount{}, err
		}
		return types.RecordCount{}, &PartialWriteError{Written: store.Measurements, Failed: store.TestResults, Err: err}
	}

	var (
		count types.RecordCount
		err   error
	)
	if count.Measurements, err = w.store.Count(ctx, store.Measurements); err != nil {
		return count, err
	}
	w.logger.Info("loaded rows", zap.String("target", string(store.Measurements)),
		zap.Int("written", len(measurements)), zap.Int64("total", count.Measurements))

	if count.TestResults, err = w.store.Count(ctx, store.TestResults); err != nil {
		return count, err
	}
	w.logger.Info("loaded rows", zap.String("target", string(store.TestResults)),
		zap.Int("written", len(testResults)), zap.Int64("total", count.TestResults))
	return count, nil
}
