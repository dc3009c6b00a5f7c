package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/alexanderjulianmartinez/quality-watch/internal/drift"
	"github.com/alexanderjulianmartinez/quality-watch/internal/history"
	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/scan"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

// WriteError reports a persistence failure after the scan completed. The
// scan verdict in the accompanying summary stays valid.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("persist run history: %v", e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// Run is everything one execution produced, handed to sinks.
type Run struct {
	Summary      types.Summary
	Measurements []record.Measurement
	TestResults  []record.TestResult
	WriteErr     error
}

// Sink receives a finished run. Sink failures never change the run outcome.
type Sink interface {
	Name() string
	Publish(ctx context.Context, run *Run) error
}

// HistoryStore is the store surface a run reads from and appends to.
type HistoryStore interface {
	drift.MeasurementFinder
	store.Writer
}

type Options struct {
	Scanner scan.Scanner
	Store   HistoryStore
	Sinks   []Sink
	Logger  *zap.Logger
	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

type Runner struct {
	scanner  scan.Scanner
	detector *drift.Detector
	writer   *history.Writer
	sinks    []Sink
	logger   *zap.Logger
	newRunID func() string
}

func New(opts Options) (*Runner, error) {
	if opts.Scanner == nil {
		return nil, errors.New("pipeline: scanner is required")
	}
	if opts.Store == nil {
		return nil, errors.New("pipeline: historical store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}
	return &Runner{
		scanner:  opts.Scanner,
		detector: drift.NewDetector(drift.NewReader(opts.Store), logger),
		writer:   history.NewWriter(opts.Store, logger),
		sinks:    opts.Sinks,
		logger:   logger,
		newRunID: newRunID,
	}, nil
}

// Run executes one scan-to-history pass. Failures before the write step
// return no summary and leave the history untouched. A failed write returns
// the summary together with a *WriteError.
func (r *Runner) Run(ctx context.Context) (*types.Summary, error) {
	runID := r.newRunID()
	logger := r.logger.With(zap.String("run_id", runID))

	res, err := r.scanner.Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	table := res.TableName()
	executedAt := res.ExecutionDatetime()
	logger = logger.With(zap.String("table", table), zap.Stringer("execution_datetime", executedAt))
	logger.Info("scan finished", zap.Bool("is_passed", res.IsPassed()),
		zap.Int("measurements", len(res.Measurements())), zap.Int("test_results", len(res.TestResults())))

	current, err := res.Schema()
	if err != nil {
		return nil, err
	}
	change, err := r.detector.CheckSchemaChange(ctx, current, table)
	if err != nil {
		return nil, errors.Wrap(err, "check schema change")
	}
	res.AddSchemaCheckResult(change)

	measurements, testResults, err := record.Convert(res, table, executedAt.Time)
	if err != nil {
		return nil, err
	}

	summary := &types.Summary{
		RunID:     runID,
		TableName: table,
		IsPassed:  res.IsPassed(),
		SchemaCheckResult: types.SchemaCheck{
			ExecutionDT:       executedAt,
			SchemaChanged:     change.SchemaChanged,
			LatestExecutionDT: change.LatestExecutionDT,
		},
	}

	var writeErr error
	count, err := r.writer.Append(ctx, measurements, testResults)
	if err != nil {
		writeErr = &WriteError{Err: err}
		logger.Error("history write failed", zap.Error(err))
	} else {
		summary.RecordCount = &count
	}

	r.publish(ctx, logger, &Run{
		Summary:      *summary,
		Measurements: measurements,
		TestResults:  testResults,
		WriteErr:     writeErr,
	})
	return summary, writeErr
}

func (r *Runner) publish(ctx context.Context, logger *zap.Logger, run *Run) {
	for _, sink := range r.sinks {
		if err := sink.Publish(ctx, run); err != nil {
			logger.Warn("sink failed", zap.String("sink", sink.Name()), zap.Error(err))
			continue
		}
		logger.Debug("sink published", zap.String("sink", sink.Name()))
	}
}
