package main

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alexanderjulianmartinez/quality-watch/internal/archive"
	"github.com/alexanderjulianmartinez/quality-watch/internal/config"
	"github.com/alexanderjulianmartinez/quality-watch/internal/metrics"
	"github.com/alexanderjulianmartinez/quality-watch/internal/notify"
	"github.com/alexanderjulianmartinez/quality-watch/internal/pipeline"
	"github.com/alexanderjulianmartinez/quality-watch/internal/scan"
	"github.com/alexanderjulianmartinez/quality-watch/internal/source/mysql"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

type runOptions struct {
	scanFile          string
	executionDatetime string
	failOnTestFailure bool
}

func newRunCmd(a *app) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan a table, check schema drift and append the results to history",
		Long: `Run one scan of the configured table.

The run summary is printed to stdout as JSON. Exit codes:
  0  run completed
  1  run aborted before anything was written
  2  scan verdict failed (only with --fail-on-test-failure)
  3  scan completed but the history write failed
`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runScan(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.scanFile, "scan-file", "", "Read the scan result from this JSON/YAML file instead of the configured source")
	cmd.Flags().StringVar(&opts.executionDatetime, "execution-datetime", "", `Pin the execution timestamp ("YYYY-MM-DD HH:MM:SS", UTC)`)
	cmd.Flags().BoolVar(&opts.failOnTestFailure, "fail-on-test-failure", false, "Exit 2 when the scan verdict is failed")
	return cmd
}

func (a *app) runScan(ctx context.Context, opts *runOptions) error {
	if err := a.load(); err != nil {
		return err
	}
	if opts.scanFile != "" {
		a.cfg.Scan.Source = config.SourceFile
		a.cfg.Scan.File = opts.scanFile
		if err := a.cfg.Validate(); err != nil {
			return err
		}
	}

	scanOpts, err := scanOptions(a.cfg.Scan, opts.executionDatetime)
	if err != nil {
		return err
	}
	scanner, closeScanner, err := newScanner(a.cfg.Scan, scanOpts)
	if err != nil {
		return err
	}
	defer closeScanner()

	st, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	sinks, closeSinks, err := a.newSinks(ctx)
	if err != nil {
		return err
	}
	defer closeSinks()

	runner, err := pipeline.New(pipeline.Options{
		Scanner: scanner,
		Store:   st,
		Sinks:   sinks,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	summary, runErr := runner.Run(ctx)
	if summary != nil {
		if err := writeSummary(a.stdout, summary); err != nil {
			return err
		}
	}
	return runOutcome(summary, runErr, opts.failOnTestFailure)
}

// runOutcome maps a run result onto the process exit code.
func runOutcome(summary *types.Summary, err error, failOnTestFailure bool) error {
	var writeErr *pipeline.WriteError
	switch {
	case errors.As(err, &writeErr):
		return &exitError{code: exitPersistFailed, err: err}
	case err != nil:
		return &exitError{code: exitAborted, err: err}
	case failOnTestFailure && summary != nil && !summary.IsPassed:
		return &exitError{code: exitTestsFailed, err: errors.Errorf("scan of %s did not pass", summary.TableName)}
	}
	return nil
}

func writeSummary(w io.Writer, summary *types.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(summary), "write summary")
}

func scanOptions(cfg config.ScanConfig, executionDatetime string) (scan.Options, error) {
	dialect, err := scan.ParseDialect(cfg.Dialect)
	if err != nil {
		return scan.Options{}, err
	}
	opts := scan.Options{Dialect: dialect, Table: cfg.Table}
	if executionDatetime != "" {
		dt, err := types.ParseDateTime(executionDatetime)
		if err != nil {
			return scan.Options{}, errors.Wrap(err, "--execution-datetime")
		}
		opts.ExecutedAt = &dt.Time
	}
	return opts, nil
}

func newScanner(cfg config.ScanConfig, opts scan.Options) (scan.Scanner, func(), error) {
	switch cfg.Source {
	case config.SourceFile:
		return scan.NewFileScanner(cfg.File, opts), func() {}, nil
	case config.SourceMySQL:
		inspector, err := mysql.NewInspector(cfg.MySQL.DSN, cfg.MySQL.Schema)
		if err != nil {
			return nil, nil, err
		}
		return mysql.NewScanner(inspector, cfg.Table, opts), func() { _ = inspector.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unsupported scan source %q", cfg.Source)
	}
}

func (a *app) newSinks(ctx context.Context) ([]pipeline.Sink, func(), error) {
	var (
		sinks   []pipeline.Sink
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				a.logger.Warn("close sink", zap.Error(err))
			}
		}
	}

	if len(a.cfg.Notify.Kafka.Brokers) > 0 {
		p, err := notify.NewPublisher(a.cfg.Notify.Kafka)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
	}
	if a.cfg.Metrics.PushgatewayURL != "" {
		sinks = append(sinks, metrics.NewPusher(a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.Job))
	}

	gcs, err := archive.NewGCS(ctx, a.cfg.Archive.GCS)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	closers = append(closers, gcs.Close)
	s3, err := archive.NewS3(ctx, a.cfg.Archive.S3)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	if archiver := archive.NewArchiver(a.logger, gcs, s3); archiver.Enabled() {
		sinks = append(sinks, archiver)
	}

	return sinks, closeAll, nil
}

// latestTime picks the newest execution time when at is empty.
func latestTime(at string, times []time.Time) (time.Time, error) {
	if at != "" {
		dt, err := types.ParseDateTime(at)
		if err != nil {
			return time.Time{}, errors.Wrap(err, "--at")
		}
		return dt.Time, nil
	}
	if len(times) == 0 {
		return time.Time{}, errors.New("no runs recorded yet")
	}
	return times[0], nil
}
