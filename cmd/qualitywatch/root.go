package main

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/alexanderjulianmartinez/quality-watch/internal/config"
	"github.com/alexanderjulianmartinez/quality-watch/internal/logging"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store/bigquery"
	"github.com/alexanderjulianmartinez/quality-watch/internal/store/sqlstore"
)

// app holds what every subcommand needs: parsed flags, config and logger.
type app struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "qualitywatch",
		Short: "Data quality history and schema drift detection",
		Long: `QualityWatch runs a data quality scan against one table, checks whether
the table's schema changed since the last recorded scan, and appends the
scan's measurements and test results to a historical store.

Examples:
  # Create the history tables
  qualitywatch store init --config qualitywatch.yaml

  # Scan, detect drift, persist, print the summary
  qualitywatch run --config qualitywatch.yaml

  # Show the profile dashboard for a table
  qualitywatch report profile --config qualitywatch.yaml --table shop.orders
`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.configPath, "config", "qualitywatch.yaml", "Path to the configuration file")

	root.AddCommand(
		newRunCmd(a),
		newSchemaCmd(a),
		newStoreCmd(a),
		newReportCmd(a),
	)
	return root
}

// load reads the configuration and builds the logger once.
func (a *app) load() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logger
	return nil
}

// historyStore is implemented by every store backend.
type historyStore interface {
	store.Store
	EnsureSchema(ctx context.Context) error
}

func (a *app) openStore(ctx context.Context) (historyStore, error) {
	sc := a.cfg.Store
	switch sc.Type {
	case config.StoreBigQuery:
		return bigquery.Open(ctx, bigquery.Config{
			ProjectID:         sc.ProjectID,
			CredentialsFile:   sc.CredentialsFile,
			Location:          sc.Location,
			MeasurementsTable: sc.MeasurementsTable,
			TestResultsTable:  sc.TestResultsTable,
		}, a.logger)
	case config.StoreMySQL, config.StorePostgres, config.StoreSQLite:
		return sqlstore.Open(ctx, sqlstore.Config{
			Driver:            sc.Type,
			DSN:               sc.DSN,
			MeasurementsTable: sc.MeasurementsTable,
			TestResultsTable:  sc.TestResultsTable,
		}, a.logger)
	default:
		return nil, errors.Errorf("unsupported store type %q", sc.Type)
	}
}
