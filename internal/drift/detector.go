package drift

import (
	"context"

	"go.uber.org/zap"

	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
)

type Detector struct {
	reader *Reader
	logger *zap.Logger
}

func NewDetector(reader *Reader, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{reader: reader, logger: logger}
}

// CheckSchemaChange compares current with the latest stored schema for table.
// A table seen for the first time is never reported as changed.
func (d *Detector) CheckSchemaChange(ctx context.Context, current schema.Schema, table string) (schema.ChangeResult, error) {
	prior, err := d.reader.GetLatestSchema(ctx, table)
	if err != nil {
		return schema.ChangeResult{}, err
	}
	if prior == nil {
		d.logger.Info("no prior schema recorded", zap.String("table", table))
		return schema.ChangeResult{SchemaChanged: false}, nil
	}

	latest := prior.ExecutionDatetime
	res := schema.ChangeResult{
		SchemaChanged:     !schema.Equal(current, prior.Schema),
		LatestExecutionDT: &latest,
	}
	if res.SchemaChanged {
		var changes []string
		for _, c := range schema.Diff(prior.Schema, current) {
			changes = append(changes, c.Column+":"+c.Kind)
		}
		d.logger.Warn("schema changed",
			zap.String("table", table),
			zap.Stringer("latest_execution_dt", latest),
			zap.Strings("changes", changes),
		)
	}
	return res, nil
}
