package drift

import (
	"context"

	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/internal/record"
	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

// MeasurementFinder is the part of the historical store the reader needs.
type MeasurementFinder interface {
	LatestMeasurement(ctx context.Context, table, metric string) (*record.Measurement, error)
}

// Snapshot is a schema as it was recorded at one execution.
type Snapshot struct {
	Schema            schema.Schema
	ExecutionDatetime types.DateTime
}

type Reader struct {
	store MeasurementFinder
}

func NewReader(store MeasurementFinder) *Reader {
	return &Reader{store: store}
}

// GetLatestSchema returns the most recently stored schema for table, or nil
// when the table has never been scanned. When two snapshots share the newest
// timestamp the store's ordering decides.
func (r *Reader) GetLatestSchema(ctx context.Context, table string) (*Snapshot, error) {
	m, err := r.store.LatestMeasurement(ctx, table, schema.MetricSchema)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	s, err := schema.Parse(m.Value)
	if err != nil {
		return nil, errors.Wrapf(err, "stored schema for %s at %s", table, types.NewDateTime(m.ExecutionDatetime))
	}
	return &Snapshot{
		Schema:            s,
		ExecutionDatetime: types.NewDateTime(m.ExecutionDatetime),
	}, nil
}
