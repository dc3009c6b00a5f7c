package source

import (
	"github.com/alexanderjulianmartinez/quality-watch/internal/scan"
	"github.com/alexanderjulianmartinez/quality-watch/internal/schema"
)

// Metrics produced by source profilers besides the schema measurement.
const (
	MetricRowCount        = "row_count"
	MetricMissingCount    = "missing_count"
	MetricLatestTimestamp = "latest_timestamp"
)

// TableProfile is what a source profiler learned about one table.
type TableProfile struct {
	Name          string
	Columns       schema.Schema
	RowCount      int64
	MissingCounts map[string]int64
	// LatestTimestamp is the newest value of the first timestamp column found,
	// formatted as a DateTime string. Empty when the table has none.
	LatestTimestamp string
}

// Document renders the profile as a scan result document. Profilers run no
// tests, so the document always passes.
func (p TableProfile) Document() scan.Document {
	doc := scan.Document{
		TableName: p.Name,
		Measurements: []scan.Measurement{
			{Metric: schema.MetricSchema, Value: p.Columns},
			{Metric: MetricRowCount, Value: p.RowCount},
		},
	}
	for _, col := range p.Columns {
		n, ok := p.MissingCounts[col.Name]
		if !ok {
			continue
		}
		name := col.Name
		doc.Measurements = append(doc.Measurements, scan.Measurement{
			Metric: MetricMissingCount, ColumnName: &name, Value: n,
		})
	}
	if p.LatestTimestamp != "" {
		doc.Measurements = append(doc.Measurements, scan.Measurement{
			Metric: MetricLatestTimestamp, Value: p.LatestTimestamp,
		})
	}
	return doc
}
