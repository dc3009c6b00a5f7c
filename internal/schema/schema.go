package schema

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/alexanderjulianmartinez/quality-watch/pkg/types"
)

// MetricSchema and MetricSchemaChange are the measurement names carrying
// structured payloads.
const (
	MetricSchema       = "schema"
	MetricSchemaChange = "schema_change"
)

type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Schema is an unordered set of columns.
type Schema []Column

// Sorted returns a copy ordered by column name. Ties keep their input order.
func (s Schema) Sorted() Schema {
	out := make(Schema, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	return out
}

// Equal reports whether a and b describe the same columns regardless of the
// order the source enumerated them in.
func Equal(a, b Schema) bool {
	if len(a) != len(b) {
		return false
	}
	sa, sb := a.Sorted(), b.Sorted()
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// Parse decodes a JSON-encoded list of columns.
func Parse(value string) (Schema, error) {
	var s Schema
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return nil, errors.Wrap(err, "decode schema")
	}
	return s, nil
}

// FromValue converts a measurement value of any native shape into a Schema.
// A string value is treated as already JSON-encoded.
func FromValue(v any) (Schema, error) {
	switch val := v.(type) {
	case nil:
		return nil, errors.New("schema value is empty")
	case Schema:
		return val, nil
	case []Column:
		return Schema(val), nil
	case string:
		return Parse(val)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode schema value")
	}
	return Parse(string(data))
}

// ChangeResult is the outcome of comparing a freshly observed schema with the
// latest stored one.
type ChangeResult struct {
	SchemaChanged     bool            `json:"schema_changed"`
	LatestExecutionDT *types.DateTime `json:"latest_execution_dt"`
}
