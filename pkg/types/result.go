package types

import (
	"encoding/json"
	"strings"
	"time"
)

// DateTimeLayout is the second-precision layout used for execution timestamps
// in summaries and persisted JSON payloads.
const DateTimeLayout = "2006-01-02 15:04:05"

// DateTime is a UTC timestamp truncated to whole seconds.
type DateTime struct {
	time.Time
}

func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC().Truncate(time.Second)}
}

func ParseDateTime(s string) (DateTime, error) {
	t, err := time.ParseInLocation(DateTimeLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return DateTime{}, err
	}
	return DateTime{Time: t}, nil
}

func (d DateTime) String() string {
	return d.UTC().Format(DateTimeLayout)
}

func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *DateTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// SchemaCheck is the schema part of a run summary.
type SchemaCheck struct {
	ExecutionDT       DateTime  `json:"execution_dt"`
	SchemaChanged     bool      `json:"schema_changed"`
	LatestExecutionDT *DateTime `json:"latest_execution_dt"`
}

// RecordCount holds the number of rows present in each history target.
type RecordCount struct {
	Measurements int64 `json:"measurements"`
	TestResults  int64 `json:"test_results"`
}

// Summary is emitted once per run for pipeline gating.
type Summary struct {
	RunID             string       `json:"run_id"`
	TableName         string       `json:"table_name"`
	IsPassed          bool         `json:"is_passed"`
	SchemaCheckResult SchemaCheck  `json:"schema_check_result"`
	RecordCount       *RecordCount `json:"record_count,omitempty"`
}
