package record

import (
	"time"
)

// Measurement is the flat, storable form of a scan measurement. Value always
// holds JSON so scalar and structured metrics share one column.
type Measurement struct {
	Metric            string    `json:"metric"`
	Value             string    `json:"value"`
	TableName         string    `json:"table_name"`
	ColumnName        *string   `json:"column_name"`
	ExecutionDatetime time.Time `json:"execution_datetime"`
}

// TestResult is the flat, storable form of a scan test result.
type TestResult struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       *string   `json:"description"`
	Expression        *string   `json:"expression"`
	TableName         string    `json:"table_name"`
	ColumnName        *string   `json:"column_name"`
	Source            *string   `json:"source"`
	Passed            bool      `json:"passed"`
	Skipped           bool      `json:"skipped"`
	RowCount          *int64    `json:"row_count"`
	ExpressionResult  *float64  `json:"expression_result"`
	InvalidPercentage *float64  `json:"invalid_percentage"`
	ExecutionDatetime time.Time `json:"execution_datetime"`
}
