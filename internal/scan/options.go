package scan

import "time"

// Options are shared by the scanners.
type Options struct {
	Dialect Dialect
	Table   string
	// ExecutedAt pins the execution timestamp instead of capturing it at
	// scan completion.
	ExecutedAt *time.Time
	Now        func() time.Time
}

// CompletedAt returns the execution timestamp for a scan that just finished.
func (o Options) CompletedAt() time.Time {
	if o.ExecutedAt != nil {
		return *o.ExecutedAt
	}
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}
