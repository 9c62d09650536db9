package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// TaskSummaryRequest aggregates tasks whose scheduled time falls in Range.
// StaleAfter decides when a claimed task counts as stuck; Now defaults to the service clock.
type TaskSummaryRequest struct {
	Range      TimeRange     `json:"range"`
	StaleAfter time.Duration `json:"-"`
	Now        time.Time     `json:"-"`
}

type TaskSummary struct {
	Range TimeRange `json:"range"`

	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`

	// OverduePending are pending tasks already past their scheduled time.
	OverduePending int `json:"overdue_pending"`
	// StaleClaimed are claimed tasks that never reached processed.
	StaleClaimed int `json:"stale_claimed"`

	FailuresRecorded int `json:"failures_recorded"`
	Retries          int `json:"retries"`

	// DispatchSuccessRate is processed / (claimed + processed).
	DispatchSuccessRate float64 `json:"dispatch_success_rate"`
}
