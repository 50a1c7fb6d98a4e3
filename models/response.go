package models

import "time"

// Run states, in the order a successful run visits them.
const (
	StateInit                    = "init"
	StateSearchSubmitted         = "search_submitted"
	StateAwaitingManualChallenge = "awaiting_manual_challenge"
	StateResultsResolving        = "results_resolving"
	StateRowIterating            = "row_iterating"
	StateCompleted               = "completed"
	StateFailed                  = "failed"
)

// RunStatus is a point-in-time view of a run, served by the status API and
// sent with run notifications.
type RunStatus struct {
	RunID string `json:"run_id"`
	State string `json:"state"`

	// Total is the number of rows the run will iterate (after the cap).
	Total int `json:"total"`

	// Processed is the number of records written so far.
	Processed int `json:"processed"`

	// Priced is how many of those records carry a price.
	Priced int `json:"priced"`

	// Recoveries counts session relaunches.
	Recoveries int `json:"recoveries"`

	ResultsURL string       `json:"results_url,omitempty"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
}

// Percent returns completion in the 0-100 range.
func (s RunStatus) Percent() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Processed) * 100 / float64(s.Total)
}

// Terminal reports whether the run has finished.
func (s RunStatus) Terminal() bool {
	return s.State == StateCompleted || s.State == StateFailed
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string `json:"status"` // "healthy" or "degraded"
	Uptime  string `json:"uptime"`
	State   string `json:"state"`
	Version string `json:"version"`
}

// ProgressResponse is the response for GET /api/v1/progress.
type ProgressResponse struct {
	Success bool         `json:"success"`
	Status  RunStatus    `json:"status"`
	Percent float64      `json:"percent"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorResponse is the body of every rejected API request.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
