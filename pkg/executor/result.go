package executor

import "time"

// ArtifactResult reports one attempted artifact.
type ArtifactResult struct {
	ArtifactID      string  `json:"artifact_id"`
	Success         bool    `json:"success"`
	Message         string  `json:"message,omitempty"`
	Error           string  `json:"error,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`

	// Origin is "parent" or "child"; Alias carries the child-relative
	// artifact id for inlined child-runbook artifacts.
	Origin string `json:"origin,omitempty"`
	Alias  string `json:"alias,omitempty"`
}

// Result summarises one execution pass over a plan.
type Result struct {
	RunID                string           `json:"run_id"`
	StartTimestamp       time.Time        `json:"start_timestamp"`
	Artifacts            []ArtifactResult `json:"artifacts"`
	Skipped              []string         `json:"skipped,omitempty"`
	Pending              bool             `json:"pending"`
	TotalDurationSeconds float64          `json:"total_duration_seconds"`

	// Status is the run's final lifecycle status: completed, failed,
	// or paused.
	Status string `json:"status"`
}

// Success reports whether every attempted artifact succeeded, nothing
// was skipped, and nothing is pending.
func (r *Result) Success() bool {
	if r.Pending || len(r.Skipped) > 0 {
		return false
	}
	for _, a := range r.Artifacts {
		if !a.Success {
			return false
		}
	}
	return true
}
