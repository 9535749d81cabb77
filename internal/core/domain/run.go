package domain

import "time"

// Outcome is the state of one reconcile run. Every value except
// OutcomeQueued is terminal.
type Outcome string

const (
	OutcomeQueued            Outcome = "queued"
	OutcomeUpdated           Outcome = "updated"
	OutcomeNoRecentPlays     Outcome = "no_recent_plays"
	OutcomeNoMatches         Outcome = "no_matches"
	OutcomeNoRecommendations Outcome = "no_recommendations"
	OutcomeNoResolvedTracks  Outcome = "no_resolved_tracks"
	OutcomeFailed            Outcome = "failed"
)

// RunReport summarises one reconcile run.
type RunReport struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
	Outcome      Outcome   `json:"outcome"`
	Observations int       `json:"observations"`
	Matched      int       `json:"matched"`
	Recommended  int       `json:"recommended"`
	Resolved     int       `json:"resolved"`
	TrackIDs     []string  `json:"track_ids,omitempty"`
	Error        string    `json:"error,omitempty"`
	NotifyError  string    `json:"notify_error,omitempty"`
}

// Duration returns how long the run took.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
