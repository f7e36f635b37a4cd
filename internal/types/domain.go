package types

import "time"

// Monitor is a saved recurring search subscription. It is long-lived and
// cyclic: the scheduler repeatedly selects it as due and advances NextRunAt.
//
// Invariant: NextRunAt is strictly in the future relative to the instant it
// was last written, except for the brief window between being selected as
// due and being rescheduled. Only monitor creation (API) and the scheduler's
// reschedule step write NextRunAt.
type Monitor struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	QueryText string    `json:"query_text"`
	Cadence   Cadence   `json:"frequency"`
	Active    bool      `json:"active"`
	NextRunAt time.Time `json:"next_run_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Search records a single provider query executed on behalf of a monitor.
type Search struct {
	ID        string       `json:"id"`
	MonitorID string       `json:"monitor_id"`
	QueryText string       `json:"query_text"`
	Status    SearchStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
}

// Report is the packaged outcome of one scan cycle. ArtifactURL is nil when
// the artifact upload failed; the report row is still created so the owner
// can see report metadata even without a downloadable artifact.
type Report struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	MonitorID   string    `json:"monitor_id"`
	SearchID    string    `json:"search_id"`
	ArtifactURL *string   `json:"artifact_url"`
	ItemCount   int       `json:"item_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// ResultItem is a single item returned by the external search provider,
// in provider order.
type ResultItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// RankedItem pairs a provider result with its threat score. Position is the
// item's 1-based rank after sorting; ties keep provider order.
type RankedItem struct {
	ResultItem
	Score    float64 `json:"score"`
	Position int     `json:"position"`
}
