package types

// Cadence is the recurrence period of a monitor.
type Cadence string

const (
	CadenceDaily   Cadence = "daily"
	CadenceWeekly  Cadence = "weekly"
	CadenceMonthly Cadence = "monthly"
)

// Valid reports whether the cadence is one of the supported values.
// Unsupported cadences must never default to a schedule; callers surface
// ErrCodeUnsupportedCadence instead.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceDaily, CadenceWeekly, CadenceMonthly:
		return true
	}
	return false
}

// SearchStatus tracks the lifecycle of a search record.
type SearchStatus string

const (
	SearchStatusCompleted SearchStatus = "completed"
	SearchStatusFailed    SearchStatus = "failed"
)
