package schedule

import (
	"fmt"
	"time"

	"github.com/nileshevrywhr/threatwatch-broccoli/internal/types"
)

// NextRun computes the next valid run instant for a monitor given its cadence
// and the last scheduled instant. It is pure and deterministic: no I/O, no
// reads of the wall clock.
//
// Inputs in any location are normalized to UTC before arithmetic. This is a
// fixed convention, not an inference: timestamps persisted without an offset
// are treated as UTC.
//
// The step is added to last repeatedly until the result is strictly after
// now. This yields catch-up behavior: a schedule that lapsed for several
// periods (downtime, unadvanced next_run_at) jumps forward by the correct
// integer multiple of the step instead of producing a burst of back-to-back
// runs. The result is always strictly greater than now, never equal, and
// is the smallest such value reachable from last, so a last instant already
// in the future is returned unchanged.
//
// Monthly steps use calendar-aware month arithmetic with end-of-month
// truncation: one month after Jan 31 is the last valid day of February,
// never an overflow into March.
//
// An unsupported cadence fails with ErrCodeUnsupportedCadence and never
// silently defaults to a schedule.
func NextRun(cadence types.Cadence, last, now time.Time) (time.Time, error) {
	if !cadence.Valid() {
		return time.Time{}, types.NewAppError(
			types.ErrCodeUnsupportedCadence,
			fmt.Sprintf("unsupported cadence: %q", string(cadence)),
			nil,
		)
	}

	next := last.UTC()
	now = now.UTC()

	for !next.After(now) {
		next = addStep(cadence, next)
	}

	return next, nil
}

// addStep advances t by exactly one cadence step.
func addStep(cadence types.Cadence, t time.Time) time.Time {
	switch cadence {
	case types.CadenceDaily:
		return t.AddDate(0, 0, 1)
	case types.CadenceWeekly:
		return t.AddDate(0, 0, 7)
	case types.CadenceMonthly:
		return addMonthClamped(t)
	}
	// Unreachable: cadence is validated by NextRun before stepping.
	return t
}

// addMonthClamped adds one calendar month to t, truncating the day to the
// last valid day of the target month. time.Time.AddDate normalizes overflow
// (Jan 31 + 1 month = Mar 3), which is not the contract here.
func addMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}

	if last := daysIn(year, month); day > last {
		day = last
	}

	return time.Date(year, month, day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysIn returns the number of days in the given month. Day 0 of the
// following month normalizes to the last day of this one.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
