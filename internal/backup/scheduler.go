package backup

import "time"

// IsDue decides whether a target is eligible to run now.
//
// A forced run is always due. A target that has never run is due. Otherwise
// the target is due when the elapsed time since its last run reaches its
// configured frequency. Stored last-run values are naive UTC timestamps, so
// both sides of the comparison are normalized to UTC before subtracting.
func IsDue(t Target, now time.Time, force bool) bool {
	if force {
		return true
	}
	if t.LastRun == nil {
		return true
	}
	elapsed := now.UTC().Sub(t.LastRun.UTC())
	return elapsed >= time.Duration(t.FrequencyHours)*time.Hour
}
