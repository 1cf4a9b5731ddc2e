// Package scheduler decides when each monitoring query is re-checked and
// drives the periodic monitoring and report jobs.
package scheduler

import (
	"sort"
	"time"

	"github.com/citelens/citelens/internal/models"
)

// Clock provides the current time. Injected so scheduling decisions are
// reproducible in tests.
type Clock func() time.Time

// Interval maps a check frequency to its re-check interval.
func Interval(f models.CheckFrequency) time.Duration {
	switch f {
	case models.FrequencyHourly:
		return time.Hour
	case models.FrequencyDaily:
		return 24 * time.Hour
	case models.FrequencyWeekly:
		return 7 * 24 * time.Hour
	}
	// Unknown frequencies fall back to daily rather than hot-looping.
	return 24 * time.Hour
}

// NextCheck computes the next eligible check time for a query checked at now.
func NextCheck(now time.Time, f models.CheckFrequency) time.Time {
	return now.Add(Interval(f))
}

// SortDue orders due queries for dispatch: priority descending, then
// next_check ascending with never-scheduled queries first, then ID ascending
// so equal queries always come back in the same order.
func SortDue(queries []models.MonitoringQuery) {
	sort.Slice(queries, func(i, j int) bool {
		a, b := &queries[i], &queries[j]
		if a.Priority.Rank() != b.Priority.Rank() {
			return a.Priority.Rank() > b.Priority.Rank()
		}
		switch {
		case a.NextCheck == nil && b.NextCheck != nil:
			return true
		case a.NextCheck != nil && b.NextCheck == nil:
			return false
		case a.NextCheck != nil && b.NextCheck != nil && !a.NextCheck.Equal(*b.NextCheck):
			return a.NextCheck.Before(*b.NextCheck)
		}
		return a.ID < b.ID
	})
}
