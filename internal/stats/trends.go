package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/store"
)

const dateLayout = "2006-01-02"

// Analyzer computes windowed reports over a client's citation history. It is
// invoked on demand by reporting callers, not per event.
type Analyzer struct {
	store store.Store
}

// NewAnalyzer creates a trend analyzer over the given store.
func NewAnalyzer(st store.Store) *Analyzer {
	return &Analyzer{store: st}
}

// DailyTrend returns exactly windowDays consecutive UTC dates ending on now's
// date, each with its citation count. Days without citations appear with a
// zero count; callers never see gaps.
func (t *Analyzer) DailyTrend(ctx context.Context, clientID int64, windowDays int, now time.Time) ([]models.TrendPoint, error) {
	if windowDays < 1 {
		return nil, fmt.Errorf("window must cover at least one day, got %d", windowDays)
	}

	now = now.UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, 0, -(windowDays - 1))

	citations, err := t.store.ListCitationsByClientSince(ctx, clientID, start)
	if err != nil {
		return nil, fmt.Errorf("list citations: %w", err)
	}

	counts := make(map[string]int)
	for _, c := range citations {
		counts[c.DetectedAt.UTC().Format(dateLayout)]++
	}

	points := make([]models.TrendPoint, 0, windowDays)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		date := day.Format(dateLayout)
		points = append(points, models.TrendPoint{Date: date, Count: counts[date]})
	}
	return points, nil
}

// TopQueries returns the client's most-cited queries. Queries are grouped by
// their text, so two schedulable rows with identical text merge into one
// report entry. Ordering: citation count descending, then better (lower)
// average position, then text ascending.
func (t *Analyzer) TopQueries(ctx context.Context, clientID int64, limit int) ([]models.QueryStat, error) {
	queries, err := t.store.ListQueriesByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}

	textByID := make(map[int64]string, len(queries))
	for _, q := range queries {
		textByID[q.ID] = q.Text
	}

	citations, err := t.store.ListCitationsByClient(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("list citations: %w", err)
	}

	type group struct {
		count         int
		positionSum   int
		positionCount int
	}
	groups := make(map[string]*group)
	for _, c := range citations {
		text, ok := textByID[c.QueryID]
		if !ok {
			continue
		}
		g := groups[text]
		if g == nil {
			g = &group{}
			groups[text] = g
		}
		g.count++
		if c.Position != nil {
			g.positionSum += *c.Position
			g.positionCount++
		}
	}

	stats := make([]models.QueryStat, 0, len(groups))
	for text, g := range groups {
		var avg float64
		if g.positionCount > 0 {
			avg = round1(float64(g.positionSum) / float64(g.positionCount))
		}
		stats = append(stats, models.QueryStat{
			Query:         text,
			CitationCount: g.count,
			AvgPosition:   avg,
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].CitationCount != stats[j].CitationCount {
			return stats[i].CitationCount > stats[j].CitationCount
		}
		if a, b := sortableAvg(stats[i].AvgPosition), sortableAvg(stats[j].AvgPosition); a != b {
			return a < b
		}
		return stats[i].Query < stats[j].Query
	})

	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats, nil
}

// sortableAvg treats "no positioned citations" (reported as 0) as worse than
// any real rank when breaking ties.
func sortableAvg(avg float64) float64 {
	if avg == 0 {
		return float64(1 << 30)
	}
	return avg
}
