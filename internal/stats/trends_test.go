package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/citelens/citelens/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyTrendDenseWindow(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	_, query := seedClientAndQuery(t, st)

	now := time.Date(2024, 11, 30, 15, 30, 0, 0, time.UTC)

	// Citations on three scattered days inside the window, one outside.
	inWindow := []time.Time{
		time.Date(2024, 11, 30, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 30, 18, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC), // first day of window
	}
	outside := time.Date(2024, 10, 31, 23, 59, 0, 0, time.UTC)
	for i, at := range append(inWindow, outside) {
		require.NoError(t, st.CreateCitation(ctx, citation(query, fmt.Sprintf("c%d", i), "chatgpt", nil, nil, at)))
	}

	analyzer := NewAnalyzer(st)
	points, err := analyzer.DailyTrend(ctx, query.ClientID, 30, now)
	require.NoError(t, err)

	require.Len(t, points, 30)
	assert.Equal(t, "2024-11-01", points[0].Date)
	assert.Equal(t, "2024-11-30", points[29].Date)

	// Dates are consecutive with no gaps.
	for i := 1; i < len(points); i++ {
		prev, err := time.Parse(dateLayout, points[i-1].Date)
		require.NoError(t, err)
		assert.Equal(t, prev.AddDate(0, 0, 1).Format(dateLayout), points[i].Date)
	}

	byDate := make(map[string]int)
	for _, p := range points {
		byDate[p.Date] = p.Count
	}
	assert.Equal(t, 2, byDate["2024-11-30"])
	assert.Equal(t, 1, byDate["2024-11-15"])
	assert.Equal(t, 1, byDate["2024-11-01"])
	assert.Equal(t, 0, byDate["2024-11-16"])

	total := 0
	for _, p := range points {
		total += p.Count
	}
	assert.Equal(t, 4, total, "the day before the window is excluded")
}

func TestDailyTrendRejectsEmptyWindow(t *testing.T) {
	st := newTestStore(t)
	analyzer := NewAnalyzer(st)
	_, err := analyzer.DailyTrend(context.Background(), 1, 0, time.Now().UTC())
	assert.Error(t, err)
}

func TestTopQueriesGroupsByText(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	client, first := seedClientAndQuery(t, st)

	// A second schedulable row with identical text: its citations must merge
	// into the same report entry.
	duplicate := &models.MonitoringQuery{
		ClientID:  client.ID,
		Text:      first.Text,
		Platforms: []string{"claude"},
		Frequency: models.FrequencyHourly,
		Priority:  models.PriorityLow,
		IsActive:  true,
	}
	require.NoError(t, st.CreateQuery(ctx, duplicate))

	other := &models.MonitoringQuery{
		ClientID:  client.ID,
		Text:      "emergency pipe repair",
		Platforms: []string{"chatgpt"},
		Frequency: models.FrequencyDaily,
		Priority:  models.PriorityMedium,
		IsActive:  true,
	}
	require.NoError(t, st.CreateQuery(ctx, other))

	detected := time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC)
	require.NoError(t, st.CreateCitation(ctx, citation(first, "c1", "chatgpt", intPtr(2), nil, detected)))
	require.NoError(t, st.CreateCitation(ctx, citation(duplicate, "c2", "claude", intPtr(4), nil, detected)))
	require.NoError(t, st.CreateCitation(ctx, citation(other, "c3", "chatgpt", intPtr(1), nil, detected)))

	analyzer := NewAnalyzer(st)
	stats, err := analyzer.TopQueries(ctx, client.ID, 5)
	require.NoError(t, err)

	require.Len(t, stats, 2)
	assert.Equal(t, models.QueryStat{Query: first.Text, CitationCount: 2, AvgPosition: 3}, stats[0])
	assert.Equal(t, models.QueryStat{Query: "emergency pipe repair", CitationCount: 1, AvgPosition: 1}, stats[1])
}

func TestTopQueriesOrderingAndLimit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	client, _ := seedClientAndQuery(t, st)

	makeQuery := func(text string) *models.MonitoringQuery {
		q := &models.MonitoringQuery{
			ClientID:  client.ID,
			Text:      text,
			Platforms: []string{"chatgpt"},
			Frequency: models.FrequencyDaily,
			Priority:  models.PriorityMedium,
			IsActive:  true,
		}
		require.NoError(t, st.CreateQuery(ctx, q))
		return q
	}

	detected := time.Date(2024, 11, 10, 8, 0, 0, 0, time.UTC)
	id := 0
	record := func(q *models.MonitoringQuery, position *int) {
		id++
		require.NoError(t, st.CreateCitation(ctx, citation(q, fmt.Sprintf("t%d", id), "chatgpt", position, nil, detected)))
	}

	// Same count, better average position wins.
	ranked := makeQuery("ranked mentions")
	record(ranked, intPtr(1))
	unranked := makeQuery("unranked mentions")
	record(unranked, nil)

	// Same count and no positions on either: text ascending decides.
	alpha := makeQuery("alpha query")
	record(alpha, nil)

	// Highest count always first.
	busy := makeQuery("busy query")
	record(busy, intPtr(9))
	record(busy, intPtr(9))

	analyzer := NewAnalyzer(st)
	stats, err := analyzer.TopQueries(ctx, client.ID, 0)
	require.NoError(t, err)

	texts := make([]string, len(stats))
	for i, s := range stats {
		texts[i] = s.Query
	}
	assert.Equal(t, []string{"busy query", "ranked mentions", "alpha query", "unranked mentions"}, texts)

	limited, err := analyzer.TopQueries(ctx, client.ID, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "busy query", limited[0].Query)
	assert.Equal(t, "ranked mentions", limited[1].Query)
}
