package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextCheckPerFrequency(t *testing.T) {
	now := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		frequency models.CheckFrequency
		want      time.Time
	}{
		{models.FrequencyHourly, now.Add(time.Hour)},
		{models.FrequencyDaily, now.Add(24 * time.Hour)},
		{models.FrequencyWeekly, now.Add(7 * 24 * time.Hour)},
	}

	for _, tt := range tests {
		t.Run(string(tt.frequency), func(t *testing.T) {
			assert.Equal(t, tt.want, NextCheck(now, tt.frequency))
		})
	}
}

func TestSortDueOrdering(t *testing.T) {
	at := func(value string) *time.Time {
		parsed, err := time.Parse(time.RFC3339, value)
		require.NoError(t, err)
		return &parsed
	}

	queries := []models.MonitoringQuery{
		{ID: 5, Priority: models.PriorityLow, NextCheck: at("2024-11-01T08:00:00Z")},
		{ID: 4, Priority: models.PriorityHigh, NextCheck: at("2024-11-01T08:30:00Z")},
		{ID: 3, Priority: models.PriorityHigh, NextCheck: at("2024-11-01T08:00:00Z")},
		{ID: 2, Priority: models.PriorityHigh, NextCheck: nil},
		{ID: 1, Priority: models.PriorityMedium, NextCheck: at("2024-11-01T07:00:00Z")},
	}

	SortDue(queries)

	gotIDs := make([]int64, len(queries))
	for i, q := range queries {
		gotIDs[i] = q.ID
	}
	// High priority first with never-checked most overdue, then medium, then low.
	assert.Equal(t, []int64{2, 3, 4, 1, 5}, gotIDs)
}

func TestSortDueDeterministicTieBreak(t *testing.T) {
	next := time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)

	for run := 0; run < 5; run++ {
		queries := []models.MonitoringQuery{
			{ID: 9, Priority: models.PriorityHigh, NextCheck: &next},
			{ID: 3, Priority: models.PriorityHigh, NextCheck: &next},
			{ID: 7, Priority: models.PriorityHigh, NextCheck: &next},
		}
		SortDue(queries)
		assert.Equal(t, int64(3), queries[0].ID)
		assert.Equal(t, int64(7), queries[1].ID)
		assert.Equal(t, int64(9), queries[2].ID)
	}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createQuery(t *testing.T, st store.Store, clientID int64, next *time.Time, last *time.Time) *models.MonitoringQuery {
	t.Helper()
	q := &models.MonitoringQuery{
		ClientID:    clientID,
		Text:        "best crm software",
		Platforms:   []string{"chatgpt"},
		Frequency:   models.FrequencyDaily,
		Priority:    models.PriorityMedium,
		IsActive:    true,
		LastChecked: last,
		NextCheck:   next,
	}
	require.NoError(t, st.CreateQuery(context.Background(), q))
	return q
}

func TestDueQueriesBoundary(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	client := &models.Client{Name: "Acme", IsActive: true}
	require.NoError(t, st.CreateClient(ctx, client))

	lastChecked := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)
	nextCheck := time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC)
	q := createQuery(t, st, client.ID, &nextCheck, &lastChecked)

	clock := func() time.Time { return lastChecked }
	svc := NewService(st, clock)

	// One minute early: excluded.
	due, err := svc.DueQueries(ctx, time.Date(2024, 11, 2, 8, 59, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, due)

	// Exactly on time: included.
	due, err = svc.DueQueries(ctx, nextCheck)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, q.ID, due[0].ID)
}

func TestChangeFrequencyTakesEffectImmediately(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	client := &models.Client{Name: "Acme", IsActive: true}
	require.NoError(t, st.CreateClient(ctx, client))

	// Weekly schedule with a next check far in the future.
	farFuture := time.Date(2024, 11, 8, 9, 0, 0, 0, time.UTC)
	q := createQuery(t, st, client.ID, &farFuture, nil)

	now := time.Date(2024, 11, 2, 10, 0, 0, 0, time.UTC)
	svc := NewService(st, func() time.Time { return now })

	require.NoError(t, svc.ChangeFrequency(ctx, q.ID, models.FrequencyHourly))

	got, err := st.GetQuery(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FrequencyHourly, got.Frequency)
	require.NotNil(t, got.NextCheck)
	// Recomputed from the edit time, not the old schedule.
	assert.Equal(t, now.Add(time.Hour), got.NextCheck.UTC())
}

func TestChangeFrequencyKeepsAdvancedSchedule(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	client := &models.Client{Name: "Acme", IsActive: true}
	require.NoError(t, st.CreateClient(ctx, client))

	q := createQuery(t, st, client.ID, nil, nil)

	// A cycle advances the schedule while a dashboard edit is in flight.
	checked := time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC)
	advanced, err := st.AdvanceSchedule(ctx, q.ID, checked, checked.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, advanced)

	now := time.Date(2024, 11, 2, 9, 0, 30, 0, time.UTC)
	svc := NewService(st, func() time.Time { return now })
	require.NoError(t, svc.ChangeFrequency(ctx, q.ID, models.FrequencyHourly))

	got, err := st.GetQuery(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	assert.Equal(t, checked, got.LastChecked.UTC(), "edit must not clobber the cycle's advance")
	assert.Equal(t, models.FrequencyHourly, got.Frequency)

	// An edit on an unknown query surfaces the store's not-found.
	err = svc.ChangeFrequency(ctx, 999, models.FrequencyDaily)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSetActiveKeepsTimestamps(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	client := &models.Client{Name: "Acme", IsActive: true}
	require.NoError(t, st.CreateClient(ctx, client))

	lastChecked := time.Date(2024, 11, 1, 9, 0, 0, 0, time.UTC)
	nextCheck := time.Date(2024, 11, 2, 9, 0, 0, 0, time.UTC)
	q := createQuery(t, st, client.ID, &nextCheck, &lastChecked)

	svc := NewService(st, time.Now)

	require.NoError(t, svc.SetActive(ctx, q.ID, false))

	due, err := svc.DueQueries(ctx, nextCheck.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "deactivated query must not be due")

	got, err := st.GetQuery(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	require.NotNil(t, got.NextCheck)
	assert.Equal(t, lastChecked, got.LastChecked.UTC())
	assert.Equal(t, nextCheck, got.NextCheck.UTC())

	// Reactivation resumes the old schedule.
	require.NoError(t, svc.SetActive(ctx, q.ID, true))
	due, err = svc.DueQueries(ctx, nextCheck.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, due, 1)
}
