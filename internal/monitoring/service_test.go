package monitoring

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/citelens/citelens/internal/archive"
	"github.com/citelens/citelens/internal/config"
	"github.com/citelens/citelens/internal/ingest"
	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/platforms"
	"github.com/citelens/citelens/internal/scheduler"
	"github.com/citelens/citelens/internal/stats"
	"github.com/citelens/citelens/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockChecker is a mock platform checker
type MockChecker struct {
	mock.Mock
	name string
}

func (m *MockChecker) Name() string { return m.name }

func (m *MockChecker) Enabled() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockChecker) Check(ctx context.Context, query string, client *models.Client) (*models.CheckResult, error) {
	args := m.Called(ctx, query, client)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CheckResult), args.Error(1)
}

// MockNotifier is a mock notification service
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendReport(report *models.Report) error {
	args := m.Called(report)
	return args.Error(0)
}

type fixture struct {
	store      store.Store
	service    *Service
	checker    *MockChecker
	notifier   *MockNotifier
	aggregator *stats.Aggregator
	now        time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC)
	clock := scheduler.Clock(func() time.Time { return now })

	cfg := &config.Config{
		ReportSchedule:      "daily",
		MaxConcurrentChecks: 4,
		CheckTimeout:        5 * time.Second,
		MaxRetryAttempts:    2,
	}

	checker := &MockChecker{name: "chatgpt"}
	notifier := &MockNotifier{}
	aggregator := stats.NewAggregator(st)

	svc := NewService(
		cfg,
		st,
		scheduler.NewService(st, clock),
		ingest.NewService(st, aggregator),
		aggregator,
		stats.NewAnalyzer(st),
		platforms.NewRegistryWith(checker),
		platforms.NewKeywordClassifier(),
		notifier,
		archive.Noop{},
		clock,
	)

	return &fixture{
		store:      st,
		service:    svc,
		checker:    checker,
		notifier:   notifier,
		aggregator: aggregator,
		now:        now,
	}
}

func (f *fixture) seedDueQuery(t *testing.T, clientActive bool) *models.MonitoringQuery {
	t.Helper()
	ctx := context.Background()
	client := &models.Client{Name: "Acme Plumbing", Keywords: []string{"acme"}, IsActive: clientActive}
	require.NoError(t, f.store.CreateClient(ctx, client))
	query := &models.MonitoringQuery{
		ClientID:  client.ID,
		Text:      "best plumbers near me",
		Platforms: []string{"chatgpt"},
		Frequency: models.FrequencyDaily,
		Priority:  models.PriorityHigh,
		IsActive:  true,
	}
	require.NoError(t, f.store.CreateQuery(ctx, query))
	return query
}

func intPtr(v int) *int { return &v }

func TestRunCycleRecordsCitation(t *testing.T) {
	f := newFixture(t)
	query := f.seedDueQuery(t, true)

	f.checker.On("Enabled").Return(true)
	f.checker.On("Check", mock.Anything, query.Text, mock.Anything).Return(&models.CheckResult{
		Found:    true,
		Position: intPtr(2),
		Context:  "2. Acme Plumbing - highly recommended",
	}, nil)

	require.NoError(t, f.service.RunCycle(context.Background()))

	citations, err := f.store.ListCitationsByClient(context.Background(), query.ClientID)
	require.NoError(t, err)
	require.Len(t, citations, 1)
	assert.Equal(t, "chatgpt", citations[0].Platform)
	require.NotNil(t, citations[0].Position)
	assert.Equal(t, 2, *citations[0].Position)
	require.NotNil(t, citations[0].Sentiment)
	assert.Equal(t, models.SentimentPositive, *citations[0].Sentiment)

	got, err := f.store.GetQuery(context.Background(), query.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastChecked)
	assert.True(t, got.LastChecked.Equal(f.now))

	f.checker.AssertExpectations(t)
}

func TestRunCycleNoMentionAdvancesSchedule(t *testing.T) {
	f := newFixture(t)
	query := f.seedDueQuery(t, true)

	f.checker.On("Enabled").Return(true)
	f.checker.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(&models.CheckResult{Found: false}, nil)

	require.NoError(t, f.service.RunCycle(context.Background()))

	citations, err := f.store.ListCitationsByClient(context.Background(), query.ClientID)
	require.NoError(t, err)
	assert.Empty(t, citations, "a miss writes no citation row")

	got, err := f.store.GetQuery(context.Background(), query.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextCheck)
	assert.True(t, got.NextCheck.Equal(f.now.Add(24*time.Hour)), "schedule still advances on a miss")
}

func TestRunCycleRetriesRateLimit(t *testing.T) {
	f := newFixture(t)
	query := f.seedDueQuery(t, true)

	f.checker.On("Enabled").Return(true)
	f.checker.On("Check", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, platforms.ErrRateLimited).Once()
	f.checker.On("Check", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.CheckResult{Found: true, Context: "Acme is trusted"}, nil).Once()

	require.NoError(t, f.service.RunCycle(context.Background()))

	citations, err := f.store.ListCitationsByClient(context.Background(), query.ClientID)
	require.NoError(t, err)
	assert.Len(t, citations, 1, "the retried check succeeds")
	f.checker.AssertNumberOfCalls(t, "Check", 2)
}

// stallingChecker never answers before its per-attempt deadline expires.
type stallingChecker struct {
	name string

	mu    sync.Mutex
	count int
}

func (c *stallingChecker) Name() string { return c.name }

func (c *stallingChecker) Enabled() bool { return true }

func (c *stallingChecker) Check(ctx context.Context, query string, client *models.Client) (*models.CheckResult, error) {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
	<-ctx.Done()
	return nil, platforms.ErrTimeout
}

func (c *stallingChecker) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// A check that runs into its deadline is transient like any other timeout: the
// next attempt gets a fresh deadline instead of inheriting the spent one.
func TestDeadlineTimeoutRetriedWithFreshDeadline(t *testing.T) {
	ctx := context.Background()

	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	now := time.Date(2024, 11, 10, 9, 0, 0, 0, time.UTC)
	clock := scheduler.Clock(func() time.Time { return now })

	cfg := &config.Config{
		ReportSchedule:      "daily",
		MaxConcurrentChecks: 4,
		CheckTimeout:        50 * time.Millisecond,
		MaxRetryAttempts:    2,
	}

	checker := &stallingChecker{name: "chatgpt"}
	aggregator := stats.NewAggregator(st)
	svc := NewService(
		cfg,
		st,
		scheduler.NewService(st, clock),
		ingest.NewService(st, aggregator),
		aggregator,
		stats.NewAnalyzer(st),
		platforms.NewRegistryWith(checker),
		platforms.NewKeywordClassifier(),
		&MockNotifier{},
		archive.Noop{},
		clock,
	)

	client := &models.Client{Name: "Acme Plumbing", IsActive: true}
	require.NoError(t, st.CreateClient(ctx, client))
	query := &models.MonitoringQuery{
		ClientID:  client.ID,
		Text:      "best plumbers near me",
		Platforms: []string{"chatgpt"},
		Frequency: models.FrequencyDaily,
		Priority:  models.PriorityHigh,
		IsActive:  true,
	}
	require.NoError(t, st.CreateQuery(ctx, query))

	require.NoError(t, svc.RunCycle(ctx))

	assert.Equal(t, 3, checker.calls(), "a deadline-driven timeout consumes the full attempt budget")

	got, err := st.GetQuery(ctx, query.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextCheck)
	assert.True(t, got.NextCheck.Equal(now.Add(24*time.Hour)))
}

func TestRunCycleExhaustedRetriesStillAdvances(t *testing.T) {
	f := newFixture(t)
	query := f.seedDueQuery(t, true)

	f.checker.On("Enabled").Return(true)
	f.checker.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(nil, platforms.ErrTimeout)

	require.NoError(t, f.service.RunCycle(context.Background()))

	citations, err := f.store.ListCitationsByClient(context.Background(), query.ClientID)
	require.NoError(t, err)
	assert.Empty(t, citations)

	// One bad platform never stalls the query: it comes due again next period.
	got, err := f.store.GetQuery(context.Background(), query.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextCheck)
	assert.True(t, got.NextCheck.Equal(f.now.Add(24*time.Hour)))
}

func TestRunCycleSkipsInactiveClient(t *testing.T) {
	f := newFixture(t)
	query := f.seedDueQuery(t, false)

	require.NoError(t, f.service.RunCycle(context.Background()))

	f.checker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything)

	// Inactive clients keep their queries parked untouched; reactivating the
	// client picks them up on the next cycle.
	got, err := f.store.GetQuery(context.Background(), query.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastChecked)
}

func TestRunCycleSkipsDisabledChecker(t *testing.T) {
	f := newFixture(t)
	f.seedDueQuery(t, true)

	f.checker.On("Enabled").Return(false)

	require.NoError(t, f.service.RunCycle(context.Background()))
	f.checker.AssertNotCalled(t, "Check", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunReport(t *testing.T) {
	f := newFixture(t)
	query := f.seedDueQuery(t, true)

	sentiment := models.SentimentPositive
	require.NoError(t, f.store.CreateCitation(context.Background(), &models.Citation{
		ID:         "c1",
		QueryID:    query.ID,
		ClientID:   query.ClientID,
		Platform:   "chatgpt",
		Position:   intPtr(1),
		Sentiment:  &sentiment,
		Context:    "Acme tops the list",
		DetectedAt: f.now,
	}))

	var delivered *models.Report
	f.notifier.On("SendReport", mock.Anything).Run(func(args mock.Arguments) {
		delivered = args.Get(0).(*models.Report)
	}).Return(nil)

	require.NoError(t, f.service.RunReport(context.Background()))

	require.NotNil(t, delivered)
	assert.Equal(t, "daily", delivered.Period)
	assert.Equal(t, 1, delivered.TotalCitations)
	require.Len(t, delivered.Clients, 1)
	assert.Equal(t, "Acme Plumbing", delivered.Clients[0].Client.Name)
	assert.Equal(t, 1, delivered.Clients[0].Rollup.TotalCitations)
	require.Len(t, delivered.Clients[0].TopQueries, 1)
	assert.Equal(t, query.Text, delivered.Clients[0].TopQueries[0].Query)
}

func TestMetricsAfterCycle(t *testing.T) {
	f := newFixture(t)
	f.seedDueQuery(t, true)

	f.checker.On("Enabled").Return(true)
	f.checker.On("Check", mock.Anything, mock.Anything, mock.Anything).Return(&models.CheckResult{
		Found:   true,
		Context: "Acme is great",
	}, nil)

	require.NoError(t, f.service.RunCycle(context.Background()))

	metrics := f.service.GetMetrics()
	assert.Contains(t, metrics, `"queries_checked": 1`)
	assert.Contains(t, metrics, `"citations_found": 1`)
	assert.Contains(t, metrics, `"chatgpt": 1`)
	// Run time and duration come from the injected clock.
	assert.Contains(t, metrics, `"last_run": "2024-11-10T09:00:00Z"`)
	assert.Contains(t, metrics, `"last_run_duration": "0s"`)
}
