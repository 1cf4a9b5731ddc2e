// Package monitoring orchestrates check cycles: due queries are dispatched to
// AI platforms with bounded parallelism, results are ingested, and periodic
// reports are built and delivered.
package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/citelens/citelens/internal/archive"
	"github.com/citelens/citelens/internal/config"
	"github.com/citelens/citelens/internal/ingest"
	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/notifications"
	"github.com/citelens/citelens/internal/platforms"
	"github.com/citelens/citelens/internal/scheduler"
	"github.com/citelens/citelens/internal/stats"
	"github.com/citelens/citelens/internal/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service runs monitoring cycles over due queries
type Service struct {
	config     *config.Config
	store      store.Store
	scheduler  *scheduler.Service
	ingestor   *ingest.Service
	aggregator *stats.Aggregator
	analyzer   *stats.Analyzer
	registry   *platforms.Registry
	classifier platforms.Classifier
	notifier   notifications.NotificationInterface
	archiver   archive.Archiver
	clock      scheduler.Clock

	metrics *Metrics
	mu      sync.RWMutex
}

// Metrics holds the outcome of the most recent monitoring cycle
type Metrics struct {
	QueriesChecked  int            `json:"queries_checked"`
	CitationsFound  int            `json:"citations_found"`
	LastRun         time.Time      `json:"last_run"`
	LastRunDuration string         `json:"last_run_duration"`
	PlatformMetrics map[string]int `json:"platform_metrics"`
	ErrorCount      int            `json:"error_count"`
}

// NewService creates a monitoring service
func NewService(
	cfg *config.Config,
	st store.Store,
	sched *scheduler.Service,
	ingestor *ingest.Service,
	aggregator *stats.Aggregator,
	analyzer *stats.Analyzer,
	registry *platforms.Registry,
	classifier platforms.Classifier,
	notifier notifications.NotificationInterface,
	archiver archive.Archiver,
	clock scheduler.Clock,
) *Service {
	return &Service{
		config:     cfg,
		store:      st,
		scheduler:  sched,
		ingestor:   ingestor,
		aggregator: aggregator,
		analyzer:   analyzer,
		registry:   registry,
		classifier: classifier,
		notifier:   notifier,
		archiver:   archiver,
		clock:      clock,
		metrics: &Metrics{
			PlatformMetrics: make(map[string]int),
		},
	}
}

// cycleOutcome accumulates one query's results within a cycle.
type cycleOutcome struct {
	citations       int
	errors          int
	citationsByPlat map[string]int
}

// RunCycle performs one monitoring pass over all currently due queries.
func (s *Service) RunCycle(ctx context.Context) error {
	start := s.clock()
	logrus.Info("Starting monitoring cycle")

	due, err := s.scheduler.DueQueries(ctx, start)
	if err != nil {
		logrus.Errorf("Failed to list due queries: %v", err)
		return err
	}

	logrus.Infof("Dispatching %d due queries across platforms", len(due))

	outcomes := make(chan cycleOutcome, len(due))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrentChecks)

	for _, query := range due {
		q := query
		g.Go(func() error {
			outcomes <- s.checkQuery(gctx, q, start)
			return nil
		})
	}

	_ = g.Wait()
	close(outcomes)

	total := cycleOutcome{citationsByPlat: make(map[string]int)}
	for o := range outcomes {
		total.citations += o.citations
		total.errors += o.errors
		for platform, n := range o.citationsByPlat {
			total.citationsByPlat[platform] += n
		}
	}

	elapsed := s.clock().Sub(start)
	s.updateMetrics(len(due), total, start, elapsed)

	logrus.Infof("Monitoring cycle completed in %v: %d queries, %d citations, %d errors",
		elapsed, len(due), total.citations, total.errors)
	return nil
}

// checkQuery runs one due query against each of its target platforms.
func (s *Service) checkQuery(ctx context.Context, q models.MonitoringQuery, now time.Time) cycleOutcome {
	outcome := cycleOutcome{citationsByPlat: make(map[string]int)}

	client, err := s.store.GetClient(ctx, q.ClientID)
	if err != nil {
		logrus.Errorf("Failed to load client %d for query %d: %v", q.ClientID, q.ID, err)
		outcome.errors++
		return outcome
	}
	if !client.IsActive {
		logrus.Debugf("Skipping query %d: client %d inactive", q.ID, client.ID)
		return outcome
	}

	for _, platform := range q.Platforms {
		checker, ok := s.registry.Get(platform)
		if !ok {
			logrus.Errorf("Query %d targets unknown platform %q", q.ID, platform)
			outcome.errors++
			continue
		}
		if !checker.Enabled() {
			logrus.Debugf("Skipping %s for query %d: checker disabled", platform, q.ID)
			continue
		}

		result, err := s.checkWithRetry(ctx, checker, q.Text, client)
		if err != nil {
			// Transient platform failure exhausted its retries; the cycle is
			// skipped for this platform but the schedule still advances below,
			// so one bad platform never stalls the query permanently.
			logrus.Errorf("Check failed on %s for query %d: %v", platform, q.ID, err)
			outcome.errors++
			continue
		}

		if !result.Found {
			logrus.Debugf("No mention of client %d on %s for query %d", client.ID, platform, q.ID)
			continue
		}

		sentiment := s.classifier.Classify(result.Context)
		if err := s.recordWithRetry(ctx, q.ID, platform, result, &sentiment, now); err != nil {
			logrus.Errorf("Failed to record citation for query %d on %s: %v", q.ID, platform, err)
			outcome.errors++
			if errors.Is(err, store.ErrUnavailable) {
				// The store write never became durable; abort this query's
				// cycle without touching its timestamps so it is retried.
				return outcome
			}
			continue
		}
		outcome.citations++
		outcome.citationsByPlat[platform]++
	}

	// Advance the schedule once per cycle regardless of hits. When a found
	// result already advanced it, the conditional update makes this a no-op.
	if err := s.ingestor.RecordMiss(ctx, q.ID, now); err != nil {
		logrus.Errorf("Failed to advance schedule for query %d: %v", q.ID, err)
		outcome.errors++
	}

	return outcome
}

// checkWithRetry retries transient platform failures with exponential backoff
// up to the configured attempt budget. The check timeout is per attempt: a
// timed-out attempt must not burn the deadline of its own retries.
func (s *Service) checkWithRetry(ctx context.Context, checker platforms.Checker, queryText string, client *models.Client) (*models.CheckResult, error) {
	operation := func() (*models.CheckResult, error) {
		checkCtx, cancel := context.WithTimeout(ctx, s.config.CheckTimeout)
		defer cancel()

		result, err := checker.Check(checkCtx, queryText, client)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, platforms.ErrTimeout) || errors.Is(err, platforms.ErrRateLimited) {
			logrus.Warnf("Transient failure on %s, will retry: %v", checker.Name(), err)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.config.MaxRetryAttempts)),
		ctx,
	)
	return backoff.RetryWithData(operation, policy)
}

// recordWithRetry retries the persistence boundary on transient store errors.
// Validation errors are surfaced immediately.
func (s *Service) recordWithRetry(ctx context.Context, queryID int64, platform string, result *models.CheckResult, sentiment *models.Sentiment, now time.Time) error {
	operation := func() error {
		_, err := s.ingestor.Record(ctx, queryID, platform, result.Position, sentiment, result.Context, now)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.config.MaxRetryAttempts)),
		ctx,
	)
	return backoff.Retry(operation, policy)
}

// RunReport builds the periodic digest for all active clients, delivers it,
// and archives a snapshot.
func (s *Service) RunReport(ctx context.Context) error {
	now := s.clock()
	logrus.Info("Generating periodic report")

	clients, err := s.store.ListClients(ctx, true)
	if err != nil {
		logrus.Errorf("Failed to list clients for report: %v", err)
		return err
	}

	report := &models.Report{
		GeneratedAt: now,
		Period:      s.config.ReportSchedule,
	}

	for _, client := range clients {
		rollup, err := s.aggregator.Rollup(ctx, client.ID, now)
		if err != nil {
			logrus.Errorf("Failed to compute rollup for client %d: %v", client.ID, err)
			return err
		}
		topQueries, err := s.analyzer.TopQueries(ctx, client.ID, 5)
		if err != nil {
			logrus.Errorf("Failed to compute top queries for client %d: %v", client.ID, err)
			return err
		}
		report.TotalCitations += rollup.TotalCitations
		report.Clients = append(report.Clients, models.ClientReport{
			Client:     client,
			Rollup:     *rollup,
			TopQueries: topQueries,
		})
	}

	if err := s.notifier.SendReport(report); err != nil {
		logrus.Errorf("Failed to send report: %v", err)
		return err
	}

	if err := s.archiver.Archive(ctx, report); err != nil {
		// Archival is best-effort; delivery already succeeded.
		logrus.Errorf("Failed to archive report: %v", err)
	}

	logrus.Infof("Report delivered: %d clients, %d total citations", len(report.Clients), report.TotalCitations)
	return nil
}

func (s *Service) updateMetrics(queriesChecked int, total cycleOutcome, ranAt time.Time, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.QueriesChecked = queriesChecked
	s.metrics.CitationsFound = total.citations
	s.metrics.LastRun = ranAt
	s.metrics.LastRunDuration = duration.String()
	s.metrics.ErrorCount = total.errors
	s.metrics.PlatformMetrics = total.citationsByPlat
}

// GetMetrics returns current metrics as JSON
func (s *Service) GetMetrics() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, _ := json.MarshalIndent(s.metrics, "", "  ")
	return string(data)
}
