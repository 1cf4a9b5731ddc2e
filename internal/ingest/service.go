// Package ingest validates and records platform check results and keeps the
// owning query's schedule and client's rollup in step with each event.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/scheduler"
	"github.com/citelens/citelens/internal/stats"
	"github.com/citelens/citelens/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Validation failures. These are caller errors: never retried, and the
// query's timestamps stay untouched.
var (
	ErrUnknownQuery    = errors.New("query does not exist")
	ErrQueryInactive   = errors.New("query is not active")
	ErrInvalidPlatform = errors.New("platform not in query's target set")
	ErrInvalidPosition = errors.New("position must be a positive integer")
)

// Service records citation events.
type Service struct {
	store      store.Store
	aggregator *stats.Aggregator

	mu         sync.Mutex
	queryLocks map[int64]*sync.Mutex
}

// NewService creates an ingest service.
func NewService(st store.Store, aggregator *stats.Aggregator) *Service {
	return &Service{
		store:      st,
		aggregator: aggregator,
		queryLocks: make(map[int64]*sync.Mutex),
	}
}

// queryLock returns the mutex serializing schedule writes for one query.
func (s *Service) queryLock(queryID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.queryLocks[queryID]
	if !ok {
		l = &sync.Mutex{}
		s.queryLocks[queryID] = l
	}
	return l
}

// Record validates and appends one citation, advances the owning query's
// schedule, and folds the event into the client's rollup.
func (s *Service) Record(ctx context.Context, queryID int64, platform string, position *int, sentiment *models.Sentiment, contextText string, detectedAt time.Time) (*models.Citation, error) {
	q, err := s.store.GetQuery(ctx, queryID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("query %d: %w", queryID, ErrUnknownQuery)
	}
	if err != nil {
		return nil, fmt.Errorf("get query: %w", err)
	}
	if !q.IsActive {
		return nil, fmt.Errorf("query %d: %w", queryID, ErrQueryInactive)
	}
	if !q.HasPlatform(platform) {
		return nil, fmt.Errorf("platform %q for query %d: %w", platform, queryID, ErrInvalidPlatform)
	}
	if position != nil && *position < 1 {
		return nil, fmt.Errorf("position %d: %w", *position, ErrInvalidPosition)
	}

	lock := s.queryLock(queryID)
	lock.Lock()
	defer lock.Unlock()

	citation := &models.Citation{
		ID:         uuid.NewString(),
		QueryID:    q.ID,
		ClientID:   q.ClientID,
		Platform:   platform,
		Position:   position,
		Sentiment:  sentiment,
		Context:    contextText,
		DetectedAt: detectedAt.UTC(),
	}

	// The citation is written before the schedule moves, so a failed advance
	// re-checks the query next cycle instead of ever marking it checked
	// without a durable write.
	if err := s.store.CreateCitation(ctx, citation); err != nil {
		return nil, fmt.Errorf("create citation: %w", err)
	}
	s.aggregator.Apply(citation)

	if err := s.advance(ctx, q, detectedAt); err != nil {
		return nil, err
	}

	logrus.Debugf("Recorded citation %s for query %d on %s", citation.ID, q.ID, platform)
	return citation, nil
}

// RecordMiss advances a query's schedule after a check cycle that produced no
// citation. No citation row is written; only the timestamps move, which is
// what makes "not found" invisible to total counts.
func (s *Service) RecordMiss(ctx context.Context, queryID int64, at time.Time) error {
	q, err := s.store.GetQuery(ctx, queryID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("query %d: %w", queryID, ErrUnknownQuery)
	}
	if err != nil {
		return fmt.Errorf("get query: %w", err)
	}

	lock := s.queryLock(queryID)
	lock.Lock()
	defer lock.Unlock()

	return s.advance(ctx, q, at)
}

func (s *Service) advance(ctx context.Context, q *models.MonitoringQuery, checkedAt time.Time) error {
	next := scheduler.NextCheck(checkedAt, q.Frequency)
	advanced, err := s.store.AdvanceSchedule(ctx, q.ID, checkedAt, next)
	if err != nil {
		return fmt.Errorf("advance schedule: %w", err)
	}
	if !advanced {
		// A concurrent or later observation already moved the schedule.
		logrus.Debugf("Schedule for query %d already advanced past %s", q.ID, checkedAt.Format(time.RFC3339))
	}
	return nil
}
