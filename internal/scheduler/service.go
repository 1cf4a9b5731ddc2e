package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/citelens/citelens/internal/models"
	"github.com/citelens/citelens/internal/store"
	"github.com/sirupsen/logrus"
)

// Service owns the query scheduling policy: which queries are due, and how
// their timestamps move when plans change.
type Service struct {
	store store.Store
	clock Clock
}

// NewService creates a scheduler service with an injected clock.
func NewService(st store.Store, clock Clock) *Service {
	return &Service{store: st, clock: clock}
}

// DueQueries returns the active queries eligible for checking at now, in
// dispatch order.
func (s *Service) DueQueries(ctx context.Context, now time.Time) ([]models.MonitoringQuery, error) {
	queries, err := s.store.ListDueQueries(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("list due queries: %w", err)
	}
	SortDue(queries)
	return queries, nil
}

// ChangeFrequency updates a query's check frequency. The new cadence takes
// effect immediately: next_check is recomputed from the current time rather
// than waiting for the old schedule to elapse.
func (s *Service) ChangeFrequency(ctx context.Context, queryID int64, f models.CheckFrequency) error {
	if !f.Valid() {
		return fmt.Errorf("unknown frequency %q", f)
	}

	// A targeted update: last_checked and the rest of the row stay whatever a
	// concurrently advancing cycle left them as.
	next := NextCheck(s.clock(), f)
	if err := s.store.UpdateQueryFrequency(ctx, queryID, f, next); err != nil {
		return fmt.Errorf("update frequency: %w", err)
	}

	logrus.Infof("Query %d frequency changed to %s, next check at %s", queryID, f, next.Format(time.RFC3339))
	return nil
}

// SetActive flips a query's active flag without touching its timestamps, so
// reactivation resumes the old schedule instead of triggering an immediate
// re-check storm.
func (s *Service) SetActive(ctx context.Context, queryID int64, active bool) error {
	if err := s.store.SetQueryActive(ctx, queryID, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	logrus.Infof("Query %d active=%t", queryID, active)
	return nil
}
