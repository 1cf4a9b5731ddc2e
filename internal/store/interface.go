// Package store defines the persistence contract for clients, monitoring
// queries, and citation events, plus its SQLite implementation.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/citelens/citelens/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrUnavailable wraps transient persistence failures. Callers retry at this
// boundary; it never indicates a domain validation problem.
var ErrUnavailable = errors.New("store unavailable")

// Store is the interface for all persistence operations.
type Store interface {
	CreateClient(ctx context.Context, c *models.Client) error
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	ListClients(ctx context.Context, activeOnly bool) ([]models.Client, error)
	UpdateClient(ctx context.Context, c *models.Client) error

	CreateQuery(ctx context.Context, q *models.MonitoringQuery) error
	GetQuery(ctx context.Context, id int64) (*models.MonitoringQuery, error)
	ListQueriesByClient(ctx context.Context, clientID int64) ([]models.MonitoringQuery, error)
	ListDueQueries(ctx context.Context, now time.Time) ([]models.MonitoringQuery, error)

	// Query edits touch only their own columns, so a schedule advance landing
	// between a read and an edit is never clobbered by a full-row write.
	UpdateQueryFrequency(ctx context.Context, queryID int64, f models.CheckFrequency, nextCheck time.Time) error
	SetQueryActive(ctx context.Context, queryID int64, active bool) error

	// AdvanceSchedule sets last_checked and next_check, but only when the
	// stored last_checked predates lastChecked. The stored timestamp is the
	// compare-and-swap token that keeps duplicate or late check responses
	// from re-advancing the schedule. Returns whether the row advanced.
	AdvanceSchedule(ctx context.Context, queryID int64, lastChecked, nextCheck time.Time) (bool, error)

	CreateCitation(ctx context.Context, c *models.Citation) error
	ListCitationsByClient(ctx context.Context, clientID int64) ([]models.Citation, error)
	ListCitationsByClientSince(ctx context.Context, clientID int64, since time.Time) ([]models.Citation, error)
	CountCitationsByClientSince(ctx context.Context, clientID int64, since time.Time) (int, error)

	Close() error
}
