// Package platforms contains one checker per AI assistant platform. A checker
// poses a monitoring query to the platform and reports whether, where, and in
// what context the client is mentioned in the answer.
package platforms

import (
	"context"
	"errors"

	"github.com/citelens/citelens/internal/models"
)

// ErrTimeout indicates a platform check exceeded its deadline. Transient;
// retried with backoff before the cycle gives up on the platform.
var ErrTimeout = errors.New("platform check timed out")

// ErrRateLimited indicates the platform rejected the check due to rate
// limiting. Transient; retried with backoff.
var ErrRateLimited = errors.New("platform rate limited")

// Checker is the contract for a single AI platform.
type Checker interface {
	Name() string
	Enabled() bool
	Check(ctx context.Context, query string, client *models.Client) (*models.CheckResult, error)
}
