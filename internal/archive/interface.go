// Package archive stores snapshots of generated reports for the dashboard's
// report history.
package archive

import (
	"context"

	"github.com/citelens/citelens/internal/models"
)

// Archiver defines the contract for report archival.
type Archiver interface {
	Archive(ctx context.Context, report *models.Report) error
	List(ctx context.Context) ([]string, error)
	Retrieve(ctx context.Context, name string) (*models.Report, error)
}

// Noop discards reports; used when no storage account is configured.
type Noop struct{}

// Ensure Noop implements Archiver
var _ Archiver = (*Noop)(nil)

func (Noop) Archive(context.Context, *models.Report) error { return nil }

func (Noop) List(context.Context) ([]string, error) { return nil, nil }

func (Noop) Retrieve(context.Context, string) (*models.Report, error) { return nil, nil }
