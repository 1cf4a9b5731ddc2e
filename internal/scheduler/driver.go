package scheduler

import (
	"context"
	"fmt"

	"github.com/citelens/citelens/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CycleRunner runs one monitoring cycle over the currently due queries.
type CycleRunner interface {
	RunCycle(ctx context.Context) error
}

// ReportRunner builds and delivers the periodic report.
type ReportRunner interface {
	RunReport(ctx context.Context) error
}

// Driver wires the monitoring cycle and report jobs onto a cron schedule.
type Driver struct {
	config   *config.Config
	runner   CycleRunner
	reporter ReportRunner
	cron     *cron.Cron
	cancel   context.CancelFunc
}

// NewDriver creates a driver for the given jobs.
func NewDriver(cfg *config.Config, runner CycleRunner, reporter ReportRunner) *Driver {
	return &Driver{
		config:   cfg,
		runner:   runner,
		reporter: reporter,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled monitoring and reporting jobs.
func (d *Driver) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	tickMinutes := int(d.config.CheckTick.Minutes())
	cycleExpression := fmt.Sprintf("0 */%d * * * *", tickMinutes)

	_, err := d.cron.AddFunc(cycleExpression, func() {
		logrus.Info("Starting scheduled monitoring cycle")
		if err := d.runner.RunCycle(ctx); err != nil {
			logrus.Errorf("Scheduled monitoring cycle failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	var reportExpression string
	switch d.config.ReportSchedule {
	case "daily":
		// Run daily at 9 AM UTC
		reportExpression = "0 0 9 * * *"
	default:
		// Run weekly on Monday at 9 AM UTC
		reportExpression = "0 0 9 * * MON"
	}

	_, err = d.cron.AddFunc(reportExpression, func() {
		logrus.Info("Starting scheduled report run")
		if err := d.reporter.RunReport(ctx); err != nil {
			logrus.Errorf("Scheduled report run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	d.cron.Start()
	logrus.Infof("Scheduler started: cycle every %d minutes, %s reports", tickMinutes, d.config.ReportSchedule)
	return nil
}

// Stop stops the scheduler and cancels in-flight checks.
func (d *Driver) Stop() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.cron != nil {
		d.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
