// Package jobs holds the reconciliation runs that external cron invokes.
// Each run is safe to repeat: a second run over the same state changes nothing.
package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"lingomeet/internal/config"
	"lingomeet/internal/domain"
	"lingomeet/internal/pkg/batch"
)

const (
	ExpireBookings             = "expire_bookings"
	CancelUnderpopulatedEvents = "cancel_underpopulated_events"
	FinishEvents               = "finish_events"
	CleanupDraftEvents         = "cleanup_draft_events"
)

type BookingExpirer interface {
	ExpireDue(ctx context.Context) (*batch.Report, error)
}

type EventReconciler interface {
	CancelUnderpopulated(ctx context.Context, window time.Duration) ([]domain.Event, *batch.Report, error)
	FinishCompleted(ctx context.Context, grace time.Duration) ([]domain.Event, *batch.Report, error)
	CleanupExpiredDrafts(ctx context.Context) (*batch.Report, error)
}

type Job struct {
	Name string
	// Every is the cadence cron is expected to use.
	Every time.Duration
	run   func(ctx context.Context) (*batch.Report, error)
}

func All(bookings BookingExpirer, events EventReconciler, cfg config.Lifecycle) []Job {
	return []Job{
		{
			Name:  ExpireBookings,
			Every: 5 * time.Minute,
			run:   bookings.ExpireDue,
		},
		{
			Name:  CancelUnderpopulatedEvents,
			Every: 15 * time.Minute,
			run: func(ctx context.Context) (*batch.Report, error) {
				_, r, err := events.CancelUnderpopulated(ctx, cfg.UnderpopulatedWindow)
				return r, err
			},
		},
		{
			Name:  FinishEvents,
			Every: 15 * time.Minute,
			run: func(ctx context.Context) (*batch.Report, error) {
				_, r, err := events.FinishCompleted(ctx, cfg.AutoFinishGrace)
				return r, err
			},
		},
		{
			Name:  CleanupDraftEvents,
			Every: time.Hour,
			run:   events.CleanupExpiredDrafts,
		},
	}
}

func Find(all []Job, name string) (Job, bool) {
	for _, j := range all {
		if j.Name == name {
			return j, true
		}
	}
	return Job{}, false
}

const maxLoggedErrors = 5

// Run executes the job once and logs one summary line. Item failures are
// part of the report; only a failure of the run itself is returned.
func (j Job) Run(ctx context.Context, log logrus.FieldLogger) (*batch.Report, error) {
	start := time.Now()
	report, err := j.run(ctx)
	if report == nil {
		report = batch.New(j.Name)
	}
	entry := log.WithFields(logrus.Fields{
		"job":      j.Name,
		"scanned":  report.Scanned,
		"affected": report.Affected,
		"failed":   report.Failed(),
		"duration": time.Since(start).String(),
	})
	if err != nil {
		entry.WithError(err).Error("job aborted")
		return report, err
	}
	if report.Failed() > 0 {
		entry.WithField("errors", report.FirstErrors(maxLoggedErrors)).Warn("job completed with failures")
		return report, nil
	}
	entry.Info("job completed")
	return report, nil
}
