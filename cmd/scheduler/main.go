// Command scheduler runs every reconciliation job at its cron cadence in one
// process. Production uses the standalone commands under external cron.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"

	"lingomeet/internal/app"
)

func main() {
	env, err := app.Bootstrap()
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	a, err := env.Build()
	if err != nil {
		env.Log.WithError(err).Fatal("build services failed")
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		env.Log.WithError(err).Fatal("create scheduler failed")
	}
	for _, job := range a.Jobs {
		_, err := s.NewJob(
			gocron.DurationJob(job.Every),
			gocron.NewTask(func(ctx context.Context) {
				_, _ = job.Run(ctx, env.Log)
			}),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
			gocron.WithStartAt(gocron.WithStartImmediately()),
		)
		if err != nil {
			env.Log.WithError(err).WithField("job", job.Name).Fatal("schedule job failed")
		}
		env.Log.WithField("job", job.Name).WithField("every", job.Every.String()).Info("job scheduled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.Start()
	<-ctx.Done()

	if err := s.Shutdown(); err != nil {
		env.Log.WithError(err).Error("scheduler shutdown failed")
	}
	env.Log.Info("scheduler stopped")
}
