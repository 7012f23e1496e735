package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lingomeet/internal/jobs"
)

// RunJob is the body of the single-job commands. It returns the process
// exit code: 0 when the run finished, even with item failures.
func RunJob(name string) int {
	env, err := Bootstrap()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return 1
	}
	a, err := env.Build()
	if err != nil {
		env.Log.WithError(err).Error("build services failed")
		return 1
	}
	job, ok := jobs.Find(a.Jobs, name)
	if !ok {
		env.Log.WithField("job", name).Error("unknown job")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := job.Run(ctx, env.Log); err != nil {
		return 1
	}
	return 0
}
