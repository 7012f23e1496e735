package main

import (
	"os"

	"lingomeet/internal/app"
	"lingomeet/internal/jobs"
)

func main() {
	os.Exit(app.RunJob(jobs.ExpireBookings))
}
