package batch

import (
	"fmt"
	"strings"
)

// Report summarises one reconciliation run. Item failures are collected
// and do not stop the run.
type Report struct {
	Job      string
	Scanned  int
	Affected int
	Errors   []error
}

func New(job string) *Report {
	return &Report{Job: job}
}

func (r *Report) Fail(err error) {
	r.Errors = append(r.Errors, err)
}

func (r *Report) Failed() int { return len(r.Errors) }

// FirstErrors joins at most n collected errors for a log line.
func (r *Report) FirstErrors(n int) string {
	msgs := make([]string, 0, n)
	for i, err := range r.Errors {
		if i == n {
			msgs = append(msgs, fmt.Sprintf("(+%d more)", len(r.Errors)-n))
			break
		}
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}
