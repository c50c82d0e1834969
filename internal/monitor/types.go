// Package monitor defines the shared domain types for the monitoring
// coordination core: leases, job descriptors, run outcomes, and the opaque
// job-body contract the runner executes.
package monitor

import "time"

// Status is the closed set of terminal run outcomes.
type Status string

const (
	// StatusSuccess means the job body completed and all state deltas
	// were persisted.
	StatusSuccess Status = "success"
	// StatusWarning means the job body completed but at least one state
	// delta could not be persisted; the next run is expected to recover it.
	StatusWarning Status = "warning"
	// StatusFailure means the job body failed or timed out.
	StatusFailure Status = "failure"
	// StatusSkipped means the domain lease was held by another run and the
	// job body was never invoked.
	StatusSkipped Status = "skipped"
)

// ExitCode maps a status to the process exit code contract: only a real
// failure is non-zero. Skips and warning-flavored successes exit 0.
func (s Status) ExitCode() int {
	if s == StatusFailure {
		return 1
	}
	return 0
}

// Schedule tags a trigger with the periodic family that fired it.
type Schedule string

const (
	Schedule15Min    Schedule = "15min"
	Schedule30Min    Schedule = "30min"
	Schedule45Min    Schedule = "45min"
	Schedule6Hour    Schedule = "6h"
	ScheduleOnDemand Schedule = "on-demand"
)

// Period returns the scheduling interval, or zero for on-demand triggers.
func (s Schedule) Period() time.Duration {
	switch s {
	case Schedule15Min:
		return 15 * time.Minute
	case Schedule30Min:
		return 30 * time.Minute
	case Schedule45Min:
		return 45 * time.Minute
	case Schedule6Hour:
		return 6 * time.Hour
	default:
		return 0
	}
}

// Options carries the on-demand invocation knobs passed through to the
// job body.
type Options struct {
	Debug        bool
	ForceRefresh bool
	PeriodHours  int
}

// JobDescriptor is a single request to run one coordination domain's job
// body. It is created by a trigger and consumed exactly once by the runner;
// it is never persisted.
type JobDescriptor struct {
	Domain   string
	Schedule Schedule
	Mode     string
	LeaseTTL time.Duration
	Timeout  time.Duration
	Options  Options
}

// ResourceSnapshot captures process and host resource usage at job exit.
type ResourceSnapshot struct {
	MemoryRSSBytes  uint64  `json:"memory_rss_bytes"`
	MemoryPercent   float64 `json:"memory_percent"`
	DiskUsedPercent float64 `json:"disk_used_percent"`
	CPUPercent      float64 `json:"cpu_percent"`
}

// Outcome is the result of one job execution. It is built by the runner at
// job exit and consumed once by the notifier.
type Outcome struct {
	RunID     string
	Domain    string
	Status    Status
	Reason    string
	StartedAt time.Time
	Duration  time.Duration
	Resources ResourceSnapshot
	NextRunAt time.Time
	DetailURL string
}

// Clock abstracts time.Now so lease age and timeout logic is testable.
type Clock interface {
	Now() time.Time
}
