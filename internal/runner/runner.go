// Package runner executes one monitoring job under its domain lease. The
// run is a fixed progression: Pending, Acquiring, Running, Releasing, then a
// terminal status. The lease is released on every exit path before the
// outcome is finalized, and commit failures downgrade the outcome to a
// warning instead of a failure.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/id"
	"github.com/SpaceWJK/epic7-monitor/internal/lease"
	"github.com/SpaceWJK/epic7-monitor/internal/metrics"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
	"github.com/SpaceWJK/epic7-monitor/internal/resource"
	"github.com/SpaceWJK/epic7-monitor/internal/state"
)

// Config controls runner behavior.
type Config struct {
	// DetailURLBase, when set, is joined with the run ID to build the
	// run-detail link carried in alert embeds.
	DetailURLBase string
}

// Runner coordinates lease acquisition, job body execution, state commits,
// and outcome notification for a single run.
type Runner struct {
	leases    *lease.Manager
	committer *state.Committer
	notifier  monitor.Notifier
	clock     monitor.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	leases *lease.Manager,
	committer *state.Committer,
	notifier monitor.Notifier,
	clock monitor.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Runner{
		leases:    leases,
		committer: committer,
		notifier:  notifier,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(_ context.Context, _ monitor.Outcome) {}

// Run executes the job body for one trigger and returns its outcome. A
// denied lease skips the run entirely; everything past acquisition releases
// the lease before the outcome is finalized.
func (r *Runner) Run(ctx context.Context, job monitor.JobDescriptor, body monitor.JobBody) monitor.Outcome {
	runID := id.NewRunID()
	started := r.clock.Now()
	log := r.logger.With(
		zap.String("run_id", runID),
		zap.String("domain", job.Domain),
		zap.String("schedule", string(job.Schedule)),
	)
	log.Info("run triggered", zap.String("mode", job.Mode))

	_, err := r.leases.Acquire(ctx, job.Domain, job.LeaseTTL)
	if errors.Is(err, monitor.ErrLeaseDenied) {
		// Expected steady-state under overlapping schedules; logged, not alerted.
		log.Info("run skipped, domain busy")
		return r.finalize(ctx, log, job, runID, started, monitor.StatusSkipped, "domain busy", monitor.Report{})
	}
	if err != nil {
		log.Error("lease acquisition failed", zap.Error(err))
		return r.finalize(ctx, log, job, runID, started, monitor.StatusFailure,
			fmt.Sprintf("lease acquisition failed: %v", err), monitor.Report{})
	}

	report, runErr := r.runBody(ctx, log, job, body)
	if runErr != nil {
		return r.finalize(ctx, log, job, runID, started, monitor.StatusFailure, runErr.Error(), report)
	}

	status, reason := r.commitDeltas(ctx, log, report)
	return r.finalize(ctx, log, job, runID, started, status, reason, report)
}

// runBody runs the job body under the per-domain timeout. The deferred
// release executes no matter how the body returns; it detaches from ctx
// cancellation so a timed-out run still cleans up its lease.
func (r *Runner) runBody(
	ctx context.Context,
	log *zap.Logger,
	job monitor.JobDescriptor,
	body monitor.JobBody,
) (monitor.Report, error) {
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := r.leases.Release(releaseCtx, job.Domain); err != nil {
			log.Error("lease release failed", zap.Error(err))
		}
	}()

	bodyCtx := ctx
	cancel := context.CancelFunc(func() {})
	if job.Timeout > 0 {
		bodyCtx, cancel = context.WithTimeout(ctx, job.Timeout)
	}
	defer cancel()

	log.Info("job body starting", zap.Duration("timeout", job.Timeout))
	report, err := body.Run(bodyCtx, job)
	if err != nil {
		if errors.Is(bodyCtx.Err(), context.DeadlineExceeded) {
			return report, fmt.Errorf("job body timed out after %s", job.Timeout)
		}
		return report, fmt.Errorf("job body failed: %w", err)
	}
	return report, nil
}

// commitDeltas applies every produced delta through the optimistic commit
// path. An abandoned commit downgrades the run to warning: the data is
// delayed, not lost, because the next run's delta subsumes it.
func (r *Runner) commitDeltas(ctx context.Context, log *zap.Logger, report monitor.Report) (monitor.Status, string) {
	var abandoned []string
	for _, d := range report.Deltas {
		if err := r.committer.Apply(ctx, d.DocID, d.Delta); err != nil {
			log.Warn("state delta not persisted", zap.String("doc", d.DocID), zap.Error(err))
			abandoned = append(abandoned, d.DocID)
		}
	}
	if len(abandoned) > 0 {
		return monitor.StatusWarning,
			fmt.Sprintf("state commit abandoned for %s", strings.Join(abandoned, ", "))
	}
	return monitor.StatusSuccess, ""
}

func (r *Runner) finalize(
	ctx context.Context,
	log *zap.Logger,
	job monitor.JobDescriptor,
	runID string,
	started time.Time,
	status monitor.Status,
	reason string,
	report monitor.Report,
) monitor.Outcome {
	now := r.clock.Now()
	outcome := monitor.Outcome{
		RunID:     runID,
		Domain:    job.Domain,
		Status:    status,
		Reason:    reason,
		StartedAt: started,
		Duration:  now.Sub(started),
		Resources: resource.Snapshot(),
	}
	if period := job.Schedule.Period(); period > 0 {
		outcome.NextRunAt = started.Add(period)
	}
	if r.cfg.DetailURLBase != "" {
		outcome.DetailURL = strings.TrimRight(r.cfg.DetailURLBase, "/") + "/" + runID
	}

	metrics.ObserveRun(job.Domain, string(status), outcome.Duration)
	r.recordRunStats(ctx, log, job, outcome, report)

	log.Info("run finished",
		zap.String("status", string(status)),
		zap.String("reason", reason),
		zap.Duration("duration", outcome.Duration),
	)
	r.notifier.Notify(ctx, outcome)
	return outcome
}

// recordRunStats appends the run record to the statistics document. Skipped
// runs are recorded too; a failed append never changes the outcome.
func (r *Runner) recordRunStats(
	ctx context.Context,
	log *zap.Logger,
	job monitor.JobDescriptor,
	outcome monitor.Outcome,
	report monitor.Report,
) {
	record := state.RunRecord{
		RunID:      outcome.RunID,
		Domain:     outcome.Domain,
		Schedule:   string(job.Schedule),
		Status:     outcome.Status,
		StartedAt:  outcome.StartedAt,
		DurationMS: outcome.Duration.Milliseconds(),
		ItemsSeen:  report.ItemsSeen,
		NewItems:   report.NewItems,
		AlertsSent: report.AlertsSent,
	}
	if err := r.committer.Apply(ctx, state.DocRunStats, state.RunStatsDelta(record)); err != nil {
		log.Warn("run statistics not persisted", zap.Error(err))
	}
}
