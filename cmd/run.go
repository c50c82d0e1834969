package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/job"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// errRunFailed marks a terminal failure so Execute exits non-zero. Skipped
// and warning-flavored runs return nil: a lost lease race is steady-state,
// not an error.
type errRunFailed struct{ reason string }

func (e errRunFailed) Error() string { return e.reason }

func newRunCmd() *cobra.Command {
	var (
		domain         string
		scheduleFlag   string
		modeFlag       string
		debug          bool
		forceRefresh   bool
		periodHours    int
		timeoutMinutes int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one monitoring job under its domain lease",
		Long: `Acquires the lease for the given coordination domain, invokes the
configured pipeline under the domain's timeout, merges the produced state
deltas into the shared store, and reports the outcome. A denied lease skips
the run and exits zero.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := application.Config()

			domainCfg, err := cfg.Domain(domain)
			if err != nil {
				return err
			}

			descriptor := monitor.JobDescriptor{
				Domain:   domain,
				Schedule: monitor.Schedule(domainCfg.Schedule),
				Mode:     domainCfg.Mode,
				LeaseTTL: domainCfg.TTL(),
				Timeout:  domainCfg.Timeout(),
				Options: monitor.Options{
					Debug:        debug,
					ForceRefresh: forceRefresh,
					PeriodHours:  periodHours,
				},
			}
			if scheduleFlag != "" {
				descriptor.Schedule = monitor.Schedule(scheduleFlag)
			}
			if modeFlag != "" {
				descriptor.Mode = modeFlag
			}
			if timeoutMinutes > 0 {
				descriptor.Timeout = time.Duration(timeoutMinutes) * time.Minute
			}

			body, err := job.NewExternal(job.Config{
				Command:             cfg.Job.Command,
				Args:                cfg.Job.Args,
				WorkDir:             cfg.Job.WorkDir,
				SentimentWebhookURL: cfg.Notify.SentimentWebhookURL,
			}, application.Clock(), application.Logger().Named("job"))
			if err != nil {
				return fmt.Errorf("configure job body: %w", err)
			}

			outcome := application.Runner().Run(cmd.Context(), descriptor, body)
			if outcome.Status == monitor.StatusFailure {
				return errRunFailed{reason: outcome.Reason}
			}
			if outcome.Status == monitor.StatusWarning {
				application.Logger().Warn("run completed with warning",
					zap.String("reason", outcome.Reason))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "coordination domain to run (required)")
	cmd.Flags().StringVar(&scheduleFlag, "schedule", "", "schedule tag override (15min, 30min, 45min, 6h, on-demand)")
	cmd.Flags().StringVar(&modeFlag, "mode", "", "crawl mode override (all, global, korea, ...)")
	cmd.Flags().BoolVar(&debug, "debug", false, "pass the debug flag to the pipeline")
	cmd.Flags().BoolVar(&forceRefresh, "force-refresh", false, "tell the pipeline to ignore its caches")
	cmd.Flags().IntVar(&periodHours, "period-hours", 0, "analysis period passed to the pipeline")
	cmd.Flags().IntVar(&timeoutMinutes, "timeout-minutes", 0, "job body timeout override")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}
