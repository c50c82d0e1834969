package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/report"
)

func newReportCmd() *cobra.Command {
	var (
		days    int
		deliver bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarizes the shared monitoring state",
		Long: `Reads the shared documents and prints a summary of recent activity
over the given period. With --deliver the summary is also posted to the
configured report webhook.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			gen := report.NewGenerator(application.States(), application.Clock(),
				application.Logger().Named("report"))
			summary, err := gen.Generate(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("generate report: %w", err)
			}

			fmt.Fprint(cmd.OutOrStdout(), summary.Render())

			if deliver {
				client := &http.Client{Timeout: 10 * time.Second}
				url := application.Config().Notify.ReportWebhookURL
				// The summary already printed; a webhook hiccup must not
				// turn the run into a failure.
				if err := report.Deliver(cmd.Context(), client, url, summary); err != nil {
					application.Logger().Warn("report delivery failed", zap.Error(err))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 7, "period covered by the report")
	cmd.Flags().BoolVar(&deliver, "deliver", false, "post the summary to the report webhook")

	return cmd
}
