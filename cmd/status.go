package cmd

import (
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/SpaceWJK/epic7-monitor/internal/state"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Shows lease and document state for all configured domains",

		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			now := application.Clock().Now()
			out := cmd.OutOrStdout()

			domains := make([]string, 0, len(application.Config().Domains))
			for name := range application.Config().Domains {
				domains = append(domains, name)
			}
			sort.Strings(domains)

			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOMAIN\tLEASE\tOWNER\tAGE\tTTL")
			for _, name := range domains {
				lease, ok, err := application.LeaseStore().Get(ctx, name)
				if err != nil {
					return fmt.Errorf("read lease %q: %w", name, err)
				}
				if !ok {
					fmt.Fprintf(w, "%s\tfree\t-\t-\t-\n", name)
					continue
				}
				held := "held"
				if lease.Expired(now) {
					held = "expired"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", name, held, lease.Owner,
					lease.Age(now).Round(time.Second), lease.TTL)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOCUMENT\tVERSION\tBYTES")
			for _, docID := range []string{state.DocLinks, state.DocSentiment, state.DocRunStats} {
				content, version, err := application.States().Read(ctx, docID)
				if err != nil {
					return fmt.Errorf("read document %q: %w", docID, err)
				}
				fmt.Fprintf(w, "%s\t%d\t%d\n", docID, version, len(content))
			}
			return w.Flush()
		},
	}

	return cmd
}
