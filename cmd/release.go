package cmd

import (
	"github.com/spf13/cobra"
)

func newReleaseCmd() *cobra.Command {
	var domain string

	cmd := &cobra.Command{
		Use:   "release",
		Short: "Force-releases a domain lease",
		Long: `Deletes the lease for a coordination domain regardless of owner or
age. Only for operator recovery after a wedged run; a healthy run releases
its own lease.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return application.Leases().ForceRelease(cmd.Context(), domain)
		},
	}

	cmd.Flags().StringVar(&domain, "domain", "", "coordination domain to release (required)")
	_ = cmd.MarkFlagRequired("domain")

	return cmd
}
