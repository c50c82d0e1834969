package cmd

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/SpaceWJK/epic7-monitor/internal/app"
	"github.com/SpaceWJK/epic7-monitor/internal/config"
)

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusShowsConfiguredDomains(t *testing.T) {
	out, err := executeCommand(t, "status")
	require.NoError(t, err)
	require.Contains(t, out, "global-monitor")
	require.Contains(t, out, "korea-monitor")
	require.Contains(t, out, "unified-monitor")
	require.Contains(t, out, "free")
	require.Contains(t, out, "crawled_links")
	require.Contains(t, out, "monitoring_stats")
}

func TestReleaseUnknownDomainIsIdempotent(t *testing.T) {
	_, err := executeCommand(t, "release", "--domain", "global-monitor")
	require.NoError(t, err)
}

func TestReportRendersEmptyState(t *testing.T) {
	out, err := executeCommand(t, "report", "--days", "7")
	require.NoError(t, err)
	require.Contains(t, out, "Known links: 0")
	require.Contains(t, out, "Runs: 0 total")
}

func TestReportDeliveryFailureIsNotFatal(t *testing.T) {
	// Nothing listens on port 1, so delivery fails immediately. The summary
	// still prints and the command still succeeds.
	t.Setenv("DISCORD_WEBHOOK_REPORT", "http://127.0.0.1:1/webhook")

	out, err := executeCommand(t, "report", "--days", "7", "--deliver")
	require.NoError(t, err)
	require.Contains(t, out, "Known links: 0")
}

func TestRunRequiresDomainFlag(t *testing.T) {
	_, err := executeCommand(t, "run")
	require.Error(t, err)
}

func TestRunUnknownDomain(t *testing.T) {
	_, err := executeCommand(t, "run", "--domain", "eu-monitor")
	require.ErrorContains(t, err, `unknown domain "eu-monitor"`)
}

func TestRunWithoutConfiguredPipeline(t *testing.T) {
	_, err := executeCommand(t, "run", "--domain", "global-monitor")
	require.ErrorContains(t, err, "job command is required")
}

func TestAppFactoryIsReplaceable(t *testing.T) {
	original := newApp
	t.Cleanup(func() { newApp = original })

	var got config.Config
	newApp = func(ctx context.Context, cfg config.Config) (*app.App, error) {
		got = cfg
		return app.New(ctx, cfg)
	}

	_, err := executeCommand(t, "status")
	require.NoError(t, err)
	require.Equal(t, "memory", got.Store.Provider)
}
