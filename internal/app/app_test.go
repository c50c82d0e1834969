// Package app_test contains unit tests for the app package.
package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/SpaceWJK/epic7-monitor/internal/app"
	"github.com/SpaceWJK/epic7-monitor/internal/config"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
	"github.com/SpaceWJK/epic7-monitor/internal/state"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Store.Provider)
	return cfg
}

func TestNewWiresMemoryProvider(t *testing.T) {
	t.Parallel()
	application, err := app.New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, application.Close()) }()

	require.NotNil(t, application.Logger())
	require.NotNil(t, application.Clock())
	require.NotNil(t, application.Leases())
	require.NotNil(t, application.LeaseStore())
	require.NotNil(t, application.Committer())
	require.NotNil(t, application.States())
	require.NotNil(t, application.Notifier())
	require.NotNil(t, application.Runner())
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig(t)
	cfg.Store.Provider = "etcd"

	_, err := app.New(context.Background(), cfg)
	require.ErrorContains(t, err, "unknown store provider")
}

func TestNoWebhookMeansNoopNotifier(t *testing.T) {
	t.Parallel()
	cfg := memoryConfig(t)
	cfg.Notify.WebhookURL = ""

	application, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { require.NoError(t, application.Close()) }()

	// Noop must absorb outcomes without any network dependency.
	application.Notifier().Notify(context.Background(), monitor.Outcome{
		Status: monitor.StatusFailure,
		Reason: "synthetic",
	})
}

func TestEndToEndRunThroughApp(t *testing.T) {
	t.Parallel()
	application, err := app.New(context.Background(), memoryConfig(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, application.Close()) }()

	job := monitor.JobDescriptor{
		Domain:   "global-monitor",
		Schedule: monitor.Schedule15Min,
		Mode:     "global",
		LeaseTTL: 35 * time.Minute,
		Timeout:  30 * time.Minute,
	}
	body := monitor.JobBodyFunc(func(_ context.Context, _ monitor.JobDescriptor) (monitor.Report, error) {
		return monitor.Report{ItemsSeen: 3}, nil
	})

	outcome := application.Runner().Run(context.Background(), job, body)
	require.Equal(t, monitor.StatusSuccess, outcome.Status)

	content, _, err := application.States().Read(context.Background(), state.DocRunStats)
	require.NoError(t, err)
	require.NotEmpty(t, content, "the run statistics document is written through the shared store")
}
