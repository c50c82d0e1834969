// Package job adapts external crawl pipelines to the monitor.JobBody
// contract. The coordinator does not crawl, parse, or classify anything
// itself: it launches the configured pipeline command and reads back a
// result manifest describing what the pipeline saw and the state deltas it
// produced.
package job

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/id"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
	"github.com/SpaceWJK/epic7-monitor/internal/state"
)

// Manifest is the result file the pipeline writes before exiting zero. All
// fields are optional; an empty manifest is a successful run that produced
// no deltas.
type Manifest struct {
	ItemsSeen  int                              `json:"items_seen"`
	AlertsSent int                              `json:"alerts_sent"`
	NewLinks   []string                         `json:"new_links"`
	Sentiment  state.SentimentBucket            `json:"sentiment"`
	SiteStats  map[string]state.SentimentBucket `json:"site_stats"`
}

// Config locates the pipeline executable.
type Config struct {
	Command string
	Args    []string
	WorkDir string
	// SentimentWebhookURL is handed to the pipeline, which posts its own
	// sentiment alerts.
	SentimentWebhookURL string
}

// External runs the pipeline as a subprocess. The job descriptor is passed
// through the environment; the manifest path is handed to the pipeline the
// same way and read back after a zero exit.
type External struct {
	cfg    Config
	clock  monitor.Clock
	logger *zap.Logger
}

// NewExternal constructs an External body.
func NewExternal(cfg Config, clock monitor.Clock, logger *zap.Logger) (*External, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("job command is required")
	}
	return &External{cfg: cfg, clock: clock, logger: logger}, nil
}

// Run implements monitor.JobBody. The subprocess inherits ctx, so the
// runner's timeout kills the whole pipeline process group.
func (e *External) Run(ctx context.Context, job monitor.JobDescriptor) (monitor.Report, error) {
	resultPath := filepath.Join(os.TempDir(), fmt.Sprintf("epic7-run-%s-%s.json", job.Domain, id.NewRunID()))
	defer func() { _ = os.Remove(resultPath) }()

	cmd := exec.CommandContext(ctx, e.cfg.Command, e.cfg.Args...)
	cmd.Dir = e.cfg.WorkDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = append(os.Environ(),
		"MONITOR_DOMAIN="+job.Domain,
		"MONITOR_MODE="+job.Mode,
		"MONITOR_SCHEDULE="+string(job.Schedule),
		"MONITOR_DEBUG="+strconv.FormatBool(job.Options.Debug),
		"MONITOR_FORCE_REFRESH="+strconv.FormatBool(job.Options.ForceRefresh),
		"MONITOR_PERIOD_HOURS="+strconv.Itoa(job.Options.PeriodHours),
		"MONITOR_RESULT_PATH="+resultPath,
	)
	if e.cfg.SentimentWebhookURL != "" {
		cmd.Env = append(cmd.Env, "DISCORD_WEBHOOK_SENTIMENT="+e.cfg.SentimentWebhookURL)
	}

	e.logger.Info("launching pipeline",
		zap.String("command", e.cfg.Command),
		zap.String("domain", job.Domain),
	)
	if err := cmd.Run(); err != nil {
		return monitor.Report{}, fmt.Errorf("pipeline %s: %w", e.cfg.Command, err)
	}

	manifest, err := readManifest(resultPath)
	if err != nil {
		return monitor.Report{}, err
	}
	return e.buildReport(manifest), nil
}

func readManifest(path string) (Manifest, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Manifest{}, nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read result manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(content, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode result manifest: %w", err)
	}
	return m, nil
}

// buildReport turns the manifest into state deltas. Only documents the
// pipeline actually touched get a delta.
func (e *External) buildReport(m Manifest) monitor.Report {
	now := e.clock.Now()
	report := monitor.Report{
		ItemsSeen:  m.ItemsSeen,
		NewItems:   len(m.NewLinks),
		AlertsSent: m.AlertsSent,
	}
	if len(m.NewLinks) > 0 {
		report.Deltas = append(report.Deltas, monitor.StateDelta{
			DocID: state.DocLinks,
			Delta: state.LinkSetDelta(m.NewLinks, now),
		})
	}
	if m.Sentiment.Total() > 0 || len(m.SiteStats) > 0 {
		report.Deltas = append(report.Deltas, monitor.StateDelta{
			DocID: state.DocSentiment,
			Delta: state.SentimentDelta(m.Sentiment, m.SiteStats, now),
		})
	}
	return report
}
