package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/metrics"
	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Severity colors for the embed sidebar, following the channel's
// long-standing palette.
const (
	colorSuccess = 0x2ecc71
	colorWarning = 0xf39c12
	colorFailure = 0xe74c3c
	colorSkipped = 0x95a5a6
)

const (
	maxAttempts = 3
	retryDelay  = 2 * time.Second
)

// Config controls which outcomes are delivered.
type Config struct {
	WebhookURL      string
	NotifyOnSuccess bool
	NotifyOnWarning bool
}

// Discord posts outcome embeds to a Discord webhook. Failures are always
// delivered; warning and success delivery follows the configured verbosity.
type Discord struct {
	cfg    Config
	client *http.Client
	clock  monitor.Clock
	logger *zap.Logger
}

// NewDiscord constructs a Discord notifier. An http.Client of nil selects a
// default with a 10s timeout.
func NewDiscord(cfg Config, client *http.Client, clock monitor.Clock, logger *zap.Logger) *Discord {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discord{cfg: cfg, client: client, clock: clock, logger: logger}
}

type embed struct {
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Timestamp   string       `json:"timestamp"`
	Fields      []embedField `json:"fields,omitempty"`
}

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type webhookMessage struct {
	Embeds []embed `json:"embeds"`
}

// Notify delivers the outcome, retrying transient failures. Every failure
// path logs and returns; nothing escalates to the caller.
func (d *Discord) Notify(ctx context.Context, outcome monitor.Outcome) {
	if !d.shouldNotify(outcome.Status) {
		return
	}

	payload, err := json.Marshal(webhookMessage{Embeds: []embed{d.buildEmbed(outcome)}})
	if err != nil {
		d.logger.Error("marshal webhook payload", zap.Error(err))
		return
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = d.post(ctx, payload)
		if lastErr == nil {
			d.logger.Debug("outcome delivered",
				zap.String("domain", outcome.Domain),
				zap.String("status", string(outcome.Status)),
			)
			return
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < maxAttempts {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
			}
		}
	}

	metrics.NotifyFailed()
	d.logger.Warn("outcome delivery failed, giving up",
		zap.String("domain", outcome.Domain),
		zap.String("status", string(outcome.Status)),
		zap.Error(lastErr),
	)
}

func (d *Discord) shouldNotify(status monitor.Status) bool {
	switch status {
	case monitor.StatusFailure:
		return true
	case monitor.StatusWarning:
		return d.cfg.NotifyOnWarning
	case monitor.StatusSuccess:
		return d.cfg.NotifyOnSuccess
	default:
		return false
	}
}

func (d *Discord) buildEmbed(outcome monitor.Outcome) embed {
	e := embed{
		Title:     fmt.Sprintf("[%s] run %s", outcome.Domain, outcome.Status),
		Color:     statusColor(outcome.Status),
		Timestamp: d.clock.Now().Format(time.RFC3339),
		Fields: []embedField{
			{Name: "domain", Value: outcome.Domain, Inline: true},
			{Name: "duration", Value: outcome.Duration.Round(time.Second).String(), Inline: true},
		},
	}
	if outcome.Reason != "" {
		e.Fields = append(e.Fields, embedField{Name: "reason", Value: outcome.Reason})
	}
	if !outcome.NextRunAt.IsZero() {
		e.Fields = append(e.Fields, embedField{
			Name:   "next run",
			Value:  outcome.NextRunAt.Format(time.RFC3339),
			Inline: true,
		})
	}
	if outcome.DetailURL != "" {
		e.Description = fmt.Sprintf("[run detail](%s)", outcome.DetailURL)
	}
	return e
}

func (d *Discord) post(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func statusColor(status monitor.Status) int {
	switch status {
	case monitor.StatusSuccess:
		return colorSuccess
	case monitor.StatusWarning:
		return colorWarning
	case monitor.StatusFailure:
		return colorFailure
	default:
		return colorSkipped
	}
}
