// Package report summarizes the shared state documents for humans. It is a
// read-only consumer of the state store: it never writes documents and runs
// outside any lease.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
	"github.com/SpaceWJK/epic7-monitor/internal/state"
)

// Summary is the distilled view of the three state documents.
type Summary struct {
	GeneratedAt  time.Time              `json:"generated_at"`
	PeriodDays   int                    `json:"period_days"`
	KnownLinks   int                    `json:"known_links"`
	Sentiment    state.SentimentBucket  `json:"sentiment"`
	TopSites     []SiteSentiment        `json:"top_sites"`
	TotalRuns    int                    `json:"total_runs"`
	RunsByStatus map[monitor.Status]int `json:"runs_by_status"`
	LastRunAt    time.Time              `json:"last_run_at"`
	RecentIssues []state.RunRecord      `json:"recent_issues"`
}

// SiteSentiment pairs a site with its accumulated sentiment bucket.
type SiteSentiment struct {
	Site   string                `json:"site"`
	Bucket state.SentimentBucket `json:"bucket"`
}

// Generator builds summaries from the state store.
type Generator struct {
	store  monitor.StateStore
	clock  monitor.Clock
	logger *zap.Logger
}

// NewGenerator constructs a Generator.
func NewGenerator(store monitor.StateStore, clock monitor.Clock, logger *zap.Logger) *Generator {
	return &Generator{store: store, clock: clock, logger: logger}
}

// Generate reads all three documents and summarizes the last periodDays of
// sentiment plus overall run health. Documents that do not exist yet
// contribute zeros.
func (g *Generator) Generate(ctx context.Context, periodDays int) (Summary, error) {
	now := g.clock.Now()
	summary := Summary{GeneratedAt: now, PeriodDays: periodDays}

	var links state.LinkSet
	if err := g.readDoc(ctx, state.DocLinks, &links); err != nil {
		return Summary{}, err
	}
	summary.KnownLinks = len(links.Links)

	var sentiment state.SentimentAggregate
	if err := g.readDoc(ctx, state.DocSentiment, &sentiment); err != nil {
		return Summary{}, err
	}
	summary.Sentiment = periodBucket(sentiment, now, periodDays)
	summary.TopSites = rankSites(sentiment.Sites)

	var stats state.RunStats
	if err := g.readDoc(ctx, state.DocRunStats, &stats); err != nil {
		return Summary{}, err
	}
	summary.TotalRuns = stats.TotalRuns
	summary.RunsByStatus = stats.RunsByStatus
	summary.LastRunAt = stats.LastRunAt
	summary.RecentIssues = recentIssues(stats.Records, 10)

	return summary, nil
}

func (g *Generator) readDoc(ctx context.Context, docID string, v any) error {
	content, _, err := g.store.Read(ctx, docID)
	if err != nil {
		return fmt.Errorf("read %s: %w", docID, err)
	}
	if len(content) == 0 {
		return nil
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("decode %s: %w", docID, err)
	}
	g.logger.Debug("document loaded", zap.String("doc", docID), zap.Int("bytes", len(content)))
	return nil
}

// periodBucket sums the day buckets inside the reporting window.
func periodBucket(agg state.SentimentAggregate, now time.Time, periodDays int) state.SentimentBucket {
	if periodDays <= 0 {
		return agg.Overall
	}
	cutoff := now.AddDate(0, 0, -periodDays).UTC().Format("2006-01-02")
	var bucket state.SentimentBucket
	for day, b := range agg.Days {
		if day >= cutoff {
			bucket.Add(b)
		}
	}
	return bucket
}

func rankSites(sites map[string]state.SentimentBucket) []SiteSentiment {
	ranked := make([]SiteSentiment, 0, len(sites))
	for site, bucket := range sites {
		ranked = append(ranked, SiteSentiment{Site: site, Bucket: bucket})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Bucket.Total() == ranked[j].Bucket.Total() {
			return ranked[i].Site < ranked[j].Site
		}
		return ranked[i].Bucket.Total() > ranked[j].Bucket.Total()
	})
	if len(ranked) > 5 {
		ranked = ranked[:5]
	}
	return ranked
}

func recentIssues(records []state.RunRecord, limit int) []state.RunRecord {
	issues := make([]state.RunRecord, 0, limit)
	for i := len(records) - 1; i >= 0 && len(issues) < limit; i-- {
		switch records[i].Status {
		case monitor.StatusFailure, monitor.StatusWarning:
			issues = append(issues, records[i])
		}
	}
	return issues
}

// Render formats the summary as plain text for the CLI.
func (s Summary) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Monitor report, generated %s\n", s.GeneratedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Known links: %d\n", s.KnownLinks)
	fmt.Fprintf(&b, "Sentiment (last %dd): %d positive / %d negative / %d neutral\n",
		s.PeriodDays, s.Sentiment.Positive, s.Sentiment.Negative, s.Sentiment.Neutral)
	for _, site := range s.TopSites {
		fmt.Fprintf(&b, "  %-24s %d posts\n", site.Site, site.Bucket.Total())
	}
	fmt.Fprintf(&b, "Runs: %d total", s.TotalRuns)
	for _, status := range []monitor.Status{monitor.StatusSuccess, monitor.StatusWarning, monitor.StatusFailure, monitor.StatusSkipped} {
		if n := s.RunsByStatus[status]; n > 0 {
			fmt.Fprintf(&b, ", %d %s", n, status)
		}
	}
	b.WriteString("\n")
	if len(s.RecentIssues) > 0 {
		b.WriteString("Recent issues:\n")
		for _, rec := range s.RecentIssues {
			fmt.Fprintf(&b, "  %s %s [%s] %s\n",
				rec.StartedAt.Format("2006-01-02 15:04"), rec.Domain, rec.Status, rec.RunID)
		}
	}
	return b.String()
}

// Deliver posts the summary embed to a webhook. Like outcome delivery,
// failure is logged by the caller and never escalated.
func Deliver(ctx context.Context, client *http.Client, webhookURL string, s Summary) error {
	if webhookURL == "" {
		return nil
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	payload, err := json.Marshal(map[string]any{
		"embeds": []map[string]any{{
			"title":       "Epic Seven monitor report",
			"description": fmt.Sprintf("```%s```", s.Render()),
			"color":       0x2ecc71,
			"timestamp":   s.GeneratedAt.Format(time.RFC3339),
		}},
	})
	if err != nil {
		return fmt.Errorf("marshal report payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("report webhook returned status %d", resp.StatusCode)
	}
	return nil
}
