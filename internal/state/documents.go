// Package state models the shared persisted documents and the
// optimistic-concurrency commit path that merges racing writers' deltas.
// Three documents exist: the link dedup set, the sentiment aggregate, and
// the run statistics log. Every delta is a set union, a commutative sum, or
// an append, so it stays correct when computed from a stale read.
package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Well-known document identifiers. The names follow the JSON files the
// monitoring jobs have always shared.
const (
	DocLinks     = "crawled_links"
	DocSentiment = "sentiment_data"
	DocRunStats  = "monitoring_stats"
)

// Retention limits applied inside delta computation so pruning rides the
// same conditional-write path as the data it prunes.
const (
	MaxLinks        = 1000
	MaxRunRecords   = 1000
	MaxSentimentAge = 90 * 24 * time.Hour
)

// LinkSet is the dedup set of previously seen item URLs, each with the time
// it was first seen.
type LinkSet struct {
	Links     map[string]time.Time `json:"links"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// SentimentBucket accumulates classification counts and score sums. All
// fields are additive, so merging two buckets is commutative.
type SentimentBucket struct {
	Positive int     `json:"positive"`
	Negative int     `json:"negative"`
	Neutral  int     `json:"neutral"`
	ScoreSum float64 `json:"score_sum"`
}

// Add merges another bucket into b.
func (b *SentimentBucket) Add(other SentimentBucket) {
	b.Positive += other.Positive
	b.Negative += other.Negative
	b.Neutral += other.Neutral
	b.ScoreSum += other.ScoreSum
}

// Total returns the number of classified posts in the bucket.
func (b SentimentBucket) Total() int {
	return b.Positive + b.Negative + b.Neutral
}

// SentimentAggregate is the accumulated sentiment document, broken out by
// site and by day. Day keys use the 2006-01-02 layout.
type SentimentAggregate struct {
	Overall   SentimentBucket            `json:"overall"`
	Sites     map[string]SentimentBucket `json:"sites"`
	Days      map[string]SentimentBucket `json:"days"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// RunRecord is one entry in the append-only run statistics log.
type RunRecord struct {
	RunID      string         `json:"run_id"`
	Domain     string         `json:"domain"`
	Schedule   string         `json:"schedule"`
	Status     monitor.Status `json:"status"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
	ItemsSeen  int            `json:"items_seen"`
	NewItems   int            `json:"new_items"`
	AlertsSent int            `json:"alerts_sent"`
}

// RunStats is the run statistics document: counters plus a bounded log of
// recent run records.
type RunStats struct {
	TotalRuns    int                    `json:"total_runs"`
	RunsByStatus map[monitor.Status]int `json:"runs_by_status"`
	Records      []RunRecord            `json:"records"`
	LastRunAt    time.Time              `json:"last_run_at"`
}

// LinkSetDelta builds the dedup-set delta for newly seen URLs. The merge is
// a set union keyed on URL, keeping the earliest first-seen time, so
// applying the same delta twice yields the same document.
func LinkSetDelta(seen []string, now time.Time) monitor.DeltaFunc {
	return func(content []byte) ([]byte, error) {
		var doc LinkSet
		if err := decode(content, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", DocLinks, err)
		}
		if doc.Links == nil {
			doc.Links = make(map[string]time.Time, len(seen))
		}
		for _, url := range seen {
			if _, ok := doc.Links[url]; !ok {
				doc.Links[url] = now
			}
		}
		trimLinks(&doc)
		doc.UpdatedAt = now
		return json.Marshal(doc)
	}
}

// SentimentDelta builds the commutative accumulation delta for one run's
// classification results.
func SentimentDelta(overall SentimentBucket, bySite map[string]SentimentBucket, now time.Time) monitor.DeltaFunc {
	day := now.UTC().Format("2006-01-02")
	return func(content []byte) ([]byte, error) {
		var doc SentimentAggregate
		if err := decode(content, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", DocSentiment, err)
		}
		if doc.Sites == nil {
			doc.Sites = make(map[string]SentimentBucket)
		}
		if doc.Days == nil {
			doc.Days = make(map[string]SentimentBucket)
		}

		doc.Overall.Add(overall)
		for site, bucket := range bySite {
			merged := doc.Sites[site]
			merged.Add(bucket)
			doc.Sites[site] = merged
		}
		dayBucket := doc.Days[day]
		dayBucket.Add(overall)
		doc.Days[day] = dayBucket

		pruneDays(&doc, now)
		doc.UpdatedAt = now
		return json.Marshal(doc)
	}
}

// RunStatsDelta builds the append-only delta recording one finished run.
func RunStatsDelta(record RunRecord) monitor.DeltaFunc {
	return func(content []byte) ([]byte, error) {
		var doc RunStats
		if err := decode(content, &doc); err != nil {
			return nil, fmt.Errorf("decode %s: %w", DocRunStats, err)
		}
		if doc.RunsByStatus == nil {
			doc.RunsByStatus = make(map[monitor.Status]int)
		}
		doc.TotalRuns++
		doc.RunsByStatus[record.Status]++
		doc.Records = append(doc.Records, record)
		if len(doc.Records) > MaxRunRecords {
			doc.Records = doc.Records[len(doc.Records)-MaxRunRecords:]
		}
		if record.StartedAt.After(doc.LastRunAt) {
			doc.LastRunAt = record.StartedAt
		}
		return json.Marshal(doc)
	}
}

// decode treats empty content as a zero-valued document so the first writer
// bootstraps it.
func decode(content []byte, v any) error {
	if len(content) == 0 {
		return nil
	}
	return json.Unmarshal(content, v)
}

func trimLinks(doc *LinkSet) {
	if len(doc.Links) <= MaxLinks {
		return
	}
	type entry struct {
		url  string
		seen time.Time
	}
	entries := make([]entry, 0, len(doc.Links))
	for url, seen := range doc.Links {
		entries = append(entries, entry{url, seen})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].seen.Equal(entries[j].seen) {
			return entries[i].url < entries[j].url
		}
		return entries[i].seen.After(entries[j].seen)
	})
	trimmed := make(map[string]time.Time, MaxLinks)
	for _, e := range entries[:MaxLinks] {
		trimmed[e.url] = e.seen
	}
	doc.Links = trimmed
}

func pruneDays(doc *SentimentAggregate, now time.Time) {
	cutoff := now.Add(-MaxSentimentAge).UTC().Format("2006-01-02")
	for day := range doc.Days {
		if day < cutoff {
			delete(doc.Days, day)
		}
	}
}
