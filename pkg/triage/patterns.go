package triage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/agentic-hq/agentic/pkg/models"
)

// Pattern kinds produced by ExtractPatterns.
const (
	PatternKindMessage  = "message"
	PatternKindCategory = "category"
	PatternKindTemporal = "temporal"
)

const temporalBucket = 15 * time.Minute

var (
	hexPrefixRe = regexp.MustCompile(`0[xX][0-9a-fA-F]+`)
	hexRunRe    = regexp.MustCompile(`\b[0-9a-fA-F]{8,}\b`)
	hexLetterRe = regexp.MustCompile(`[a-fA-F]`)
	numberRe    = regexp.MustCompile(`\d+`)
)

// NormalizeMessage collapses volatile fragments so equivalent failures group
// together: hex identifiers become HEX, runs of digits become NUMBER.
func NormalizeMessage(msg string) string {
	out := hexPrefixRe.ReplaceAllString(msg, "HEX")
	out = hexRunRe.ReplaceAllStringFunc(out, func(m string) string {
		if hexLetterRe.MatchString(m) {
			return "HEX"
		}
		return m
	})
	return numberRe.ReplaceAllString(out, "NUMBER")
}

type patternGroup struct {
	scenarios map[string]struct{}
	count     int
	first     time.Time
	last      time.Time
}

func (g *patternGroup) add(f models.TestFailure) {
	if g.scenarios == nil {
		g.scenarios = make(map[string]struct{})
	}
	g.scenarios[f.ScenarioID] = struct{}{}
	g.count++
	if g.first.IsZero() || f.Timestamp.Before(g.first) {
		g.first = f.Timestamp
	}
	if f.Timestamp.After(g.last) {
		g.last = f.Timestamp
	}
}

func (g *patternGroup) scenarioIDs() []string {
	ids := make([]string, 0, len(g.scenarios))
	for id := range g.scenarios {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ExtractPatterns finds recurring signatures in a batch of failures:
// normalised-message groups of two or more, category groups of two or more,
// and 15-minute time clusters of three or more.
func ExtractPatterns(failures []models.TestFailure) []models.FailurePattern {
	messages := make(map[string]*patternGroup)
	categories := make(map[string]*patternGroup)
	buckets := make(map[time.Time]*patternGroup)

	grow := func(m map[string]*patternGroup, key string, f models.TestFailure) {
		g, ok := m[key]
		if !ok {
			g = &patternGroup{}
			m[key] = g
		}
		g.add(f)
	}

	for _, f := range failures {
		if f.Message != "" {
			grow(messages, NormalizeMessage(f.Message), f)
		}
		if f.Category != "" {
			grow(categories, f.Category, f)
		}
		bucket := f.Timestamp.UTC().Truncate(temporalBucket)
		g, ok := buckets[bucket]
		if !ok {
			g = &patternGroup{}
			buckets[bucket] = g
		}
		g.add(f)
	}

	var patterns []models.FailurePattern
	for msg, g := range messages {
		if g.count < 2 {
			continue
		}
		patterns = append(patterns, models.FailurePattern{
			ID:          "msg-" + shortHash(msg),
			Kind:        PatternKindMessage,
			Description: msg,
			Count:       g.count,
			ScenarioIDs: g.scenarioIDs(),
			FirstSeen:   g.first,
			LastSeen:    g.last,
		})
	}
	for category, g := range categories {
		if g.count < 2 {
			continue
		}
		patterns = append(patterns, models.FailurePattern{
			ID:          "cat-" + category,
			Kind:        PatternKindCategory,
			Description: fmt.Sprintf("recurring failures in category %q", category),
			Count:       g.count,
			ScenarioIDs: g.scenarioIDs(),
			FirstSeen:   g.first,
			LastSeen:    g.last,
		})
	}
	for bucket, g := range buckets {
		if g.count < 3 {
			continue
		}
		patterns = append(patterns, models.FailurePattern{
			ID:          "time-" + bucket.Format("20060102T150405Z"),
			Kind:        PatternKindTemporal,
			Description: fmt.Sprintf("%d failures within 15 minutes of %s", g.count, bucket.Format(time.RFC3339)),
			Count:       g.count,
			ScenarioIDs: g.scenarioIDs(),
			FirstSeen:   g.first,
			LastSeen:    g.last,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Kind != patterns[j].Kind {
			return patterns[i].Kind < patterns[j].Kind
		}
		if patterns[i].Count != patterns[j].Count {
			return patterns[i].Count > patterns[j].Count
		}
		return patterns[i].ID < patterns[j].ID
	})
	return patterns
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}
