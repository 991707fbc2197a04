package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agentic-hq/agentic/pkg/config"
	"github.com/agentic-hq/agentic/pkg/models"
)

// Submission is the outcome of one Report call.
type Submission struct {
	Issue       *Issue
	Duplicate   bool
	Fingerprint Fingerprint
}

// Reporter routes failures to the issue tracker with deduplication and
// rate-limit awareness. A nil *Reporter is valid and does nothing, so
// callers never need to branch on whether reporting is configured.
// Submissions are serialised per instance.
type Reporter struct {
	cfg     *config.ReporterConfig
	tracker *Tracker
	log     *slog.Logger

	mu       sync.Mutex
	reported map[string]*Issue // fingerprint hash -> issue, per instance
}

// NewReporter creates a reporter, or nil when reporting is disabled or not
// configured with a repository.
func NewReporter(cfg *config.ReporterConfig) *Reporter {
	if cfg == nil || !cfg.Enabled || cfg.Repository == "" {
		slog.Debug("Issue reporting disabled")
		return nil
	}
	return newReporter(cfg, NewTracker(cfg))
}

// newReporter wires an explicit tracker; tests inject one pointed at a mock
// server.
func newReporter(cfg *config.ReporterConfig, tracker *Tracker) *Reporter {
	return &Reporter{
		cfg:      cfg,
		tracker:  tracker,
		log:      slog.With("component", "reporter", "repository", cfg.Repository),
		reported: make(map[string]*Issue),
	}
}

// Enabled reports whether this reporter will actually submit.
func (r *Reporter) Enabled() bool {
	return r != nil
}

// Report submits one failure: fingerprint, duplicate search, template
// rendering, rate-limit wait, submission. Duplicates (cached or found
// remotely) return the existing issue without creating a new one.
func (r *Reporter) Report(ctx context.Context, failure models.TestFailure, assignment *models.PriorityAssignment) (*Submission, error) {
	if r == nil {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	fp := NewFingerprint(failure)
	sub := &Submission{Fingerprint: fp}

	if issue, ok := r.reported[fp.Hash]; ok {
		r.log.Debug("Failure already reported in this session",
			"fingerprint", fp.Hash, "issue", issue.Number)
		sub.Issue = issue
		sub.Duplicate = true
		return sub, nil
	}

	if r.cfg.DeduplicationEnabled() {
		if issue, found := r.findDuplicate(ctx, fp); found {
			r.log.Info("Duplicate issue found, skipping submission",
				"fingerprint", fp.Hash, "issue", issue.Number)
			r.reported[fp.Hash] = issue
			sub.Issue = issue
			sub.Duplicate = true
			return sub, nil
		}
	}

	if err := r.waitForRateLimit(ctx); err != nil {
		return nil, err
	}

	priority := IssuePriority(failure)
	tctx := r.templateContext(failure, fp, assignment, priority)

	title := Render(r.titleTemplate(), tctx)
	body := r.finalizeBody(Render(r.bodyTemplate(), tctx), fp.Marker())

	labels := append([]string{}, r.cfg.Labels...)
	labels = append(labels, "priority:"+string(priority))

	issue, err := r.tracker.CreateIssue(ctx, IssueRequest{
		Title:     title,
		Body:      body,
		Labels:    labels,
		Assignees: r.cfg.Assignees,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to submit issue: %w", err)
	}

	r.reported[fp.Hash] = issue
	sub.Issue = issue
	r.log.Info("Issue submitted",
		"issue", issue.Number, "fingerprint", fp.Hash, "priority", priority)
	return sub, nil
}

// Comment posts a comment on an existing issue, honouring the rate limit.
func (r *Reporter) Comment(ctx context.Context, number int, body string) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.waitForRateLimit(ctx); err != nil {
		return err
	}
	if _, err := r.tracker.CreateComment(ctx, number, body); err != nil {
		return fmt.Errorf("failed to post comment on issue %d: %w", number, err)
	}
	return nil
}

// AttachScreenshot references a screenshot from an issue by local path. The
// image bytes are never transmitted; the returned value is always the local
// path.
func (r *Reporter) AttachScreenshot(ctx context.Context, number int, localPath string) (string, error) {
	if r == nil {
		return localPath, nil
	}
	body := fmt.Sprintf("![%s](%s)\n\n_Captured at %s_",
		filepath.Base(localPath), localPath, time.Now().Format(time.RFC3339))
	if err := r.Comment(ctx, number, body); err != nil {
		return "", err
	}
	return localPath, nil
}

// FindDuplicate searches the tracker for an open issue carrying the
// fingerprint marker. Search failures are non-fatal: log and report no
// duplicate.
func (r *Reporter) FindDuplicate(ctx context.Context, failure models.TestFailure) (*Issue, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findDuplicate(ctx, NewFingerprint(failure))
}

func (r *Reporter) findDuplicate(ctx context.Context, fp Fingerprint) (*Issue, bool) {
	since := time.Now().AddDate(0, 0, -r.cfg.DeduplicationLookbackDays).Format("2006-01-02")
	query := fmt.Sprintf("repo:%s %q created:>=%s", r.cfg.Repository, fp.ScenarioID, since)

	result, err := r.tracker.SearchIssues(ctx, query)
	if err != nil {
		r.log.Warn("Duplicate search failed, proceeding without deduplication", "error", err)
		return nil, false
	}
	marker := fp.Marker()
	for i := range result.Items {
		if strings.Contains(result.Items[i].Body, marker) {
			return &result.Items[i], true
		}
	}
	return nil, false
}

// waitForRateLimit blocks while the remaining budget is at or under the
// configured buffer, sleeping until the advertised reset plus one second.
// A missing or failing rate-limit endpoint fails open.
func (r *Reporter) waitForRateLimit(ctx context.Context) error {
	for {
		rl, err := r.tracker.FetchRateLimit(ctx)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				r.log.Warn("Rate limit endpoint missing, proceeding")
			} else {
				r.log.Warn("Failed to fetch rate limit, proceeding", "error", err)
			}
			return nil
		}
		if rl.Remaining > r.cfg.RateLimitBuffer {
			return nil
		}
		wait := time.Until(time.Unix(rl.Reset, 0).Add(time.Second))
		if wait < time.Second {
			wait = time.Second
		}
		r.log.Info("Rate limit low, waiting for reset",
			"remaining", rl.Remaining, "buffer", r.cfg.RateLimitBuffer, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// IssuePriority classifies a failure for issue labelling: critical when the
// category or message says so, high for plain errors, medium otherwise.
func IssuePriority(failure models.TestFailure) models.Priority {
	msg := strings.ToLower(failure.Message)
	switch {
	case strings.EqualFold(failure.Category, "critical") || strings.Contains(msg, "critical"):
		return models.PriorityCritical
	case strings.Contains(msg, "error"):
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}

func (r *Reporter) titleTemplate() string {
	if r.cfg.TitleTemplate != "" {
		return r.cfg.TitleTemplate
	}
	return DefaultTitleTemplate
}

func (r *Reporter) bodyTemplate() string {
	if r.cfg.BodyTemplate != "" {
		return r.cfg.BodyTemplate
	}
	return DefaultBodyTemplate
}

// finalizeBody appends the fingerprint marker, truncating oversized content
// first so the marker always survives at the very end.
func (r *Reporter) finalizeBody(content, marker string) string {
	suffix := "\n\n" + marker
	if max := r.cfg.MaxBodyLength; max > 0 && len(content)+len(suffix) > max {
		const note = "\n\n*[truncated]*"
		keep := max - len(suffix) - len(note)
		if keep < 0 {
			keep = 0
		}
		content = content[:keep] + note
	}
	return content + suffix
}

func (r *Reporter) templateContext(failure models.TestFailure, fp Fingerprint, assignment *models.PriorityAssignment, priority models.Priority) map[string]any {
	name := failure.ScenarioName
	if name == "" {
		name = failure.ScenarioID
	}
	tctx := map[string]any{
		"scenarioId":     failure.ScenarioID,
		"scenarioName":   name,
		"category":       fp.Category,
		"priority":       string(priority),
		"timestamp":      failure.Timestamp.Format(time.RFC3339),
		"errorMessage":   failure.Message,
		"stackTrace":     failure.StackTrace,
		"stackTraceHash": fp.StackTraceHash,
		"logs":           failure.Logs,
		"screenshots":    failure.Screenshots,
		"fingerprint":    fp.Hash,
	}
	if assignment != nil {
		tctx["impactScore"] = assignment.ImpactScore
		tctx["assignment"] = map[string]any{
			"priority":    string(assignment.Priority),
			"impactScore": assignment.ImpactScore,
			"confidence":  assignment.Confidence,
			"effortHours": assignment.EstimatedFixEffortHours,
		}
	}
	return tctx
}
