package notify

import (
	"fmt"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/agentic-hq/agentic/pkg/models"
)

const (
	maxBlockTextLength = 2900
	maxFailureLines    = 5
)

// BuildSessionMessage creates Block Kit blocks summarising a finished
// session: a status header, the outcome counts, and the first failure
// message per failed scenario.
func BuildSessionMessage(session *models.TestSession) []goslack.Block {
	sum := session.Summary

	emoji, label := ":x:", "Test session failed"
	if session.AllPassed() {
		emoji, label = ":white_check_mark:", "Test session passed"
	}

	header := fmt.Sprintf("%s *%s*\n%d scenarios: %d passed, %d failed, %d errored, %d skipped",
		emoji, label, sum.Total, sum.Passed, sum.Failed, sum.Error, sum.Skipped)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if details := failureDetails(session.Results); details != "" {
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, truncateForSlack(details), false, false),
			nil, nil,
		))
	}

	duration := session.EndTime.Sub(session.StartTime).Round(time.Second)
	footer := fmt.Sprintf("Session %s · %s", session.SessionID, duration)
	blocks = append(blocks, goslack.NewContextBlock("",
		goslack.NewTextBlockObject(goslack.PlainTextType, footer, false, false),
	))

	return blocks
}

// failureDetails lists one line per failed or errored scenario, capped at
// maxFailureLines.
func failureDetails(results []*models.TestResult) string {
	var lines []string
	overflow := 0
	for _, r := range results {
		if !r.Status.Terminal() {
			continue
		}
		if len(lines) >= maxFailureLines {
			overflow++
			continue
		}
		message := "no failure detail recorded"
		if len(r.Failures) > 0 {
			message = r.Failures[0].Message
		}
		lines = append(lines, fmt.Sprintf("• `%s` — %s", r.ScenarioID, message))
	}
	if overflow > 0 {
		lines = append(lines, fmt.Sprintf("… and %d more", overflow))
	}
	return strings.Join(lines, "\n")
}

// truncateForSlack caps text at Slack's block character limit without
// splitting a multi-byte rune.
func truncateForSlack(text string) string {
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return text
	}
	return string(runes[:maxBlockTextLength]) + "\n\n_... (truncated — see the session report)_"
}
