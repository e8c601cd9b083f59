package review

import (
	"fmt"
	"strings"

	"github.com/reviewloop/reviewloop/engine"
)

// SignatureMarker identifies comments and reviews posted by reviewloop.
// It is the only mechanism used to reclaim prior comments on later runs,
// so it must appear verbatim in every body this system posts.
const SignatureMarker = "<!-- reviewloop-review -->"

// severityEmoji maps severities to their comment badge.
var severityEmoji = map[engine.Severity]string{
	engine.SeverityHigh:   "🔴",
	engine.SeverityMedium: "🟡",
	engine.SeverityLow:    "🟢",
}

// severityLabel returns the display label for a severity.
func severityLabel(s engine.Severity) string {
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(string(s[0])) + string(s[1:])
}

// FormatFinding renders one finding as an inline comment body.
func FormatFinding(f engine.Finding) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s **%s · %s**\n\n", severityEmoji[f.Severity], severityLabel(f.Severity), f.Category)
	b.WriteString(f.Message)

	if f.Suggestion != "" {
		fmt.Fprintf(&b, "\n\n```suggestion\n%s\n```", f.Suggestion)
	}

	fmt.Fprintf(&b, "\n\n*Flagged by %s (%s pass)*", f.Model, f.Pass)

	return b.String()
}

// FormatSummary renders the run's summary comment. The cost ledger marker
// comes immediately before the signature marker, and the signature is
// always last: discovery on the next run is a substring search, and the
// deferred-findings section is spliced in just above the signature.
func FormatSummary(metrics engine.Metrics, summary string, filteredCount, totalFindings int, ledger CostLedger) string {
	var b strings.Builder

	b.WriteString("## Reviewloop Code Review\n\n")
	if summary != "" {
		b.WriteString(summary)
		b.WriteString("\n\n")
	}

	b.WriteString("| Metric | Value |\n")
	b.WriteString("|---|---|\n")
	fmt.Fprintf(&b, "| Files reviewed | %d |\n", metrics.FilesReviewed)
	fmt.Fprintf(&b, "| Files skipped | %d |\n", metrics.FilesSkipped)
	fmt.Fprintf(&b, "| Findings | %d |\n", metrics.TotalFindings)
	fmt.Fprintf(&b, "| High / Medium / Low | %d / %d / %d |\n", metrics.HighCount, metrics.MediumCount, metrics.LowCount)
	if len(metrics.Passes) > 0 {
		fmt.Fprintf(&b, "| Passes | %s |\n", strings.Join(metrics.Passes, ", "))
	}
	if len(metrics.Models) > 0 {
		fmt.Fprintf(&b, "| Models | %s |\n", strings.Join(metrics.Models, ", "))
	}
	fmt.Fprintf(&b, "| Cost | %s |\n", formatCostLine(ledger))

	if filteredCount < totalFindings {
		fmt.Fprintf(&b, "\n_%d finding(s) below the severity threshold were omitted._\n", totalFindings-filteredCount)
	}

	b.WriteString("\n")
	b.WriteString(ledger.Serialize())
	b.WriteString("\n")
	b.WriteString(SignatureMarker)

	return b.String()
}

// formatCostLine shows only this run's cost until the ledger spans more
// than one review, then shows the cumulative total too.
func formatCostLine(ledger CostLedger) string {
	if len(ledger.Reviews) == 0 {
		return "$0.000"
	}

	current := ledger.Reviews[len(ledger.Reviews)-1].Cost
	if len(ledger.Reviews) == 1 {
		return fmt.Sprintf("$%.3f", current)
	}

	return fmt.Sprintf("$%.3f this review · $%.3f total across %d reviews",
		current, ledger.TotalCost, len(ledger.Reviews))
}

// FormatDeferredSection renders findings that could not be anchored to the
// diff as a bullet list for the summary comment.
func FormatDeferredSection(findings []engine.Finding) string {
	var b strings.Builder
	b.WriteString("### Issues not in diff\n\n")
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s **%s** `%s:%d` — %s\n",
			severityEmoji[f.Severity], severityLabel(f.Severity), f.Path, f.Line, f.Message)
	}
	return b.String()
}

// InsertBeforeSignature splices a section into body immediately before the
// signature marker. If the marker is missing the section is appended.
func InsertBeforeSignature(body, section string) string {
	idx := strings.LastIndex(body, SignatureMarker)
	if idx == -1 {
		return body + "\n" + section
	}
	return body[:idx] + section + "\n" + body[idx:]
}
