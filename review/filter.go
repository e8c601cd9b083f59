package review

import "github.com/reviewloop/reviewloop/engine"

// FilterBySeverity returns the findings whose severity ranks at or above
// the threshold, preserving input order. Findings with an unknown severity
// are dropped.
func FilterBySeverity(findings []engine.Finding, threshold engine.Severity) []engine.Finding {
	result := make([]engine.Finding, 0, len(findings))
	for _, f := range findings {
		if f.Severity.Rank() >= threshold.Rank() {
			result = append(result, f)
		}
	}
	return result
}

// CountBySeverity returns how many findings have the given severity.
func CountBySeverity(findings []engine.Finding, severity engine.Severity) int {
	count := 0
	for _, f := range findings {
		if f.Severity == severity {
			count++
		}
	}
	return count
}
