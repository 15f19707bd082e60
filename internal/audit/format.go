package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a HistoryResult as a human-readable text timeline.
func FormatTimeline(result *HistoryResult) string {
	scope := result.ProjectID
	if scope == "" {
		scope = "all projects"
	}
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Audit: %s | No entries found.\n", scope)
	}

	var b strings.Builder

	// Header
	first := result.Summary.FirstTimestamp
	last := result.Summary.LastTimestamp
	firstTime := formatDateRange(first)
	lastTime := formatTimeOnly(last)
	b.WriteString(fmt.Sprintf("Audit: %s | %s–%s UTC\n", scope, firstTime, lastTime))
	b.WriteString(separator + "\n")

	// Entries
	for _, e := range result.Entries {
		ts := formatTimeOnly(e.Timestamp)
		outcome := strings.ToUpper(e.Result)
		action := truncate(e.Action, 14)
		project := truncate(e.ProjectID, 24)
		gates := truncate(strings.Join(e.GatesRun, ","), 30)

		tag := ""
		if e.BreakGlassUsed {
			tag = "  [break-glass]"
		}

		b.WriteString(fmt.Sprintf("%-10s %-9s %-15s %-25s %-30s%s\n",
			ts, outcome, action, project, gates, tag))
	}

	// Footer
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a HistoryResult as indented JSON.
func FormatJSON(result *HistoryResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal history result: %w", err)
	}
	return string(data), nil
}

func formatDateRange(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s HistorySummary) string {
	parts := []string{}
	if s.SuccessCount > 0 {
		parts = append(parts, fmt.Sprintf("%d success", s.SuccessCount))
	}
	if s.FailureCount > 0 {
		parts = append(parts, fmt.Sprintf("%d failure", s.FailureCount))
	}
	if s.BlockedCount > 0 {
		parts = append(parts, fmt.Sprintf("%d blocked", s.BlockedCount))
	}
	if s.BreakGlassCount > 0 {
		parts = append(parts, fmt.Sprintf("%d break-glass", s.BreakGlassCount))
	}
	if len(parts) == 0 {
		parts = append(parts, "no outcomes")
	}

	return fmt.Sprintf("Summary: %s | Entries: %d\n", strings.Join(parts, ", "), s.Total)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
