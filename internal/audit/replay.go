package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// HistoryFilter holds filtering criteria for audit history reads.
type HistoryFilter struct {
	ProjectID string    // "" = all projects
	Action    string    // "" = all actions
	From      time.Time // zero value = no lower bound
	To        time.Time // zero value = no upper bound
}

// HistorySummary holds outcome counts and metadata for a history read.
type HistorySummary struct {
	Total           int    `json:"total"`
	SuccessCount    int    `json:"success_count"`
	FailureCount    int    `json:"failure_count"`
	BlockedCount    int    `json:"blocked_count"`
	BreakGlassCount int    `json:"break_glass_count"`
	FirstTimestamp  string `json:"first_timestamp"`
	LastTimestamp   string `json:"last_timestamp"`
}

// HistoryResult holds filtered entries and summary.
type HistoryResult struct {
	ProjectID string         `json:"project_id"`
	Entries   []AuditEntry   `json:"entries"`
	Summary   HistorySummary `json:"summary"`
}

// History reads the audit log and returns entries matching the filter.
func History(path string, filter HistoryFilter) (*HistoryResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	result := &HistoryResult{
		ProjectID: filter.ProjectID,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry AuditEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}

		if filter.ProjectID != "" && entry.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}

		// Time range filtering
		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, entry.Timestamp)
			if err != nil {
				continue // skip unparseable timestamps
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	return result, nil
}

func updateSummary(s *HistorySummary, entry AuditEntry) {
	s.Total++

	switch entry.Result {
	case ResultSuccess:
		s.SuccessCount++
	case ResultFailure:
		s.FailureCount++
	case ResultBlocked:
		s.BlockedCount++
	}

	if entry.BreakGlassUsed {
		s.BreakGlassCount++
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
