package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"docket/internal/api"
)

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	keys := make([]string, 0, len(stats))
	for key := range stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{formatStatusLabel(key), fmt.Sprintf("%d", stats[key])})
	}
	return rows
}

func buildQueueListRows(entries []api.Entry) [][]string {
	if len(entries) == 0 {
		return nil
	}
	sorted := make([]api.Entry, len(entries))
	copy(sorted, entries)

	sort.Slice(sorted, func(i, j int) bool {
		ti := parseQueueTime(sorted[i].CreatedAt)
		tj := parseQueueTime(sorted[j].CreatedAt)
		if ti.Equal(tj) {
			return sorted[i].ID > sorted[j].ID
		}
		return ti.After(tj)
	})

	rows := make([][]string, 0, len(sorted))
	for _, entry := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", entry.ID),
			entry.ContractID,
			documentLabel(entry),
			formatStatusLabel(entry.Status),
			fmt.Sprintf("%d/%d", entry.RetryCount, entry.MaxRetries),
			formatDisplayTime(entry.CreatedAt),
		})
	}
	return rows
}

// documentLabel picks the most readable name for an entry's source document.
func documentLabel(entry api.Entry) string {
	if name := strings.TrimSpace(entry.Filename); name != "" {
		return name
	}
	if local := strings.TrimSpace(entry.LocalPath); local != "" {
		return filepath.Base(local)
	}
	return truncateLabel(strings.TrimSpace(entry.DocumentURL), 48)
}

func truncateLabel(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatDisplayTime(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if t := parseQueueTime(value); !t.IsZero() {
		return t.UTC().Format("2006-01-02 15:04")
	}
	return value
}

func parseQueueTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}
