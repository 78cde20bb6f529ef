package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"docket/internal/api"
	"docket/internal/logs"
	"docket/internal/logstream"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var component string
	var entryID int64
	var jobID string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			streamClient, err := logs.NewStreamClient(cfg.Paths.APIBind, cfg.API.Token)
			if err != nil {
				return err
			}
			logPath := filepath.Join(cfg.Paths.LogDir, "docket.log")

			printed, err := logstream.Stream(
				cmd.Context(),
				streamClient,
				logPath,
				logstream.Options{
					Lines:  lines,
					Follow: follow,
					Filters: logstream.Filters{
						Component: strings.TrimSpace(component),
						EntryID:   entryID,
						JobID:     strings.TrimSpace(jobID),
					},
				},
				func(evt api.LogEvent) {
					fmt.Fprintln(cmd.OutOrStdout(), formatLogEvent(evt))
				},
				func(line string) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				},
			)
			if err != nil {
				if errors.Is(err, logstream.ErrFiltersRequireAPI) {
					return fmt.Errorf("log filters need the daemon API; start the daemon with `docket start`")
				}
				return err
			}
			if !printed && !follow {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of lines to show (0 for all)")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from one component")
	cmd.Flags().Int64Var(&entryID, "entry", 0, "Only show events for one queue entry")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show events for one job")
	return cmd
}

func formatLogEvent(evt api.LogEvent) string {
	ts := formatLogTimestamp(evt.Timestamp)
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	line := strings.Join(parts, " ")
	if subject := composeSubject(evt.EntryID, evt.Stage); subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " – " + message
	}
	if len(evt.Details) == 0 {
		return line
	}
	builder := strings.Builder{}
	builder.WriteString(line)
	for _, detail := range evt.Details {
		if strings.TrimSpace(detail.Label) == "" || strings.TrimSpace(detail.Value) == "" {
			continue
		}
		builder.WriteString("\n    - ")
		builder.WriteString(detail.Label)
		builder.WriteString(": ")
		builder.WriteString(detail.Value)
	}
	return builder.String()
}

func formatLogTimestamp(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02 15:04:05")
		}
	}
	return value
}

func composeSubject(entryID int64, stage string) string {
	stage = strings.TrimSpace(stage)
	switch {
	case entryID > 0 && stage != "":
		return fmt.Sprintf("Entry #%d (%s)", entryID, stage)
	case entryID > 0:
		return fmt.Sprintf("Entry #%d", entryID)
	default:
		return stage
	}
}
