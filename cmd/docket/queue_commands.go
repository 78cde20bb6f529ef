package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"docket/internal/api"
	"docket/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the document queue",
	}

	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueReclaimCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueStatsResponse{Counts: stats})
				}
				rows := buildQueueStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				entries, err := access.List(cmd.Context(), listStatuses)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueListResponse{Entries: entries})
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Contract", "Document", "Status", "Retries", "Created"},
					buildQueueListRows(entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by queue status (repeatable)")
	return cmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var filename string

	cmd := &cobra.Command{
		Use:   "add <contract-id> <url-or-path>",
		Short: "Enqueue a contract document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := api.EnqueueRequest{
				ContractID: strings.TrimSpace(args[0]),
				Filename:   strings.TrimSpace(filename),
			}
			source := strings.TrimSpace(args[1])
			if strings.Contains(source, "://") {
				req.DocumentURL = source
			} else {
				absolute, err := filepath.Abs(source)
				if err != nil {
					return fmt.Errorf("resolve document path: %w", err)
				}
				req.LocalPath = absolute
			}

			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				entry, err := access.Add(cmd.Context(), req)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.EntryResponse{Entry: entry})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued entry %d (%s)\n", entry.ID, entry.Filename)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&filename, "filename", "", "Override the stored document filename")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Reset failed entries for another attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
				if err != nil {
					return fmt.Errorf("invalid entry id %q", arg)
				}
				ids = append(ids, id)
			}

			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				var updated int64
				var err error
				if len(ids) == 0 {
					updated, err = access.RetryAll(cmd.Context())
				} else {
					updated, err = access.Retry(cmd.Context(), ids)
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.ActionResponse{Updated: updated})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed entries for retry\n", updated)
				return nil
			})
		},
	}
}

func newQueueReclaimCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim",
		Short: "Requeue entries stuck in processing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				updated, err := access.Reclaim(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.ActionResponse{Updated: updated})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d stale processing entries\n", updated)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearStatus string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove queue entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := strings.TrimSpace(clearStatus)
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				var removed int64
				var err error
				if status == "" {
					removed, err = access.ClearAll(cmd.Context())
				} else {
					removed, err = access.ClearStatus(cmd.Context(), status)
				}
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.ActionResponse{Updated: removed})
				}
				if status == "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d queue entries\n", removed)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s entries\n", removed, status)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&clearStatus, "status", "", "Remove only entries with this status")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(access queueaccess.Access) error {
				health, err := access.Health(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, health)
				}
				out := cmd.OutOrStdout()
				db := health.Database
				fmt.Fprintf(out, "Database path: %s\n", db.Path)
				fmt.Fprintf(out, "Database exists: %s\n", yesNo(db.DatabaseExists))
				fmt.Fprintf(out, "Readable: %s\n", yesNo(db.DatabaseReadable))
				fmt.Fprintf(out, "Schema version: %s\n", db.SchemaVersion)
				fmt.Fprintf(out, "entries table present: %s\n", yesNo(db.TableExists))
				if len(db.ColumnsPresent) > 0 {
					cols := append([]string(nil), db.ColumnsPresent...)
					sort.Strings(cols)
					fmt.Fprintf(out, "Columns: %s\n", strings.Join(cols, ", "))
				}
				if len(db.MissingColumns) > 0 {
					missing := append([]string(nil), db.MissingColumns...)
					sort.Strings(missing)
					fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(missing, ", "))
				} else {
					fmt.Fprintln(out, "Missing columns: none")
				}
				fmt.Fprintf(out, "Integrity check: %s\n", yesNo(db.IntegrityCheck))
				if db.Error != "" {
					fmt.Fprintf(out, "Error: %s\n", db.Error)
				}
				fmt.Fprintf(out, "Entries: %d total (%d queued, %d processing, %d completed, %d failed)\n",
					health.Total, health.Queued, health.Processing, health.Completed, health.Failed)
				return nil
			})
		},
	}
}
