package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"docket/internal/api"
	"docket/internal/queue"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Run and inspect processing jobs",
	}

	processCmd.AddCommand(newProcessStartCommand(ctx))
	processCmd.AddCommand(newProcessStatusCommand(ctx))
	processCmd.AddCommand(newProcessListCommand(ctx))

	return processCmd
}

func newProcessStartCommand(ctx *commandContext) *cobra.Command {
	var contractID string
	var limit int
	var concurrency int
	var testMode bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a batch over queued entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.healthyClient(cmd.Context())
			if client == nil {
				return fmt.Errorf("daemon is not running; start it with `docket start`")
			}

			accepted, err := client.Process(cmd.Context(), api.ProcessRequest{
				ContractID:  strings.TrimSpace(contractID),
				Limit:       limit,
				Concurrency: concurrency,
				TestMode:    testMode,
			})
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, accepted)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Started job %s\n", accepted.JobID)
			fmt.Fprintf(out, "Track it with `docket process status %s`\n", accepted.JobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&contractID, "contract", "", "Only process entries for this contract")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap the number of entries in this batch")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Worker count override for this batch")
	cmd.Flags().BoolVar(&testMode, "test-mode", false, "Run a reduced validation batch")
	return cmd
}

func newProcessStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one job's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID := strings.TrimSpace(args[0])
			job, err := fetchJob(cmd, ctx, jobID)
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("no job found with id %s", jobID)
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, job)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job: %s\n", job.ID)
			fmt.Fprintf(out, "Type: %s\n", job.JobType)
			fmt.Fprintf(out, "Status: %s\n", formatStatusLabel(job.Status))
			fmt.Fprintf(out, "Running: %s\n", yesNo(job.Running))
			fmt.Fprintf(out, "Records processed: %d\n", job.RecordsProcessed)
			fmt.Fprintf(out, "Errors: %d\n", job.ErrorsCount)
			for _, detail := range job.ErrorDetails {
				fmt.Fprintf(out, "  - %s\n", detail)
			}
			if job.StartedAt != "" {
				fmt.Fprintf(out, "Started: %s\n", formatDisplayTime(job.StartedAt))
			}
			if job.CompletedAt != "" {
				fmt.Fprintf(out, "Completed: %s\n", formatDisplayTime(job.CompletedAt))
			}
			return nil
		},
	}
}

func newProcessListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := fetchJobs(cmd, ctx, limit)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, api.JobListResponse{Jobs: jobs})
			}
			if len(jobs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded")
				return nil
			}

			rows := make([][]string, 0, len(jobs))
			for _, job := range jobs {
				rows = append(rows, []string{
					job.ID,
					job.JobType,
					formatStatusLabel(job.Status),
					fmt.Sprintf("%d", job.RecordsProcessed),
					fmt.Sprintf("%d", job.ErrorsCount),
					formatDisplayTime(job.StartedAt),
				})
			}
			table := renderTable(
				[]string{"ID", "Type", "Status", "Processed", "Errors", "Started"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of jobs to list")
	return cmd
}

// fetchJob reads a job through the daemon API when it is up, or from the
// queue database directly. Job rows persist in SQLite, so offline reads see
// every finished batch.
func fetchJob(cmd *cobra.Command, ctx *commandContext, id string) (*api.Job, error) {
	if client := ctx.healthyClient(cmd.Context()); client != nil {
		return client.Job(cmd.Context(), id)
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	job, err := store.JobByID(cmd.Context(), id)
	if err != nil || job == nil {
		return nil, err
	}
	converted := api.FromJob(job)
	return &converted, nil
}

func fetchJobs(cmd *cobra.Command, ctx *commandContext, limit int) ([]api.Job, error) {
	if client := ctx.healthyClient(cmd.Context()); client != nil {
		return client.Jobs(cmd.Context(), limit)
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	jobs, err := store.ListJobs(cmd.Context(), limit)
	if err != nil {
		return nil, err
	}
	return api.FromJobs(jobs), nil
}
