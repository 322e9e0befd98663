package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"academic-sync-service/internal/app"
	"academic-sync-service/internal/entity"
)

func syncRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("source", "", "institution code (CHULA, KMITL)")
	cmd.Flags().String("year", "", "academic year, e.g. 2567 (empty = all)")
	cmd.Flags().String("term", "", "term, e.g. 1 (empty = all)")
	_ = cmd.MarkFlagRequired("source")
}

func syncRequestFrom(cmd *cobra.Command) entity.SyncRequest {
	src, _ := cmd.Flags().GetString("source")
	year, _ := cmd.Flags().GetString("year")
	term, _ := cmd.Flags().GetString("term")
	return entity.SyncRequest{SourceCode: src, Year: year, Term: term}
}

func batchIDArg(args []string) (uuid.UUID, error) {
	id, err := uuid.Parse(args[0])
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid batch id %q: %w", args[0], err)
	}
	return id, nil
}

func CoordinateCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coordinate",
		Short: "Create the page jobs for a sync (once per source/year/term per day)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Coordinator.Coordinate(ctx, syncRequestFrom(cmd))
				if err != nil {
					return fmt.Errorf("failed to coordinate: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	syncRequestFlags(cmd)
	return cmd
}

func EnqueueCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record a sync as a COORDINATE_SYNC job for the workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(ctx context.Context, a *app.App) error {
				id, err := a.JobService.Enqueue(ctx, syncRequestFrom(cmd))
				if err != nil {
					return fmt.Errorf("failed to enqueue: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
				return err
			})
		},
	}
	syncRequestFlags(cmd)
	return cmd
}

func StatusCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show batch progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := batchIDArg(args)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app.App) error {
				st, err := a.JobService.BatchStatus(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to get status: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), st)
			})
		},
	}
}

func JobsCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs <batch-id>",
		Short: "List the jobs of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := batchIDArg(args)
			if err != nil {
				return err
			}
			var status *entity.JobStatus
			if s, _ := cmd.Flags().GetString("status"); s != "" {
				st := entity.JobStatus(strings.ToUpper(s))
				status = &st
			}

			return run(cmd, func(ctx context.Context, a *app.App) error {
				jobs, err := a.JobService.ListJobs(ctx, id, status)
				if err != nil {
					return fmt.Errorf("failed to list jobs: %w", err)
				}

				w := cmd.OutOrStdout()
				if len(jobs) == 0 {
					_, err := fmt.Fprintln(w, "No jobs found.")
					return err
				}
				fmt.Fprintln(w, "ID\tSTATUS\tATTEMPTS\tERROR")
				for _, j := range jobs {
					msg := ""
					if j.ErrorMessage != nil {
						msg = *j.ErrorMessage
					}
					fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\n", j.ID, j.Status, j.Attempts, j.MaxAttempts, msg)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("status", "", "filter by status (pending, processing, completed, failed)")
	return cmd
}

func RetryCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <batch-id>",
		Short: "Reset the FAILED jobs of a batch to PENDING",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := batchIDArg(args)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.JobService.RetryFailedJobs(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to retry: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d jobs reset to PENDING\n", n)
				return err
			})
		},
	}
}

// RunCmd coordinates a sync and drains it in this process. With store.driver=memory it is
// the only way the in-memory store is useful.
func RunCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Coordinate a sync and process its batch in-process until done",
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")

			return run(cmd, func(ctx context.Context, a *app.App) error {
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()

				res, err := a.Coordinator.Coordinate(ctx, syncRequestFrom(cmd))
				if err != nil {
					return fmt.Errorf("failed to coordinate: %w", err)
				}
				if res.TotalJobs == 0 {
					return printJSON(cmd.OutOrStdout(), res)
				}

				poller := a.Poller()
				interval := a.Config.Worker.PollInterval
				for {
					st, err := a.JobService.BatchStatus(ctx, res.BatchID)
					if err != nil {
						return err
					}
					if st.IsComplete {
						return printJSON(cmd.OutOrStdout(), st)
					}
					if cycle := poller.RunCycle(ctx); cycle.Found > 0 {
						continue
					}
					// остались только задачи с отложенным повтором
					select {
					case <-ctx.Done():
						return fmt.Errorf("batch %s not finished: %w", res.BatchID, ctx.Err())
					case <-time.After(interval):
					}
				}
			})
		},
	}
	syncRequestFlags(cmd)
	cmd.Flags().Duration("timeout", 30*time.Minute, "give up waiting after this long")
	return cmd
}
