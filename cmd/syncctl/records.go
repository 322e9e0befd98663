package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"academic-sync-service/internal/app"
	"academic-sync-service/internal/service"
)

func LogsCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <batch-id>",
		Short: "Show the per-page ingestion logs of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := batchIDArg(args)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, a *app.App) error {
				logs, err := a.Records.IngestionLogs(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to list ingestion logs: %w", err)
				}

				w := cmd.OutOrStdout()
				if len(logs) == 0 {
					_, err := fmt.Fprintln(w, "No ingestion logs found.")
					return err
				}
				fmt.Fprintln(w, "PAGE\tSTATUS\tSAVED\tFAILED\tERROR")
				for _, l := range logs {
					fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%s\n", l.Page, l.Status, l.SavedCount, l.FailedCount, l.ErrorMessage)
				}
				return nil
			})
		},
	}
}

func SyllabusCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "syllabus <source> <course-id>",
		Short: "Print a standardized syllabus record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.App) error {
				s, err := a.Records.Syllabus(ctx, args[0], args[1])
				if err != nil {
					return fmt.Errorf("failed to get syllabus: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), s)
			})
		},
	}
}

func TranscriptCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcript",
		Short: "Submit and inspect student transcripts",
	}
	cmd.AddCommand(transcriptSubmitCmd(run), transcriptGetCmd(run))
	return cmd
}

func transcriptSubmitCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Store a raw transcript and enqueue it for processing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			src, _ := cmd.Flags().GetString("source")
			student, _ := cmd.Flags().GetString("student")
			path, _ := cmd.Flags().GetString("file")

			data, err := readInput(cmd, path)
			if err != nil {
				return err
			}

			return run(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Transcripts.Submit(ctx, service.TranscriptSubmit{
					SourceCode: src,
					StudentID:  student,
					Data:       json.RawMessage(data),
				})
				if err != nil {
					return fmt.Errorf("failed to submit transcript: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().String("source", "", "institution code (CHULA, KMITL)")
	cmd.Flags().String("student", "", "student id")
	cmd.Flags().String("file", "-", "transcript JSON file, - for stdin")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("student")
	return cmd
}

func transcriptGetCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "get <submission-id>",
		Short: "Show a submission and its processed courses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, a *app.App) error {
				d, err := a.Transcripts.Get(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to get transcript: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), d)
			})
		},
	}
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}
