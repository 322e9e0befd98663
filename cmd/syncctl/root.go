package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"academic-sync-service/internal/app"
	"academic-sync-service/internal/config"
	"academic-sync-service/internal/logger"
)

// appOpener builds the application for one command run; the returned func releases it.
type appOpener func(ctx context.Context, configPath string) (*app.App, func(), error)

func openApp(ctx context.Context, configPath string) (*app.App, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	// CLI пишет логи в stderr, результат в stdout
	cfg.Log.Environment = "local"
	log := app.InitLogger(cfg.Log, "syncctl")
	log.Entry.Logger.SetOutput(os.Stderr)

	a, err := app.New(log.WithContext(ctx), cfg)
	if err != nil {
		return nil, nil, err
	}
	return a, func() {
		a.Close()
		_ = logger.Sync()
	}, nil
}

func NewRootCmd(open appOpener) *cobra.Command {
	root := &cobra.Command{
		Use:          "syncctl",
		Short:        "Coordinate and inspect academic syllabus and transcript syncs",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "path to config file (default ./configs/config.yaml)")

	var withApp runner = func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
		path, _ := cmd.Flags().GetString("config")
		a, closeFn, err := open(cmd.Context(), path)
		if err != nil {
			return err
		}
		defer closeFn()
		return fn(cmd.Context(), a)
	}

	root.AddCommand(
		CoordinateCmd(withApp),
		EnqueueCmd(withApp),
		StatusCmd(withApp),
		JobsCmd(withApp),
		RetryCmd(withApp),
		RunCmd(withApp),
		LogsCmd(withApp),
		SyllabusCmd(withApp),
		TranscriptCmd(withApp),
	)
	return root
}

type runner func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
