// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command evaluator scores educational videos against multimedia-learning
// rubrics with Gemini and writes timestamped improvement reports.
//
// Subcommands:
//   - run:   evaluate every video/transcript pair of the configured io pairs
//   - logos: check every chunk's keyframes for the reference logo
//   - serve: serve the written reports over HTTP
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/api"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/services"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "evaluator",
		Short:         "Evaluate educational videos against multimedia-learning rubrics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPrefix, "config", "configs", "directory holding .env.toml and .env.<runtime>.toml")
	flags.StringVar(&opts.runtime, "runtime", "", "runtime configuration to layer on top of .env.toml (default local)")
	flags.StringVar(&opts.logFile, "log-file", "", "also write logs to this file")
	flags.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(newBatchCommand(opts, "run", "Evaluate every video and write the reports",
		func(ctx context.Context, deps *workflow.Dependencies) (cor.Executable, error) {
			return workflow.NewVideoEvaluationWorkflow(deps)
		}))
	root.AddCommand(newBatchCommand(opts, "logos", "Detect the reference logo in every chunk",
		func(ctx context.Context, deps *workflow.Dependencies) (cor.Executable, error) {
			return workflow.NewLogoDetectionWorkflow(ctx, deps)
		}))
	root.AddCommand(newServeCommand(opts))
	return root
}

type workflowFactory func(ctx context.Context, deps *workflow.Dependencies) (cor.Executable, error)

func newBatchCommand(opts *options, use, short string, factory workflowFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := InitApp(ctx, opts, true)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			return runBatch(ctx, app, factory)
		},
	}
	cmd.Flags().StringVar(&opts.inputDir, "input", "", "directory or gs:// prefix of videos and transcripts")
	cmd.Flags().StringVar(&opts.outputDir, "output", "", "directory the reports are written to")
	return cmd
}

func runBatch(ctx context.Context, app *App, factory workflowFactory) error {
	if len(app.config.IOPairs) == 0 {
		return errors.New("no io_pairs configured and no --input/--output given")
	}
	deps, err := app.Dependencies()
	if err != nil {
		return err
	}
	wf, err := factory(ctx, deps)
	if err != nil {
		return err
	}
	jobs, err := workflow.DiscoverJobs(ctx, app.config.IOPairs, app.clients.StorageClient)
	if err != nil {
		return err
	}

	summary := workflow.NewBatchRunner(wf, app.config.Application.VideoWorkers).Run(ctx, jobs)
	for _, dir := range app.OutputDirs() {
		if p, err := summary.WriteSummary(dir); err != nil {
			slog.Warn("writing run summary", "dir", dir, "error", err)
		} else {
			slog.Info("run summary written", "path", p)
		}
	}

	if ctx.Err() != nil {
		return fmt.Errorf("batch interrupted: %d of %d videos skipped", summary.Count(workflow.VideoSkipped), len(jobs))
	}
	if failed := summary.Count(workflow.VideoFailed); failed > 0 {
		return fmt.Errorf("%d of %d videos failed", failed, len(jobs))
	}
	return nil
}

func newServeCommand(opts *options) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the written reports over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := InitApp(ctx, opts, false)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			if port == 0 {
				port = app.config.Server.Port
			}
			return serve(ctx, app, port)
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (default server.port)")
	return cmd
}

func serve(ctx context.Context, app *App, port int) error {
	config := app.config
	stats := &services.StatsService{
		DatasetName: config.BigQueryDataSource.DatasetName,
		ScoreTable:  config.BigQueryDataSource.ScoreTable,
	}
	if config.BigQueryDataSource.DatasetName != "" {
		clients, err := newBigQueryClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			return err
		}
		defer clients.Close()
		stats.BigqueryClient = clients
	}
	reports := services.NewReportService(app.OutputDirs(), config.Logo.ReportSuffix)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: api.NewRouter(config.Application.Name, config.Server.AllowedOrigins, reports, stats),
	}
	errs := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()
	slog.Info("server ready", "port", port)

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
