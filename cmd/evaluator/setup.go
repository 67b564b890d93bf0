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

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/bigquery"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/workflow"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/telemetry"
)

// options are the flags shared by every subcommand.
type options struct {
	configPrefix string
	runtime      string
	inputDir     string
	outputDir    string
	logFile      string
	logLevel     string
}

// App is what a subcommand runs with. Close releases it in reverse order.
type App struct {
	config   *cloud.Config
	clients  *cloud.ServiceClients
	shutdown func(context.Context) error
	closeLog func() error
}

// GetConfig applies the layered TOML files on top of the defaults, then the
// command line overrides.
func GetConfig(opts *options) (*cloud.Config, error) {
	if opts.configPrefix != "" {
		if err := os.Setenv(cloud.EnvConfigFilePrefix, opts.configPrefix); err != nil {
			return nil, err
		}
	}
	if opts.runtime != "" {
		if err := os.Setenv(cloud.EnvConfigRuntime, opts.runtime); err != nil {
			return nil, err
		}
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if opts.inputDir != "" || opts.outputDir != "" {
		if opts.inputDir == "" || opts.outputDir == "" {
			return nil, errors.New("--input and --output must be given together")
		}
		config.IOPairs = []cloud.IOPair{{InputDir: opts.inputDir, OutputDir: opts.outputDir}}
	}
	if opts.logFile != "" {
		config.Telemetry.LogFile = opts.logFile
	}
	if opts.logLevel != "" {
		config.Telemetry.LogLevel = opts.logLevel
	}
	return config, nil
}

// InitApp loads the configuration and starts logging and telemetry. The
// Google clients are only created when withClients is set.
func InitApp(ctx context.Context, opts *options, withClients bool) (*App, error) {
	config, err := GetConfig(opts)
	if err != nil {
		return nil, err
	}
	app := &App{config: config}

	if app.closeLog, err = telemetry.SetupLogging(config.Telemetry); err != nil {
		return nil, err
	}
	slog.Info("logging initialized", "level", config.Telemetry.LogLevel)

	if app.shutdown, err = telemetry.SetupOpenTelemetry(ctx, config); err != nil {
		app.Close(ctx)
		return nil, err
	}

	if !withClients {
		return app, nil
	}
	if err := config.Validate(); err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if app.clients, err = cloud.NewCloudServiceClients(ctx, config); err != nil {
		app.Close(ctx)
		return nil, err
	}
	slog.Info("cloud clients initialized", "backend", config.Application.Backend)
	return app, nil
}

func (a *App) Dependencies() (*workflow.Dependencies, error) {
	return workflow.NewDependencies(a.config, a.clients)
}

// OutputDirs lists the output directory of every io pair.
func (a *App) OutputDirs() []string {
	out := make([]string, 0, len(a.config.IOPairs))
	for _, p := range a.config.IOPairs {
		out = append(out, p.OutputDir)
	}
	return out
}

func (a *App) Close(ctx context.Context) {
	if a.clients != nil {
		if err := a.clients.Close(); err != nil {
			slog.Warn("closing cloud clients", "error", err)
		}
	}
	if a.shutdown != nil {
		if err := a.shutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// newBigQueryClient is used by serve, which needs no GenAI client.
func newBigQueryClient(ctx context.Context, projectId string) (*bigquery.Client, error) {
	client, err := bigquery.NewClient(ctx, projectId)
	if err != nil {
		return nil, fmt.Errorf("error creating bigquery client: %w", err)
	}
	return client, nil
}
