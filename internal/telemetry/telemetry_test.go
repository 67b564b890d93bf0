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

package telemetry_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestLogHandlerCloudLoggingFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(telemetry.NewLogHandler(&buf, slog.LevelInfo))

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	logger.With("video", "lecture").WarnContext(ctx, "chunk failed", "chunk", 3)
	logger.Debug("hidden")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARNING", record["severity"])
	assert.Equal(t, "chunk failed", record["message"])
	assert.Contains(t, record, "timestamp")
	assert.Equal(t, "lecture", record["video"])
	assert.Equal(t, float64(3), record["chunk"])
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f10", record["logging.googleapis.com/trace"])
	assert.Equal(t, true, record["logging.googleapis.com/trace_sampled"])
	assert.NotContains(t, buf.String(), "hidden")
}

func TestParseLevel(t *testing.T) {
	level, err := telemetry.ParseLevel("debug")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = telemetry.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)

	_, err = telemetry.ParseLevel("loud")
	assert.Error(t, err)
}

func TestSetupLoggingWritesFile(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	path := filepath.Join(t.TempDir(), "evaluator.log")
	closeLog, err := telemetry.SetupLogging(cloud.Telemetry{LogFile: path, LogLevel: "info"})
	require.NoError(t, err)
	slog.Info("batch finished", "videos", 2)
	require.NoError(t, closeLog())
	assert.FileExists(t, path)

	_, err = telemetry.SetupLogging(cloud.Telemetry{LogLevel: "verbose"})
	assert.Error(t, err)
}

func TestSetupOpenTelemetryExporters(t *testing.T) {
	config := cloud.NewConfig()
	shutdown, err := telemetry.SetupOpenTelemetry(context.Background(), config)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	config.Telemetry.Exporter = "zipkin"
	_, err = telemetry.SetupOpenTelemetry(context.Background(), config)
	assert.Error(t, err)
}
