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

// Package cloud holds configuration and the Google Cloud service clients used
// by the evaluation pipeline. This file defines the configuration structure;
// it maps one-to-one onto the layered TOML files read by LoadConfig.
package cloud

import (
	"time"

	"google.golang.org/genai"
)

// DefaultSafetySettings turns off blocking for the harm categories. Lecture
// content about medicine, history, or chemistry otherwise trips the filters.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

const (
	BackendVertex = "vertex"
	BackendGemini = "gemini"
)

// Application holds project-wide settings.
type Application struct {
	Name            string `toml:"name"`
	GoogleProjectId string `toml:"google_project_id"`
	GoogleLocation  string `toml:"location"`
	Backend         string `toml:"backend"`          // "vertex" or "gemini"
	APIKey          string `toml:"api_key"`          // gemini backend only
	ThreadPoolSize  int    `toml:"thread_pool_size"` // concurrent chunk evaluations per video
	VideoWorkers    int    `toml:"video_workers"`    // concurrent videos per batch
	AgentModel      string `toml:"agent_model"`      // key into AgentModels for scoring and synthesis
	LogoAgentModel  string `toml:"logo_agent_model"` // key into AgentModels for logo detection
}

// Pipeline tunes frame sampling and keyframe selection.
type Pipeline struct {
	MaxFramesPerChunk int     `toml:"max_frames_per_chunk"`
	CandidatePoolSize int     `toml:"candidate_pool_size"`
	FrameWidth        int     `toml:"frame_width"`
	JPEGQuality       int     `toml:"jpeg_quality"`
	TrailingSlackMs   int     `toml:"trailing_slack_ms"`
	FFmpegPath        string  `toml:"ffmpeg_path"`
	FFprobePath       string  `toml:"ffprobe_path"`
	HistogramBins     int     `toml:"histogram_bins"`
	HistogramWeight   float64 `toml:"histogram_weight"`
	LuvWeight         float64 `toml:"luv_weight"`
	DistinctThreshold float64 `toml:"distinct_threshold"`
	WriteKeyframes    bool    `toml:"write_keyframes"`
}

// TrailingSlack is the tolerance for chunks that end past the video's duration.
func (p Pipeline) TrailingSlack() time.Duration {
	return time.Duration(p.TrailingSlackMs) * time.Millisecond
}

// LLM bounds every model invocation.
type LLM struct {
	RetryBudget             int `toml:"retry_budget"`
	TimeoutSeconds          int `toml:"timeout_seconds"`
	SynthesisTimeoutSeconds int `toml:"synthesis_timeout_seconds"`
	BackoffMs               int `toml:"backoff_ms"`
}

func (l LLM) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

func (l LLM) SynthesisTimeout() time.Duration {
	return time.Duration(l.SynthesisTimeoutSeconds) * time.Second
}

func (l LLM) Backoff() time.Duration {
	return time.Duration(l.BackoffMs) * time.Millisecond
}

// IOPair maps a directory (or gs:// prefix) of videos and transcripts to the
// directory where their reports are written.
type IOPair struct {
	InputDir  string `toml:"input_dir"`
	OutputDir string `toml:"output_dir"`
}

// Storage configures optional report copies in Cloud Storage.
type Storage struct {
	ReportBucket string `toml:"report_bucket"`
	ReportPrefix string `toml:"report_prefix"`
}

// BigQueryDataSource configures optional report rows in BigQuery.
type BigQueryDataSource struct {
	DatasetName         string `toml:"dataset"`
	ScoreTable          string `toml:"score_table"`
	RecommendationTable string `toml:"recommendation_table"`
}

// PromptTemplates are text/template sources. Empty values fall back to the
// built-in prompts.
type PromptTemplates struct {
	RubricPrompt    string `toml:"rubric"`
	SynthesisPrompt string `toml:"synthesis"`
	LogoPrompt      string `toml:"logo"`
}

// VertexAiLLMModel configures one generative model.
type VertexAiLLMModel struct {
	Model              string  `toml:"model"`
	SystemInstructions string  `toml:"system_instructions"`
	Temperature        float32 `toml:"temperature"`
	TopP               float32 `toml:"top_p"`
	TopK               float32 `toml:"top_k"`
	MaxTokens          int32   `toml:"max_tokens"`
	OutputFormat       string  `toml:"output_format"`
	RateLimit          int     `toml:"rate_limit"` // requests per second, burst of the same size
}

// Logo configures the logo detection workflow. ReferenceImage and
// ReferenceImages name variants of the same brand mark; all are sent with
// every request.
type Logo struct {
	ReferenceImage  string   `toml:"reference_image"`
	ReferenceImages []string `toml:"reference_images"`
	ReportSuffix    string   `toml:"report_suffix"`
}

// Telemetry configures logging and OpenTelemetry export.
type Telemetry struct {
	Exporter string `toml:"exporter"` // "none" or "gcp"
	LogFile  string `toml:"log_file"`
	LogLevel string `toml:"log_level"`
}

// Server configures the read-only report API.
type Server struct {
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

type Config struct {
	Application        Application                 `toml:"application"`
	Pipeline           Pipeline                    `toml:"pipeline"`
	LLM                LLM                         `toml:"llm"`
	IOPairs            []IOPair                    `toml:"io_pairs"`
	Storage            Storage                     `toml:"storage"`
	BigQueryDataSource BigQueryDataSource          `toml:"big_query_data_source"`
	PromptTemplates    PromptTemplates             `toml:"prompt_templates"`
	AgentModels        map[string]VertexAiLLMModel `toml:"agent_models"`
	Logo               Logo                        `toml:"logo"`
	Telemetry          Telemetry                   `toml:"telemetry"`
	Server             Server                      `toml:"server"`
}

// DefaultAgentModel is the AgentModels key used when none is configured.
const DefaultAgentModel = "evaluator"

// NewConfig returns a configuration with every default filled in, so a run
// without any TOML file is still valid apart from the project settings.
func NewConfig() *Config {
	return &Config{
		Application: Application{
			Name:           "gemini-video-evaluation",
			GoogleLocation: "us-central1",
			Backend:        BackendVertex,
			ThreadPoolSize: 5,
			VideoWorkers:   1,
			AgentModel:     DefaultAgentModel,
			LogoAgentModel: DefaultAgentModel,
		},
		Pipeline: Pipeline{
			MaxFramesPerChunk: 5,
			CandidatePoolSize: 24,
			FrameWidth:        640,
			JPEGQuality:       85,
			TrailingSlackMs:   500,
			FFmpegPath:        "ffmpeg",
			FFprobePath:       "ffprobe",
			HistogramBins:     8,
			HistogramWeight:   0.5,
			LuvWeight:         0.5,
			DistinctThreshold: 0.08,
		},
		LLM: LLM{
			RetryBudget:             3,
			TimeoutSeconds:          120,
			SynthesisTimeoutSeconds: 300,
			BackoffMs:               2000,
		},
		AgentModels: map[string]VertexAiLLMModel{
			DefaultAgentModel: {
				Model:        "gemini-2.0-flash",
				Temperature:  0.2,
				TopP:         0.95,
				TopK:         40,
				MaxTokens:    8192,
				OutputFormat: "application/json",
				RateLimit:    5,
			},
		},
		Logo: Logo{
			ReportSuffix: "_logo_results.json",
		},
		Telemetry: Telemetry{
			Exporter: "none",
			LogLevel: "info",
		},
		Server: Server{
			Port: 8080,
		},
	}
}
