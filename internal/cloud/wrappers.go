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

package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// QuotaAwareGenerativeAIModel pairs a model name and its generation config
// with a client-side rate limiter. It is the llm.Capability used in
// production: every Evaluate waits for a token before calling Gemini.
type QuotaAwareGenerativeAIModel struct {
	GenerativeContentConfig *genai.GenerateContentConfig
	ModelName               string
	ModelHandle             *genai.Models
	RateLimit               *rate.Limiter

	inputTokenCounter  metric.Int64Counter
	outputTokenCounter metric.Int64Counter
}

// NewQuotaAwareModel allows requestsPerSecond calls per second with a burst
// of the same size. A non-positive rate disables limiting.
func NewQuotaAwareModel(wrapped *genai.GenerateContentConfig, name string, modelHandle *genai.Models, requestsPerSecond int) *QuotaAwareGenerativeAIModel {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = requestsPerSecond
	}
	meter := otel.Meter(cor.MeterScope)
	in, err := meter.Int64Counter("gemini.tokens.input")
	if err != nil {
		slog.Warn("failed to create token counter", "error", err)
	}
	out, err := meter.Int64Counter("gemini.tokens.output")
	if err != nil {
		slog.Warn("failed to create token counter", "error", err)
	}
	return &QuotaAwareGenerativeAIModel{
		GenerativeContentConfig: wrapped,
		ModelName:               name,
		ModelHandle:             modelHandle,
		RateLimit:               rate.NewLimiter(limit, burst),
		inputTokenCounter:       in,
		outputTokenCounter:      out,
	}
}

// GenerateContent waits for the limiter and makes a single call. Retries are
// the caller's business.
func (q *QuotaAwareGenerativeAIModel) GenerateContent(ctx context.Context, content []*genai.Content) (*genai.GenerateContentResponse, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return q.ModelHandle.GenerateContent(ctx, q.ModelName, content, q.GenerativeContentConfig)
}

// Evaluate implements llm.Capability: the prompt text followed by each image
// as an inline part, in order.
func (q *QuotaAwareGenerativeAIModel) Evaluate(ctx context.Context, req llm.Request) (string, error) {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	parts = append(parts, genai.NewPartFromText(req.Prompt))
	for _, img := range req.Images {
		parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := q.GenerateContent(ctx, contents)
	if err != nil {
		return "", err
	}
	if resp.UsageMetadata != nil {
		if q.inputTokenCounter != nil {
			q.inputTokenCounter.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		}
		if q.outputTokenCounter != nil {
			q.outputTokenCounter.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
		}
	}
	return ResponseText(resp)
}

// NewGenerateContentConfig builds the Gemini config for a configured model.
func NewGenerateContentConfig(values VertexAiLLMModel) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(values.Temperature),
		TopP:             genai.Ptr(values.TopP),
		TopK:             genai.Ptr(values.TopK),
		MaxOutputTokens:  values.MaxTokens,
		SafetySettings:   DefaultSafetySettings,
		ResponseMIMEType: values.OutputFormat,
	}
	if values.SystemInstructions != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: values.SystemInstructions}}}
	}
	return cfg
}
