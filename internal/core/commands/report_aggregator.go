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

package commands

import (
	goctx "context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
)

// ReportAggregator is the barrier between per-chunk scoring and whole-video
// synthesis. It runs only once the IndividualReport holds every chunk,
// failed ones included, and makes a single synthesis invocation for the
// video. Recommendations that cannot be anchored to a scored part of the
// video are dropped with a warning. A synthesis that never validates
// produces a FinalReport with status aggregation_failed; it is not recorded
// as a chain error, so the rest of the batch and the report writer proceed.
type ReportAggregator struct {
	cor.BaseCommand
	capability     llm.Capability
	promptTemplate *template.Template
	policy         llm.Policy
	retryCounter   metric.Int64Counter
	droppedCounter metric.Int64Counter
}

func NewReportAggregator(name string, capability llm.Capability, prompt *template.Template, policy llm.Policy) *ReportAggregator {
	out := &ReportAggregator{
		BaseCommand:    *cor.NewBaseCommand(name),
		capability:     capability,
		promptTemplate: prompt,
		policy:         policy,
	}
	out.retryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.retry", out.GetName()))
	out.droppedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.recommendation.dropped", out.GetName()))
	return out
}

// synthesisChunk is how a chunk evaluation is presented to the synthesis
// prompt. Failed chunks carry no scores.
type synthesisChunk struct {
	ChunkIndex int                                `json:"chunk_index"`
	Start      string                             `json:"start"`
	End        string                             `json:"end"`
	Status     model.EvaluationStatus             `json:"status"`
	Summary    string                             `json:"summary,omitempty"`
	Scores     map[model.Rubric]model.RubricEntry `json:"scores,omitempty"`
}

func (a *ReportAggregator) Execute(context cor.Context) {
	report := context.Get(a.GetInputParam()).(*model.IndividualReport)
	final := a.Aggregate(context.GetContext(), report)

	if final.Complete() {
		a.GetSuccessCounter().Add(context.GetContext(), 1)
	} else {
		a.GetErrorCounter().Add(context.GetContext(), 1)
	}
	context.Add(ParamFinalReport, final)
	context.Add(a.GetOutputParam(), final)
}

// Aggregate builds the FinalReport for a complete IndividualReport.
func (a *ReportAggregator) Aggregate(ctx goctx.Context, report *model.IndividualReport) *model.FinalReport {
	ctx, span := a.Tracer.Start(ctx, "synthesize_report")
	defer span.End()

	final := &model.FinalReport{
		VideoId:         report.VideoId,
		VideoName:       report.VideoName,
		GeneratedAt:     now(),
		Status:          model.ReportComplete,
		Recommendations: []model.Recommendation{},
		ScoredChunks:    []int{},
		CoverageGaps:    CoverageGaps(report.Chunks),
	}
	var scored []*model.RubricScore
	for _, ch := range report.Chunks {
		if ch.Scored() {
			final.ScoredChunks = append(final.ScoredChunks, ch.ChunkIndex)
			scored = append(scored, ch.Score)
		}
	}
	final.RubricAverages = RubricAverages(scored)
	span.SetAttributes(attribute.Int("chunks", len(report.Chunks)), attribute.Int("scored", len(scored)))

	if len(scored) == 0 {
		if len(report.Chunks) > 0 {
			final.Warnings = append(final.Warnings, "no chunk could be scored; synthesis skipped")
		}
		slog.Warn("synthesis skipped", "video", report.VideoName, "chunks", len(report.Chunks))
		return final
	}

	prompt, err := a.prompt(report)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		final.Status = model.ReportAggregationFailed
		final.FailureReason = fmt.Errorf("%w: %w", model.ErrAggregationFailed, err).Error()
		return final
	}

	policy := a.policy
	policy.OnRetry = func(ctx goctx.Context, last llm.Failure) {
		a.retryCounter.Add(ctx, 1)
		slog.Warn("retrying synthesis", "video", report.VideoName, "attempt", last.Attempt+1,
			"reason", last.Kind.String(), "error", last.Err)
		if a.policy.OnRetry != nil {
			a.policy.OnRetry(ctx, last)
		}
	}
	outcome := llm.Invoke(ctx, a.capability, llm.Request{Prompt: prompt}, model.ParseRecommendations, policy)
	final.Attempts = outcome.Attempts
	span.SetAttributes(attribute.Int("attempts", outcome.Attempts), attribute.String("outcome", outcome.Kind.String()))

	if !outcome.OK() {
		span.SetStatus(codes.Error, outcome.Err.Error())
		slog.Error("synthesis failed", "video", report.VideoName, "attempts", outcome.Attempts, "error", outcome.Err)
		final.Status = model.ReportAggregationFailed
		final.FailureReason = fmt.Errorf("%w: %w", model.ErrAggregationFailed, outcome.Err).Error()
		final.RawResponses = outcome.RawResponses()
		return final
	}

	coverage := model.NewTimeSpan(report.Chunks[0].Span.Start, report.Chunks[len(report.Chunks)-1].Span.End)
	for i, item := range outcome.Value {
		rec, reason, ok := item.Resolve()
		switch {
		case !ok:
		case !coverage.Contains(rec.Span):
			reason, ok = fmt.Sprintf("timestamp_range %s lies outside the video's chunks %s", rec.Span, coverage), false
		case insideGap(final.CoverageGaps, rec.Span):
			reason, ok = fmt.Sprintf("timestamp_range %s covers only chunks that could not be evaluated", rec.Span), false
		}
		if !ok {
			warning := fmt.Sprintf("recommendation %d dropped: %s", i+1, reason)
			final.Warnings = append(final.Warnings, warning)
			a.droppedCounter.Add(ctx, 1)
			slog.Warn(warning, "video", report.VideoName)
			continue
		}
		rec.Rank = len(final.Recommendations) + 1
		final.Recommendations = append(final.Recommendations, rec)
	}

	slog.Info("report synthesized", "video", report.VideoName, "recommendations", len(final.Recommendations),
		"dropped", len(outcome.Value)-len(final.Recommendations), "attempts", outcome.Attempts)
	return final
}

func (a *ReportAggregator) prompt(report *model.IndividualReport) (string, error) {
	chunks := make([]synthesisChunk, 0, len(report.Chunks))
	for _, ch := range report.Chunks {
		sc := synthesisChunk{
			ChunkIndex: ch.ChunkIndex,
			Start:      model.FormatTimestamp(ch.Span.Start),
			End:        model.FormatTimestamp(ch.Span.End),
			Status:     ch.Status,
		}
		if ch.Scored() {
			sc.Summary = ch.Score.Summary
			sc.Scores = ch.Score.Scores
		}
		chunks = append(chunks, sc)
	}
	body, err := json.MarshalIndent(chunks, "", "  ")
	if err != nil {
		return "", err
	}

	names := make([]string, 0, len(model.Rubrics))
	for _, r := range model.Rubrics {
		names = append(names, string(r))
	}
	return renderPrompt(a.promptTemplate, map[string]any{
		"VIDEO_NAME":   report.VideoName,
		"VIDEO_START":  model.FormatTimestamp(report.Chunks[0].Span.Start),
		"VIDEO_END":    model.FormatTimestamp(report.Chunks[len(report.Chunks)-1].Span.End),
		"CHUNKS":       string(body),
		"RUBRIC_NAMES": strings.Join(names, ", "),
		"EXAMPLE_JSON": model.ExampleJSON(model.GetExampleRecommendations()),
	})
}

// CoverageGaps merges the spans of adjacent failed chunks.
func CoverageGaps(chunks []*model.ChunkEvaluation) []model.TimeSpan {
	gaps := []model.TimeSpan{}
	for _, ch := range chunks {
		if ch.Scored() {
			continue
		}
		if n := len(gaps); n > 0 && gaps[n-1].End == ch.Span.Start {
			gaps[n-1].End = ch.Span.End
			continue
		}
		gaps = append(gaps, ch.Span)
	}
	return gaps
}

// RubricAverages is the mean score of each rubric over the scored chunks.
func RubricAverages(scores []*model.RubricScore) map[model.Rubric]float64 {
	if len(scores) == 0 {
		return nil
	}
	out := make(map[model.Rubric]float64, len(model.Rubrics))
	for _, r := range model.Rubrics {
		total := 0
		for _, s := range scores {
			total += s.Scores[r].Score
		}
		out[r] = float64(total) / float64(len(scores))
	}
	return out
}

func insideGap(gaps []model.TimeSpan, span model.TimeSpan) bool {
	for _, g := range gaps {
		if g.Contains(span) {
			return true
		}
	}
	return false
}
