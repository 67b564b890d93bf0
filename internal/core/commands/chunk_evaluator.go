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
	"fmt"
	"log/slog"
	"sync"
	"text/template"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ChunkEvaluator scores every chunk of a video against the rubric set with a
// pool of workers. Each chunk is an independent LLM invocation with its own
// retry budget; a chunk that never yields a valid score is recorded as
// evaluation_failed and the remaining chunks carry on. The output is the
// IndividualReport with one entry per chunk in index order.
type ChunkEvaluator struct {
	cor.BaseCommand
	capability      llm.Capability
	promptTemplate  *template.Template
	numberOfWorkers int
	policy          llm.Policy
	retryCounter    metric.Int64Counter
	failedCounter   metric.Int64Counter
}

func NewChunkEvaluator(name string, capability llm.Capability, prompt *template.Template, numberOfWorkers int, policy llm.Policy) *ChunkEvaluator {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	out := &ChunkEvaluator{
		BaseCommand:     *cor.NewBaseCommand(name),
		capability:      capability,
		promptTemplate:  prompt,
		numberOfWorkers: numberOfWorkers,
		policy:          policy,
	}
	out.retryCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.gemini.retry", out.GetName()))
	out.failedCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.chunk.failed", out.GetName()))
	return out
}

func (e *ChunkEvaluator) IsExecutable(context cor.Context) bool {
	return e.BaseCommand.IsExecutable(context) && context.Get(ParamJob) != nil
}

type chunkJob struct {
	chunk  *model.Chunk
	prompt string
}

func (e *ChunkEvaluator) Execute(context cor.Context) {
	job := context.Get(ParamJob).(*model.VideoJob)
	chunks := context.Get(e.GetInputParam()).([]*model.Chunk)
	ctx := context.GetContext()

	jobs := make(chan chunkJob, len(chunks))
	results := make(chan *model.ChunkEvaluation, len(chunks))
	var wg sync.WaitGroup
	for w := 0; w < min(e.numberOfWorkers, max(len(chunks), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- e.evaluate(ctx, job, j)
			}
		}()
	}

	for _, chunk := range chunks {
		prompt, err := renderPrompt(e.promptTemplate, map[string]any{
			"CHUNK_INDEX":  chunk.Index,
			"START":        model.FormatTimestamp(chunk.Span.Start),
			"END":          model.FormatTimestamp(chunk.Span.End),
			"TRANSCRIPT":   chunk.Text,
			"FRAME_COUNT":  len(chunk.Keyframes),
			"RUBRICS":      rubricPromptEntries(),
			"EXAMPLE_JSON": model.ExampleJSON(model.GetExampleRubricScore()),
		})
		if err != nil {
			results <- failedEvaluation(chunk, 0, err.Error(), nil)
			continue
		}
		jobs <- chunkJob{chunk: chunk, prompt: prompt}
	}
	close(jobs)
	wg.Wait()
	close(results)

	position := make(map[int]int, len(chunks))
	for i, chunk := range chunks {
		position[chunk.Index] = i
	}
	evaluations := make([]*model.ChunkEvaluation, len(chunks))
	for r := range results {
		evaluations[position[r.ChunkIndex]] = r
	}

	failed := 0
	for _, ev := range evaluations {
		if !ev.Scored() {
			failed++
		}
	}
	if failed > 0 {
		e.failedCounter.Add(ctx, int64(failed))
	}
	if failed < len(evaluations) || len(evaluations) == 0 {
		e.GetSuccessCounter().Add(ctx, 1)
	} else {
		e.GetErrorCounter().Add(ctx, 1)
	}
	slog.Info("chunk evaluation finished", "video", job.Name, "chunks", len(evaluations), "failed", failed)

	report := &model.IndividualReport{
		VideoId:     job.Id,
		VideoName:   job.Name,
		GeneratedAt: now(),
		Chunks:      evaluations,
	}
	context.Add(ParamIndividualReport, report)
	context.Add(e.GetOutputParam(), report)
}

func (e *ChunkEvaluator) evaluate(ctx goctx.Context, job *model.VideoJob, j chunkJob) *model.ChunkEvaluation {
	chunk := j.chunk
	ctx, span := e.Tracer.Start(ctx, "evaluate_chunk", trace.WithAttributes(
		attribute.String("video", job.Name),
		attribute.Int("chunk", chunk.Index),
		attribute.Int("keyframes", len(chunk.Keyframes)),
	))
	defer span.End()

	policy := e.policy
	policy.OnRetry = func(ctx goctx.Context, last llm.Failure) {
		e.retryCounter.Add(ctx, 1)
		slog.Warn("retrying chunk evaluation", "video", job.Name, "chunk", chunk.Index,
			"attempt", last.Attempt+1, "reason", last.Kind.String(), "error", last.Err)
		if e.policy.OnRetry != nil {
			e.policy.OnRetry(ctx, last)
		}
	}

	req := llm.Request{Prompt: j.prompt, Images: keyframeImages(chunk)}
	outcome := llm.Invoke(ctx, e.capability, req, func(raw string) (*model.RubricScore, error) {
		return model.ParseRubricScore(chunk.Index, raw)
	}, policy)

	span.SetAttributes(attribute.Int("attempts", outcome.Attempts), attribute.String("outcome", outcome.Kind.String()))
	if !outcome.OK() {
		span.SetStatus(codes.Error, outcome.Err.Error())
		slog.Error("chunk evaluation failed", "video", job.Name, "chunk", chunk.Index,
			"attempts", outcome.Attempts, "error", outcome.Err)
		reason := fmt.Errorf("%w: %w", model.ErrEvaluationFailed, outcome.Err).Error()
		return failedEvaluation(chunk, outcome.Attempts, reason, outcome.RawResponses())
	}

	slog.Debug("chunk scored", "video", job.Name, "chunk", chunk.Index, "attempts", outcome.Attempts, "mean", outcome.Value.Mean())
	return &model.ChunkEvaluation{
		ChunkIndex: chunk.Index,
		Span:       chunk.Span,
		Text:       chunk.Text,
		Keyframes:  keyframeRefs(chunk),
		Status:     model.StatusScored,
		Attempts:   outcome.Attempts,
		Score:      outcome.Value,
	}
}

func failedEvaluation(chunk *model.Chunk, attempts int, reason string, raw []string) *model.ChunkEvaluation {
	return &model.ChunkEvaluation{
		ChunkIndex:    chunk.Index,
		Span:          chunk.Span,
		Text:          chunk.Text,
		Keyframes:     keyframeRefs(chunk),
		Status:        model.StatusEvaluationFailed,
		Attempts:      attempts,
		FailureReason: reason,
		RawResponses:  raw,
	}
}
