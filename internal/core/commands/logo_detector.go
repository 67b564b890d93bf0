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
	"os"
	"sync"
	"text/template"

	"github.com/h2non/filetype"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// LoadReferenceImage reads a logo image and sniffs its MIME type.
func LoadReferenceImage(path string) (llm.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return llm.Image{}, fmt.Errorf("reading reference logo: %w", err)
	}
	return ReferenceImage(data, path)
}

// ReferenceImage wraps logo bytes read from name as an LLM attachment.
func ReferenceImage(data []byte, name string) (llm.Image, error) {
	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsImage(data) {
		return llm.Image{}, fmt.Errorf("reference logo %s is not an image", name)
	}
	return llm.Image{MIMEType: kind.MIME.Value, Data: data}, nil
}

// LogoReference is one variant of the brand mark being searched for.
type LogoReference struct {
	Name  string
	Image llm.Image
}

// LogoDetector asks, for every chunk, whether the reference logo is visible
// in each of the chunk's keyframes. The reference images are sent first, in
// order, followed by the keyframes. Validation and retries work as in chunk
// evaluation.
type LogoDetector struct {
	cor.BaseCommand
	capability      llm.Capability
	promptTemplate  *template.Template
	references      []LogoReference
	numberOfWorkers int
	policy          llm.Policy
}

func NewLogoDetector(name string, capability llm.Capability, prompt *template.Template, references []LogoReference, numberOfWorkers int, policy llm.Policy) *LogoDetector {
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}
	return &LogoDetector{
		BaseCommand:     *cor.NewBaseCommand(name),
		capability:      capability,
		promptTemplate:  prompt,
		references:      references,
		numberOfWorkers: numberOfWorkers,
		policy:          policy,
	}
}

func (d *LogoDetector) IsExecutable(context cor.Context) bool {
	return d.BaseCommand.IsExecutable(context) && context.Get(ParamJob) != nil && len(d.references) > 0
}

func (d *LogoDetector) referenceNames() []string {
	names := make([]string, len(d.references))
	for i, r := range d.references {
		names[i] = r.Name
	}
	return names
}

func (d *LogoDetector) Execute(context cor.Context) {
	job := context.Get(ParamJob).(*model.VideoJob)
	chunks := context.Get(d.GetInputParam()).([]*model.Chunk)
	ctx := context.GetContext()

	reports := make([]*model.ChunkLogoReport, len(chunks))
	jobs := make(chan int, len(chunks))
	var wg sync.WaitGroup
	for w := 0; w < min(d.numberOfWorkers, max(len(chunks), 1)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				reports[i] = d.detect(ctx, job, chunks[i])
			}
		}()
	}
	for i := range chunks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	detected, failed := 0, 0
	for _, r := range reports {
		switch r.Status {
		case model.LogoDetected:
			detected++
		case model.LogoDetectionFailed:
			failed++
		}
	}
	if failed < len(reports) || len(reports) == 0 {
		d.GetSuccessCounter().Add(ctx, 1)
	} else {
		d.GetErrorCounter().Add(ctx, 1)
	}
	slog.Info("logo detection finished", "video", job.Name, "chunks", len(reports), "detected", detected, "failed", failed)

	names := d.referenceNames()
	out := &model.LogoReport{
		VideoId:         job.Id,
		VideoName:       job.Name,
		ReferenceImage:  names[0],
		ReferenceImages: names,
		GeneratedAt:     now(),
		Chunks:          reports,
	}
	context.Add(ParamLogoReport, out)
	context.Add(d.GetOutputParam(), out)
}

func (d *LogoDetector) detect(ctx goctx.Context, job *model.VideoJob, chunk *model.Chunk) *model.ChunkLogoReport {
	out := &model.ChunkLogoReport{ChunkIndex: chunk.Index, Span: chunk.Span, Detections: []model.LogoDetectionResult{}}
	if len(chunk.Keyframes) == 0 {
		out.Status = model.LogoAbsent
		return out
	}

	ctx, span := d.Tracer.Start(ctx, "detect_logo", trace.WithAttributes(
		attribute.String("video", job.Name),
		attribute.Int("chunk", chunk.Index),
	))
	defer span.End()

	frames := make([]model.KeyframeRef, 0, len(chunk.Keyframes))
	for _, kf := range chunk.Keyframes {
		frames = append(frames, kf.Ref())
	}
	prompt, err := renderPrompt(d.promptTemplate, map[string]any{
		"REFERENCE_COUNT": len(d.references),
		"FRAME_COUNT":     len(chunk.Keyframes),
		"CHUNK_INDEX":     chunk.Index,
		"START":           model.FormatTimestamp(chunk.Span.Start),
		"END":             model.FormatTimestamp(chunk.Span.End),
		"FRAMES":          frames,
		"EXAMPLE_JSON":    model.ExampleJSON(model.GetExampleLogoResponse()),
	})
	if err != nil {
		out.Status, out.FailureReason = model.LogoDetectionFailed, err.Error()
		return out
	}

	images := make([]llm.Image, 0, len(d.references)+len(chunk.Keyframes))
	for _, r := range d.references {
		images = append(images, r.Image)
	}
	images = append(images, keyframeImages(chunk)...)
	policy := d.policy
	policy.OnRetry = func(ctx goctx.Context, last llm.Failure) {
		slog.Warn("retrying logo detection", "video", job.Name, "chunk", chunk.Index,
			"attempt", last.Attempt+1, "reason", last.Kind.String(), "error", last.Err)
		if d.policy.OnRetry != nil {
			d.policy.OnRetry(ctx, last)
		}
	}
	outcome := llm.Invoke(ctx, d.capability, llm.Request{Prompt: prompt, Images: images}, func(raw string) ([]model.LogoDetectionResult, error) {
		return model.ParseLogoDetections(chunk.Index, chunk.Keyframes, raw)
	}, policy)
	out.Attempts = outcome.Attempts

	if !outcome.OK() {
		span.SetStatus(codes.Error, outcome.Err.Error())
		slog.Error("logo detection failed", "video", job.Name, "chunk", chunk.Index, "attempts", outcome.Attempts, "error", outcome.Err)
		out.Status = model.LogoDetectionFailed
		out.FailureReason = outcome.Err.Error()
		out.RawResponses = outcome.RawResponses()
		return out
	}

	out.Detections = outcome.Value
	out.Status = model.LogoAbsent
	for _, r := range outcome.Value {
		if r.Present {
			out.Status = model.LogoDetected
			break
		}
	}
	return out
}
