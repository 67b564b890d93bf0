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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/frames"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/keyframe"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// KeyframeExtractor samples a candidate pool for every chunk, selects up to
// maxFrames keyframes from it and attaches them to the chunk. The video is
// opened once per job and closed after the last chunk is sampled. Any decode
// failure is fatal for the video.
type KeyframeExtractor struct {
	cor.BaseCommand
	sampler        *frames.Sampler
	selector       *keyframe.Selector
	maxFrames      int
	writeKeyframes bool
}

func NewKeyframeExtractor(name string, sampler *frames.Sampler, selector *keyframe.Selector, maxFrames int, writeKeyframes bool) *KeyframeExtractor {
	if maxFrames < 1 {
		maxFrames = 1
	}
	return &KeyframeExtractor{
		BaseCommand:    *cor.NewBaseCommand(name),
		sampler:        sampler,
		selector:       selector,
		maxFrames:      maxFrames,
		writeKeyframes: writeKeyframes,
	}
}

func (c *KeyframeExtractor) IsExecutable(context cor.Context) bool {
	return c.BaseCommand.IsExecutable(context) && context.Get(ParamJob) != nil
}

func (c *KeyframeExtractor) Execute(context cor.Context) {
	job := context.Get(ParamJob).(*model.VideoJob)
	chunks := context.Get(c.GetInputParam()).([]*model.Chunk)

	video, err := c.sampler.Open(context.GetContext(), job.VideoPath)
	if err != nil {
		c.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(c.GetName(), err)
		return
	}
	defer func() {
		if err := video.Close(); err != nil {
			slog.Warn("failed to close video", "video", job.Name, "error", err)
		}
	}()

	total := 0
	for _, chunk := range chunks {
		if err := context.GetContext().Err(); err != nil {
			context.AddError(c.GetName(), fmt.Errorf("keyframe extraction stopped at chunk %d: %w", chunk.Index, err))
			return
		}
		if err := c.extract(context, video, job, chunk); err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), err)
			return
		}
		total += len(chunk.Keyframes)
	}

	slog.Info("keyframes extracted", "video", job.Name, "chunks", len(chunks), "keyframes", total)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(c.GetOutputParam(), chunks)
}

func (c *KeyframeExtractor) extract(context cor.Context, video *frames.Video, job *model.VideoJob, chunk *model.Chunk) error {
	ctx, span := c.Tracer.Start(context.GetContext(), "keyframes_chunk",
		trace.WithAttributes(attribute.Int("chunk", chunk.Index), attribute.String("span", chunk.Span.String())))
	defer span.End()

	pool, err := video.Sample(ctx, chunk.Span, c.maxFrames)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("chunk %d: %w", chunk.Index, err)
	}
	selected := c.selector.Select(pool, c.maxFrames)
	keyframes, err := c.selector.Encode(chunk.Index, selected)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: chunk %d: %w", model.ErrFrameDecode, chunk.Index, err)
	}
	if err := chunk.AttachKeyframes(keyframes); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("pool", len(pool)), attribute.Int("keyframes", len(keyframes)))
	slog.Debug("chunk keyframes selected", "video", job.Name, "chunk", chunk.Index, "pool", len(pool), "keyframes", len(keyframes))

	if c.writeKeyframes {
		if err := WriteKeyframes(filepath.Join(job.OutputDir, job.Name), chunk); err != nil {
			slog.Warn("failed to write keyframes", "video", job.Name, "chunk", chunk.Index, "error", err)
		}
	}
	return nil
}

// WriteKeyframes dumps a chunk's keyframes as JPEG files under
// dir/chunk_NNN/keyframes, next to an _info.txt holding the chunk's span and
// text.
func WriteKeyframes(dir string, chunk *model.Chunk) error {
	chunkDir := filepath.Join(dir, fmt.Sprintf("chunk_%03d", chunk.Index))
	frameDir := filepath.Join(chunkDir, "keyframes")
	if err := os.MkdirAll(frameDir, 0o755); err != nil {
		return err
	}
	info := fmt.Sprintf("%s\n%s\n", chunk.Span.String(), chunk.Text)
	if err := os.WriteFile(filepath.Join(chunkDir, "_info.txt"), []byte(info), 0o644); err != nil {
		return err
	}
	for _, kf := range chunk.Keyframes {
		name := fmt.Sprintf("frame_%06d.jpg", kf.FrameIndex)
		if err := os.WriteFile(filepath.Join(frameDir, name), kf.JPEG, 0o644); err != nil {
			return err
		}
	}
	return nil
}
