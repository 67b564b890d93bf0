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

// Package frames decodes candidate frames for a chunk of video. A Decoder
// produces raw frames for a time interval; the Sampler turns them into a
// bounded, time-ordered, de-duplicated candidate pool for keyframe selection.
package frames

import (
	"context"
	"image"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// VideoInfo describes the primary video stream of a file.
type VideoInfo struct {
	Path     string
	Duration time.Duration
	Width    int
	Height   int
	FPS      float64
}

// FrameIndex converts a timestamp to the nearest native frame number.
func (v *VideoInfo) FrameIndex(ts time.Duration) int {
	if v.FPS <= 0 {
		return int(ts.Milliseconds())
	}
	return int(ts.Seconds()*v.FPS + 0.5)
}

// Decoder is the boundary to the media toolchain.
type Decoder interface {
	// Probe reads stream metadata.
	Probe(ctx context.Context, path string) (*VideoInfo, error)
	// DecodeInterval returns up to maxFrames frames from span sampled at rate
	// frames per second, scaled to width pixels wide (0 keeps the native
	// size). Frame j corresponds to span.Start + j/rate.
	DecodeInterval(ctx context.Context, info *VideoInfo, span model.TimeSpan, rate float64, width, maxFrames int) ([]image.Image, error)
	// DecodeAt returns the single frame nearest to at.
	DecodeAt(ctx context.Context, info *VideoInfo, at time.Duration, width int) (image.Image, error)
}
