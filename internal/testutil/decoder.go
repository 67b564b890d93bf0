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

package test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/frames"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// FakeDecoder implements frames.Decoder over a synthetic video. Frame
// content comes from FrameAt; by default the colour changes every second.
type FakeDecoder struct {
	Info     frames.VideoInfo
	FrameAt  func(ts time.Duration) image.Image
	ProbeErr error

	mu        sync.Mutex
	intervals []model.TimeSpan
}

// NewFakeDecoder returns a decoder for a video of the given length at 25 fps.
func NewFakeDecoder(duration time.Duration) *FakeDecoder {
	return &FakeDecoder{
		Info: frames.VideoInfo{Duration: duration, Width: 64, Height: 36, FPS: 25},
		FrameAt: func(ts time.Duration) image.Image {
			sec := int(ts / time.Second)
			return SolidFrame(16, 9, color.RGBA{R: uint8(sec * 37), G: uint8(sec * 91), B: uint8(sec * 13), A: 255})
		},
	}
}

func (d *FakeDecoder) Probe(ctx context.Context, path string) (*frames.VideoInfo, error) {
	if d.ProbeErr != nil {
		return nil, d.ProbeErr
	}
	info := d.Info
	info.Path = path
	return &info, nil
}

func (d *FakeDecoder) DecodeInterval(ctx context.Context, info *frames.VideoInfo, span model.TimeSpan, rate float64, width, maxFrames int) ([]image.Image, error) {
	if rate <= 0 {
		return nil, errors.New("non-positive rate")
	}
	d.mu.Lock()
	d.intervals = append(d.intervals, span)
	d.mu.Unlock()

	step := time.Duration(float64(time.Second) / rate)
	var out []image.Image
	for ts := span.Start; ts < span.End && len(out) < maxFrames; ts += step {
		out = append(out, d.FrameAt(ts))
	}
	return out, nil
}

func (d *FakeDecoder) DecodeAt(ctx context.Context, info *frames.VideoInfo, at time.Duration, width int) (image.Image, error) {
	return d.FrameAt(at), nil
}

// Intervals returns every span passed to DecodeInterval.
func (d *FakeDecoder) Intervals() []model.TimeSpan {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]model.TimeSpan(nil), d.intervals...)
}
