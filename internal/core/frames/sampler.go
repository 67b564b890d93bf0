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

package frames

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// Frame is a decoded candidate frame.
type Frame struct {
	Index     int
	Timestamp time.Duration
	Image     image.Image

	fingerprint uint64
}

// SamplerOptions controls candidate pool construction.
type SamplerOptions struct {
	PoolSize      int           // target candidates per chunk; raised to K when smaller
	Width         int           // decode width in pixels, 0 for native
	TrailingSlack time.Duration // how far a chunk may end past the video's duration
}

// Sampler opens videos and samples candidate pools from them.
type Sampler struct {
	decoder Decoder
	opts    SamplerOptions
}

func NewSampler(decoder Decoder, opts SamplerOptions) *Sampler {
	if opts.PoolSize < 1 {
		opts.PoolSize = 1
	}
	return &Sampler{decoder: decoder, opts: opts}
}

// Video is an open video. It holds only the probed metadata; frames are
// decoded on demand per chunk.
type Video struct {
	info    *VideoInfo
	sampler *Sampler
	closed  atomic.Bool
}

// ErrVideoClosed is returned by Sample after Close.
var ErrVideoClosed = errors.New("video is closed")

// Open probes path.
func (s *Sampler) Open(ctx context.Context, path string) (*Video, error) {
	info, err := s.decoder.Probe(ctx, path)
	if err != nil {
		if !errors.Is(err, model.ErrFrameDecode) {
			err = fmt.Errorf("%w: %w", model.ErrFrameDecode, err)
		}
		return nil, err
	}
	if info.Path == "" {
		info.Path = path
	}
	return &Video{info: info, sampler: s}, nil
}

func (v *Video) Info() *VideoInfo {
	return v.info
}

// Close releases the video. It is safe to call more than once.
func (v *Video) Close() error {
	v.closed.Store(true)
	return nil
}

// Sample returns the candidate pool for span: at most max(PoolSize, k)
// frames in strictly increasing timestamp order, all inside span, with
// consecutive visually identical frames removed. A span too short to yield
// any sampled frame gets a single frame from its midpoint.
//
// A span reaching past the video's duration by more than the trailing slack
// is a FrameDecode error; within the slack it is clamped.
func (v *Video) Sample(ctx context.Context, span model.TimeSpan, k int) ([]*Frame, error) {
	if v.closed.Load() {
		return nil, ErrVideoClosed
	}
	if !span.Valid() {
		return nil, model.FrameErrorf("invalid interval %s", span)
	}
	info, opts := v.info, v.sampler.opts
	limit := info.Duration + opts.TrailingSlack
	if span.Start > limit || span.End > limit {
		return nil, model.FrameErrorf("interval %s exceeds video duration %s", span, model.FormatTimestamp(info.Duration))
	}

	eff := span
	if eff.End > info.Duration {
		eff.End = info.Duration
	}
	pool := max(opts.PoolSize, k)

	var out []*Frame
	if eff.Valid() {
		rate := float64(pool) / eff.Duration().Seconds()
		if info.FPS > 0 && rate > info.FPS {
			rate = info.FPS
		}
		imgs, err := v.sampler.decoder.DecodeInterval(ctx, info, eff, rate, opts.Width, pool)
		if err != nil {
			return nil, wrapDecode(err)
		}
		step := time.Duration(float64(time.Second) / rate)
		for j, img := range imgs {
			ts := eff.Start + time.Duration(j)*step
			if ts >= eff.End || len(out) == pool {
				break
			}
			out = append(out, &Frame{Index: info.FrameIndex(ts), Timestamp: ts, Image: img})
		}
	}

	if len(out) == 0 {
		at := eff.Midpoint()
		if !eff.Valid() {
			// The whole span sits in the slack after the last frame.
			at = info.Duration - lastFrameOffset(info)
			if at < 0 {
				at = 0
			}
		}
		img, err := v.sampler.decoder.DecodeAt(ctx, info, at, opts.Width)
		if err != nil {
			return nil, wrapDecode(err)
		}
		out = []*Frame{{Index: info.FrameIndex(at), Timestamp: at, Image: img}}
	}

	deduped := Dedupe(out)
	if len(deduped) < len(out) {
		slog.Debug("dropped duplicate candidate frames", "span", span.String(), "sampled", len(out), "kept", len(deduped))
	}
	return deduped, nil
}

func lastFrameOffset(info *VideoInfo) time.Duration {
	if info.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / info.FPS)
}

func wrapDecode(err error) error {
	if errors.Is(err, model.ErrFrameDecode) {
		return err
	}
	return fmt.Errorf("%w: %w", model.ErrFrameDecode, err)
}

// Dedupe drops frames whose fingerprint equals the previous kept frame's, and
// frames that map to an already used native frame index.
func Dedupe(frames []*Frame) []*Frame {
	out := make([]*Frame, 0, len(frames))
	for _, f := range frames {
		if f.fingerprint == 0 {
			f.fingerprint = Fingerprint(f.Image)
		}
		if n := len(out); n > 0 {
			prev := out[n-1]
			if prev.Index == f.Index || prev.fingerprint == f.fingerprint {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}
