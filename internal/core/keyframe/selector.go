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

// Package keyframe picks the K most representative frames from a chunk's
// candidate pool. Frames are compared with a blend of colour histogram
// distance and CIELUV pixel distance; frames that differ most from their
// temporal neighbours rank highest, and a greedy pass keeps the selection
// diverse.
package keyframe

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/frames"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// Options tunes the dissimilarity metric and diversity pass.
type Options struct {
	Bins              int     // histogram bins per channel
	HistogramWeight   float64 // weight of the histogram term
	LuvWeight         float64 // weight of the CIELUV term
	DistinctThreshold float64 // minimum distance between selected frames in the greedy pass
	ThumbSize         int     // side of the square thumbnail features are computed on
	JPEGQuality       int
}

func DefaultOptions() Options {
	return Options{Bins: 8, HistogramWeight: 0.5, LuvWeight: 0.5, DistinctThreshold: 0.08, ThumbSize: 32, JPEGQuality: 85}
}

// Selector is stateless apart from its options and safe for concurrent use.
type Selector struct {
	opts Options
}

func NewSelector(opts Options) *Selector {
	def := DefaultOptions()
	if opts.Bins < 1 {
		opts.Bins = def.Bins
	}
	if opts.ThumbSize < 1 {
		opts.ThumbSize = def.ThumbSize
	}
	if opts.HistogramWeight < 0 || opts.LuvWeight < 0 || opts.HistogramWeight+opts.LuvWeight == 0 {
		opts.HistogramWeight, opts.LuvWeight = def.HistogramWeight, def.LuvWeight
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = def.JPEGQuality
	}
	return &Selector{opts: opts}
}

type features struct {
	hist []float64
	luv  []colorful.Color // L, u, v stored in R, G, B
}

func (s *Selector) extract(img image.Image) features {
	n := s.opts.ThumbSize
	thumb := imaging.Resize(img, n, n, imaging.Box)
	bins := s.opts.Bins
	f := features{
		hist: make([]float64, bins*bins*bins),
		luv:  make([]colorful.Color, 0, n*n),
	}
	pixels := 0
	for i := 0; i+3 < len(thumb.Pix); i += 4 {
		r, g, b := thumb.Pix[i], thumb.Pix[i+1], thumb.Pix[i+2]
		idx := (int(r)*bins/256*bins+int(g)*bins/256)*bins + int(b)*bins/256
		f.hist[idx]++
		l, u, v := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}.Luv()
		f.luv = append(f.luv, colorful.Color{R: l, G: u, B: v})
		pixels++
	}
	if pixels > 0 {
		for i := range f.hist {
			f.hist[i] /= float64(pixels)
		}
	}
	return f
}

// distance is symmetric, zero for identical frames, and bounded by 1.
func (s *Selector) distance(a, b features) float64 {
	var l1 float64
	for i := range a.hist {
		l1 += math.Abs(a.hist[i] - b.hist[i])
	}
	hist := l1 / 2

	var luv float64
	for i := range a.luv {
		dl, du, dv := a.luv[i].R-b.luv[i].R, a.luv[i].G-b.luv[i].G, a.luv[i].B-b.luv[i].B
		luv += math.Sqrt(dl*dl + du*du + dv*dv)
	}
	if len(a.luv) > 0 {
		luv = math.Min(1, luv/float64(len(a.luv)))
	}

	w := s.opts.HistogramWeight + s.opts.LuvWeight
	return (s.opts.HistogramWeight*hist + s.opts.LuvWeight*luv) / w
}

// Distances returns the full pairwise distance matrix of the pool.
func (s *Selector) Distances(pool []*frames.Frame) [][]float64 {
	feats := make([]features, len(pool))
	for i, f := range pool {
		feats[i] = s.extract(f.Image)
	}
	d := make([][]float64, len(pool))
	for i := range d {
		d[i] = make([]float64, len(pool))
	}
	for i := range pool {
		for j := i + 1; j < len(pool); j++ {
			v := s.distance(feats[i], feats[j])
			d[i][j], d[j][i] = v, v
		}
	}
	return d
}

// PeakScores rates each frame by its mean distance to its two temporal
// neighbours. An edge frame uses its second inward neighbour in place of the
// missing one, so a frame beside a distinct edge frame does not outrank it.
// A lone frame scores zero; a pair scores their mutual distance.
func PeakScores(d [][]float64) []float64 {
	n := len(d)
	scores := make([]float64, n)
	switch n {
	case 0, 1:
		return scores
	case 2:
		scores[0], scores[1] = d[0][1], d[0][1]
		return scores
	}
	for i := 0; i < n; i++ {
		left, right := i-1, i+1
		if left < 0 {
			left = i + 2
		}
		if right >= n {
			right = i - 2
		}
		scores[i] = (d[i][left] + d[i][right]) / 2
	}
	return scores
}

// Select returns at most k frames of pool in timestamp order. pool must be in
// timestamp order. The result is a deterministic function of the pool's
// pixels and k: ties in score go to the earlier frame.
func (s *Selector) Select(pool []*frames.Frame, k int) []*frames.Frame {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if len(pool) <= k {
		return append([]*frames.Frame(nil), pool...)
	}

	d := s.Distances(pool)
	scores := PeakScores(d)
	ranked := make([]int, len(pool))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return scores[ranked[a]] > scores[ranked[b]]
	})

	chosen := make([]int, 0, k)
	var skipped []int
	for _, idx := range ranked {
		if len(chosen) == k {
			break
		}
		distinct := true
		for _, c := range chosen {
			if d[idx][c] < s.opts.DistinctThreshold {
				distinct = false
				break
			}
		}
		if distinct {
			chosen = append(chosen, idx)
		} else {
			skipped = append(skipped, idx)
		}
	}
	for _, idx := range skipped {
		if len(chosen) == k {
			break
		}
		chosen = append(chosen, idx)
	}

	sort.Ints(chosen)
	out := make([]*frames.Frame, len(chosen))
	for i, idx := range chosen {
		out[i] = pool[idx]
	}
	return out
}

// Encode converts selected frames into keyframes for chunkIndex, JPEG
// encoding each image.
func (s *Selector) Encode(chunkIndex int, selected []*frames.Frame) ([]*model.Keyframe, error) {
	out := make([]*model.Keyframe, 0, len(selected))
	for _, f := range selected {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, f.Image, imaging.JPEG, imaging.JPEGQuality(s.opts.JPEGQuality)); err != nil {
			return nil, fmt.Errorf("encoding frame %d: %w", f.Index, err)
		}
		out = append(out, &model.Keyframe{
			ChunkIndex: chunkIndex,
			FrameIndex: f.Index,
			Timestamp:  f.Timestamp,
			Image:      f.Image,
			JPEG:       buf.Bytes(),
		})
	}
	return out, nil
}
