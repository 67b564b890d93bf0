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

package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Region is a normalised bounding box; all values lie in [0,1] relative to
// the frame's width and height.
type Region struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Region) valid() bool {
	in := func(v float64) bool { return v >= 0 && v <= 1 }
	return in(r.X) && in(r.Y) && r.Width > 0 && r.Height > 0 &&
		r.X+r.Width <= 1.0001 && r.Y+r.Height <= 1.0001
}

// LogoDetectionResult records whether the reference logo appears in one
// keyframe, and where.
type LogoDetectionResult struct {
	ChunkIndex int     `json:"chunk_index"`
	FrameIndex int     `json:"frame_index"`
	Timestamp  string  `json:"timestamp"`
	Present    bool    `json:"present"`
	Region     *Region `json:"region,omitempty"`
	Position   string  `json:"position,omitempty"`
}

// LogoStatus summarises detection for a chunk.
type LogoStatus string

const (
	LogoDetected        LogoStatus = "detected"
	LogoAbsent          LogoStatus = "absent"
	LogoDetectionFailed LogoStatus = "detection_failed"
)

// ChunkLogoReport groups the per-frame results of one chunk.
type ChunkLogoReport struct {
	ChunkIndex    int                   `json:"chunk_index"`
	Span          TimeSpan              `json:"timestamp"`
	Status        LogoStatus            `json:"status"`
	Attempts      int                   `json:"attempts"`
	Detections    []LogoDetectionResult `json:"detections"`
	FailureReason string                `json:"failure_reason,omitempty"`
	RawResponses  []string              `json:"raw_responses,omitempty"`
}

// LogoReport is the persisted result of a logo detection run for one video.
type LogoReport struct {
	VideoId         string             `json:"video_id"`
	VideoName       string             `json:"video_name"`
	ReferenceImage  string             `json:"reference_image"`
	ReferenceImages []string           `json:"reference_images,omitempty"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Chunks          []*ChunkLogoReport `json:"chunks"`
}

// ParseLogoDetections validates a detection response against the keyframes
// that were sent. Every keyframe must be answered exactly once, and a present
// logo must come with a valid region.
func ParseLogoDetections(chunkIndex int, keyframes []*Keyframe, raw string) ([]LogoDetectionResult, error) {
	var resp struct {
		Detections []struct {
			FrameIndex *int            `json:"frame_index"`
			Present    *bool           `json:"present"`
			Region     json.RawMessage `json:"region"`
			Position   string          `json:"position"`
		} `json:"detections"`
	}
	if err := decodeStrict(raw, &resp); err != nil {
		return nil, SchemaErrorf("logo response is not valid JSON: %v", err)
	}

	byFrame := make(map[int]*Keyframe, len(keyframes))
	for _, k := range keyframes {
		byFrame[k.FrameIndex] = k
	}

	seen := make(map[int]LogoDetectionResult, len(keyframes))
	for _, d := range resp.Detections {
		if d.FrameIndex == nil || d.Present == nil {
			return nil, SchemaErrorf("detection requires frame_index and present")
		}
		kf, ok := byFrame[*d.FrameIndex]
		if !ok {
			return nil, SchemaErrorf("detection for unknown frame %d", *d.FrameIndex)
		}
		if _, dup := seen[kf.FrameIndex]; dup {
			return nil, SchemaErrorf("frame %d answered twice", kf.FrameIndex)
		}
		result := LogoDetectionResult{
			ChunkIndex: chunkIndex,
			FrameIndex: kf.FrameIndex,
			Timestamp:  FormatTimestamp(kf.Timestamp),
			Present:    *d.Present,
		}
		if result.Present {
			var region Region
			if len(d.Region) == 0 || string(d.Region) == "null" {
				return nil, SchemaErrorf("frame %d: present logo without region", kf.FrameIndex)
			}
			if err := json.Unmarshal(d.Region, &region); err != nil || !region.valid() {
				return nil, SchemaErrorf("frame %d: region must be normalised to [0,1]", kf.FrameIndex)
			}
			result.Region = &region
			result.Position = strings.TrimSpace(d.Position)
		}
		seen[kf.FrameIndex] = result
	}

	out := make([]LogoDetectionResult, 0, len(keyframes))
	for _, k := range keyframes {
		r, ok := seen[k.FrameIndex]
		if !ok {
			return nil, SchemaErrorf("no detection for frame %d", k.FrameIndex)
		}
		out = append(out, r)
	}
	return out, nil
}
