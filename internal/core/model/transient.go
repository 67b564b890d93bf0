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

// Package model defines the core data structures for the application.
// This file contains the in-memory objects that flow between the commands of
// an evaluation chain: transcript entries, chunks, and the keyframes attached
// to them. None of these are persisted directly; the reports in report.go are.
package model

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TranscriptEntry is a single timed cue from an SRT or WebVTT file.
type TranscriptEntry struct {
	Sequence int      `json:"sequence"`
	Span     TimeSpan `json:"span"`
	Text     string   `json:"text"`
}

// Chunk is one evaluation unit: a contiguous slice of the timeline anchored to
// a transcript entry. Chunks are created by the timeline indexer and get their
// keyframes attached exactly once by the keyframe extractor.
type Chunk struct {
	Index     int         `json:"index"`
	Span      TimeSpan    `json:"span"`
	Text      string      `json:"text"`
	Keyframes []*Keyframe `json:"keyframes,omitempty"`

	sealed bool
}

// ErrChunkSealed is returned when keyframes are attached to a chunk twice.
var ErrChunkSealed = errors.New("chunk keyframes already attached")

// AttachKeyframes sets the chunk's keyframes. The chunk is immutable afterwards.
func (c *Chunk) AttachKeyframes(frames []*Keyframe) error {
	if c.sealed {
		return fmt.Errorf("chunk %d: %w", c.Index, ErrChunkSealed)
	}
	for _, f := range frames {
		if f.ChunkIndex != c.Index {
			return fmt.Errorf("keyframe for chunk %d attached to chunk %d", f.ChunkIndex, c.Index)
		}
	}
	c.Keyframes = frames
	c.sealed = true
	return nil
}

// Sealed reports whether keyframes have been attached.
func (c *Chunk) Sealed() bool {
	return c.sealed
}

// Keyframe is a selected representative frame for a chunk. Image is the
// decoded frame and JPEG its encoded form as sent to the model.
type Keyframe struct {
	ChunkIndex int           `json:"chunk_index"`
	FrameIndex int           `json:"frame_index"`
	Timestamp  time.Duration `json:"-"`
	Image      image.Image   `json:"-"`
	JPEG       []byte        `json:"-"`
}

// Ref returns the serialisable identity of the keyframe.
func (k *Keyframe) Ref() KeyframeRef {
	return KeyframeRef{FrameIndex: k.FrameIndex, Timestamp: FormatTimestamp(k.Timestamp)}
}

// KeyframeRef identifies a keyframe inside a report.
type KeyframeRef struct {
	FrameIndex int    `json:"frame_index"`
	Timestamp  string `json:"timestamp"`
}

// VideoJob is one video/transcript pair and where its reports go.
type VideoJob struct {
	Id             string `json:"id"`
	Name           string `json:"name"`
	VideoPath      string `json:"video_path"`
	TranscriptPath string `json:"transcript_path"`
	OutputDir      string `json:"output_dir"`
}

// NewVideoJob builds a job for the pair. The name is the video's base name
// without extension, and the Id is a UUIDv5 of that name so reruns of the same
// video produce the same identifier.
func NewVideoJob(videoPath, transcriptPath, outputDir string) *VideoJob {
	name := VideoName(videoPath)
	return &VideoJob{
		Id:             uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String(),
		Name:           name,
		VideoPath:      videoPath,
		TranscriptPath: transcriptPath,
		OutputDir:      outputDir,
	}
}

// VideoName strips directories and the extension from a path or object name.
func VideoName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
