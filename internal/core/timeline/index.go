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

package timeline

import (
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// Validate checks that every entry has a positive duration and that entries
// are ordered by start time without overlapping.
func Validate(entries []model.TranscriptEntry) error {
	if len(entries) == 0 {
		return model.TranscriptErrorf("transcript has no entries")
	}
	for i, e := range entries {
		if e.Span.Start < 0 || e.Span.End <= e.Span.Start {
			return model.TranscriptErrorf("entry %d (%s): non-positive duration", e.Sequence, e.Span)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Span.Start < prev.Span.Start {
			return model.TranscriptErrorf("entry %d starts before entry %d", e.Sequence, prev.Sequence)
		}
		if e.Span.Start < prev.Span.End {
			return model.TranscriptErrorf("entry %d (%s) overlaps entry %d (%s)", e.Sequence, e.Span, prev.Sequence, prev.Span)
		}
	}
	return nil
}

// Index partitions the timeline into one chunk per entry. Chunk i covers
// [entry i start, entry i+1 start) and the last chunk ends at the last
// entry's end, so chunks are contiguous and their union is exactly
// [first start, last end]. Silence between cues belongs to the preceding
// chunk.
func Index(entries []model.TranscriptEntry) ([]*model.Chunk, error) {
	if err := Validate(entries); err != nil {
		return nil, err
	}
	chunks := make([]*model.Chunk, len(entries))
	for i, e := range entries {
		end := e.Span.End
		if i+1 < len(entries) {
			end = entries[i+1].Span.Start
		}
		chunks[i] = &model.Chunk{
			Index: i,
			Span:  model.NewTimeSpan(e.Span.Start, end),
			Text:  e.Text,
		}
	}
	return chunks, nil
}

// Coverage returns the union of the chunk spans, which Index guarantees to be
// a single interval.
func Coverage(chunks []*model.Chunk) model.TimeSpan {
	if len(chunks) == 0 {
		return model.TimeSpan{}
	}
	return model.NewTimeSpan(chunks[0].Span.Start, chunks[len(chunks)-1].Span.End)
}
