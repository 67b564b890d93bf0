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

package timeline_test

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSRT = `1
00:00:00,000 --> 00:00:05,000
intro

2
00:00:05,000 --> 00:00:12,000
body line one
<i>body line two</i>
`

func entry(seq int, start, end time.Duration, text string) model.TranscriptEntry {
	return model.TranscriptEntry{Sequence: seq, Span: model.NewTimeSpan(start, end), Text: text}
}

func TestParseSRT(t *testing.T) {
	entries, err := timeline.Parse(strings.NewReader(sampleSRT))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, entry(1, 0, 5*time.Second, "intro"), entries[0])
	assert.Equal(t, "body line one body line two", entries[1].Text)
	assert.Equal(t, 12*time.Second, entries[1].Span.End)
}

func TestParseSRTWithCRLFAndBOM(t *testing.T) {
	raw := "\ufeff" + strings.ReplaceAll(sampleSRT, "\n", "\r\n")
	entries, err := timeline.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestParseVTT(t *testing.T) {
	raw := `WEBVTT - lecture captions
Kind: captions

NOTE this is a comment

intro-cue
00:01.000 --> 00:04.500 align:start position:10%
<v Speaker>Welcome back</v>

00:00:04.500 --> 00:00:09.000
Today we cover
photosynthesis
`
	entries, err := timeline.Parse(strings.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "Welcome back", entries[0].Text)
	assert.Equal(t, model.NewTimeSpan(time.Second, 4500*time.Millisecond), entries[0].Span)
	assert.Equal(t, "Today we cover photosynthesis", entries[1].Text)
	assert.Equal(t, 2, entries[1].Sequence)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":       "",
		"no timing":   "1\nhello\n",
		"bad time":    "1\n00:00:xx,000 --> 00:00:02,000\nhello\n",
		"no text":     "1\n00:00:00,000 --> 00:00:02,000\n",
		"bad id":      "one\n00:00:00,000 --> 00:00:02,000\nhello\n",
		"missing end": "1\n00:00:00,000 -->\nhello\n",
	}
	for name, raw := range cases {
		_, err := timeline.Parse(strings.NewReader(raw))
		assert.ErrorIs(t, err, model.ErrMalformedTranscript, name)
	}
}

func TestIndexTwoEntries(t *testing.T) {
	chunks, err := timeline.Index([]model.TranscriptEntry{
		entry(1, 0, 5*time.Second, "intro"),
		entry(2, 5*time.Second, 12*time.Second, "body"),
	})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, model.NewTimeSpan(0, 5*time.Second), chunks[0].Span)
	assert.Equal(t, model.NewTimeSpan(5*time.Second, 12*time.Second), chunks[1].Span)
	assert.Equal(t, "intro", chunks[0].Text)
	assert.Equal(t, model.NewTimeSpan(0, 12*time.Second), timeline.Coverage(chunks))
}

func TestIndexAbsorbsGaps(t *testing.T) {
	chunks, err := timeline.Index([]model.TranscriptEntry{
		entry(1, 2*time.Second, 4*time.Second, "a"),
		entry(2, 7*time.Second, 9*time.Second, "b"),
	})
	require.NoError(t, err)
	assert.Equal(t, model.NewTimeSpan(2*time.Second, 7*time.Second), chunks[0].Span)
	assert.Equal(t, model.NewTimeSpan(7*time.Second, 9*time.Second), chunks[1].Span)
}

func TestIndexRejectsInvalidEntries(t *testing.T) {
	cases := map[string][]model.TranscriptEntry{
		"empty":       nil,
		"zero length": {entry(1, time.Second, time.Second, "a")},
		"inverted":    {entry(1, 2*time.Second, time.Second, "a")},
		"unordered":   {entry(1, 5*time.Second, 6*time.Second, "a"), entry(2, time.Second, 2*time.Second, "b")},
		"overlapping": {entry(1, 0, 6*time.Second, "a"), entry(2, 5*time.Second, 8*time.Second, "b")},
	}
	for name, entries := range cases {
		_, err := timeline.Index(entries)
		assert.ErrorIs(t, err, model.ErrMalformedTranscript, name)
	}
}

// Any valid transcript partitions into contiguous, non-overlapping chunks
// whose union is [first start, last end].
func TestIndexPartitionProperty(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for trial := 0; trial < 200; trial++ {
		n := 1 + r.Intn(40)
		var entries []model.TranscriptEntry
		cursor := time.Duration(r.Intn(3000)) * time.Millisecond
		for i := 0; i < n; i++ {
			start := cursor + time.Duration(r.Intn(2000))*time.Millisecond
			end := start + time.Duration(1+r.Intn(8000))*time.Millisecond
			entries = append(entries, entry(i+1, start, end, "t"))
			cursor = end
		}

		chunks, err := timeline.Index(entries)
		require.NoError(t, err)
		require.Len(t, chunks, n)
		assert.Equal(t, entries[0].Span.Start, chunks[0].Span.Start)
		assert.Equal(t, entries[n-1].Span.End, chunks[n-1].Span.End)

		var total time.Duration
		for i, c := range chunks {
			assert.Equal(t, i, c.Index)
			assert.True(t, c.Span.Valid())
			if i > 0 {
				assert.Equal(t, chunks[i-1].Span.End, c.Span.Start)
			}
			total += c.Span.Duration()
		}
		assert.Equal(t, timeline.Coverage(chunks).Duration(), total)
	}
}
