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

package model_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rubricJSON(scores map[model.Rubric]int) string {
	body := map[string]any{}
	for r, s := range scores {
		body[string(r)] = map[string]any{"score": s, "justification": "because " + string(r)}
	}
	b, _ := json.Marshal(body)
	return string(b)
}

func allScores(score int) map[model.Rubric]int {
	out := map[model.Rubric]int{}
	for _, r := range model.Rubrics {
		out[r] = score
	}
	return out
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Duration{
		"00:00:05,000":  5 * time.Second,
		"01:02:03,456":  time.Hour + 2*time.Minute + 3*time.Second + 456*time.Millisecond,
		"00:01:02.5":    62*time.Second + 500*time.Millisecond,
		"02:03.250":     2*time.Minute + 3*time.Second + 250*time.Millisecond,
		"00:00:07":      7 * time.Second,
		"12.25":         12*time.Second + 250*time.Millisecond,
		" 00:00:01,001": time.Second + time.Millisecond,
	}
	for in, want := range cases {
		got, err := model.ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "abc", "00:61:00,000", "1:2:3:4", "-5", "00:00:-1"} {
		_, err := model.ParseTimestamp(bad)
		assert.Error(t, err, bad)
	}
}

func TestFormatTimestampRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		d := time.Duration(r.Int63n(int64(5*time.Hour))).Truncate(time.Millisecond)
		got, err := model.ParseTimestamp(model.FormatTimestamp(d))
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	assert.Equal(t, "00:00:00,000", model.FormatTimestamp(-time.Second))
}

func TestTimeSpanJSON(t *testing.T) {
	span := model.NewTimeSpan(5*time.Second, 12*time.Second)
	b, err := json.Marshal(span)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"00:00:05,000","end":"00:00:12,000"}`, string(b))

	var back model.TimeSpan
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, span, back)

	require.NoError(t, json.Unmarshal([]byte(`"00:00:05,000 --> 00:00:12,000"`), &back))
	assert.Equal(t, span, back)

	require.NoError(t, json.Unmarshal([]byte(`{"start":5,"end":12.0}`), &back))
	assert.Equal(t, span, back)

	assert.Error(t, json.Unmarshal([]byte(`{"start":"x","end":"00:00:01"}`), &back))
	assert.Error(t, json.Unmarshal([]byte(`{"start":"00:00:01"}`), &back))
}

func TestTimeSpanPredicates(t *testing.T) {
	outer := model.NewTimeSpan(0, 10*time.Second)
	assert.True(t, outer.Contains(model.NewTimeSpan(2*time.Second, 10*time.Second)))
	assert.False(t, outer.Contains(model.NewTimeSpan(2*time.Second, 11*time.Second)))
	assert.True(t, outer.Overlaps(model.NewTimeSpan(9*time.Second, 11*time.Second)))
	assert.False(t, outer.Overlaps(model.NewTimeSpan(10*time.Second, 11*time.Second)))
	assert.False(t, model.NewTimeSpan(3*time.Second, 3*time.Second).Valid())
	assert.Equal(t, 5*time.Second, outer.Midpoint())
}

func TestParseRubric(t *testing.T) {
	r, ok := model.ParseRubric("matching_modality")
	assert.True(t, ok)
	assert.Equal(t, model.RubricMatchingModality, r)

	r, ok = model.ParseRubric("  technical   QUALITY ")
	assert.True(t, ok)
	assert.Equal(t, model.RubricTechnicalQuality, r)

	_, ok = model.ParseRubric("Engagement")
	assert.False(t, ok)
	assert.Len(t, model.Rubrics, 7)
}

func TestParseRubricScoreValid(t *testing.T) {
	score, err := model.ParseRubricScore(4, rubricJSON(allScores(2)))
	require.NoError(t, err)
	assert.Equal(t, 4, score.ChunkIndex)
	assert.Len(t, score.Scores, len(model.Rubrics))
	assert.Equal(t, 2.0, score.Mean())
	assert.Equal(t, "because Weeding", score.Scores[model.RubricWeeding].Justification)
}

func TestParseRubricScoreNestedAndAliases(t *testing.T) {
	eval := map[string]any{}
	for _, r := range model.Rubrics {
		eval[string(r)] = map[string]any{"score": 1, "comment": "c"}
	}
	b, _ := json.Marshal(map[string]any{"summary": "s", "evaluation": eval, "timestamp": "00:00:00,000 --> 00:00:05,000"})

	score, err := model.ParseRubricScore(0, string(b))
	require.NoError(t, err)
	assert.Equal(t, "s", score.Summary)
	assert.Equal(t, "c", score.Scores[model.RubricConsistency].Justification)
}

func TestParseRubricScoreRejects(t *testing.T) {
	missing := allScores(2)
	delete(missing, model.RubricAccessibility)

	outOfRange := allScores(2)
	outOfRange[model.RubricSignaling] = 4

	zero := allScores(2)
	zero[model.RubricWeeding] = 0

	entries := func(edit func(map[string]any)) string {
		body := map[string]any{}
		for _, r := range model.Rubrics {
			body[string(r)] = map[string]any{"score": 2, "justification": "fine"}
		}
		edit(body)
		b, _ := json.Marshal(body)
		return string(b)
	}

	cases := map[string]string{
		"quoted score": entries(func(b map[string]any) {
			b[string(model.RubricSignaling)] = map[string]any{"score": "2", "justification": "fine"}
		}),
		"null score": entries(func(b map[string]any) {
			b[string(model.RubricSignaling)] = map[string]any{"score": nil, "justification": "fine"}
		}),
		"no justification": entries(func(b map[string]any) {
			b[string(model.RubricWeeding)] = map[string]any{"score": 2}
		}),
		"blank justification": entries(func(b map[string]any) {
			b[string(model.RubricWeeding)] = map[string]any{"score": 2, "comment": "  "}
		}),
		"missing key":  rubricJSON(missing),
		"out of range": rubricJSON(outOfRange),
		"zero":         rubricJSON(zero),
		"fractional":   `{"Signaling":{"score":2.5}}`,
		"not json":     "I think the video is great",
		"array":        `[1,2,3]`,
		"trailing":     rubricJSON(allScores(1)) + " {}",
	}
	_, err := model.ParseRubricScore(0, entries(func(map[string]any) {}))
	require.NoError(t, err)

	for name, raw := range cases {
		_, err := model.ParseRubricScore(0, raw)
		assert.ErrorIs(t, err, model.ErrSchemaValidation, name)
	}
}

func TestRubricScoreRoundTrip(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		scores := map[model.Rubric]int{}
		for _, rb := range model.Rubrics {
			scores[rb] = 1 + r.Intn(3)
		}
		first, err := model.ParseRubricScore(i, rubricJSON(scores))
		require.NoError(t, err)

		b, err := json.Marshal(first.Scores)
		require.NoError(t, err)
		second, err := model.ParseRubricScore(i, string(b))
		require.NoError(t, err)
		assert.Equal(t, first.Scores, second.Scores)
		for rb, s := range scores {
			assert.Equal(t, s, second.Scores[rb].Score)
		}
	}
}

func TestParseRecommendations(t *testing.T) {
	raw := `[
	  {"timestamp_range":{"start":"00:00:01,000","end":"00:00:04,000"},"rubric":"visual_quality","issue":"blurry","suggested_fix":"refocus"},
	  {"timestamp":"00:00:05,000 --> 00:00:06,000","rubric":"Weeding","suggestion":"cut the music"},
	  {"timestamp_range":{"start":"00:00:05,000","end":"00:00:06,000"},"rubric":"Engagement","issue":"dull"},
	  {"timestamp_range":{"start":"00:00:09,000","end":"00:00:06,000"},"rubric":"Weeding","issue":"x"}
	]`
	items, err := model.ParseRecommendations(raw)
	require.NoError(t, err)
	require.Len(t, items, 4)

	rec, _, ok := items[0].Resolve()
	require.True(t, ok)
	assert.Equal(t, model.RubricVisualQuality, rec.Rubric)
	assert.Equal(t, model.NewTimeSpan(time.Second, 4*time.Second), rec.Span)

	rec, _, ok = items[1].Resolve()
	require.True(t, ok)
	assert.Equal(t, "cut the music", rec.SuggestedFix)

	_, reason, ok := items[2].Resolve()
	assert.False(t, ok)
	assert.Contains(t, reason, "unknown rubric")

	_, _, ok = items[3].Resolve()
	assert.False(t, ok)

	wrapped, err := model.ParseRecommendations(`{"recommendations":[]}`)
	require.NoError(t, err)
	assert.Empty(t, wrapped)

	for _, bad := range []string{`{"items":[]}`, `"text"`, `[1,2]`, `nope`} {
		_, err := model.ParseRecommendations(bad)
		assert.ErrorIs(t, err, model.ErrSchemaValidation, bad)
	}
}

func TestParseLogoDetections(t *testing.T) {
	frames := []*model.Keyframe{
		{ChunkIndex: 2, FrameIndex: 120, Timestamp: 4 * time.Second},
		{ChunkIndex: 2, FrameIndex: 186, Timestamp: 6200 * time.Millisecond},
	}

	results, err := model.ParseLogoDetections(2, frames, model.ExampleJSON(model.GetExampleLogoResponse()))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Present)
	assert.Equal(t, "top right corner", results[0].Position)
	assert.Equal(t, "00:00:04,000", results[0].Timestamp)
	assert.False(t, results[1].Present)
	assert.Nil(t, results[1].Region)

	bad := []string{
		`{"detections":[{"frame_index":120,"present":false}]}`,
		`{"detections":[{"frame_index":120,"present":true},{"frame_index":186,"present":false}]}`,
		`{"detections":[{"frame_index":120,"present":true,"region":{"x":0.9,"y":0,"width":0.5,"height":0.1}},{"frame_index":186,"present":false}]}`,
		`{"detections":[{"frame_index":7,"present":false},{"frame_index":186,"present":false}]}`,
		`{"detections":[{"frame_index":186,"present":false},{"frame_index":186,"present":false}]}`,
		`No`,
	}
	for _, raw := range bad {
		_, err := model.ParseLogoDetections(2, frames, raw)
		assert.ErrorIs(t, err, model.ErrSchemaValidation, raw)
	}
}

func TestNewVideoJob(t *testing.T) {
	job := model.NewVideoJob("/videos/lecture-01.mp4", "/videos/lecture-01.srt", "/out")
	assert.Equal(t, "lecture-01", job.Name)
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte("lecture-01")).String(), job.Id)
	assert.Equal(t, job.Id, model.NewVideoJob("gs://bucket/in/lecture-01.mp4", "", "").Id)
}

func TestChunkAttachKeyframesOnce(t *testing.T) {
	c := &model.Chunk{Index: 3, Span: model.NewTimeSpan(0, time.Second)}
	require.NoError(t, c.AttachKeyframes([]*model.Keyframe{{ChunkIndex: 3, FrameIndex: 1}}))
	assert.True(t, c.Sealed())

	err := c.AttachKeyframes(nil)
	assert.True(t, errors.Is(err, model.ErrChunkSealed))

	other := &model.Chunk{Index: 1}
	assert.Error(t, other.AttachKeyframes([]*model.Keyframe{{ChunkIndex: 3}}))
}

func TestErrorHelpersWrap(t *testing.T) {
	assert.ErrorIs(t, model.SchemaErrorf("bad %d", 1), model.ErrSchemaValidation)
	assert.ErrorIs(t, model.TranscriptErrorf("bad"), model.ErrMalformedTranscript)
	assert.ErrorIs(t, fmt.Errorf("wrapped: %w", model.FrameErrorf("x")), model.ErrFrameDecode)
}
