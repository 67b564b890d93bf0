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
	"bytes"
	"encoding/json"
	"math"
	"strings"
)

// Rubric is one of the fixed multimedia-learning categories each chunk is
// scored against.
type Rubric string

const (
	RubricSignaling        Rubric = "Signaling"
	RubricWeeding          Rubric = "Weeding"
	RubricMatchingModality Rubric = "Matching Modality"
	RubricVisualQuality    Rubric = "Visual Quality"
	RubricConsistency      Rubric = "Consistency"
	RubricAccessibility    Rubric = "Accessibility"
	RubricTechnicalQuality Rubric = "Technical Quality"
)

// Rubrics lists the categories in report order.
var Rubrics = []Rubric{
	RubricSignaling,
	RubricWeeding,
	RubricMatchingModality,
	RubricVisualQuality,
	RubricConsistency,
	RubricAccessibility,
	RubricTechnicalQuality,
}

// RubricDescriptions is the guidance given to the model for each category.
var RubricDescriptions = map[Rubric]string{
	RubricSignaling:        "Are key concepts emphasised with cues such as highlighting, arrows, or on-screen keywords that guide attention?",
	RubricWeeding:          "Is extraneous material (decorative visuals, background music, tangents) kept out so the learner can focus?",
	RubricMatchingModality: "Do the visuals and the narration complement each other, with spoken explanation paired to relevant imagery?",
	RubricVisualQuality:    "Are visuals clear, legible, well framed, and free of clutter?",
	RubricConsistency:      "Are layout, colours, fonts, and styling consistent across the segment?",
	RubricAccessibility:    "Is the content accessible: readable contrast, text size, captions, and no reliance on colour alone?",
	RubricTechnicalQuality: "Is the recording technically sound: focus, lighting, stable framing, and clean audio cues?",
}

// MinScore and MaxScore bound every rubric score.
const (
	MinScore = 1
	MaxScore = 3
)

// ParseRubric resolves a rubric name, ignoring case and treating underscores
// and hyphens as spaces.
func ParseRubric(name string) (Rubric, bool) {
	key := normalizeRubricName(name)
	for _, r := range Rubrics {
		if normalizeRubricName(string(r)) == key {
			return r, true
		}
	}
	return "", false
}

func normalizeRubricName(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToLower(strings.TrimSpace(s)))
	return strings.Join(strings.Fields(s), " ")
}

// RubricEntry is the score and justification for one category.
type RubricEntry struct {
	Score         int    `json:"score"`
	Justification string `json:"justification"`
}

// RubricScore is a validated evaluation of a single chunk. Scores holds
// exactly one entry per Rubric, each with a score in [MinScore, MaxScore].
type RubricScore struct {
	ChunkIndex int                    `json:"chunk_index"`
	Summary    string                 `json:"summary,omitempty"`
	Scores     map[Rubric]RubricEntry `json:"scores"`
}

// Mean returns the average score across all categories.
func (r *RubricScore) Mean() float64 {
	if len(r.Scores) == 0 {
		return 0
	}
	total := 0
	for _, e := range r.Scores {
		total += e.Score
	}
	return float64(total) / float64(len(r.Scores))
}

// ParseRubricScore validates a raw model response for chunkIndex. The response
// must be a JSON object holding the seven categories, either at the top level
// or under an "evaluation" key. Each category is an object with a numeric
// integer "score" and a non-empty "justification" ("comment" is accepted as
// an alias). Quoted scores are rejected. An optional "summary" string is kept.
func ParseRubricScore(chunkIndex int, raw string) (*RubricScore, error) {
	var top map[string]json.RawMessage
	if err := decodeStrict(raw, &top); err != nil {
		return nil, SchemaErrorf("rubric response is not a JSON object: %v", err)
	}

	out := &RubricScore{ChunkIndex: chunkIndex, Scores: make(map[Rubric]RubricEntry, len(Rubrics))}
	if s, ok := top["summary"]; ok {
		_ = json.Unmarshal(s, &out.Summary)
	}

	categories := top
	for _, key := range []string{"evaluation", "scores"} {
		if nested, ok := top[key]; ok {
			categories = nil
			if err := json.Unmarshal(nested, &categories); err != nil {
				return nil, SchemaErrorf("%q is not an object", key)
			}
			break
		}
	}

	for key, value := range categories {
		rubric, ok := ParseRubric(key)
		if !ok {
			continue
		}
		if _, dup := out.Scores[rubric]; dup {
			return nil, SchemaErrorf("rubric %q appears more than once", rubric)
		}
		entry, err := parseRubricEntry(value)
		if err != nil {
			return nil, SchemaErrorf("rubric %q: %v", rubric, err)
		}
		out.Scores[rubric] = entry
	}

	for _, r := range Rubrics {
		if _, ok := out.Scores[r]; !ok {
			return nil, SchemaErrorf("missing rubric %q", r)
		}
	}
	return out, nil
}

func parseRubricEntry(raw json.RawMessage) (RubricEntry, error) {
	var fields struct {
		Score         json.RawMessage `json:"score"`
		Justification *string         `json:"justification"`
		Comment       *string         `json:"comment"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return RubricEntry{}, err
	}
	token := bytes.TrimSpace(fields.Score)
	if len(token) == 0 || bytes.Equal(token, []byte("null")) {
		return RubricEntry{}, errString("score is missing")
	}
	if token[0] == '"' {
		return RubricEntry{}, errString("score must be a number, not a string")
	}
	f, err := json.Number(token).Float64()
	if err != nil || math.Trunc(f) != f {
		return RubricEntry{}, errString("score must be an integer")
	}
	score := int(f)
	if score < MinScore || score > MaxScore {
		return RubricEntry{}, errString("score out of range [1,3]")
	}
	entry := RubricEntry{Score: score}
	switch {
	case fields.Justification != nil:
		entry.Justification = strings.TrimSpace(*fields.Justification)
	case fields.Comment != nil:
		entry.Justification = strings.TrimSpace(*fields.Comment)
	}
	if entry.Justification == "" {
		return RubricEntry{}, errString("justification is missing")
	}
	return entry, nil
}

type errString string

func (e errString) Error() string { return string(e) }

// decodeStrict rejects trailing garbage after the first JSON value.
func decodeStrict(raw string, v any) error {
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errString("unexpected data after JSON value")
	}
	return nil
}
