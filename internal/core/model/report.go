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

// EvaluationStatus is the outcome recorded for a chunk.
type EvaluationStatus string

const (
	StatusScored           EvaluationStatus = "scored"
	StatusEvaluationFailed EvaluationStatus = "evaluation_failed"
)

// ChunkEvaluation is the per-chunk record written to the individual report.
// Failed chunks keep their slot in the sequence together with the raw model
// responses so the failure can be inspected.
type ChunkEvaluation struct {
	ChunkIndex    int              `json:"chunk_index"`
	Span          TimeSpan         `json:"timestamp"`
	Text          string           `json:"text"`
	Keyframes     []KeyframeRef    `json:"keyframes"`
	Status        EvaluationStatus `json:"status"`
	Attempts      int              `json:"attempts"`
	Score         *RubricScore     `json:"score,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	RawResponses  []string         `json:"raw_responses,omitempty"`
}

// Scored reports whether the chunk has a valid RubricScore.
func (c *ChunkEvaluation) Scored() bool {
	return c.Status == StatusScored && c.Score != nil
}

// IndividualReport is the ordered list of chunk evaluations for one video.
type IndividualReport struct {
	VideoId     string             `json:"video_id"`
	VideoName   string             `json:"video_name"`
	GeneratedAt time.Time          `json:"generated_at"`
	Chunks      []*ChunkEvaluation `json:"chunks"`
}

// ReportStatus is the outcome of whole-video synthesis.
type ReportStatus string

const (
	ReportComplete          ReportStatus = "complete"
	ReportAggregationFailed ReportStatus = "aggregation_failed"
)

// Recommendation is a single timestamp-anchored improvement.
type Recommendation struct {
	Rank         int      `json:"rank"`
	Span         TimeSpan `json:"timestamp_range"`
	Rubric       Rubric   `json:"rubric"`
	Issue        string   `json:"issue"`
	SuggestedFix string   `json:"suggested_fix"`
}

// FinalReport is the whole-video synthesis. It is built once from the complete
// set of chunk evaluations.
type FinalReport struct {
	VideoId         string             `json:"video_id"`
	VideoName       string             `json:"video_name"`
	GeneratedAt     time.Time          `json:"generated_at"`
	Status          ReportStatus       `json:"status"`
	Recommendations []Recommendation   `json:"recommendations"`
	ScoredChunks    []int              `json:"scored_chunks"`
	CoverageGaps    []TimeSpan         `json:"coverage_gaps"`
	RubricAverages  map[Rubric]float64 `json:"rubric_averages,omitempty"`
	Warnings        []string           `json:"warnings,omitempty"`
	Attempts        int                `json:"attempts"`
	FailureReason   string             `json:"failure_reason,omitempty"`
	RawResponses    []string           `json:"raw_responses,omitempty"`
}

// Complete reports whether synthesis produced a usable report.
func (r *FinalReport) Complete() bool {
	return r.Status == ReportComplete
}

// RawRecommendation is the shape the synthesis prompt asks for. Fields are
// loose so that semantic problems (unknown rubric, bad range) can be dropped
// one by one instead of failing the whole response.
type RawRecommendation struct {
	TimestampRange json.RawMessage `json:"timestamp_range"`
	Timestamp      json.RawMessage `json:"timestamp"`
	Rubric         string          `json:"rubric"`
	Issue          string          `json:"issue"`
	SuggestedFix   string          `json:"suggested_fix"`
	Suggestion     string          `json:"suggestion"`
}

// ParseRecommendations validates the structure of a synthesis response: a JSON
// array (or an object with a "recommendations" array) whose elements are
// objects. Element level problems are left to the caller.
func ParseRecommendations(raw string) ([]RawRecommendation, error) {
	trimmed := strings.TrimSpace(raw)
	var out []RawRecommendation
	if strings.HasPrefix(trimmed, "{") {
		var wrapper struct {
			Recommendations *[]RawRecommendation `json:"recommendations"`
		}
		if err := decodeStrict(trimmed, &wrapper); err != nil {
			return nil, SchemaErrorf("synthesis response is not valid JSON: %v", err)
		}
		if wrapper.Recommendations == nil {
			return nil, SchemaErrorf("synthesis response has no recommendations array")
		}
		out = *wrapper.Recommendations
	} else if err := decodeStrict(trimmed, &out); err != nil {
		return nil, SchemaErrorf("synthesis response is not a JSON array of objects: %v", err)
	}
	if out == nil {
		out = []RawRecommendation{}
	}
	return out, nil
}

// Resolve converts a raw recommendation into a typed one. The returned string
// explains why the element was rejected when ok is false.
func (r RawRecommendation) Resolve() (Recommendation, string, bool) {
	rubric, ok := ParseRubric(r.Rubric)
	if !ok {
		return Recommendation{}, "unknown rubric " + strconvQuote(r.Rubric), false
	}
	rangeRaw := r.TimestampRange
	if len(rangeRaw) == 0 {
		rangeRaw = r.Timestamp
	}
	if len(rangeRaw) == 0 {
		return Recommendation{}, "missing timestamp_range", false
	}
	var span TimeSpan
	if err := json.Unmarshal(rangeRaw, &span); err != nil {
		return Recommendation{}, "unreadable timestamp_range: " + err.Error(), false
	}
	if !span.Valid() {
		return Recommendation{}, "empty or inverted timestamp_range " + span.String(), false
	}
	fix := r.SuggestedFix
	if fix == "" {
		fix = r.Suggestion
	}
	if strings.TrimSpace(r.Issue) == "" && strings.TrimSpace(fix) == "" {
		return Recommendation{}, "recommendation has neither issue nor suggested_fix", false
	}
	return Recommendation{Span: span, Rubric: rubric, Issue: strings.TrimSpace(r.Issue), SuggestedFix: strings.TrimSpace(fix)}, "", true
}

func strconvQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
