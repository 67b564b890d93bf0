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

// Package model defines the data structures for the application. This file
// provides hardcoded example responses that are embedded into prompts as
// few-shot examples, so the model sees the exact JSON shape expected back.
package model

import "encoding/json"

// GetExampleRubricScore returns a sample chunk evaluation in the shape the
// evaluation prompt asks for.
func GetExampleRubricScore() map[string]any {
	out := map[string]any{
		string(RubricSignaling):        map[string]any{"score": 3, "justification": "The formula is highlighted and the narrator points to each term."},
		string(RubricWeeding):          map[string]any{"score": 2, "justification": "A decorative animated background competes with the slide text."},
		string(RubricMatchingModality): map[string]any{"score": 3, "justification": "Narration describes exactly what is on screen."},
		string(RubricVisualQuality):    map[string]any{"score": 2, "justification": "Slide text is legible but the bottom line is cropped."},
		string(RubricConsistency):      map[string]any{"score": 3, "justification": "Fonts and colours match the previous slides."},
		string(RubricAccessibility):    map[string]any{"score": 1, "justification": "Light grey text on white has poor contrast."},
		string(RubricTechnicalQuality): map[string]any{"score": 2, "justification": "Slight camera shake while the presenter gestures."},
	}
	out["summary"] = "The presenter introduces the photosynthesis equation over a slide with the formula in large type."
	return out
}

// GetExampleRecommendations returns a sample synthesis response.
func GetExampleRecommendations() []map[string]any {
	return []map[string]any{
		{
			"timestamp_range": map[string]string{"start": "00:01:05,000", "end": "00:01:32,500"},
			"rubric":          string(RubricAccessibility),
			"issue":           "Light grey equation text on a white slide is hard to read.",
			"suggested_fix":   "Use dark text or add a contrasting panel behind the equation.",
		},
		{
			"timestamp_range": map[string]string{"start": "00:03:10,000", "end": "00:03:45,000"},
			"rubric":          string(RubricWeeding),
			"issue":           "Background music plays over the explanation of the light reactions.",
			"suggested_fix":   "Remove or lower the background track during narration.",
		},
	}
}

// GetExampleLogoResponse returns a sample logo detection response for two frames.
func GetExampleLogoResponse() map[string]any {
	return map[string]any{
		"detections": []map[string]any{
			{
				"frame_index": 120,
				"present":     true,
				"region":      map[string]float64{"x": 0.82, "y": 0.04, "width": 0.14, "height": 0.09},
				"position":    "top right corner",
			},
			{
				"frame_index": 186,
				"present":     false,
			},
		},
	}
}

// ExampleJSON renders an example for embedding in a prompt.
func ExampleJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}
