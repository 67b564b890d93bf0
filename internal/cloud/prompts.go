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

package cloud

// DefaultRubricPrompt scores one chunk. Keyframe images follow the prompt in
// timestamp order.
const DefaultRubricPrompt = `You are an expert in multimedia learning reviewing one segment of an educational video.

Segment {{.CHUNK_INDEX}} runs from {{.START}} to {{.END}}.
Transcript for this segment:
"""
{{.TRANSCRIPT}}
"""
{{.FRAME_COUNT}} keyframes from the segment are attached in time order.

Score the segment against each rubric below using 1 (poor), 2 (adequate) or 3 (good),
and give a one or two sentence justification for every score.
{{range .RUBRICS}}
- {{.Name}}: {{.Description}}{{end}}

Also write a short "summary" of what happens in the segment.

Respond with a single JSON object and nothing else. Use exactly these rubric names as keys.
Example:
{{.EXAMPLE_JSON}}
`

// DefaultSynthesisPrompt turns every chunk evaluation of a video into ranked,
// timestamp-anchored recommendations.
const DefaultSynthesisPrompt = `You are an expert instructional designer. Below are per-segment rubric evaluations of the
educational video "{{.VIDEO_NAME}}", which runs from {{.VIDEO_START}} to {{.VIDEO_END}}.
Scores are 1 (poor), 2 (adequate) or 3 (good).

Segments with status "evaluation_failed" could not be evaluated. Do not make recommendations
for time ranges that fall only inside failed segments.

Segments:
{{.CHUNKS}}

Identify the most important improvements for the whole video, most important first.
Each recommendation must reference one of these rubrics: {{.RUBRIC_NAMES}}.
Each timestamp_range must lie between {{.VIDEO_START}} and {{.VIDEO_END}} and use the HH:MM:SS,mmm format.

Respond with a JSON array and nothing else.
Example:
{{.EXAMPLE_JSON}}
`

// DefaultLogoPrompt asks whether a reference logo is visible in each keyframe.
// The reference images are attached first; keyframes follow.
const DefaultLogoPrompt = `{{if eq .REFERENCE_COUNT 1}}The first image is a reference logo.{{else}}The first {{.REFERENCE_COUNT}} images are variants of the same reference logo.{{end}} The remaining {{.FRAME_COUNT}} images are keyframes from
segment {{.CHUNK_INDEX}} ({{.START}} to {{.END}}) of a video, in this order:
{{range .FRAMES}}
- frame_index {{.FrameIndex}} at {{.Timestamp}}{{end}}

For every keyframe decide whether the reference logo, in any of its variants, is visible. When it is, give its bounding
box as fractions of the frame width and height (x, y is the top-left corner, all values between
0 and 1) and a short position such as "top right corner".

Respond with a single JSON object and nothing else, with one detection per keyframe.
Example:
{{.EXAMPLE_JSON}}
`
