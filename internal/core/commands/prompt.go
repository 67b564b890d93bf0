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

package commands

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

const jpegMIMEType = "image/jpeg"

// rubricPromptEntry is how a rubric is rendered in the scoring prompt.
type rubricPromptEntry struct {
	Name        string
	Description string
}

func rubricPromptEntries() []rubricPromptEntry {
	out := make([]rubricPromptEntry, 0, len(model.Rubrics))
	for _, r := range model.Rubrics {
		out = append(out, rubricPromptEntry{Name: string(r), Description: model.RubricDescriptions[r]})
	}
	return out
}

func renderPrompt(tmpl *template.Template, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt %s: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

// keyframeImages returns the chunk's keyframes as JPEG attachments in
// timestamp order.
func keyframeImages(chunk *model.Chunk) []llm.Image {
	out := make([]llm.Image, 0, len(chunk.Keyframes))
	for _, kf := range chunk.Keyframes {
		out = append(out, llm.Image{MIMEType: jpegMIMEType, Data: kf.JPEG})
	}
	return out
}

func keyframeRefs(chunk *model.Chunk) []model.KeyframeRef {
	out := make([]model.KeyframeRef, 0, len(chunk.Keyframes))
	for _, kf := range chunk.Keyframes {
		out = append(out, kf.Ref())
	}
	return out
}
