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

// Package test holds helpers shared by the package tests: a scripted LLM, a
// fake frame decoder, synthetic frames, and fixture writers. Nothing here
// talks to Google Cloud or runs ffmpeg.
package test

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

func HandleErr(err error, t *testing.T) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestConfig returns the default configuration tuned for fast tests:
// small pools, no backoff, short timeouts.
func NewTestConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Application.GoogleProjectId = "test-project"
	config.Application.ThreadPoolSize = 3
	config.Application.VideoWorkers = 2
	config.Pipeline.CandidatePoolSize = 8
	config.Pipeline.MaxFramesPerChunk = 3
	config.Pipeline.FrameWidth = 32
	config.LLM.BackoffMs = 0
	config.LLM.TimeoutSeconds = 5
	config.LLM.SynthesisTimeoutSeconds = 5
	return config
}

// Reply is one scripted model response.
type Reply struct {
	Text string
	Err  error
}

// ScriptedModel is an llm.Capability for tests. With a Handler set every call
// is delegated to it; otherwise replies are returned in order and the last
// one repeats once the script runs out.
type ScriptedModel struct {
	Handler func(req llm.Request, call int) (string, error)

	mu       sync.Mutex
	replies  []Reply
	requests []llm.Request
}

func NewScriptedModel(replies ...Reply) *ScriptedModel {
	return &ScriptedModel{replies: replies}
}

// NewHandlerModel builds a ScriptedModel that delegates to handler.
func NewHandlerModel(handler func(req llm.Request, call int) (string, error)) *ScriptedModel {
	return &ScriptedModel{Handler: handler}
}

func (m *ScriptedModel) Evaluate(ctx context.Context, req llm.Request) (string, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	call := len(m.requests)
	handler := m.Handler
	var reply Reply
	if handler == nil {
		if len(m.replies) == 0 {
			m.mu.Unlock()
			return "", fmt.Errorf("scripted model has no replies")
		}
		reply = m.replies[min(call, len(m.replies))-1]
	}
	m.mu.Unlock()

	if handler != nil {
		return handler(req, call)
	}
	return reply.Text, reply.Err
}

// Calls returns how many times Evaluate ran.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received.
func (m *ScriptedModel) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// RubricJSON renders a rubric response with the given score for every rubric.
func RubricJSON(score int) string {
	scores := make(map[model.Rubric]int, len(model.Rubrics))
	for _, r := range model.Rubrics {
		scores[r] = score
	}
	return RubricJSONWith(scores)
}

// RubricJSONWith renders a rubric response with per-rubric scores. Rubrics
// missing from scores are omitted from the response.
func RubricJSONWith(scores map[model.Rubric]int) string {
	body := map[string]any{"summary": "scripted"}
	for r, s := range scores {
		body[string(r)] = map[string]any{"score": s, "justification": "scripted " + string(r)}
	}
	b, _ := json.Marshal(body)
	return string(b)
}

// ChunkIndexFromPrompt extracts N from the first "segment N" in a rendered
// prompt, or returns -1.
func ChunkIndexFromPrompt(prompt string) int {
	rest := prompt
	for {
		i := strings.Index(rest, "egment ")
		if i < 0 {
			return -1
		}
		rest = rest[i+len("egment "):]
		var n int
		if _, err := fmt.Sscanf(rest, "%d", &n); err == nil {
			return n
		}
	}
}

// SolidFrame is a w x h image filled with c.
func SolidFrame(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	r, g, b, a := c.RGBA()
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8)
	}
	return img
}

// NoisyFrame is a solid frame with a small deterministic perturbation, so
// frames built with different seeds are near-identical but not equal.
func NoisyFrame(w, h int, c color.RGBA, seed int) image.Image {
	img := SolidFrame(w, h, c).(*image.RGBA)
	for i := 0; i < len(img.Pix); i += 4 {
		if (i/4+seed)%7 == 0 {
			img.Pix[i] = c.R ^ 1
		}
	}
	return img
}

// StripedFrame alternates vertical stripes of a and b, each stripe wide pixels.
func StripedFrame(w, h, stripe int, a, b color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/stripe)%2 == 0 {
				img.Set(x, y, a)
			} else {
				img.Set(x, y, b)
			}
		}
	}
	return img
}

// WriteFakeVideo writes a file whose header sniffs as MP4. The body is not a
// playable video; tests pair it with FakeDecoder.
func WriteFakeVideo(t *testing.T, path string) {
	t.Helper()
	header := []byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00, 'i', 's', 'o', 'm', 'i', 's', 'o', '2'}
	HandleErr(os.MkdirAll(filepath.Dir(path), 0o755), t)
	HandleErr(os.WriteFile(path, append(header, make([]byte, 256)...), 0o644), t)
}

// WriteSRT writes entries as an SRT file.
func WriteSRT(t *testing.T, path string, entries []model.TranscriptEntry) {
	t.Helper()
	var sb strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d\n%s\n%s\n\n", i+1, e.Span.String(), e.Text)
	}
	HandleErr(os.MkdirAll(filepath.Dir(path), 0o755), t)
	HandleErr(os.WriteFile(path, []byte(sb.String()), 0o644), t)
}

// Entry builds a transcript entry from second offsets.
func Entry(seq int, start, end float64, text string) model.TranscriptEntry {
	s, _ := model.SecondsToDuration(start)
	e, _ := model.SecondsToDuration(end)
	return model.TranscriptEntry{Sequence: seq, Span: model.NewTimeSpan(s, e), Text: text}
}

// Seconds converts fractional seconds to a Duration.
func Seconds(f float64) time.Duration {
	d, _ := model.SecondsToDuration(f)
	return d
}
