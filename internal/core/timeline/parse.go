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

// Package timeline turns a subtitle transcript into the ordered chunks that
// drive evaluation. Parsing accepts SRT and WebVTT; Index validates the
// entries and partitions the timeline.
package timeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// Format is a transcript file format.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

var (
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	digitsRe = regexp.MustCompile(`^\d+$`)
)

// ParseFile reads and parses a transcript from disk.
func ParseFile(path string) ([]model.TranscriptEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMalformedTranscript, err)
	}
	defer f.Close()
	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Parse reads an SRT or WebVTT transcript. The format is detected from the
// WEBVTT header. Cue text lines are joined with single spaces and markup tags
// are removed. Entries are returned in file order without further checks;
// Index validates ordering.
func Parse(r io.Reader) ([]model.TranscriptEntry, error) {
	blocks, err := readBlocks(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrMalformedTranscript, err)
	}

	format := FormatSRT
	if len(blocks) > 0 && strings.HasPrefix(blocks[0].lines[0], "WEBVTT") {
		format = FormatVTT
		blocks = blocks[1:]
	}

	var entries []model.TranscriptEntry
	for _, b := range blocks {
		if format == FormatVTT && isVTTMetadata(b.lines[0]) {
			continue
		}
		entry, err := parseCue(b, format, len(entries)+1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, model.TranscriptErrorf("transcript has no cues")
	}
	return entries, nil
}

type block struct {
	line  int // 1-based line number of the first line
	lines []string
}

func readBlocks(r io.Reader) ([]block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var blocks []block
	var cur *block
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimRight(scanner.Text(), "\r ")
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strings.TrimSpace(line) == "" {
			cur = nil
			continue
		}
		if cur == nil {
			blocks = append(blocks, block{line: n})
			cur = &blocks[len(blocks)-1]
		}
		cur.lines = append(cur.lines, line)
	}
	return blocks, scanner.Err()
}

func isVTTMetadata(first string) bool {
	for _, p := range []string{"NOTE", "STYLE", "REGION"} {
		if first == p || strings.HasPrefix(first, p+" ") || strings.HasPrefix(first, p+"\t") {
			return true
		}
	}
	return false
}

func parseCue(b block, format Format, fallbackSeq int) (model.TranscriptEntry, error) {
	lines := b.lines
	seq := fallbackSeq
	timing := 0
	if !strings.Contains(lines[0], "-->") {
		// SRT requires a numeric id; WebVTT allows any identifier.
		if format == FormatSRT && !digitsRe.MatchString(strings.TrimSpace(lines[0])) {
			return model.TranscriptEntry{}, model.TranscriptErrorf("line %d: expected cue number, got %q", b.line, lines[0])
		}
		if v, err := strconv.Atoi(strings.TrimSpace(lines[0])); err == nil {
			seq = v
		}
		timing = 1
	}
	if timing >= len(lines) || !strings.Contains(lines[timing], "-->") {
		return model.TranscriptEntry{}, model.TranscriptErrorf("line %d: missing timing line", b.line)
	}

	startText, endText, _ := strings.Cut(lines[timing], "-->")
	endFields := strings.Fields(endText)
	if len(endFields) == 0 {
		return model.TranscriptEntry{}, model.TranscriptErrorf("line %d: missing end time", b.line+timing)
	}
	start, err := model.ParseTimestamp(startText)
	if err != nil {
		return model.TranscriptEntry{}, model.TranscriptErrorf("line %d: %v", b.line+timing, err)
	}
	end, err := model.ParseTimestamp(endFields[0])
	if err != nil {
		return model.TranscriptEntry{}, model.TranscriptErrorf("line %d: %v", b.line+timing, err)
	}

	var text []string
	for _, l := range lines[timing+1:] {
		l = strings.TrimSpace(tagRe.ReplaceAllString(l, ""))
		if l != "" {
			text = append(text, l)
		}
	}
	if len(text) == 0 {
		return model.TranscriptEntry{}, model.TranscriptErrorf("line %d: cue has no text", b.line)
	}

	return model.TranscriptEntry{
		Sequence: seq,
		Span:     model.NewTimeSpan(start, end),
		Text:     strings.Join(text, " "),
	}, nil
}
