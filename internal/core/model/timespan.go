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
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeSpan is a half-open interval [Start, End) on the video timeline.
// On the wire it is written as {"start":"HH:MM:SS,mmm","end":"HH:MM:SS,mmm"}.
type TimeSpan struct {
	Start time.Duration
	End   time.Duration
}

// NewTimeSpan is a convenience constructor.
func NewTimeSpan(start, end time.Duration) TimeSpan {
	return TimeSpan{Start: start, End: end}
}

// Duration returns End - Start.
func (t TimeSpan) Duration() time.Duration {
	return t.End - t.Start
}

// Midpoint returns the instant halfway through the span.
func (t TimeSpan) Midpoint() time.Duration {
	return t.Start + (t.End-t.Start)/2
}

// Valid reports whether the span has a positive duration and a non-negative start.
func (t TimeSpan) Valid() bool {
	return t.Start >= 0 && t.End > t.Start
}

// Contains reports whether other lies entirely inside t.
func (t TimeSpan) Contains(other TimeSpan) bool {
	return other.Start >= t.Start && other.End <= t.End
}

// Overlaps reports whether the two half-open spans share any instant.
func (t TimeSpan) Overlaps(other TimeSpan) bool {
	return t.Start < other.End && other.Start < t.End
}

// String renders the span the way subtitle files write a cue timing line.
func (t TimeSpan) String() string {
	return FormatTimestamp(t.Start) + " --> " + FormatTimestamp(t.End)
}

type timeSpanJSON struct {
	Start json.RawMessage `json:"start"`
	End   json.RawMessage `json:"end"`
}

func (t TimeSpan) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}{FormatTimestamp(t.Start), FormatTimestamp(t.End)})
}

// UnmarshalJSON accepts either the object form or a single
// "start --> end" string. Each bound may be a timestamp string or a number
// of seconds.
func (t *TimeSpan) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		span, err := ParseTimeSpan(s)
		if err != nil {
			return err
		}
		*t = span
		return nil
	}
	var raw timeSpanJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Start == nil || raw.End == nil {
		return fmt.Errorf("time span requires start and end")
	}
	start, err := parseJSONInstant(raw.Start)
	if err != nil {
		return fmt.Errorf("invalid start: %w", err)
	}
	end, err := parseJSONInstant(raw.End)
	if err != nil {
		return fmt.Errorf("invalid end: %w", err)
	}
	t.Start, t.End = start, end
	return nil
}

func parseJSONInstant(raw json.RawMessage) (time.Duration, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return ParseTimestamp(s)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("expected timestamp string or seconds, got %s", string(raw))
	}
	return SecondsToDuration(f)
}

// ParseTimeSpan parses "00:00:05,000 --> 00:00:12,000". A hyphen is accepted
// as the separator as well since models sometimes shorten the arrow.
func ParseTimeSpan(s string) (TimeSpan, error) {
	sep := "-->"
	if !strings.Contains(s, sep) {
		sep = "-"
	}
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return TimeSpan{}, fmt.Errorf("invalid time span %q", s)
	}
	start, err := ParseTimestamp(parts[0])
	if err != nil {
		return TimeSpan{}, err
	}
	end, err := ParseTimestamp(parts[1])
	if err != nil {
		return TimeSpan{}, err
	}
	return TimeSpan{Start: start, End: end}, nil
}

// FormatTimestamp renders d as HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// ParseTimestamp reads subtitle style timestamps. Supported forms are
// HH:MM:SS,mmm (SRT), HH:MM:SS.mmm and MM:SS.mmm (WebVTT), HH:MM:SS, and a
// bare number of seconds. The fraction may have one to nine digits.
func ParseTimestamp(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	if !strings.Contains(s, ":") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		return SecondsToDuration(f)
	}

	clock := strings.Replace(s, ",", ".", 1)
	var frac string
	if i := strings.IndexByte(clock, '.'); i >= 0 {
		clock, frac = clock[:i], clock[i+1:]
	}
	fields := strings.Split(clock, ":")
	if len(fields) < 2 || len(fields) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	var units []int64
	for _, f := range fields {
		v, err := strconv.ParseInt(f, 10, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		units = append(units, v)
	}
	if len(units) == 2 {
		units = append([]int64{0}, units...)
	}
	if units[1] > 59 || units[2] > 59 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	d := time.Duration(units[0])*time.Hour + time.Duration(units[1])*time.Minute + time.Duration(units[2])*time.Second
	if frac != "" {
		if len(frac) > 9 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		for i := len(frac); i < 9; i++ {
			n *= 10
		}
		d += time.Duration(n)
	}
	return d, nil
}

// SecondsToDuration converts fractional seconds, rejecting negative and
// non-finite values.
func SecondsToDuration(f float64) (time.Duration, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, fmt.Errorf("invalid seconds value %v", f)
	}
	return time.Duration(math.Round(f * float64(time.Second))), nil
}
