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

// Package model defines the data structures shared by the evaluation pipeline.
// This file holds the error kinds every stage reports. Callers classify
// failures with errors.Is against these sentinels; the wrapping error carries
// the detail (file, chunk, attempt) for logs.
package model

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTranscript is raised when a transcript cannot be parsed or
	// its entries are unordered, overlapping, or have non-positive durations.
	ErrMalformedTranscript = errors.New("malformed transcript")

	// ErrFrameDecode is raised when the video cannot be opened or a chunk
	// interval lies outside the video duration beyond the allowed slack.
	ErrFrameDecode = errors.New("frame decode failed")

	// ErrLLMInvocation marks a transport, quota, or timeout failure talking to
	// the model. It is retryable.
	ErrLLMInvocation = errors.New("llm invocation failed")

	// ErrSchemaValidation marks a model response that did not match the
	// expected JSON shape or value ranges. It is retryable.
	ErrSchemaValidation = errors.New("response failed schema validation")

	// ErrEvaluationFailed is terminal for a single chunk once retries run out.
	ErrEvaluationFailed = errors.New("chunk evaluation failed")

	// ErrAggregationFailed is terminal for a video's synthesis step.
	ErrAggregationFailed = errors.New("report aggregation failed")

	// ErrInvalidJob is raised for video/transcript pairs that cannot be run.
	ErrInvalidJob = errors.New("invalid video job")
)

// SchemaErrorf wraps ErrSchemaValidation with a formatted detail message.
func SchemaErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaValidation, fmt.Sprintf(format, args...))
}

// TranscriptErrorf wraps ErrMalformedTranscript with a formatted detail message.
func TranscriptErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedTranscript, fmt.Sprintf(format, args...))
}

// FrameErrorf wraps ErrFrameDecode with a formatted detail message.
func FrameErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrFrameDecode, fmt.Sprintf(format, args...))
}
