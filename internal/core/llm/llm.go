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

// Package llm is the boundary between the pipeline and a multimodal language
// model. A Capability turns a prompt plus images into text; Invoke wraps a
// capability with per-attempt timeouts, response validation, and a bounded
// retry budget, and reports the result as a tagged Outcome.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// Image is an inline image attachment.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is one model call: the rendered prompt and its attachments in order.
type Request struct {
	Prompt string
	Images []Image
}

// Capability is the opaque model. Implementations must be safe for concurrent
// use; one call is in flight per chunk worker.
type Capability interface {
	Evaluate(ctx context.Context, req Request) (string, error)
}

// CapabilityFunc adapts a function to Capability.
type CapabilityFunc func(ctx context.Context, req Request) (string, error)

func (f CapabilityFunc) Evaluate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Kind tags an Outcome.
type Kind int

const (
	Valid Kind = iota
	SchemaError
	CallError
)

func (k Kind) String() string {
	switch k {
	case Valid:
		return "valid"
	case SchemaError:
		return "schema_error"
	case CallError:
		return "call_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Failure describes one failed attempt.
type Failure struct {
	Attempt int
	Kind    Kind
	Raw     string
	Err     error
}

// Outcome is the result of Invoke. Kind is Valid when some attempt produced a
// response that passed validation; otherwise it is the kind of the last
// failure. Failures lists every failed attempt in order, so raw responses of
// schema failures are always retained.
type Outcome[T any] struct {
	Kind     Kind
	Value    T
	Raw      string
	Err      error
	Attempts int
	Failures []Failure
}

// OK reports whether the outcome holds a validated value.
func (o Outcome[T]) OK() bool {
	return o.Kind == Valid
}

// RawResponses returns the raw text of every failed attempt that got a response.
func (o Outcome[T]) RawResponses() []string {
	var out []string
	for _, f := range o.Failures {
		if f.Raw != "" {
			out = append(out, f.Raw)
		}
	}
	return out
}

// Validator parses and checks a cleaned response.
type Validator[T any] func(raw string) (T, error)

// Policy bounds an invocation.
type Policy struct {
	// Attempts is the total number of calls allowed, including the first.
	Attempts int
	// Timeout applies to each attempt separately.
	Timeout time.Duration
	// Backoff is the pause between attempts.
	Backoff time.Duration
	// OnRetry is called before every attempt after the first.
	OnRetry func(ctx context.Context, next Failure)
}

// Invoke calls capability until validate accepts a response or the attempt
// budget runs out. Every retry is a fresh call with the same request; earlier
// responses are never merged into later ones.
//
// Once ctx is done no new attempt is issued. An attempt that is already in
// flight runs to completion or to its own timeout, which is derived from a
// non-cancelling copy of ctx so trace and logging values still propagate.
func Invoke[T any](ctx context.Context, capability Capability, req Request, validate Validator[T], policy Policy) Outcome[T] {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var out Outcome[T]
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if out.Attempts == 0 {
				out.Kind = CallError
				out.Err = fmt.Errorf("%w: not issued: %w", model.ErrLLMInvocation, err)
			}
			return out
		}
		if attempt > 1 && policy.OnRetry != nil {
			policy.OnRetry(ctx, out.Failures[len(out.Failures)-1])
		}

		out.Attempts = attempt
		raw, err := call(ctx, capability, req, policy.Timeout)
		if err != nil {
			f := Failure{Attempt: attempt, Kind: CallError, Err: fmt.Errorf("%w: %w", model.ErrLLMInvocation, err)}
			out.record(f)
		} else {
			cleaned := CleanJSON(raw)
			value, verr := validate(cleaned)
			if verr == nil {
				out.Kind, out.Value, out.Raw, out.Err = Valid, value, raw, nil
				return out
			}
			if !errors.Is(verr, model.ErrSchemaValidation) {
				verr = fmt.Errorf("%w: %w", model.ErrSchemaValidation, verr)
			}
			out.record(Failure{Attempt: attempt, Kind: SchemaError, Raw: raw, Err: verr})
		}

		if attempt < attempts && policy.Backoff > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(policy.Backoff):
			}
		}
	}
	return out
}

func (o *Outcome[T]) record(f Failure) {
	o.Failures = append(o.Failures, f)
	o.Kind, o.Raw, o.Err = f.Kind, f.Raw, f.Err
}

func call(ctx context.Context, capability Capability, req Request, timeout time.Duration) (string, error) {
	callCtx := context.WithoutCancel(ctx)
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, timeout)
		defer cancel()
	}

	type result struct {
		raw string
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := capability.Evaluate(callCtx, req)
		done <- result{raw, err}
	}()

	select {
	case r := <-done:
		return r.raw, r.err
	case <-callCtx.Done():
		return "", fmt.Errorf("attempt timed out after %s: %w", timeout, callCtx.Err())
	}
}

// CleanJSON strips markdown code fences and any prose around the JSON value
// in s. When the prose itself contains brackets, the longest well-formed
// object or array wins, the earliest on ties. If no candidate parses, the
// span from the first opening bracket to its last matching closer is
// returned so the caller's validator can report the error.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		if j := strings.Index(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		s = strings.TrimSpace(rest)
	}

	if v, ok := longestJSON(s); ok {
		return v
	}

	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

// longestJSON returns the longest object or array in s that decodes on its
// own. Offsets inside an accepted value are not rescanned.
func longestJSON(s string) (string, bool) {
	var best string
	for i := 0; i < len(s); i++ {
		if s[i] != '{' && s[i] != '[' {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(s[i:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			continue
		}
		n := int(dec.InputOffset())
		if n > len(best) {
			best = s[i : i+n]
		}
		i += n - 1
	}
	return best, best != ""
}
