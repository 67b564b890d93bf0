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

package llm_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequence returns the scripted responses in order and counts calls.
func sequence(calls *int32, responses ...string) llm.Capability {
	return llm.CapabilityFunc(func(ctx context.Context, req llm.Request) (string, error) {
		n := atomic.AddInt32(calls, 1)
		r := responses[min(int(n), len(responses))-1]
		if strings.HasPrefix(r, "ERR:") {
			return "", errors.New(strings.TrimPrefix(r, "ERR:"))
		}
		return r, nil
	})
}

func validRubric() string {
	return model.ExampleJSON(model.GetExampleRubricScore())
}

func rubricWithout(r model.Rubric) string {
	example := model.GetExampleRubricScore()
	delete(example, string(r))
	return model.ExampleJSON(example)
}

func parseRubric(raw string) (*model.RubricScore, error) {
	return model.ParseRubricScore(0, raw)
}

func TestInvokeRetriesOnceAfterMissingRubric(t *testing.T) {
	var calls int32
	capability := sequence(&calls, rubricWithout(model.RubricWeeding), validRubric())

	retries := 0
	out := llm.Invoke(context.Background(), capability, llm.Request{Prompt: "p"}, parseRubric, llm.Policy{
		Attempts: 3,
		OnRetry:  func(context.Context, llm.Failure) { retries++ },
	})

	require.True(t, out.OK())
	assert.Equal(t, int32(2), calls)
	assert.Equal(t, 2, out.Attempts)
	assert.Equal(t, 1, retries)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, llm.SchemaError, out.Failures[0].Kind)
	assert.Len(t, out.Value.Scores, len(model.Rubrics))
}

func TestInvokeExhaustsBudgetOnSchemaErrors(t *testing.T) {
	bad := strings.Replace(validRubric(), `"score": 3`, `"score": 4`, 1)
	var calls int32
	out := llm.Invoke(context.Background(), sequence(&calls, bad), llm.Request{}, parseRubric, llm.Policy{Attempts: 3})

	assert.False(t, out.OK())
	assert.Equal(t, llm.SchemaError, out.Kind)
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, bad, out.Raw)
	assert.Equal(t, []string{bad, bad, bad}, out.RawResponses())
	assert.ErrorIs(t, out.Err, model.ErrSchemaValidation)
}

func TestInvokeCallErrorsAreRetried(t *testing.T) {
	var calls int32
	out := llm.Invoke(context.Background(), sequence(&calls, "ERR:quota", validRubric()), llm.Request{}, parseRubric, llm.Policy{Attempts: 3})
	require.True(t, out.OK())
	assert.Equal(t, int32(2), calls)
	assert.Equal(t, llm.CallError, out.Failures[0].Kind)

	calls = 0
	out = llm.Invoke(context.Background(), sequence(&calls, "ERR:down"), llm.Request{}, parseRubric, llm.Policy{Attempts: 2})
	assert.Equal(t, llm.CallError, out.Kind)
	assert.ErrorIs(t, out.Err, model.ErrLLMInvocation)
	assert.Empty(t, out.RawResponses())
}

func TestInvokeDoesNotIssueAfterCancel(t *testing.T) {
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := llm.Invoke(ctx, sequence(&calls, validRubric()), llm.Request{}, parseRubric, llm.Policy{Attempts: 3})
	assert.Equal(t, int32(0), calls)
	assert.Equal(t, 0, out.Attempts)
	assert.Equal(t, llm.CallError, out.Kind)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestInvokeInFlightCallSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	capability := llm.CapabilityFunc(func(callCtx context.Context, req llm.Request) (string, error) {
		cancel()
		time.Sleep(10 * time.Millisecond)
		if callCtx.Err() != nil {
			return "", callCtx.Err()
		}
		return validRubric(), nil
	})

	out := llm.Invoke(ctx, capability, llm.Request{}, parseRubric, llm.Policy{Attempts: 3})
	assert.True(t, out.OK())
	assert.Equal(t, 1, out.Attempts)
}

func TestInvokeTimeoutCountsAsFailedAttempt(t *testing.T) {
	var calls int32
	capability := llm.CapabilityFunc(func(ctx context.Context, req llm.Request) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return validRubric(), nil
	})

	out := llm.Invoke(context.Background(), capability, llm.Request{}, parseRubric, llm.Policy{Attempts: 2, Timeout: 20 * time.Millisecond})
	require.True(t, out.OK())
	assert.Equal(t, 2, out.Attempts)
	assert.ErrorIs(t, out.Failures[0].Err, context.DeadlineExceeded)
}

func TestInvokeWrapsPlainValidatorErrors(t *testing.T) {
	validate := func(raw string) (int, error) { return 0, errors.New("nope") }
	var calls int32
	out := llm.Invoke(context.Background(), sequence(&calls, "{}"), llm.Request{}, validate, llm.Policy{Attempts: 1})
	assert.Equal(t, llm.SchemaError, out.Kind)
	assert.ErrorIs(t, out.Err, model.ErrSchemaValidation)
}

func TestCleanJSON(t *testing.T) {
	cases := []struct{ in, want string }{
		{in: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{in: "```\n[1,2]\n```", want: `[1,2]`},
		{in: "Sure! Here you go: {\"a\":{\"b\":2}} hope it helps", want: `{"a":{"b":2}}`},
		{in: "  [ {\"x\":1} ]  ", want: `[ {"x":1} ]`},
		{in: "No", want: "No"},
		{in: "Scores use the [1-3] scale:\n{\"a\":1}", want: `{"a":1}`},
		{in: "See [note] and [2] below. {\"a\":[1,2]} {\"b\":1}", want: `{"a":[1,2]}`},
		{in: "```json\nRubric {draft}: {\"a\":1}\n```", want: `{"a":1}`},
		{in: "broken {\"a\": } tail", want: `{"a": }`},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, llm.CleanJSON(c.in), c.in)
	}
}

func TestInvokeRubricAfterBracketedProse(t *testing.T) {
	var calls int32
	raw := "Each rubric is scored on a [1-3] scale. Here is my evaluation:\n" + validRubric()

	out := llm.Invoke(context.Background(), sequence(&calls, raw), llm.Request{}, parseRubric, llm.Policy{Attempts: 1})
	require.True(t, out.OK())
	assert.Equal(t, int32(1), calls)
	assert.Len(t, out.Value.Scores, len(model.Rubrics))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "valid", llm.Valid.String())
	assert.Equal(t, "schema_error", llm.SchemaError.String())
	assert.Equal(t, "call_error", llm.CallError.String())
}
