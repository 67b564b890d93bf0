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

// Package cor is a small chain-of-responsibility framework. A workflow is a
// Chain of Commands sharing one Context; each command reads its input from the
// context, writes its output back, and records failures as data instead of
// returning them.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	// CtxIn holds the primary input of the running command. The chain moves
	// the previous command's CtxOut here before the next command runs.
	CtxIn = "__IN__"
	// CtxOut is where a command leaves its primary output.
	CtxOut = "__OUT__"
)

// Context is the shared state of a chain execution. Implementations must be
// safe for use by the worker goroutines a command may start.
type Context interface {
	SetContext(ctx context.Context)
	GetContext() context.Context

	Add(key string, value any) Context
	Get(key string) any
	Remove(key string)

	// AddError records a failure under key, normally the command name.
	// Repeated errors under the same key are joined.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	// Err joins every recorded error, or returns nil.
	Err() error

	// AddTempFile registers a file that Close removes.
	AddTempFile(file string)
	GetTempFiles() []string
	Close()
}

// Executable is anything that runs against a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single named step of a workflow.
type Command interface {
	Executable

	GetName() string
	GetInputParam() string
	GetOutputParam() string
	// IsExecutable is checked by the chain before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain runs commands in order, piping CtxOut into CtxIn between them.
type Chain interface {
	Command
	ContinueOnFailure(bool) Chain
	AddCommand(command Command) Chain
}
