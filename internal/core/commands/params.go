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

// Package commands holds the workflow steps of the evaluation pipeline. Each
// step is a cor.Command: it reads its input from the chain context, records
// failures with AddError, and leaves its output under CtxOut for the next
// step.
package commands

import "time"

// Context keys shared between commands. Each is set once per video by the
// command that produces it.
const (
	ParamJob              = "__JOB__"
	ParamTranscript       = "__TRANSCRIPT__"
	ParamChunks           = "__CHUNKS__"
	ParamIndividualReport = "__INDIVIDUAL_REPORT__"
	ParamFinalReport      = "__FINAL_REPORT__"
	ParamLogoReport       = "__LOGO_REPORT__"
	ParamReportFiles      = "__REPORT_FILES__"
)

// now stamps generated reports.
var now = func() time.Time { return time.Now().UTC() }
