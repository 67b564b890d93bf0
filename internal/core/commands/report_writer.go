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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

const (
	IndividualReportSuffix = "_individual_report.json"
	CombinedReportPrefix   = "combined_report_"
	FailedReportSuffix     = ".failed.json"
	DefaultLogoSuffix      = "_logo_results.json"
)

// IndividualReportFile is the file name of a video's per-chunk report.
func IndividualReportFile(video string) string {
	return video + IndividualReportSuffix
}

// CombinedReportFile is the file name of a video's final report.
func CombinedReportFile(video string) string {
	return CombinedReportPrefix + video + ".json"
}

// FailedReportFile holds the diagnostics of a synthesis that never validated.
func FailedReportFile(video string) string {
	return CombinedReportPrefix + video + FailedReportSuffix
}

// ReportWriter persists the reports of a video under <output>/<video>/. For a
// FinalReport it writes the individual report alongside; a FinalReport whose
// synthesis failed goes to the .failed.json diagnostics file instead of the
// combined report. A LogoReport is written on its own. The written paths are
// the command's output.
type ReportWriter struct {
	cor.BaseCommand
	logoSuffix string
}

func NewReportWriter(name string, logoSuffix string) *ReportWriter {
	if logoSuffix == "" {
		logoSuffix = DefaultLogoSuffix
	}
	return &ReportWriter{BaseCommand: *cor.NewBaseCommand(name), logoSuffix: logoSuffix}
}

func (w *ReportWriter) IsExecutable(context cor.Context) bool {
	return w.BaseCommand.IsExecutable(context) && context.Get(ParamJob) != nil
}

func (w *ReportWriter) Execute(context cor.Context) {
	job := context.Get(ParamJob).(*model.VideoJob)
	dir := filepath.Join(job.OutputDir, job.Name)

	var written []string
	write := func(name string, v any) bool {
		path := filepath.Join(dir, name)
		if err := WriteJSON(path, v); err != nil {
			w.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(w.GetName(), err)
			return false
		}
		written = append(written, path)
		return true
	}

	switch report := context.Get(w.GetInputParam()).(type) {
	case *model.FinalReport:
		if individual, ok := context.Get(ParamIndividualReport).(*model.IndividualReport); ok {
			if !write(IndividualReportFile(job.Name), individual) {
				return
			}
		}
		name := CombinedReportFile(job.Name)
		if !report.Complete() {
			name = FailedReportFile(job.Name)
		}
		if !write(name, report) {
			return
		}
	case *model.LogoReport:
		if !write(job.Name+w.logoSuffix, report) {
			return
		}
	default:
		w.GetErrorCounter().Add(context.GetContext(), 1)
		context.AddError(w.GetName(), fmt.Errorf("cannot write report of type %T", report))
		return
	}

	slog.Info("reports written", "video", job.Name, "files", written)
	w.GetSuccessCounter().Add(context.GetContext(), 1)
	context.Add(ParamReportFiles, written)
	context.Add(w.GetOutputParam(), written)
}

// WriteJSON writes v as indented JSON, replacing path atomically.
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
