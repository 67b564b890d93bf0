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

package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/commands"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"golang.org/x/sync/errgroup"
)

// VideoStatus is the outcome of one video in a batch.
type VideoStatus string

const (
	VideoCompleted         VideoStatus = "completed"
	VideoAggregationFailed VideoStatus = "aggregation_failed"
	VideoFailed            VideoStatus = "failed"
	VideoSkipped           VideoStatus = "skipped"
)

// VideoResult summarises one video's run.
type VideoResult struct {
	Video           string      `json:"video"`
	VideoId         string      `json:"video_id"`
	Status          VideoStatus `json:"status"`
	Chunks          int         `json:"chunks"`
	FailedChunks    int         `json:"failed_chunks"`
	Recommendations int         `json:"recommendations"`
	ReportFiles     []string    `json:"report_files,omitempty"`
	Errors          []string    `json:"errors,omitempty"`
	ElapsedMs       int64       `json:"elapsed_ms"`
}

// BatchSummary is returned by BatchRunner.Run, one result per job in input
// order.
type BatchSummary struct {
	RunId    string        `json:"run_id"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Videos   []VideoResult `json:"videos"`
}

// Count returns how many videos ended with status.
func (s *BatchSummary) Count(status VideoStatus) int {
	n := 0
	for _, v := range s.Videos {
		if v.Status == status {
			n++
		}
	}
	return n
}

// BatchRunner runs a per-video workflow over many jobs, a bounded number at a
// time. A failing video never stops the others. Once ctx is done no further
// video is started and the remaining ones are reported as skipped; videos
// already running stop issuing LLM calls but finish the calls in flight.
type BatchRunner struct {
	workflow cor.Executable
	workers  int
}

func NewBatchRunner(workflow cor.Executable, workers int) *BatchRunner {
	if workers < 1 {
		workers = 1
	}
	return &BatchRunner{workflow: workflow, workers: workers}
}

func (r *BatchRunner) Run(ctx context.Context, jobs []*model.VideoJob) *BatchSummary {
	summary := &BatchSummary{
		RunId:   uuid.NewString(),
		Started: time.Now().UTC(),
		Videos:  make([]VideoResult, len(jobs)),
	}
	slog.Info("batch started", "run", summary.RunId, "videos", len(jobs), "workers", r.workers)

	var g errgroup.Group
	g.SetLimit(r.workers)
	for i, job := range jobs {
		summary.Videos[i] = VideoResult{Video: job.Name, VideoId: job.Id, Status: VideoSkipped}
		if ctx.Err() != nil {
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			summary.Videos[i] = r.runOne(ctx, job)
			return nil
		})
	}
	_ = g.Wait()

	summary.Finished = time.Now().UTC()
	slog.Info("batch finished", "run", summary.RunId,
		"completed", summary.Count(VideoCompleted),
		"aggregation_failed", summary.Count(VideoAggregationFailed),
		"failed", summary.Count(VideoFailed),
		"skipped", summary.Count(VideoSkipped))
	return summary
}

func (r *BatchRunner) runOne(ctx context.Context, job *model.VideoJob) VideoResult {
	started := time.Now()
	chCtx := cor.NewBaseContextWith(ctx)
	defer chCtx.Close()
	chCtx.Add(cor.CtxIn, job)

	slog.Info("video started", "video", job.Name, "id", job.Id)
	r.workflow.Execute(chCtx)

	result := Result(job, chCtx)
	result.ElapsedMs = time.Since(started).Milliseconds()
	attrs := []any{"video", job.Name, "status", result.Status, "chunks", result.Chunks,
		"failed_chunks", result.FailedChunks, "elapsed_ms", result.ElapsedMs}
	if result.Status == VideoFailed {
		slog.Error("video failed", append(attrs, "error", chCtx.Err())...)
	} else {
		slog.Info("video finished", attrs...)
	}
	return result
}

// Result reads the outcome of a finished workflow from its context.
func Result(job *model.VideoJob, chCtx cor.Context) VideoResult {
	result := VideoResult{Video: job.Name, VideoId: job.Id, Status: VideoCompleted}

	if report, ok := chCtx.Get(commands.ParamIndividualReport).(*model.IndividualReport); ok {
		result.Chunks = len(report.Chunks)
		for _, ch := range report.Chunks {
			if !ch.Scored() {
				result.FailedChunks++
			}
		}
	} else if report, ok := chCtx.Get(commands.ParamLogoReport).(*model.LogoReport); ok {
		result.Chunks = len(report.Chunks)
		for _, ch := range report.Chunks {
			if ch.Status == model.LogoDetectionFailed {
				result.FailedChunks++
			}
		}
	}
	if final, ok := chCtx.Get(commands.ParamFinalReport).(*model.FinalReport); ok {
		result.Recommendations = len(final.Recommendations)
		if !final.Complete() {
			result.Status = VideoAggregationFailed
		}
	}
	if files, ok := chCtx.Get(commands.ParamReportFiles).([]string); ok {
		result.ReportFiles = files
	}

	if chCtx.HasErrors() {
		result.Status = VideoFailed
		errs := chCtx.GetErrors()
		keys := make([]string, 0, len(errs))
		for k := range errs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			result.Errors = append(result.Errors, k+": "+errs[k].Error())
		}
	}
	return result
}

// SummaryFile is the file name of a run summary.
func SummaryFile(runId string) string {
	return "run_summary_" + runId + ".json"
}

// WriteSummary writes the summary as JSON into dir and returns its path.
func (s *BatchSummary) WriteSummary(dir string) (string, error) {
	p := filepath.Join(dir, SummaryFile(s.RunId))
	if err := commands.WriteJSON(p, s); err != nil {
		return "", err
	}
	return p, nil
}
