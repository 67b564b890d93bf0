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

package commands_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/commands"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/llm"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	test "github.com/shreyas-dhakal/gemini-video-evaluation/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var retryPolicy = llm.Policy{Attempts: 3, Timeout: 5 * time.Second}

// testChunks builds n contiguous chunks of the given length, each with two
// keyframes.
func testChunks(t *testing.T, n int, length time.Duration) []*model.Chunk {
	t.Helper()
	chunks := make([]*model.Chunk, n)
	for i := range chunks {
		c := &model.Chunk{
			Index: i,
			Span:  model.NewTimeSpan(time.Duration(i)*length, time.Duration(i+1)*length),
			Text:  fmt.Sprintf("chunk text %d", i),
		}
		jpeg := []byte{0xFF, 0xD8, 0xFF, byte(i)}
		test.HandleErr(c.AttachKeyframes([]*model.Keyframe{
			{ChunkIndex: i, FrameIndex: i * 100, Timestamp: c.Span.Start, JPEG: jpeg},
			{ChunkIndex: i, FrameIndex: i*100 + 50, Timestamp: c.Span.Midpoint(), JPEG: jpeg},
		}), t)
		chunks[i] = c
	}
	return chunks
}

func testJob(t *testing.T) *model.VideoJob {
	return model.NewVideoJob("lecture.mp4", "lecture.srt", t.TempDir())
}

func newContext(job *model.VideoJob, in any) cor.Context {
	ctx := cor.NewBaseContextWith(context.Background())
	ctx.Add(commands.ParamJob, job)
	ctx.Add(cor.CtxIn, in)
	return ctx
}

func rubricTemplate() *template.Template {
	return template.Must(template.New("rubric").Parse(cloud.DefaultRubricPrompt))
}

func synthesisTemplate() *template.Template {
	return template.Must(template.New("synthesis").Parse(cloud.DefaultSynthesisPrompt))
}

func TestChunkEvaluatorRecordsFailedChunkAndContinues(t *testing.T) {
	outOfRange := map[model.Rubric]int{}
	for _, r := range model.Rubrics {
		outOfRange[r] = 2
	}
	outOfRange[model.RubricSignaling] = 4

	llmModel := test.NewHandlerModel(func(req llm.Request, call int) (string, error) {
		if test.ChunkIndexFromPrompt(req.Prompt) == 1 {
			return test.RubricJSONWith(outOfRange), nil
		}
		return test.RubricJSON(3), nil
	})

	job := testJob(t)
	ctx := newContext(job, testChunks(t, 3, 5*time.Second))
	commands.NewChunkEvaluator("evaluate", llmModel, rubricTemplate(), 2, retryPolicy).Execute(ctx)

	require.False(t, ctx.HasErrors())
	report, ok := ctx.Get(cor.CtxOut).(*model.IndividualReport)
	require.True(t, ok)
	assert.Same(t, report, ctx.Get(commands.ParamIndividualReport))
	assert.Equal(t, job.Id, report.VideoId)
	require.Len(t, report.Chunks, 3)

	for i, ch := range report.Chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.Len(t, ch.Keyframes, 2)
	}
	assert.True(t, report.Chunks[0].Scored())
	assert.True(t, report.Chunks[2].Scored())
	assert.Equal(t, 3.0, report.Chunks[2].Score.Mean())

	failed := report.Chunks[1]
	assert.Equal(t, model.StatusEvaluationFailed, failed.Status)
	assert.Nil(t, failed.Score)
	assert.Equal(t, 3, failed.Attempts)
	assert.Len(t, failed.RawResponses, 3)
	assert.Contains(t, failed.FailureReason, model.ErrEvaluationFailed.Error())
	assert.Equal(t, 5, llmModel.Calls())

	for _, req := range llmModel.Requests() {
		require.Len(t, req.Images, 2)
		assert.Equal(t, "image/jpeg", req.Images[0].MIMEType)
	}
}

func TestChunkEvaluatorRetriesMissingRubricOnce(t *testing.T) {
	missing := map[model.Rubric]int{}
	for _, r := range model.Rubrics[1:] {
		missing[r] = 2
	}
	llmModel := test.NewScriptedModel(
		test.Reply{Text: test.RubricJSONWith(missing)},
		test.Reply{Text: "```json\n" + test.RubricJSON(2) + "\n```"},
	)

	ctx := newContext(testJob(t), testChunks(t, 1, 4*time.Second))
	commands.NewChunkEvaluator("evaluate", llmModel, rubricTemplate(), 1, retryPolicy).Execute(ctx)

	report := ctx.Get(commands.ParamIndividualReport).(*model.IndividualReport)
	require.Len(t, report.Chunks, 1)
	assert.True(t, report.Chunks[0].Scored())
	assert.Equal(t, 2, report.Chunks[0].Attempts)
	assert.Equal(t, 2, llmModel.Calls())
}

func TestChunkEvaluatorPromptCarriesChunk(t *testing.T) {
	llmModel := test.NewScriptedModel(test.Reply{Text: test.RubricJSON(1)})
	ctx := newContext(testJob(t), testChunks(t, 2, 3*time.Second))
	commands.NewChunkEvaluator("evaluate", llmModel, rubricTemplate(), 1, retryPolicy).Execute(ctx)

	prompts := map[int]string{}
	for _, req := range llmModel.Requests() {
		prompts[test.ChunkIndexFromPrompt(req.Prompt)] = req.Prompt
	}
	require.Len(t, prompts, 2)
	assert.Contains(t, prompts[1], "00:00:03,000 to 00:00:06,000")
	assert.Contains(t, prompts[1], "chunk text 1")
	for _, r := range model.Rubrics {
		assert.Contains(t, prompts[0], string(r))
	}
}

// individualReport has five 10 second chunks; the listed ones failed.
func individualReport(t *testing.T, failed ...int) *model.IndividualReport {
	report := &model.IndividualReport{VideoId: "id", VideoName: "lecture"}
	isFailed := map[int]bool{}
	for _, f := range failed {
		isFailed[f] = true
	}
	for i := 0; i < 5; i++ {
		ev := &model.ChunkEvaluation{
			ChunkIndex: i,
			Span:       model.NewTimeSpan(time.Duration(i)*10*time.Second, time.Duration(i+1)*10*time.Second),
		}
		if isFailed[i] {
			ev.Status = model.StatusEvaluationFailed
			ev.RawResponses = []string{"garbage"}
		} else {
			score, err := model.ParseRubricScore(i, test.RubricJSON(1+i%3))
			test.HandleErr(err, t)
			ev.Status, ev.Score = model.StatusScored, score
		}
		report.Chunks = append(report.Chunks, ev)
	}
	return report
}

const synthesisReply = `Here are my recommendations:
[
  {"timestamp_range":{"start":"00:00:05,000","end":"00:00:12,000"},"rubric":"Signaling","issue":"No highlighting","suggested_fix":"Add arrows"},
  {"timestamp_range":{"start":"00:00:21,000","end":"00:00:29,000"},"rubric":"Weeding","issue":"Music","suggested_fix":"Remove it"},
  {"timestamp_range":{"start":"00:00:31,000","end":"00:00:33,000"},"rubric":"Engagement","issue":"Dull","suggested_fix":"Smile"},
  {"timestamp_range":{"start":"00:00:45,000","end":"00:01:10,000"},"rubric":"Consistency","issue":"Fonts","suggested_fix":"Pick one"},
  {"timestamp_range":{"start":"00:00:15,000","end":"00:00:25,000"},"rubric":"accessibility","issue":"Contrast","suggested_fix":"Darker text"}
]`

func TestReportAggregatorWithFailedPlaceholder(t *testing.T) {
	llmModel := test.NewScriptedModel(test.Reply{Text: synthesisReply})
	agg := commands.NewReportAggregator("aggregate", llmModel, synthesisTemplate(), retryPolicy)

	final := agg.Aggregate(context.Background(), individualReport(t, 2))

	require.True(t, final.Complete())
	assert.Equal(t, 1, llmModel.Calls())
	assert.Equal(t, []int{0, 1, 3, 4}, final.ScoredChunks)
	assert.Equal(t, []model.TimeSpan{model.NewTimeSpan(20*time.Second, 30*time.Second)}, final.CoverageGaps)

	require.Len(t, final.Recommendations, 2)
	assert.Equal(t, 1, final.Recommendations[0].Rank)
	assert.Equal(t, model.RubricSignaling, final.Recommendations[0].Rubric)
	assert.Equal(t, 2, final.Recommendations[1].Rank)
	assert.Equal(t, model.RubricAccessibility, final.Recommendations[1].Rubric)
	assert.Len(t, final.Warnings, 3)

	prompt := llmModel.Requests()[0].Prompt
	assert.Contains(t, prompt, `"status": "evaluation_failed"`)
	assert.Contains(t, prompt, "00:00:50,000")
	assert.Empty(t, llmModel.Requests()[0].Images)

	assert.InDelta(t, 1.5, final.RubricAverages[model.RubricWeeding], 1e-9)
}

func TestReportAggregatorSkipsSynthesisWhenNothingScored(t *testing.T) {
	llmModel := test.NewScriptedModel(test.Reply{Text: "[]"})
	agg := commands.NewReportAggregator("aggregate", llmModel, synthesisTemplate(), retryPolicy)

	final := agg.Aggregate(context.Background(), individualReport(t, 0, 1, 2, 3, 4))

	assert.True(t, final.Complete())
	assert.Zero(t, llmModel.Calls())
	assert.Empty(t, final.Recommendations)
	assert.Empty(t, final.ScoredChunks)
	assert.Equal(t, []model.TimeSpan{model.NewTimeSpan(0, 50*time.Second)}, final.CoverageGaps)
}

func TestReportAggregatorFailureIsRecordedAsData(t *testing.T) {
	llmModel := test.NewScriptedModel(test.Reply{Text: "I cannot help with that."})
	agg := commands.NewReportAggregator("aggregate", llmModel, synthesisTemplate(), retryPolicy)

	ctx := newContext(testJob(t), individualReport(t))
	agg.Execute(ctx)

	assert.False(t, ctx.HasErrors())
	final := ctx.Get(commands.ParamFinalReport).(*model.FinalReport)
	assert.Equal(t, model.ReportAggregationFailed, final.Status)
	assert.Equal(t, 3, final.Attempts)
	assert.Len(t, final.RawResponses, 3)
	assert.Contains(t, final.FailureReason, model.ErrAggregationFailed.Error())
	assert.Equal(t, 3, llmModel.Calls())
}

func TestCoverageGapsMergeAdjacentFailures(t *testing.T) {
	report := individualReport(t, 0, 1, 3)
	gaps := commands.CoverageGaps(report.Chunks)
	assert.Equal(t, []model.TimeSpan{
		model.NewTimeSpan(0, 20*time.Second),
		model.NewTimeSpan(30*time.Second, 40*time.Second),
	}, gaps)
	assert.Empty(t, commands.CoverageGaps(individualReport(t).Chunks))
}

func TestReportWriter(t *testing.T) {
	job := testJob(t)
	individual := individualReport(t, 2)
	final := &model.FinalReport{VideoId: job.Id, VideoName: job.Name, Status: model.ReportComplete, Recommendations: []model.Recommendation{}}

	ctx := newContext(job, final)
	ctx.Add(commands.ParamIndividualReport, individual)
	commands.NewReportWriter("write", "").Execute(ctx)
	require.False(t, ctx.HasErrors())

	dir := filepath.Join(job.OutputDir, job.Name)
	written := ctx.Get(commands.ParamReportFiles).([]string)
	assert.Equal(t, []string{
		filepath.Join(dir, "lecture_individual_report.json"),
		filepath.Join(dir, "combined_report_lecture.json"),
	}, written)

	data, err := os.ReadFile(written[1])
	require.NoError(t, err)
	var back model.FinalReport
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, job.Name, back.VideoName)

	data, err = os.ReadFile(written[0])
	require.NoError(t, err)
	var chunks model.IndividualReport
	require.NoError(t, json.Unmarshal(data, &chunks))
	require.Len(t, chunks.Chunks, 5)
	assert.Equal(t, model.StatusEvaluationFailed, chunks.Chunks[2].Status)
	assert.Equal(t, []string{"garbage"}, chunks.Chunks[2].RawResponses)
}

func TestReportWriterFailedSynthesis(t *testing.T) {
	job := testJob(t)
	final := &model.FinalReport{VideoName: job.Name, Status: model.ReportAggregationFailed, RawResponses: []string{"nope"}}

	ctx := newContext(job, final)
	commands.NewReportWriter("write", "").Execute(ctx)
	require.False(t, ctx.HasErrors())

	dir := filepath.Join(job.OutputDir, job.Name)
	assert.FileExists(t, filepath.Join(dir, "combined_report_lecture.failed.json"))
	assert.NoFileExists(t, filepath.Join(dir, "combined_report_lecture.json"))
}

func TestReportWriterLogoReport(t *testing.T) {
	job := testJob(t)
	ctx := newContext(job, &model.LogoReport{VideoName: job.Name})
	commands.NewReportWriter("write", "_logos.json").Execute(ctx)
	require.False(t, ctx.HasErrors())
	assert.FileExists(t, filepath.Join(job.OutputDir, job.Name, "lecture_logos.json"))

	ctx = newContext(job, "not a report")
	commands.NewReportWriter("write", "").Execute(ctx)
	assert.True(t, ctx.HasErrors())
}

func TestScoreAndRecommendationRows(t *testing.T) {
	rows := commands.ScoreRows(individualReport(t, 4))
	assert.Len(t, rows, 4*len(model.Rubrics)+1)

	last := rows[len(rows)-1]
	assert.Equal(t, 4, last.ChunkIndex)
	assert.Equal(t, string(model.StatusEvaluationFailed), last.Status)
	assert.False(t, last.Rubric.Valid)
	assert.False(t, last.Score.Valid)

	first := rows[0]
	assert.Equal(t, string(model.RubricSignaling), first.Rubric.StringVal)
	assert.Equal(t, int64(1), first.Score.Int64)
	assert.Equal(t, 10.0, first.EndSeconds)

	recs := commands.RecommendationRows(&model.FinalReport{
		VideoId: "id",
		Recommendations: []model.Recommendation{
			{Rank: 1, Span: model.NewTimeSpan(1500*time.Millisecond, 3*time.Second), Rubric: model.RubricWeeding, Issue: "i", SuggestedFix: "f"},
		},
	})
	require.Len(t, recs, 1)
	assert.Equal(t, 1.5, recs[0].StartSeconds)
	assert.Equal(t, "Weeding", recs[0].Rubric)
}

func TestWriteJSONReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	require.NoError(t, commands.WriteJSON(path, map[string]int{"a": 1}))
	require.NoError(t, commands.WriteJSON(path, map[string]int{"b": 2}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"b":2}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "."), e.Name())
	}
}
