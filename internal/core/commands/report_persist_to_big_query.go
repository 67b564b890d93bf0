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
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// ScoreRow is one rubric score of one chunk. Failed chunks produce a single
// row with a null rubric and score.
type ScoreRow struct {
	VideoId       string              `bigquery:"video_id"`
	VideoName     string              `bigquery:"video_name"`
	ChunkIndex    int                 `bigquery:"chunk_index"`
	StartSeconds  float64             `bigquery:"start_seconds"`
	EndSeconds    float64             `bigquery:"end_seconds"`
	Status        string              `bigquery:"status"`
	Rubric        bigquery.NullString `bigquery:"rubric"`
	Score         bigquery.NullInt64  `bigquery:"score"`
	Justification bigquery.NullString `bigquery:"justification"`
	GeneratedAt   time.Time           `bigquery:"generated_at"`
}

// RecommendationRow is one ranked recommendation of a final report.
type RecommendationRow struct {
	VideoId      string    `bigquery:"video_id"`
	VideoName    string    `bigquery:"video_name"`
	Rank         int       `bigquery:"rank"`
	StartSeconds float64   `bigquery:"start_seconds"`
	EndSeconds   float64   `bigquery:"end_seconds"`
	Rubric       string    `bigquery:"rubric"`
	Issue        string    `bigquery:"issue"`
	SuggestedFix string    `bigquery:"suggested_fix"`
	GeneratedAt  time.Time `bigquery:"generated_at"`
}

// ScoreRows flattens an individual report, rubrics in their fixed order.
func ScoreRows(report *model.IndividualReport) []ScoreRow {
	var rows []ScoreRow
	for _, ch := range report.Chunks {
		base := ScoreRow{
			VideoId:      report.VideoId,
			VideoName:    report.VideoName,
			ChunkIndex:   ch.ChunkIndex,
			StartSeconds: ch.Span.Start.Seconds(),
			EndSeconds:   ch.Span.End.Seconds(),
			Status:       string(ch.Status),
			GeneratedAt:  report.GeneratedAt,
		}
		if !ch.Scored() {
			rows = append(rows, base)
			continue
		}
		for _, r := range model.Rubrics {
			entry := ch.Score.Scores[r]
			row := base
			row.Rubric = bigquery.NullString{StringVal: string(r), Valid: true}
			row.Score = bigquery.NullInt64{Int64: int64(entry.Score), Valid: true}
			row.Justification = bigquery.NullString{StringVal: entry.Justification, Valid: entry.Justification != ""}
			rows = append(rows, row)
		}
	}
	return rows
}

// RecommendationRows flattens a complete final report.
func RecommendationRows(report *model.FinalReport) []RecommendationRow {
	rows := make([]RecommendationRow, 0, len(report.Recommendations))
	for _, rec := range report.Recommendations {
		rows = append(rows, RecommendationRow{
			VideoId:      report.VideoId,
			VideoName:    report.VideoName,
			Rank:         rec.Rank,
			StartSeconds: rec.Span.Start.Seconds(),
			EndSeconds:   rec.Span.End.Seconds(),
			Rubric:       string(rec.Rubric),
			Issue:        rec.Issue,
			SuggestedFix: rec.SuggestedFix,
			GeneratedAt:  report.GeneratedAt,
		})
	}
	return rows
}

// ReportPersistToBigQuery streams chunk scores and recommendations into
// BigQuery. It is skipped without a client or dataset.
type ReportPersistToBigQuery struct {
	cor.BaseCommand
	client              *bigquery.Client
	dataset             string
	scoreTable          string
	recommendationTable string
}

func NewReportPersistToBigQuery(name string, client *bigquery.Client, dataset, scoreTable, recommendationTable string) *ReportPersistToBigQuery {
	return &ReportPersistToBigQuery{
		BaseCommand:         *cor.NewBaseCommand(name),
		client:              client,
		dataset:             dataset,
		scoreTable:          scoreTable,
		recommendationTable: recommendationTable,
	}
}

func (s *ReportPersistToBigQuery) IsExecutable(context cor.Context) bool {
	return context != nil && s.client != nil && s.dataset != "" &&
		context.Get(ParamIndividualReport) != nil
}

func (s *ReportPersistToBigQuery) Execute(context cor.Context) {
	individual := context.Get(ParamIndividualReport).(*model.IndividualReport)
	ds := s.client.Dataset(s.dataset)

	if s.scoreTable != "" {
		rows := ScoreRows(individual)
		if err := ds.Table(s.scoreTable).Inserter().Put(context.GetContext(), rows); err != nil {
			s.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(s.GetName(), fmt.Errorf("bigquery insert of %d score rows for %s failed: %w", len(rows), individual.VideoName, err))
			return
		}
	}

	final, ok := context.Get(ParamFinalReport).(*model.FinalReport)
	if ok && final.Complete() && s.recommendationTable != "" && len(final.Recommendations) > 0 {
		rows := RecommendationRows(final)
		if err := ds.Table(s.recommendationTable).Inserter().Put(context.GetContext(), rows); err != nil {
			s.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(s.GetName(), fmt.Errorf("bigquery insert of %d recommendations for %s failed: %w", len(rows), individual.VideoName, err))
			return
		}
	}

	s.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.Info("report persisted to bigquery", "video", individual.VideoName, "dataset", s.dataset)
}
