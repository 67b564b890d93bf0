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

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// ErrStatsUnavailable is returned when no BigQuery score table is configured.
var ErrStatsUnavailable = errors.New("score statistics are not configured")

// RubricStat is the average score of one rubric across the persisted rows.
type RubricStat struct {
	Rubric  string  `bigquery:"rubric" json:"rubric"`
	Average float64 `bigquery:"average" json:"average"`
	Videos  int64   `bigquery:"videos" json:"videos"`
	Scores  int64   `bigquery:"scores" json:"scores"`
}

// FailedChunks is the number of chunks of a video that never validated.
type FailedChunks struct {
	VideoName string `bigquery:"video_name" json:"video_name"`
	Failed    int64  `bigquery:"failed" json:"failed"`
}

// StatsService reads aggregate numbers from the BigQuery score table written
// by the evaluation workflow.
type StatsService struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	ScoreTable     string
}

func (s *StatsService) available() bool {
	return s != nil && s.BigqueryClient != nil && s.DatasetName != "" && s.ScoreTable != ""
}

// GetFQN returns the score table name in the dotted form standard SQL expects.
func (s *StatsService) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.ScoreTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", 1)
}

// RubricAverages returns per-rubric averages, over every video or only
// videoId when it is not empty.
func (s *StatsService) RubricAverages(ctx context.Context, videoId string) ([]RubricStat, error) {
	if !s.available() {
		return nil, ErrStatsUnavailable
	}
	var q *bigquery.Query
	if videoId == "" {
		q = s.BigqueryClient.Query(fmt.Sprintf(QryRubricAverages, s.GetFQN()))
	} else {
		q = s.BigqueryClient.Query(fmt.Sprintf(QryVideoRubricAverages, s.GetFQN()))
		q.Parameters = []bigquery.QueryParameter{{Name: "video_id", Value: videoId}}
	}
	return readAll[RubricStat](ctx, q)
}

// FailedChunks lists videos with failed chunk evaluations, most failures first.
func (s *StatsService) FailedChunks(ctx context.Context) ([]FailedChunks, error) {
	if !s.available() {
		return nil, ErrStatsUnavailable
	}
	return readAll[FailedChunks](ctx, s.BigqueryClient.Query(fmt.Sprintf(QryFailedChunkCount, s.GetFQN())))
}

func readAll[T any](ctx context.Context, q *bigquery.Query) ([]T, error) {
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	for {
		var row T
		err := itr.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}
