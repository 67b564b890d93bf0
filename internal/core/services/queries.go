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

const (
	// QryRubricAverages averages the scored rows of every chunk per rubric.
	// Failed chunks have a null rubric and are excluded.
	//
	// Placeholders:
	// - `%s`: fully qualified score table.
	QryRubricAverages = "SELECT rubric, AVG(score) AS average, COUNT(DISTINCT video_id) AS videos, COUNT(*) AS scores " +
		"FROM `%s` WHERE rubric IS NOT NULL GROUP BY rubric ORDER BY rubric"

	// QryVideoRubricAverages is QryRubricAverages restricted to one video.
	//
	// Placeholders:
	// - `%s`: fully qualified score table.
	// Parameters:
	// - `@video_id`
	QryVideoRubricAverages = "SELECT rubric, AVG(score) AS average, COUNT(DISTINCT video_id) AS videos, COUNT(*) AS scores " +
		"FROM `%s` WHERE rubric IS NOT NULL AND video_id = @video_id GROUP BY rubric ORDER BY rubric"

	// QryFailedChunkCount counts evaluation_failed rows per video.
	//
	// Placeholders:
	// - `%s`: fully qualified score table.
	QryFailedChunkCount = "SELECT video_name, COUNT(*) AS failed FROM `%s` WHERE status = 'evaluation_failed' " +
		"GROUP BY video_name ORDER BY failed DESC"
)
