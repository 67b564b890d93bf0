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

package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/services"
)

// Dashboard serves aggregate statistics from the BigQuery score table under
// /stats. Without a configured table every route answers 503.
func Dashboard(r *gin.RouterGroup, stats *services.StatsService) {
	group := r.Group("/stats")
	{
		group.GET("/rubrics", func(c *gin.Context) {
			out, err := stats.RubricAverages(c, c.Query("video_id"))
			if err != nil {
				statsError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		group.GET("/failures", func(c *gin.Context) {
			out, err := stats.FailedChunks(c)
			if err != nil {
				statsError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}

func statsError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrStatsUnavailable) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	slog.ErrorContext(c.Request.Context(), "stats query failed", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "stats query failed"})
}
