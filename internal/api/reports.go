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

// Package api exposes the persisted evaluation reports over HTTP.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/services"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// NewRouter builds the engine with tracing and CORS middleware and the
// /api/v1 routes. An empty allowedOrigins allows every origin.
func NewRouter(serviceName string, allowedOrigins []string, reports *services.ReportService, stats *services.StatsService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(serviceName))

	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}
	r.Use(cors.New(corsConfig))

	apiV1 := r.Group("/api/v1")
	{
		ReportRouter(apiV1, reports)
		Dashboard(apiV1, stats)
	}
	return r
}

// ReportRouter registers the read-only report routes under /reports.
func ReportRouter(r *gin.RouterGroup, reports *services.ReportService) {
	group := r.Group("/reports")
	{
		group.GET("", func(c *gin.Context) {
			out, err := reports.ListVideos(c)
			if err != nil {
				reportError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		group.GET("/:video", func(c *gin.Context) {
			out, err := reports.GetReport(c, c.Param("video"))
			if err != nil {
				reportError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		group.GET("/:video/chunks", func(c *gin.Context) {
			out, err := reports.GetChunks(c, c.Param("video"))
			if err != nil {
				reportError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})

		group.GET("/:video/logos", func(c *gin.Context) {
			out, err := reports.GetLogoReport(c, c.Param("video"))
			if err != nil {
				reportError(c, err)
				return
			}
			c.JSON(http.StatusOK, out)
		})
	}
}

func reportError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidVideoName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, services.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		slog.ErrorContext(c.Request.Context(), "reading report failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reading report failed"})
	}
}
