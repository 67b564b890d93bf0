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

package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/api"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/commands"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) *gin.Engine {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	require.NoError(t, commands.WriteJSON(filepath.Join(dir, "lecture", commands.CombinedReportFile("lecture")), &model.FinalReport{
		VideoId:   "id-lecture",
		VideoName: "lecture",
		Status:    model.ReportComplete,
		Recommendations: []model.Recommendation{{
			Rank: 1, Span: model.NewTimeSpan(time.Second, 3*time.Second), Rubric: model.RubricWeeding,
			Issue: "background music", SuggestedFix: "remove it",
		}},
	}))
	require.NoError(t, commands.WriteJSON(filepath.Join(dir, "lecture", commands.IndividualReportFile("lecture")), &model.IndividualReport{
		VideoName: "lecture",
		Chunks:    []*model.ChunkEvaluation{{ChunkIndex: 0, Status: model.StatusEvaluationFailed}},
	}))
	return api.NewRouter("test", nil, services.NewReportService([]string{dir}, ""), &services.StatsService{})
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Origin", "http://localhost:3000")
	r.ServeHTTP(w, req)
	return w
}

func TestReportRoutes(t *testing.T) {
	r := newRouter(t)

	w := get(r, "/api/v1/reports")
	require.Equal(t, http.StatusOK, w.Code)
	var list []services.ReportSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "lecture", list[0].Video)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = get(r, "/api/v1/reports/lecture")
	require.Equal(t, http.StatusOK, w.Code)
	var report model.FinalReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, model.RubricWeeding, report.Recommendations[0].Rubric)
	assert.Equal(t, model.NewTimeSpan(time.Second, 3*time.Second), report.Recommendations[0].Span)

	w = get(r, "/api/v1/reports/lecture/chunks")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"evaluation_failed"`)

	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/reports/lecture/logos").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/api/v1/reports/other").Code)
	assert.Equal(t, http.StatusBadRequest, get(r, "/api/v1/reports/..").Code)
}

func TestStatsRoutesWithoutBigQuery(t *testing.T) {
	r := newRouter(t)
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/v1/stats/rubrics").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(r, "/api/v1/stats/failures").Code)
}
