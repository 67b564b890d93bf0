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

// Package services is the read side of the evaluator: it serves the reports
// the workflows persisted, from the local output directories and from
// BigQuery.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/commands"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

var (
	ErrReportNotFound   = errors.New("report not found")
	ErrInvalidVideoName = errors.New("invalid video name")
)

// ReportSummary is the listing entry of one evaluated video.
type ReportSummary struct {
	Video           string             `json:"video"`
	VideoId         string             `json:"video_id"`
	Status          model.ReportStatus `json:"status"`
	Recommendations int                `json:"recommendations"`
	CoverageGaps    int                `json:"coverage_gaps"`
	GeneratedAt     time.Time          `json:"generated_at"`
	HasLogoReport   bool               `json:"has_logo_report"`
}

// ReportService looks reports up in the output directories. When two
// directories hold the same video, the first configured one wins.
type ReportService struct {
	OutputDirs []string
	LogoSuffix string
}

func NewReportService(outputDirs []string, logoSuffix string) *ReportService {
	if logoSuffix == "" {
		logoSuffix = commands.DefaultLogoSuffix
	}
	return &ReportService{OutputDirs: outputDirs, LogoSuffix: logoSuffix}
}

// validVideoName rejects anything that could leave the output directory.
func validVideoName(video string) bool {
	return video != "" && video != "." && video != ".." &&
		!strings.ContainsAny(video, `/\`) && filepath.Base(video) == video
}

// find returns the path of the first existing file among names for video.
func (s *ReportService) find(video string, names ...string) (string, error) {
	if !validVideoName(video) {
		return "", fmt.Errorf("%w: %q", ErrInvalidVideoName, video)
	}
	for _, dir := range s.OutputDirs {
		for _, name := range names {
			p := filepath.Join(dir, video, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %s", ErrReportNotFound, video)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return nil
}

// GetReport returns the final report of video. A synthesis that failed is
// returned from its diagnostics file with status aggregation_failed.
func (s *ReportService) GetReport(_ context.Context, video string) (*model.FinalReport, error) {
	path, err := s.find(video, commands.CombinedReportFile(video), commands.FailedReportFile(video))
	if err != nil {
		return nil, err
	}
	out := &model.FinalReport{}
	if err := readJSON(path, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetChunks returns the per-chunk evaluations of video.
func (s *ReportService) GetChunks(_ context.Context, video string) (*model.IndividualReport, error) {
	path, err := s.find(video, commands.IndividualReportFile(video))
	if err != nil {
		return nil, err
	}
	out := &model.IndividualReport{}
	if err := readJSON(path, out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetLogoReport returns the logo detection results of video.
func (s *ReportService) GetLogoReport(_ context.Context, video string) (*model.LogoReport, error) {
	path, err := s.find(video, video+s.LogoSuffix)
	if err != nil {
		return nil, err
	}
	out := &model.LogoReport{}
	if err := readJSON(path, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListVideos summarises every video with a final report, sorted by name.
// Unreadable reports are skipped.
func (s *ReportService) ListVideos(ctx context.Context) ([]ReportSummary, error) {
	seen := map[string]bool{}
	out := make([]ReportSummary, 0)
	for _, dir := range s.OutputDirs {
		entries, err := os.ReadDir(dir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			video := e.Name()
			if !e.IsDir() || seen[video] {
				continue
			}
			report, err := s.GetReport(ctx, video)
			if err != nil {
				continue
			}
			seen[video] = true
			_, logoErr := s.find(video, video+s.LogoSuffix)
			out = append(out, ReportSummary{
				Video:           video,
				VideoId:         report.VideoId,
				Status:          report.Status,
				Recommendations: len(report.Recommendations),
				CoverageGaps:    len(report.CoverageGaps),
				GeneratedAt:     report.GeneratedAt,
				HasLogoReport:   logoErr == nil,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Video < out[j].Video })
	return out, nil
}
