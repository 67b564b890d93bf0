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
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

var (
	videoExtensions      = []string{".mp4", ".mov", ".mkv", ".webm"}
	transcriptExtensions = []string{".srt", ".vtt"}
)

func hasExtension(name string, exts []string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// PairFiles matches video and transcript names that share a base name. A
// video without a transcript is reported in unpaired. Results are sorted by
// video name. SRT wins when both transcript formats exist.
func PairFiles(names []string) (pairs [][2]string, unpaired []string) {
	transcripts := map[string]string{}
	for _, n := range names {
		if !hasExtension(n, transcriptExtensions) {
			continue
		}
		base := strings.TrimSuffix(n, path.Ext(n))
		if existing, ok := transcripts[base]; ok && strings.EqualFold(path.Ext(existing), ".srt") {
			continue
		}
		transcripts[base] = n
	}

	for _, n := range names {
		if !hasExtension(n, videoExtensions) {
			continue
		}
		base := strings.TrimSuffix(n, path.Ext(n))
		if t, ok := transcripts[base]; ok {
			pairs = append(pairs, [2]string{n, t})
		} else {
			unpaired = append(unpaired, n)
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	sort.Strings(unpaired)
	return pairs, unpaired
}

// DiscoverJobs lists the video/transcript pairs of every io pair. Input
// directories may be local or gs:// prefixes; the latter need client.
func DiscoverJobs(ctx context.Context, pairs []cloud.IOPair, client *storage.Client) ([]*model.VideoJob, error) {
	var jobs []*model.VideoJob
	for _, pair := range pairs {
		var (
			found [][2]string
			lone  []string
			err   error
		)
		if cloud.IsGCSURI(pair.InputDir) {
			found, lone, err = discoverGCS(ctx, pair.InputDir, client)
		} else {
			found, lone, err = discoverLocal(pair.InputDir)
		}
		if err != nil {
			return nil, err
		}
		for _, v := range lone {
			slog.Warn("video has no transcript, skipping", "video", v)
		}
		for _, p := range found {
			jobs = append(jobs, model.NewVideoJob(p[0], p[1], pair.OutputDir))
		}
		slog.Info("discovered videos", "input", pair.InputDir, "videos", len(found), "unpaired", len(lone))
	}
	return jobs, nil
}

func discoverLocal(dir string) ([][2]string, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading input directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, filepath.Join(dir, e.Name()))
		}
	}
	pairs, lone := PairFiles(names)
	return pairs, lone, nil
}

func discoverGCS(ctx context.Context, uri string, client *storage.Client) ([][2]string, []string, error) {
	if client == nil {
		return nil, nil, fmt.Errorf("%s needs a storage client", uri)
	}
	prefix, err := cloud.ParseGCSURI(uri)
	if err != nil {
		return nil, nil, err
	}
	objects, err := cloud.ListGCSObjects(ctx, client, prefix)
	if err != nil {
		return nil, nil, err
	}
	names := make([]string, 0, len(objects))
	for _, o := range objects {
		names = append(names, o.URI())
	}
	pairs, lone := PairFiles(names)
	return pairs, lone, nil
}
