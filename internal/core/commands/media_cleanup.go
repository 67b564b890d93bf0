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
	"log/slog"
	"os"

	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
)

// MediaCleanup deletes the temporary copies of a video's media as soon as
// its keyframes are extracted, so a downloaded video does not stay on disk
// while the chunks are evaluated. Removal failures are logged only; the
// context removes whatever is left when it is closed.
type MediaCleanup struct {
	cor.BaseCommand
}

func NewMediaCleanup(name string) *MediaCleanup {
	return &MediaCleanup{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *MediaCleanup) IsExecutable(context cor.Context) bool {
	return context != nil && len(context.GetTempFiles()) > 0
}

func (c *MediaCleanup) Execute(context cor.Context) {
	removed := 0
	for _, file := range context.GetTempFiles() {
		if err := os.RemoveAll(file); err != nil {
			slog.WarnContext(context.GetContext(), "failed to remove temporary media", "file", file, "error", err)
			continue
		}
		removed++
	}
	slog.DebugContext(context.GetContext(), "temporary media removed", "video", jobName(context), "files", removed)
	c.GetSuccessCounter().Add(context.GetContext(), 1)
}
