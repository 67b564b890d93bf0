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
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/cloud"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/cor"
	"github.com/shreyas-dhakal/gemini-video-evaluation/internal/core/model"
)

// GCSReportUpload copies the written report files to
// gs://<bucket>/<prefix>/<video>/<file>. It is skipped when no bucket is
// configured.
type GCSReportUpload struct {
	cor.BaseCommand
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSReportUpload(name string, client *storage.Client, bucket string, prefix string) *GCSReportUpload {
	return &GCSReportUpload{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket, prefix: prefix}
}

func (c *GCSReportUpload) IsExecutable(context cor.Context) bool {
	return c.client != nil && c.bucket != "" &&
		c.BaseCommand.IsExecutable(context) && context.Get(ParamJob) != nil
}

// ObjectName is where a report file of video is stored.
func (c *GCSReportUpload) ObjectName(video, path string) string {
	return cloud.JoinObjectName(c.prefix, video, filepath.Base(path))
}

func (c *GCSReportUpload) Execute(context cor.Context) {
	job := context.Get(ParamJob).(*model.VideoJob)
	paths := context.Get(c.GetInputParam()).([]string)

	uploaded := make([]string, 0, len(paths))
	for _, path := range paths {
		obj := cloud.GCSObject{Bucket: c.bucket, Name: c.ObjectName(job.Name, path), MIMEType: "application/json"}
		if err := c.upload(context, path, obj); err != nil {
			c.GetErrorCounter().Add(context.GetContext(), 1)
			context.AddError(c.GetName(), err)
			return
		}
		uploaded = append(uploaded, obj.URI())
	}

	c.GetSuccessCounter().Add(context.GetContext(), 1)
	slog.Info("reports uploaded", "video", job.Name, "objects", uploaded)
	context.Add(c.GetOutputParam(), uploaded)
}

func (c *GCSReportUpload) upload(context cor.Context, path string, obj cloud.GCSObject) error {
	dat, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer dat.Close()

	writer := c.client.Bucket(obj.Bucket).Object(obj.Name).NewWriter(context.GetContext())
	writer.ContentType = obj.MIMEType
	if written, err := io.Copy(writer, dat); err != nil {
		_ = writer.Close()
		return fmt.Errorf("uploading %s to %s after %d bytes: %w", path, obj.URI(), written, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("finalising %s: %w", obj.URI(), err)
	}
	return nil
}
