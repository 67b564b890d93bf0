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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"google.golang.org/genai"
)

// ServiceClients holds the Google Cloud clients for one process. Storage and
// BigQuery are optional and only created when the configuration needs them.
type ServiceClients struct {
	GenAIClient    *genai.Client
	StorageClient  *storage.Client
	BigQueryClient *bigquery.Client
	AgentModels    map[string]*QuotaAwareGenerativeAIModel
}

// Close releases the optional clients.
func (c *ServiceClients) Close() error {
	var errs []error
	if c.StorageClient != nil {
		errs = append(errs, c.StorageClient.Close())
	}
	if c.BigQueryClient != nil {
		errs = append(errs, c.BigQueryClient.Close())
	}
	return errors.Join(errs...)
}

// References returns every configured reference location, reference_image
// first, without blanks or repeats.
func (l Logo) References() []string {
	seen := make(map[string]bool)
	var out []string
	for _, ref := range append([]string{l.ReferenceImage}, l.ReferenceImages...) {
		ref = strings.TrimSpace(ref)
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		out = append(out, ref)
	}
	return out
}

// NeedsStorage reports whether any input or output lives in Cloud Storage.
func (c *Config) NeedsStorage() bool {
	if c.Storage.ReportBucket != "" {
		return true
	}
	for _, p := range c.IOPairs {
		if strings.HasPrefix(p.InputDir, GCSScheme) {
			return true
		}
	}
	for _, ref := range c.Logo.References() {
		if strings.HasPrefix(ref, GCSScheme) {
			return true
		}
	}
	return false
}

// NewCloudServiceClients creates the GenAI client for the configured backend,
// one rate-limited model per [agent_models] entry, and the optional Storage
// and BigQuery clients.
func NewCloudServiceClients(ctx context.Context, config *Config) (*ServiceClients, error) {
	clientConfig := &genai.ClientConfig{
		Project:  config.Application.GoogleProjectId,
		Location: config.Application.GoogleLocation,
		Backend:  genai.BackendVertexAI,
	}
	if config.Application.Backend == BackendGemini {
		clientConfig = &genai.ClientConfig{APIKey: config.Application.APIKey, Backend: genai.BackendGeminiAPI}
	}
	gc, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating genai client: %w", err)
	}

	clients := &ServiceClients{
		GenAIClient: gc,
		AgentModels: make(map[string]*QuotaAwareGenerativeAIModel, len(config.AgentModels)),
	}
	for name, values := range config.AgentModels {
		clients.AgentModels[name] = NewQuotaAwareModel(NewGenerateContentConfig(values), values.Model, gc.Models, values.RateLimit)
		slog.Debug("agent model configured", "name", name, "model", values.Model, "rate_limit", values.RateLimit)
	}

	if config.NeedsStorage() {
		if clients.StorageClient, err = storage.NewClient(ctx); err != nil {
			return nil, fmt.Errorf("error creating storage client: %w", err)
		}
	}
	if config.BigQueryDataSource.DatasetName != "" {
		if clients.BigQueryClient, err = bigquery.NewClient(ctx, config.Application.GoogleProjectId); err != nil {
			_ = clients.Close()
			return nil, fmt.Errorf("error creating bigquery client: %w", err)
		}
	}
	return clients, nil
}

// Model returns the named agent model.
func (c *ServiceClients) Model(name string) (*QuotaAwareGenerativeAIModel, error) {
	m, ok := c.AgentModels[name]
	if !ok {
		return nil, fmt.Errorf("agent model %q is not configured", name)
	}
	return m, nil
}
