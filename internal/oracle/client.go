// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package oracle is the client for the text-completion extraction oracle
// (Gemini). The provider gives no structured-output guarantee; every shape
// constraint here is imposed client-side by defensive parsing. All
// operations degrade to an absent result on transport, configuration, or
// parse failure — nothing in this package aborts the pipeline.
package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Generator is the narrow contract with the completion service: prompt in,
// free-form text out. Kept minimal so components are testable with fakes.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client exposes classification and extraction over a Generator. A Client
// with a nil Generator is valid and represents the unconfigured state.
type Client struct {
	gen     Generator
	timeout time.Duration
}

// NewClient wraps a Generator. gen may be nil when no oracle credential is
// configured; every operation then returns its documented safe default.
func NewClient(gen Generator, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{gen: gen, timeout: timeout}
}

// Configured reports whether an oracle backend is available.
func (c *Client) Configured() bool {
	return c != nil && c.gen != nil
}

// generate runs one oracle call under the client's timeout.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.gen.Generate(ctx, prompt)
}

// GeminiGenerator is the production Generator backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

// NewGemini creates a Gemini-backed generator.
func NewGemini(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is empty")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiGenerator{
		client: client,
		model:  client.GenerativeModel(modelName),
	}, nil
}

// Generate sends a prompt and returns the concatenated candidate text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty gemini response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}

	return sb.String(), nil
}

// Close releases the underlying API client.
func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}
