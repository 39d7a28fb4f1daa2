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

// Package fx fetches daily USD→CLP exchange rates from the mindicador.cl
// public API, with a per-date in-memory cache.
package fx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultBaseURL = "https://mindicador.cl/api"

// Client fetches daily exchange rates.
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu    sync.Mutex
	cache map[string]decimal.Decimal // keyed by YYYY-MM-DD
}

// NewClient creates a rate client against the public API.
func NewClient() *Client {
	return NewClientWithBase(defaultBaseURL)
}

// NewClientWithBase creates a rate client against a custom endpoint (tests).
func NewClientWithBase(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		cache:      make(map[string]decimal.Decimal),
	}
}

type rateResponse struct {
	Serie []struct {
		Fecha string          `json:"fecha"`
		Valor decimal.Decimal `json:"valor"`
	} `json:"serie"`
}

// USDToCLP returns the USD→CLP rate for the given date. Falls back to the
// current-day rate when the dated lookup has no data; returns an error only
// when both fail. Callers treat a missing rate as non-fatal.
func (c *Client) USDToCLP(ctx context.Context, date time.Time) (decimal.Decimal, error) {
	key := date.UTC().Format("2006-01-02")

	c.mu.Lock()
	if rate, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return rate, nil
	}
	c.mu.Unlock()

	// The API takes DD-MM-YYYY.
	rate, err := c.fetch(ctx, fmt.Sprintf("%s/dolar/%s", c.baseURL, date.UTC().Format("02-01-2006")))
	if err != nil {
		slog.Warn("dated exchange rate lookup failed, trying current day",
			"date", key,
			"error", err,
		)
		rate, err = c.fetch(ctx, c.baseURL+"/dolar")
		if err != nil {
			return decimal.Zero, fmt.Errorf("exchange rate for %s: %w", key, err)
		}
	}

	c.mu.Lock()
	c.cache[key] = rate
	c.mu.Unlock()

	slog.Info("exchange rate fetched", "date", key, "rate", rate)
	return rate, nil
}

func (c *Client) fetch(ctx context.Context, url string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		slog.Error("rate API error", "status", resp.StatusCode, "body", string(body))
		return decimal.Zero, fmt.Errorf("rate API returned HTTP %d", resp.StatusCode)
	}

	var parsed rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}

	if len(parsed.Serie) == 0 || parsed.Serie[0].Valor.IsZero() {
		return decimal.Zero, fmt.Errorf("rate API returned no data")
	}

	return parsed.Serie[0].Valor, nil
}
