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

package fx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const mindicadorPayload = `{
	"version": "1.7.0",
	"autor": "mindicador.cl",
	"codigo": "dolar",
	"nombre": "Dólar observado",
	"unidad_medida": "Pesos",
	"serie": [
		{"fecha": "2024-06-15T04:00:00.000Z", "valor": 943.25}
	]
}`

func TestUSDToCLP(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		// Dated lookups use DD-MM-YYYY.
		if r.URL.Path != "/dolar/15-06-2024" {
			t.Errorf("path = %q, want /dolar/15-06-2024", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(mindicadorPayload))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL)
	date := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	rate, err := c.USDToCLP(context.Background(), date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.String() != "943.25" {
		t.Errorf("rate = %s, want 943.25", rate)
	}

	// Second call for the same date is served from cache.
	if _, err := c.USDToCLP(context.Background(), date); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("API hits = %d, want 1 (cached)", hits.Load())
	}
}

// TestUSDToCLPFallsBackToCurrentDay verifies the current-day fallback when
// the dated series is empty (weekends and holidays).
func TestUSDToCLPFallsBackToCurrentDay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/dolar" {
			w.Write([]byte(mindicadorPayload))
			return
		}
		w.Write([]byte(`{"serie": []}`))
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL)
	rate, err := c.USDToCLP(context.Background(), time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate.String() != "943.25" {
		t.Errorf("rate = %s, want 943.25", rate)
	}
}

func TestUSDToCLPBothLookupsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClientWithBase(srv.URL)
	if _, err := c.USDToCLP(context.Background(), time.Now()); err == nil {
		t.Fatal("expected an error when both lookups fail")
	}
}
