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

package gmail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
	"time"
)

// TestListMessageIDsPagination verifies that listing builds the date-range
// query and follows nextPageToken to exhaustion.
func TestListMessageIDsPagination(t *testing.T) {
	var mu sync.Mutex
	var queries, tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("q"))
		tokens = append(tokens, r.URL.Query().Get("pageToken"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{"messages": [{"id": "m1"}, {"id": "m2"}], "nextPageToken": "page2"}`))
		} else {
			w.Write([]byte(`{"messages": [{"id": "m3"}]}`))
		}
	}))
	defer srv.Close()

	m := NewMailbox(testClient(srv))
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	ids, err := m.ListMessageIDs(context.Background(), watchUserFixture(7), start, end)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := []string{"m1", "m2", "m3"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(queries) != 2 {
		t.Fatalf("requests = %d, want 2", len(queries))
	}
	wantQuery := "after:2024/05/01 before:2024/06/01"
	if queries[0] != wantQuery || queries[1] != wantQuery {
		t.Errorf("queries = %v, want %q on every page", queries, wantQuery)
	}
	if tokens[1] != "page2" {
		t.Errorf("second page token = %q, want page2", tokens[1])
	}
}

func TestListMessageIDsUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	m := NewMailbox(testClient(srv))
	_, err := m.ListMessageIDs(context.Background(), watchUserFixture(7), time.Time{}, time.Time{})
	if err == nil {
		t.Fatal("expected an error")
	}
}

// TestWalkHistoryPagination verifies cursor-based history walking: only
// messageAdded entries yield ids, empty entries are skipped, and pagination
// is followed.
func TestWalkHistoryPagination(t *testing.T) {
	var mu sync.Mutex
	var startIDs, types []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gmail/v1/users/me/history" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		startIDs = append(startIDs, r.URL.Query().Get("startHistoryId"))
		types = append(types, r.URL.Query().Get("historyTypes"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("pageToken") == "" {
			w.Write([]byte(`{
				"history": [
					{"messagesAdded": [{"message": {"id": "h1"}}, {"message": {"id": "h2"}}]},
					{},
					{"messagesAdded": [{"message": {"id": ""}}]}
				],
				"nextPageToken": "page2"
			}`))
		} else {
			w.Write([]byte(`{"history": [{"messagesAdded": [{"message": {"id": "h3"}}]}]}`))
		}
	}))
	defer srv.Close()

	m := NewMailbox(testClient(srv))
	ids, err := m.WalkHistory(context.Background(), watchUserFixture(7), "100")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if want := []string{"h1", "h2", "h3"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(startIDs) != 2 {
		t.Fatalf("requests = %d, want 2", len(startIDs))
	}
	for i := range startIDs {
		if startIDs[i] != "100" {
			t.Errorf("startHistoryId = %q, want 100", startIDs[i])
		}
		if types[i] != "messageAdded" {
			t.Errorf("historyTypes = %q, want messageAdded", types[i])
		}
	}
}

func TestWalkHistoryRejectsBadCursor(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	m := NewMailbox(testClient(srv))
	_, err := m.WalkHistory(context.Background(), watchUserFixture(7), "not-a-number")
	if err == nil {
		t.Fatal("expected an error for a malformed cursor")
	}
	if called {
		t.Error("malformed cursor must not reach the provider")
	}
}
