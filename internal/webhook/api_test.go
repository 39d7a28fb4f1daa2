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

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/baskezada/baske-finance/internal/models"
)

type apiUsers struct {
	user *models.User
}

func (f apiUsers) GetByID(ctx context.Context, id int64) (*models.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, nil
}

type fakeStarter struct {
	jobID    string
	gotStart time.Time
	gotEnd   time.Time
	started  int
}

func (f *fakeStarter) Start(ctx context.Context, user *models.User, start, end time.Time) (string, error) {
	f.started++
	f.gotStart = start
	f.gotEnd = end
	return f.jobID, nil
}

type fakeJobs struct {
	jobs      map[string]*models.ImportJob
	cancelled []string
}

func (f *fakeJobs) Get(ctx context.Context, userID int64, jobID string) (*models.ImportJob, error) {
	j, ok := f.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, nil
	}
	cp := *j
	return &cp, nil
}

func (f *fakeJobs) Cancel(ctx context.Context, userID int64, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	if j, ok := f.jobs[jobID]; ok && j.UserID == userID && !j.Status.Terminal() {
		j.Status = models.JobCancelled
	}
	return nil
}

type fakeExtractor struct {
	drafts []models.TransactionDraft
}

func (f fakeExtractor) ExtractBatch(ctx context.Context, tabular string) []models.TransactionDraft {
	return f.drafts
}

type countingRecorder struct {
	calls int
}

func (c *countingRecorder) RecordTransaction(ctx context.Context, userID, bankID int64, draft *models.TransactionDraft, sourceMessageID string) (bool, error) {
	c.calls++
	return true, nil
}

type staticBanks struct{}

func (staticBanks) List(ctx context.Context) ([]models.Bank, error) {
	return []models.Bank{{ID: 1, Name: "Banco de Chile"}}, nil
}

func (staticBanks) Ensure(ctx context.Context, name string) (int64, error) {
	return 2, nil
}

func newTestAPI(starter *fakeStarter, jobs *fakeJobs, rec *countingRecorder, drafts []models.TransactionDraft) *http.ServeMux {
	if jobs == nil {
		jobs = &fakeJobs{jobs: map[string]*models.ImportJob{}}
	}
	if rec == nil {
		rec = &countingRecorder{}
	}
	api := NewAPI(
		apiUsers{user: &models.User{ID: 7, Email: "u@example.com"}},
		starter,
		jobs,
		fakeExtractor{drafts: drafts},
		rec,
		staticBanks{},
	)
	mux := http.NewServeMux()
	api.Register(mux)
	return mux
}

func TestStartImport(t *testing.T) {
	starter := &fakeStarter{jobID: "job-123"}
	mux := newTestAPI(starter, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/users/7/imports",
		strings.NewReader(`{"startDate": "2024-01-01", "endDate": "2024-06-30"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rr.Code, http.StatusAccepted, rr.Body)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp["jobId"] != "job-123" {
		t.Errorf("jobId = %q, want job-123", resp["jobId"])
	}

	// The end date is inclusive, so the mailbox range extends one day past it.
	wantEnd := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	if !starter.gotEnd.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", starter.gotEnd, wantEnd)
	}
}

func TestStartImportValidation(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{
			name: "bad date format",
			path: "/api/users/7/imports",
			body: `{"startDate": "01-01-2024", "endDate": "2024-06-30"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "end before start",
			path: "/api/users/7/imports",
			body: `{"startDate": "2024-06-30", "endDate": "2024-01-01"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown user",
			path: "/api/users/99/imports",
			body: `{"startDate": "2024-01-01", "endDate": "2024-06-30"}`,
			want: http.StatusNotFound,
		},
		{
			name: "non-numeric user id",
			path: "/api/users/abc/imports",
			body: `{"startDate": "2024-01-01", "endDate": "2024-06-30"}`,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &fakeStarter{jobID: "job-123"}
			mux := newTestAPI(starter, nil, nil, nil)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)

			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
			if starter.started != 0 {
				t.Error("invalid request must not start a job")
			}
		})
	}
}

func TestGetImport(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]*models.ImportJob{
		"job-1": {ID: "job-1", UserID: 7, Status: models.JobProcessing, Progress: 40, TotalItems: 20, ProcessedItems: 8},
		"job-2": {ID: "job-2", UserID: 9, Status: models.JobCompleted},
	}}
	mux := newTestAPI(&fakeStarter{}, jobs, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/users/7/imports/job-1", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp jobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "processing" || resp.Progress != 40 {
		t.Errorf("resp = %+v", resp)
	}

	// Another user's job is invisible, not just forbidden.
	req = httptest.NewRequest(http.MethodGet, "/api/users/7/imports/job-2", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another user's job", rr.Code)
	}
}

func TestCancelImport(t *testing.T) {
	jobs := &fakeJobs{jobs: map[string]*models.ImportJob{
		"active":   {ID: "active", UserID: 7, Status: models.JobProcessing},
		"finished": {ID: "finished", UserID: 7, Status: models.JobCompleted},
	}}
	mux := newTestAPI(&fakeStarter{}, jobs, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/users/7/imports/active/cancel", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
	}
	var resp jobResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "cancelled" {
		t.Errorf("status = %q, want cancelled", resp.Status)
	}

	// Cancelling a completed job is a no-op that reports the final state.
	req = httptest.NewRequest(http.MethodPost, "/api/users/7/imports/finished/cancel", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "completed" {
		t.Errorf("status = %q, want completed (terminal state preserved)", resp.Status)
	}
	for _, id := range jobs.cancelled {
		if id == "finished" {
			t.Error("terminal job must not reach the store's cancel")
		}
	}
}

func TestBulkImport(t *testing.T) {
	rec := &countingRecorder{}
	drafts := []models.TransactionDraft{
		{Description: "SUPERMERCADO"},
		{Description: "SUELDO"},
	}
	mux := newTestAPI(&fakeStarter{}, nil, rec, drafts)

	req := httptest.NewRequest(http.MethodPost, "/api/users/7/transactions/bulk",
		strings.NewReader(`{"bankId": 1, "content": "01/05/2024\tSUPERMERCADO\t-30.000"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body)
	}
	var resp map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["extracted"] != 2 || resp["imported"] != 2 {
		t.Errorf("resp = %v", resp)
	}
	if rec.calls != 2 {
		t.Errorf("recorder calls = %d, want 2", rec.calls)
	}
}

func TestBulkImportUnknownBank(t *testing.T) {
	rec := &countingRecorder{}
	mux := newTestAPI(&fakeStarter{}, nil, rec, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/users/7/transactions/bulk",
		strings.NewReader(`{"bankId": 99, "content": "rows"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if rec.calls != 0 {
		t.Error("unknown bank must not record anything")
	}
}

func TestBankEndpoints(t *testing.T) {
	mux := newTestAPI(&fakeStarter{}, nil, &countingRecorder{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/banks", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rr.Code)
	}
	var banks []bankResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &banks); err != nil {
		t.Fatal(err)
	}
	if len(banks) != 1 || banks[0].Name != "Banco de Chile" {
		t.Errorf("banks = %v", banks)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/banks",
		strings.NewReader(`{"name": "Banco Estado"}`))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("add status = %d, want 200: %s", rr.Code, rr.Body)
	}
	var added bankResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &added); err != nil {
		t.Fatal(err)
	}
	if added.ID != 2 || added.Name != "Banco Estado" {
		t.Errorf("added = %+v", added)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/banks", strings.NewReader(`{}`))
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty name status = %d, want 400", rr.Code)
	}
}
