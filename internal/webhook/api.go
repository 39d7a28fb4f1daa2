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
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/baskezada/baske-finance/internal/models"
)

// JobStarter launches import jobs. Implemented by importer.Runner.
type JobStarter interface {
	Start(ctx context.Context, user *models.User, start, end time.Time) (string, error)
}

// JobReader reads and cancels jobs, always scoped to their owner.
type JobReader interface {
	Get(ctx context.Context, userID int64, jobID string) (*models.ImportJob, error)
	Cancel(ctx context.Context, userID int64, jobID string) error
}

// UserLookup resolves users by ID.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// BatchExtractor turns pasted tabular text into transaction drafts.
// Implemented by oracle.Client.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, tabular string) []models.TransactionDraft
}

// Recorder writes drafts to the ledger. Implemented by ledger.Writer.
type Recorder interface {
	RecordTransaction(ctx context.Context, userID, bankID int64, draft *models.TransactionDraft, sourceMessageID string) (bool, error)
}

// BankCatalog lists and registers banks.
type BankCatalog interface {
	List(ctx context.Context) ([]models.Bank, error)
	Ensure(ctx context.Context, name string) (int64, error)
}

// API serves the import-job and bulk-load endpoints.
type API struct {
	users     UserLookup
	runner    JobStarter
	jobs      JobReader
	extractor BatchExtractor
	recorder  Recorder
	banks     BankCatalog
}

func NewAPI(users UserLookup, runner JobStarter, jobs JobReader, extractor BatchExtractor, recorder Recorder, banks BankCatalog) *API {
	return &API{
		users:     users,
		runner:    runner,
		jobs:      jobs,
		extractor: extractor,
		recorder:  recorder,
		banks:     banks,
	}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/users/{userID}/imports", a.startImport)
	mux.HandleFunc("GET /api/users/{userID}/imports/{jobID}", a.getImport)
	mux.HandleFunc("POST /api/users/{userID}/imports/{jobID}/cancel", a.cancelImport)
	mux.HandleFunc("POST /api/users/{userID}/transactions/bulk", a.bulkImport)
	mux.HandleFunc("GET /api/banks", a.listBanks)
	mux.HandleFunc("POST /api/banks", a.addBank)
}

type startImportRequest struct {
	StartDate string `json:"startDate"` // YYYY-MM-DD
	EndDate   string `json:"endDate"`   // YYYY-MM-DD, inclusive
}

type jobResponse struct {
	JobID          string `json:"jobId"`
	Status         string `json:"status"`
	Progress       int    `json:"progress"`
	TotalItems     int    `json:"totalItems"`
	ProcessedItems int    `json:"processedItems"`
	Error          string `json:"error,omitempty"`
}

func toJobResponse(j *models.ImportJob) jobResponse {
	return jobResponse{
		JobID:          j.ID,
		Status:         string(j.Status),
		Progress:       j.Progress,
		TotalItems:     j.TotalItems,
		ProcessedItems: j.ProcessedItems,
		Error:          j.Error,
	}
}

func (a *API) startImport(w http.ResponseWriter, r *http.Request) {
	user, ok := a.pathUser(w, r)
	if !ok {
		return
	}

	var req startImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		http.Error(w, "invalid startDate, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		http.Error(w, "invalid endDate, want YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if end.Before(start) {
		http.Error(w, "endDate precedes startDate", http.StatusBadRequest)
		return
	}

	// The mailbox query's upper bound is exclusive; shift a day so the
	// requested end date is included.
	jobID, err := a.runner.Start(r.Context(), user, start, end.AddDate(0, 0, 1))
	if err != nil {
		slog.Error("starting import job", "user_id", user.ID, "error", err)
		http.Error(w, "failed to start import", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (a *API) getImport(w http.ResponseWriter, r *http.Request) {
	user, ok := a.pathUser(w, r)
	if !ok {
		return
	}

	job, err := a.jobs.Get(r.Context(), user.ID, r.PathValue("jobID"))
	if err != nil {
		slog.Error("reading import job", "error", err)
		http.Error(w, "failed to read job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

func (a *API) cancelImport(w http.ResponseWriter, r *http.Request) {
	user, ok := a.pathUser(w, r)
	if !ok {
		return
	}
	jobID := r.PathValue("jobID")

	job, err := a.jobs.Get(r.Context(), user.ID, jobID)
	if err != nil {
		slog.Error("reading import job", "error", err)
		http.Error(w, "failed to read job", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.Error(w, "job not found", http.StatusNotFound)
		return
	}

	// Cancelling a finished job is a no-op, not an error.
	if !job.Status.Terminal() {
		if err := a.jobs.Cancel(r.Context(), user.ID, jobID); err != nil {
			slog.Error("cancelling import job", "job_id", jobID, "error", err)
			http.Error(w, "failed to cancel job", http.StatusInternalServerError)
			return
		}
		job, err = a.jobs.Get(r.Context(), user.ID, jobID)
		if err != nil || job == nil {
			http.Error(w, "failed to read job", http.StatusInternalServerError)
			return
		}
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

type bulkImportRequest struct {
	BankID  int64  `json:"bankId"`
	Content string `json:"content"` // pasted statement rows, any tabular text
}

func (a *API) bulkImport(w http.ResponseWriter, r *http.Request) {
	user, ok := a.pathUser(w, r)
	if !ok {
		return
	}

	var req bulkImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Content == "" {
		http.Error(w, "content is required", http.StatusBadRequest)
		return
	}

	banks, err := a.banks.List(r.Context())
	if err != nil {
		slog.Error("loading bank catalog", "error", err)
		http.Error(w, "failed to load banks", http.StatusInternalServerError)
		return
	}
	known := false
	for _, b := range banks {
		if b.ID == req.BankID {
			known = true
			break
		}
	}
	if !known {
		http.Error(w, "unknown bankId", http.StatusBadRequest)
		return
	}

	drafts := a.extractor.ExtractBatch(r.Context(), req.Content)

	imported := 0
	for i := range drafts {
		inserted, err := a.recorder.RecordTransaction(r.Context(), user.ID, req.BankID, &drafts[i], "")
		if err != nil {
			slog.Error("recording bulk transaction",
				"user_id", user.ID,
				"error", err,
			)
			continue
		}
		if inserted {
			imported++
		}
	}

	slog.Info("bulk import finished",
		"user_id", user.ID,
		"bank_id", req.BankID,
		"extracted", len(drafts),
		"imported", imported,
	)
	writeJSON(w, http.StatusOK, map[string]int{
		"extracted": len(drafts),
		"imported":  imported,
	})
}

type bankResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (a *API) listBanks(w http.ResponseWriter, r *http.Request) {
	banks, err := a.banks.List(r.Context())
	if err != nil {
		slog.Error("loading bank catalog", "error", err)
		http.Error(w, "failed to load banks", http.StatusInternalServerError)
		return
	}

	out := make([]bankResponse, 0, len(banks))
	for _, b := range banks {
		out = append(out, bankResponse{ID: b.ID, Name: b.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

type addBankRequest struct {
	Name string `json:"name"`
}

func (a *API) addBank(w http.ResponseWriter, r *http.Request) {
	var req addBankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	id, err := a.banks.Ensure(r.Context(), req.Name)
	if err != nil {
		slog.Error("registering bank", "name", req.Name, "error", err)
		http.Error(w, "failed to register bank", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, bankResponse{ID: id, Name: req.Name})
}

// pathUser resolves the {userID} path segment, writing the error response
// itself when the user cannot be resolved.
func (a *API) pathUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	id, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return nil, false
	}
	user, err := a.users.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("looking up user", "user_id", id, "error", err)
		http.Error(w, "failed to look up user", http.StatusInternalServerError)
		return nil, false
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return nil, false
	}
	return user, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writing response", "error", err)
	}
}
