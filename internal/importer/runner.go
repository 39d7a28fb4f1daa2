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

// Package importer runs historical mailbox imports as tracked background
// jobs with progress reporting and cooperative cancellation.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/baskezada/baske-finance/internal/models"
)

const (
	// batchSize bounds concurrent message processing per batch.
	batchSize = 5
	// cancelCheckEvery is the number of batches between cancellation polls.
	cancelCheckEvery = 2
	// progressEvery is the number of processed items between progress writes.
	progressEvery = 10
)

// Lister enumerates mailbox message IDs in a date range. Implemented by
// gmail.Mailbox.
type Lister interface {
	ListMessageIDs(ctx context.Context, user *models.User, start, end time.Time) ([]string, error)
}

// MessageProcessor handles one message end to end. Implemented by
// pipeline.Processor.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, user *models.User, messageID string) error
}

// JobTracker is the job-state surface of the store used by the runner.
type JobTracker interface {
	Create(ctx context.Context, jobID string, userID int64) error
	MarkProcessing(ctx context.Context, jobID string) error
	SetTotal(ctx context.Context, jobID string, total int) error
	SaveProgress(ctx context.Context, jobID string, processed, progress int) error
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID, errMsg string) error
	Status(ctx context.Context, jobID string) (models.JobStatus, error)
}

// Runner executes import jobs.
type Runner struct {
	lister    Lister
	processor MessageProcessor
	jobs      JobTracker
}

func NewRunner(lister Lister, processor MessageProcessor, jobs JobTracker) *Runner {
	return &Runner{lister: lister, processor: processor, jobs: jobs}
}

// Start registers a pending job and launches it in the background,
// returning the job ID immediately.
func (r *Runner) Start(ctx context.Context, user *models.User, start, end time.Time) (string, error) {
	jobID := uuid.NewString()
	if err := r.jobs.Create(ctx, jobID, user.ID); err != nil {
		return "", fmt.Errorf("creating import job: %w", err)
	}

	slog.Info("import job started",
		"job_id", jobID,
		"user_id", user.ID,
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
	)

	// The job outlives the request that started it.
	go r.run(context.WithoutCancel(ctx), jobID, user, start, end)

	return jobID, nil
}

// run drives the job to a terminal state. All failure paths, including
// panics, land in the failed status so no job is left processing forever.
func (r *Runner) run(ctx context.Context, jobID string, user *models.User, start, end time.Time) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("import job panicked",
				"job_id", jobID,
				"user_id", user.ID,
				"panic", rec,
			)
			r.fail(ctx, jobID, fmt.Sprintf("internal error: %v", rec))
		}
	}()

	if err := r.jobs.MarkProcessing(ctx, jobID); err != nil {
		r.fail(ctx, jobID, fmt.Sprintf("marking job processing: %v", err))
		return
	}

	ids, err := r.lister.ListMessageIDs(ctx, user, start, end)
	if err != nil {
		r.fail(ctx, jobID, fmt.Sprintf("listing messages: %v", err))
		return
	}
	if err := r.jobs.SetTotal(ctx, jobID, len(ids)); err != nil {
		r.fail(ctx, jobID, fmt.Sprintf("recording item count: %v", err))
		return
	}

	slog.Info("import job listed mailbox",
		"job_id", jobID,
		"user_id", user.ID,
		"messages", len(ids),
	)

	processed := 0
	for batchStart := 0; batchStart < len(ids); batchStart += batchSize {
		batchIdx := batchStart / batchSize
		if batchIdx%cancelCheckEvery == 0 {
			status, err := r.jobs.Status(ctx, jobID)
			if err != nil {
				slog.Warn("cancellation poll failed",
					"job_id", jobID,
					"error", err,
				)
			} else if status == models.JobCancelled {
				slog.Info("import job cancelled",
					"job_id", jobID,
					"user_id", user.ID,
					"processed", processed,
				)
				return
			}
		}

		batchEnd := batchStart + batchSize
		if batchEnd > len(ids) {
			batchEnd = len(ids)
		}

		var wg sync.WaitGroup
		for _, id := range ids[batchStart:batchEnd] {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer func() {
					if rec := recover(); rec != nil {
						slog.Error("message processing panicked",
							"job_id", jobID,
							"message_id", id,
							"panic", rec,
						)
					}
				}()
				if err := r.processor.ProcessMessage(ctx, user, id); err != nil {
					slog.Warn("message failed during import",
						"job_id", jobID,
						"message_id", id,
						"error", err,
					)
				}
			}()
		}
		wg.Wait()

		processed = batchEnd
		if processed%progressEvery == 0 || processed == len(ids) {
			progress := processed * 100 / len(ids)
			if err := r.jobs.SaveProgress(ctx, jobID, processed, progress); err != nil {
				slog.Warn("saving job progress failed",
					"job_id", jobID,
					"error", err,
				)
			}
		}
	}

	if err := r.jobs.Complete(ctx, jobID); err != nil {
		slog.Error("completing import job failed",
			"job_id", jobID,
			"error", err,
		)
		return
	}

	slog.Info("import job complete",
		"job_id", jobID,
		"user_id", user.ID,
		"processed", processed,
	)
}

func (r *Runner) fail(ctx context.Context, jobID, msg string) {
	if err := r.jobs.Fail(ctx, jobID, msg); err != nil {
		slog.Error("marking import job failed",
			"job_id", jobID,
			"error", err,
		)
	}
}
