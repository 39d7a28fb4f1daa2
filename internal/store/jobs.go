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

package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baskezada/baske-finance/internal/models"
)

const jobColumns = `id, user_id, status, progress, total_items,
	processed_items, error, created_at, updated_at`

// JobStore persists import job state. Terminal statuses are guarded in SQL:
// once a job is completed, cancelled, or failed it cannot transition again.
type JobStore struct {
	pool *pgxpool.Pool
}

// Create inserts a new job in pending state.
func (s *JobStore) Create(ctx context.Context, jobID string, userID int64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_jobs (id, user_id, status) VALUES ($1, $2, 'pending')
	`, jobID, userID)
	return err
}

// Get retrieves a job scoped to its owner. Returns (nil, nil) when the job
// does not exist or belongs to another user.
func (s *JobStore) Get(ctx context.Context, userID int64, jobID string) (*models.ImportJob, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM import_jobs WHERE id = $1 AND user_id = $2
	`, jobID, userID)
	return scanJob(row)
}

// Status returns the current status only. Used by the runner's cooperative
// cancellation poll between batches.
func (s *JobStore) Status(ctx context.Context, jobID string) (models.JobStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM import_jobs WHERE id = $1`, jobID).Scan(&status)
	if err != nil {
		return "", err
	}
	return models.JobStatus(status), nil
}

// MarkProcessing transitions pending -> processing.
func (s *JobStore) MarkProcessing(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, jobID)
	return err
}

// SetTotal records the total item count once listing completes.
func (s *JobStore) SetTotal(ctx context.Context, jobID string, total int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET total_items = $1, updated_at = NOW()
		WHERE id = $2
	`, total, jobID)
	return err
}

// SaveProgress persists the processed count and percentage for an active job.
func (s *JobStore) SaveProgress(ctx context.Context, jobID string, processed, progress int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET processed_items = $1, progress = $2, updated_at = NOW()
		WHERE id = $3 AND status = 'processing'
	`, processed, progress, jobID)
	return err
}

// Complete transitions processing -> completed with progress 100. A job
// already cancelled stays cancelled.
func (s *JobStore) Complete(ctx context.Context, jobID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET status = 'completed', progress = 100, updated_at = NOW()
		WHERE id = $1 AND status = 'processing'
	`, jobID)
	return err
}

// Fail records a terminal failure with the captured error message.
func (s *JobStore) Fail(ctx context.Context, jobID, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET status = 'failed', error = $1, updated_at = NOW()
		WHERE id = $2 AND status IN ('pending', 'processing')
	`, errMsg, jobID)
	return err
}

// Cancel requests cooperative cancellation of an active job. A no-op for
// jobs already in a terminal state.
func (s *JobStore) Cancel(ctx context.Context, userID int64, jobID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND status IN ('pending', 'processing')
	`, jobID, userID)
	return err
}

func scanJob(row pgx.Row) (*models.ImportJob, error) {
	var j models.ImportJob
	err := row.Scan(
		&j.ID, &j.UserID, &j.Status, &j.Progress, &j.TotalItems,
		&j.ProcessedItems, &j.Error, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &j, nil
}
