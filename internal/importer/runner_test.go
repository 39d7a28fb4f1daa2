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

package importer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/baskezada/baske-finance/internal/models"
)

type fakeLister struct {
	ids []string
	err error
}

func (f fakeLister) ListMessageIDs(ctx context.Context, user *models.User, start, end time.Time) ([]string, error) {
	return f.ids, f.err
}

type fakeProcessor struct {
	mu     sync.Mutex
	seen   []string
	failOn map[string]bool
}

func (f *fakeProcessor) ProcessMessage(ctx context.Context, user *models.User, messageID string) error {
	f.mu.Lock()
	f.seen = append(f.seen, messageID)
	f.mu.Unlock()
	if f.failOn[messageID] {
		return errors.New("oracle exploded")
	}
	return nil
}

func (f *fakeProcessor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// fakeTracker records the job state machine in memory with the same
// transition guards as the SQL store.
type fakeTracker struct {
	mu        sync.Mutex
	status    models.JobStatus
	total     int
	processed int
	progress  int
	saves     []int // progress values in write order
	errMsg    string

	polls           int
	cancelAfterPoll int // when set, the job is cancelled after this many polls
}

func (f *fakeTracker) Create(ctx context.Context, jobID string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = models.JobPending
	return nil
}

func (f *fakeTracker) MarkProcessing(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == models.JobPending {
		f.status = models.JobProcessing
	}
	return nil
}

func (f *fakeTracker) SetTotal(ctx context.Context, jobID string, total int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.total = total
	return nil
}

func (f *fakeTracker) SaveProgress(ctx context.Context, jobID string, processed, progress int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != models.JobProcessing {
		return nil
	}
	f.processed = processed
	f.progress = progress
	f.saves = append(f.saves, progress)
	return nil
}

func (f *fakeTracker) Complete(ctx context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == models.JobProcessing {
		f.status = models.JobCompleted
		f.progress = 100
	}
	return nil
}

func (f *fakeTracker) Fail(ctx context.Context, jobID, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == models.JobPending || f.status == models.JobProcessing {
		f.status = models.JobFailed
		f.errMsg = errMsg
	}
	return nil
}

func (f *fakeTracker) Status(ctx context.Context, jobID string) (models.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if f.cancelAfterPoll > 0 && f.polls > f.cancelAfterPoll &&
		(f.status == models.JobPending || f.status == models.JobProcessing) {
		f.status = models.JobCancelled
	}
	return f.status, nil
}

func (f *fakeTracker) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == models.JobPending || f.status == models.JobProcessing {
		f.status = models.JobCancelled
	}
}

func (f *fakeTracker) snapshot() (models.JobStatus, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.processed, f.progress
}

func messageIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("m%d", i+1)
	}
	return ids
}

func testUser() *models.User {
	return &models.User{ID: 7, Email: "u@example.com"}
}

func TestRunCompletes(t *testing.T) {
	proc := &fakeProcessor{}
	tracker := &fakeTracker{}
	r := NewRunner(fakeLister{ids: messageIDs(12)}, proc, tracker)

	tracker.Create(context.Background(), "job", 7)
	r.run(context.Background(), "job", testUser(), time.Time{}, time.Time{})

	status, processed, progress := tracker.snapshot()
	if status != models.JobCompleted {
		t.Fatalf("status = %s, want completed", status)
	}
	if processed != 12 {
		t.Errorf("processed = %d, want 12", processed)
	}
	if progress != 100 {
		t.Errorf("progress = %d, want 100", progress)
	}
	if proc.count() != 12 {
		t.Errorf("processor saw %d messages, want 12", proc.count())
	}

	// Progress writes happen every ten items and at the end, never
	// decreasing.
	for i := 1; i < len(tracker.saves); i++ {
		if tracker.saves[i] < tracker.saves[i-1] {
			t.Errorf("progress went backwards: %v", tracker.saves)
		}
	}
	if len(tracker.saves) == 0 || tracker.saves[len(tracker.saves)-1] != 100 {
		t.Errorf("final progress save = %v, want 100", tracker.saves)
	}
}

func TestRunEmptyMailbox(t *testing.T) {
	tracker := &fakeTracker{}
	r := NewRunner(fakeLister{}, &fakeProcessor{}, tracker)

	tracker.Create(context.Background(), "job", 7)
	r.run(context.Background(), "job", testUser(), time.Time{}, time.Time{})

	status, _, progress := tracker.snapshot()
	if status != models.JobCompleted {
		t.Fatalf("status = %s, want completed", status)
	}
	if progress != 100 {
		t.Errorf("progress = %d, want 100", progress)
	}
	if tracker.total != 0 {
		t.Errorf("total = %d, want 0", tracker.total)
	}
}

// TestRunCancelledBeforeFirstBatch verifies that a job cancelled while
// still pending is caught by the poll before the first batch runs.
func TestRunCancelledBeforeFirstBatch(t *testing.T) {
	proc := &fakeProcessor{}
	tracker := &fakeTracker{}
	r := NewRunner(fakeLister{ids: messageIDs(30)}, proc, tracker)

	tracker.Create(context.Background(), "job", 7)
	tracker.Cancel()

	r.run(context.Background(), "job", testUser(), time.Time{}, time.Time{})

	status, _, _ := tracker.snapshot()
	if status != models.JobCancelled {
		t.Fatalf("status = %s, want cancelled", status)
	}
	if proc.count() != 0 {
		t.Errorf("processor saw %d messages, want 0", proc.count())
	}
}

// TestRunCancellation verifies the cooperative cancellation poll: a job
// cancelled mid-run stops at the next poll and is never marked completed.
func TestRunCancellation(t *testing.T) {
	proc := &fakeProcessor{}
	tracker := &fakeTracker{cancelAfterPoll: 1}
	r := NewRunner(fakeLister{ids: messageIDs(30)}, proc, tracker)

	tracker.Create(context.Background(), "job", 7)

	r.run(context.Background(), "job", testUser(), time.Time{}, time.Time{})

	status, _, progress := tracker.snapshot()
	if status != models.JobCancelled {
		t.Fatalf("status = %s, want cancelled", status)
	}
	if progress == 100 {
		t.Error("cancelled job must not report full progress")
	}
	// The poll runs every second batch, so two batches slip through
	// between the cancellation and the next poll.
	if proc.count() != 2*batchSize {
		t.Errorf("processor saw %d messages, want %d", proc.count(), 2*batchSize)
	}
}

// TestRunMessageFailureIsolated verifies that one failing message does not
// fail the job or stop the remaining messages.
func TestRunMessageFailureIsolated(t *testing.T) {
	proc := &fakeProcessor{failOn: map[string]bool{"m3": true}}
	tracker := &fakeTracker{}
	r := NewRunner(fakeLister{ids: messageIDs(5)}, proc, tracker)

	tracker.Create(context.Background(), "job", 7)
	r.run(context.Background(), "job", testUser(), time.Time{}, time.Time{})

	status, processed, _ := tracker.snapshot()
	if status != models.JobCompleted {
		t.Fatalf("status = %s, want completed", status)
	}
	if processed != 5 {
		t.Errorf("processed = %d, want 5", processed)
	}
	if proc.count() != 5 {
		t.Errorf("processor saw %d messages, want 5", proc.count())
	}
}

func TestRunListFailure(t *testing.T) {
	tracker := &fakeTracker{}
	r := NewRunner(fakeLister{err: errors.New("token revoked")}, &fakeProcessor{}, tracker)

	tracker.Create(context.Background(), "job", 7)
	r.run(context.Background(), "job", testUser(), time.Time{}, time.Time{})

	status, _, _ := tracker.snapshot()
	if status != models.JobFailed {
		t.Fatalf("status = %s, want failed", status)
	}
	if tracker.errMsg == "" {
		t.Error("failure must record an error message")
	}
}

func TestStartReturnsJobID(t *testing.T) {
	tracker := &fakeTracker{}
	r := NewRunner(fakeLister{ids: messageIDs(3)}, &fakeProcessor{}, tracker)

	jobID, err := r.Start(context.Background(), testUser(), time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	deadline := time.After(2 * time.Second)
	for {
		status, _, _ := tracker.snapshot()
		if status.Terminal() {
			if status != models.JobCompleted {
				t.Fatalf("status = %s, want completed", status)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("job never reached a terminal state")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
