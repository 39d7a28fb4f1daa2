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
	"log/slog"
	"strconv"
	"sync"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/baskezada/baske-finance/internal/models"
)

// UserDirectory is what the registrar needs from the user store.
type UserDirectory interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
	ListWatchable(ctx context.Context) ([]models.User, error)
	SaveCursor(ctx context.Context, userID int64, historyID string) error
}

// Registrar establishes and renews push-notification watches on user
// mailboxes, recording the server-assigned cursor. Watches expire after
// seven days, so a renewal loop re-subscribes everyone periodically.
// Re-subscribing an active watch simply renews it.
type Registrar struct {
	client        *Client
	users         UserDirectory
	topic         string
	renewInterval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistrar creates a watch registrar publishing to the given Pub/Sub topic.
func NewRegistrar(client *Client, users UserDirectory, topic string, renewInterval time.Duration) *Registrar {
	return &Registrar{
		client:        client,
		users:         users,
		topic:         topic,
		renewInterval: renewInterval,
	}
}

// EnsureWatch subscribes a single user's mailbox. This is a best-effort
// background operation triggered after account linking: every failure is
// logged and swallowed so the calling flow is never blocked.
func (r *Registrar) EnsureWatch(ctx context.Context, userID int64) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		slog.Error("failed to load user for mailbox watch", "user_id", userID, "error", err)
		return
	}
	if user == nil || user.RefreshToken == "" {
		slog.Error("user not found or no refresh credential for mailbox watch", "user_id", userID)
		return
	}
	r.watchUser(ctx, user)
}

func (r *Registrar) watchUser(ctx context.Context, user *models.User) {
	svc, err := r.client.Service(ctx, user)
	if err != nil {
		slog.Error("failed to build mailbox service for watch", "user_id", user.ID, "error", err)
		return
	}

	res, err := svc.Users.Watch("me", &gmailapi.WatchRequest{
		TopicName: r.topic,
		LabelIds:  []string{"INBOX"},
	}).Context(ctx).Do()
	if err != nil {
		slog.Error("mailbox watch request failed", "user_id", user.ID, "error", err)
		return
	}

	if res.HistoryId != 0 {
		cursor := strconv.FormatUint(res.HistoryId, 10)
		if err := r.users.SaveCursor(ctx, user.ID, cursor); err != nil {
			slog.Error("failed to persist mailbox cursor", "user_id", user.ID, "error", err)
			return
		}
	}

	slog.Info("mailbox watch established",
		"user_id", user.ID,
		"history_id", res.HistoryId,
		"expires", time.UnixMilli(res.Expiration).UTC(),
	)
}

// Start launches the renewal loop.
func (r *Registrar) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.renewalLoop(loopCtx)

	slog.Info("watch registrar started", "renew_interval", r.renewInterval)
}

// Stop gracefully shuts down the renewal loop.
func (r *Registrar) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	slog.Info("watch registrar stopped")
}

func (r *Registrar) renewalLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.renewInterval)
	defer ticker.Stop()

	// Subscribe everyone at startup, then renew on the interval.
	r.renewAll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.renewAll(ctx)
		}
	}
}

func (r *Registrar) renewAll(ctx context.Context) {
	users, err := r.users.ListWatchable(ctx)
	if err != nil {
		slog.Error("failed to list users for watch renewal", "error", err)
		return
	}

	for i := range users {
		r.watchUser(ctx, &users[i])
	}

	if len(users) > 0 {
		slog.Info("mailbox watches renewed", "count", len(users))
	}
}
