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

// Package webhook receives Pub/Sub push notifications for watched
// mailboxes and exposes the HTTP API for import jobs and bulk loads.
// When a watched mailbox changes, Gmail publishes to the configured
// topic and Pub/Sub POSTs the notification here; the handler walks the
// change history from the stored cursor and runs each new message
// through the pipeline.
package webhook

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/idtoken"

	"github.com/baskezada/baske-finance/internal/models"
)

// processTimeout bounds one notification's history walk. Pub/Sub was
// already acked; a stuck walk must not pin the goroutine forever.
const processTimeout = 5 * time.Minute

// pushEnvelope is the wrapper Pub/Sub wraps around every push delivery.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// mailboxChange is the Gmail payload inside the Pub/Sub message data.
type mailboxChange struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// TokenVerifier validates the OIDC token Pub/Sub attaches to push
// requests and returns the authenticated service account email.
type TokenVerifier interface {
	Verify(ctx context.Context, token, audience string) (string, error)
}

// GoogleVerifier validates tokens against Google's public keys.
type GoogleVerifier struct{}

func (GoogleVerifier) Verify(ctx context.Context, token, audience string) (string, error) {
	payload, err := idtoken.Validate(ctx, token, audience)
	if err != nil {
		return "", err
	}
	email, _ := payload.Claims["email"].(string)
	return email, nil
}

// UserDirectory resolves notification recipients and stores cursors.
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	SaveCursor(ctx context.Context, userID int64, historyID string) error
}

// HistoryWalker lists message IDs added since a cursor. Implemented by
// gmail.Mailbox.
type HistoryWalker interface {
	WalkHistory(ctx context.Context, user *models.User, cursor string) ([]string, error)
}

// MessageProcessor handles one message end to end. Implemented by
// pipeline.Processor.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, user *models.User, messageID string) error
}

// Notifier handles Pub/Sub push deliveries.
type Notifier struct {
	verifier       TokenVerifier
	users          UserDirectory
	walker         HistoryWalker
	processor      MessageProcessor
	audience       string
	serviceAccount string // expected push identity, empty disables the check
}

// NewNotifier creates a push notification handler.
func NewNotifier(verifier TokenVerifier, users UserDirectory, walker HistoryWalker, processor MessageProcessor, audience, serviceAccount string) *Notifier {
	return &Notifier{
		verifier:       verifier,
		users:          users,
		walker:         walker,
		processor:      processor,
		audience:       audience,
		serviceAccount: serviceAccount,
	}
}

// ServeNotification handles a Pub/Sub push request. The bearer token is
// verified before the body is touched; unauthenticated requests never
// reach decoding. Malformed but authenticated payloads are acknowledged
// so Pub/Sub does not redeliver them forever.
func (n *Notifier) ServeNotification(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		slog.Warn("push notification without bearer token", "remote", r.RemoteAddr)
		http.Error(w, "missing bearer token", http.StatusUnauthorized)
		return
	}

	email, err := n.verifier.Verify(r.Context(), token, n.audience)
	if err != nil {
		slog.Warn("push notification token rejected",
			"remote", r.RemoteAddr,
			"error", err,
		)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}
	if n.serviceAccount != "" && email != n.serviceAccount {
		slog.Warn("push notification from unexpected identity",
			"email", email,
		)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("failed to read push body", "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	change, err := decodeChange(body)
	if err != nil {
		slog.Warn("malformed push payload, acknowledging",
			"error", err,
			"body_len", len(body),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	// Respond fast; Pub/Sub redelivers on slow acks.
	w.WriteHeader(http.StatusNoContent)

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), processTimeout)
		defer cancel()
		n.processChange(ctx, change)
	}()
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

func decodeChange(body []byte) (*mailboxChange, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(env.Message.Data)
	if err != nil {
		return nil, fmt.Errorf("message data: %w", err)
	}
	var change mailboxChange
	if err := json.Unmarshal(data, &change); err != nil {
		return nil, fmt.Errorf("mailbox change: %w", err)
	}
	if change.EmailAddress == "" || change.HistoryID == 0 {
		return nil, fmt.Errorf("incomplete mailbox change: %s", data)
	}
	return &change, nil
}

// processChange walks the mailbox history and advances the cursor. The
// cursor always moves to the notification's history ID so a poisoned
// range cannot wedge the mailbox on permanent redelivery.
func (n *Notifier) processChange(ctx context.Context, change *mailboxChange) {
	user, err := n.users.GetByEmail(ctx, change.EmailAddress)
	if err != nil {
		slog.Error("looking up notification recipient",
			"email", change.EmailAddress,
			"error", err,
		)
		return
	}
	if user == nil {
		slog.Warn("notification for unknown mailbox", "email", change.EmailAddress)
		return
	}

	notified := strconv.FormatUint(change.HistoryID, 10)
	cursor := user.HistoryID
	if cursor == "" {
		cursor = notified
	}

	ids, err := n.walker.WalkHistory(ctx, user, cursor)
	if err != nil {
		slog.Error("history walk failed",
			"user_id", user.ID,
			"cursor", cursor,
			"error", err,
		)
	}

	for _, id := range ids {
		if err := n.processor.ProcessMessage(ctx, user, id); err != nil {
			slog.Warn("message failed during notification processing",
				"user_id", user.ID,
				"message_id", id,
				"error", err,
			)
		}
	}

	if err := n.users.SaveCursor(ctx, user.ID, notified); err != nil {
		slog.Error("saving mailbox cursor",
			"user_id", user.ID,
			"history_id", notified,
			"error", err,
		)
		return
	}

	slog.Info("notification processed",
		"user_id", user.ID,
		"messages", len(ids),
		"history_id", notified,
	)
}
