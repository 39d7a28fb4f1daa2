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
	"encoding/base64"
	"fmt"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/baskezada/baske-finance/internal/models"
)

// Mailbox exposes the provider operations the pipeline consumes: fetch a
// message, list a date range, walk the change history.
type Mailbox struct {
	client *Client
}

// NewMailbox creates a mailbox accessor over the given client factory.
func NewMailbox(client *Client) *Mailbox {
	return &Mailbox{client: client}
}

// FetchMessage retrieves a message's subject, sender, and best-effort plain
// text body. Body extraction never fails the call: an unparseable MIME
// structure degrades to the provider snippet, possibly empty.
func (m *Mailbox) FetchMessage(ctx context.Context, user *models.User, messageID string) (*models.Message, error) {
	svc, err := m.client.Service(ctx, user)
	if err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get("me", messageID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", messageID, err)
	}

	return &models.Message{
		ID:      messageID,
		Subject: headerValue(msg.Payload, "Subject"),
		From:    headerValue(msg.Payload, "From"),
		Body:    extractBody(msg),
	}, nil
}

func headerValue(payload *gmailapi.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody prefers a text/plain part anywhere in the MIME tree, falling
// back to the provider snippet.
func extractBody(msg *gmailapi.Message) string {
	if msg.Payload != nil {
		if part := findPlainText(msg.Payload); part != nil {
			if text, err := decodeBodyData(part.Body.Data); err == nil && text != "" {
				return text
			}
		}
	}
	return msg.Snippet
}

func findPlainText(part *gmailapi.MessagePart) *gmailapi.MessagePart {
	if part == nil {
		return nil
	}
	if strings.HasPrefix(part.MimeType, "text/plain") && part.Body != nil && part.Body.Data != "" {
		return part
	}
	for _, child := range part.Parts {
		if found := findPlainText(child); found != nil {
			return found
		}
	}
	return nil
}

// decodeBodyData decodes Gmail's URL-safe base64 body encoding, which
// appears both with and without padding in the wild.
func decodeBodyData(data string) (string, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), nil
	}
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", fmt.Errorf("decode body: %w", err)
	}
	return string(b), nil
}
