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
	"fmt"
	"strconv"
	"time"

	"github.com/baskezada/baske-finance/internal/models"
)

// ListMessageIDs enumerates all message identifiers received in the given
// date range, following pagination to exhaustion.
func (m *Mailbox) ListMessageIDs(ctx context.Context, user *models.User, start, end time.Time) ([]string, error) {
	svc, err := m.client.Service(ctx, user)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("after:%s before:%s",
		start.Format("2006/01/02"), end.Format("2006/01/02"))

	var ids []string
	pageToken := ""
	for {
		call := svc.Users.Messages.List("me").Q(query).MaxResults(500)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list messages %q: %w", query, err)
		}
		for _, msg := range res.Messages {
			ids = append(ids, msg.Id)
		}
		if res.NextPageToken == "" {
			return ids, nil
		}
		pageToken = res.NextPageToken
	}
}

// WalkHistory returns the identifiers of messages added to the mailbox
// since the given cursor, in history order.
func (m *Mailbox) WalkHistory(ctx context.Context, user *models.User, cursor string) ([]string, error) {
	svc, err := m.client.Service(ctx, user)
	if err != nil {
		return nil, err
	}

	startID, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid history cursor %q: %w", cursor, err)
	}

	var ids []string
	pageToken := ""
	for {
		call := svc.Users.History.List("me").
			StartHistoryId(startID).
			HistoryTypes("messageAdded")
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		res, err := call.Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("list history since %s: %w", cursor, err)
		}
		for _, h := range res.History {
			for _, added := range h.MessagesAdded {
				if added.Message != nil && added.Message.Id != "" {
					ids = append(ids, added.Message.Id)
				}
			}
		}
		if res.NextPageToken == "" {
			return ids, nil
		}
		pageToken = res.NextPageToken
	}
}
