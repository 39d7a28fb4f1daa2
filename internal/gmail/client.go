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

// Package gmail is the mailbox provider client. It builds per-user Gmail
// API services from stored OAuth credentials, extracts usable message
// content, walks the change history, and maintains push-notification
// watches.
package gmail

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/baskezada/baske-finance/internal/config"
	"github.com/baskezada/baske-finance/internal/models"
)

// TokenSaver persists a refreshed credential so subsequent mailbox calls
// from any component use the latest token. Implemented by store.UserStore.
type TokenSaver interface {
	SaveTokens(ctx context.Context, userID int64, accessToken, refreshToken string) error
}

// Client builds authenticated Gmail services for users.
type Client struct {
	oauth    *oauth2.Config
	saver    TokenSaver
	endpoint string // overrides the API base URL in tests
}

// NewClient creates a Gmail client factory from the app's OAuth credentials.
func NewClient(cfg config.GoogleConfig, saver TokenSaver) *Client {
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     googleoauth.Endpoint,
			Scopes:       []string{gmailapi.GmailReadonlyScope},
		},
		saver: saver,
	}
}

// Service returns a Gmail API service acting as the given user. The token
// source refreshes expired access tokens transparently and writes them back
// through the TokenSaver.
func (c *Client) Service(ctx context.Context, user *models.User) (*gmailapi.Service, error) {
	if user.RefreshToken == "" {
		return nil, fmt.Errorf("user %d has no refresh credential", user.ID)
	}

	base := c.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
	})

	ts := &persistingSource{
		src:     base,
		userID:  user.ID,
		saver:   c.saver,
		last:    user.AccessToken,
		refresh: user.RefreshToken,
	}

	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmailapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("build gmail service: %w", err)
	}
	return svc, nil
}

// persistingSource wraps an oauth2.TokenSource and writes refreshed access
// tokens back to storage. The stored credential is treated as
// single-writer-per-user; the mutex covers concurrent calls within one
// process.
type persistingSource struct {
	src     oauth2.TokenSource
	userID  int64
	saver   TokenSaver
	mu      sync.Mutex
	last    string
	refresh string
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if tok.AccessToken != p.last {
		p.last = tok.AccessToken
		// Google only returns a new refresh token on first consent.
		if tok.RefreshToken != "" {
			p.refresh = tok.RefreshToken
		}
		if p.saver != nil {
			if err := p.saver.SaveTokens(context.Background(), p.userID, tok.AccessToken, p.refresh); err != nil {
				slog.Warn("failed to persist refreshed token",
					"user_id", p.userID,
					"error", err,
				)
			}
		}
	}

	return tok, nil
}
