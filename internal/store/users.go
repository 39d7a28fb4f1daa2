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

const userColumns = `id, email, name, access_token, refresh_token,
	gmail_history_id, cursor_renewed_at, created_at`

// UserStore provides access to user records, including the per-user mailbox
// credential and change cursor.
type UserStore struct {
	pool *pgxpool.Pool
}

// GetByID retrieves a user by primary key. Returns (nil, nil) if absent.
func (s *UserStore) GetByID(ctx context.Context, id int64) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

// GetByEmail retrieves a user by mailbox address. Returns (nil, nil) if absent.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

// SaveCursor overwrites the stored mailbox cursor. The cursor is only ever
// replaced, never cleared.
func (s *UserStore) SaveCursor(ctx context.Context, userID int64, historyID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET gmail_history_id = $1, cursor_renewed_at = NOW()
		WHERE id = $2
	`, historyID, userID)
	return err
}

// SaveTokens writes back a refreshed credential so subsequent mailbox calls
// from any component use the latest token.
func (s *UserStore) SaveTokens(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE users
		SET access_token = $1, refresh_token = $2
		WHERE id = $3
	`, accessToken, refreshToken, userID)
	return err
}

// ListWatchable returns users holding a refresh credential, i.e. the set
// whose mailbox watches can be established or renewed.
func (s *UserStore) ListWatchable(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE refresh_token <> '' ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		if err := rows.Scan(
			&u.ID, &u.Email, &u.Name, &u.AccessToken, &u.RefreshToken,
			&u.HistoryID, &u.CursorRenewedAt, &u.CreatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Email, &u.Name, &u.AccessToken, &u.RefreshToken,
		&u.HistoryID, &u.CursorRenewedAt, &u.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
