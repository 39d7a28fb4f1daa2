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

// Package store provides the Postgres-backed persistence layer: users with
// their mailbox credential and change cursor, the known-bank catalog, the
// transaction ledger, and import job state.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the per-entity stores sharing one Postgres pool.
type Store struct {
	Users        *UserStore
	Banks        *BankStore
	Transactions *TransactionStore
	Jobs         *JobStore
}

// New creates the store and ensures the schema exists.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{
		Users:        &UserStore{pool: pool},
		Banks:        &BankStore{pool: pool},
		Transactions: &TransactionStore{pool: pool},
		Jobs:         &JobStore{pool: pool},
	}
	if err := ensureSchema(ctx, pool); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id                BIGSERIAL PRIMARY KEY,
			email             TEXT NOT NULL UNIQUE,
			name              TEXT NOT NULL DEFAULT '',
			access_token      TEXT NOT NULL DEFAULT '',
			refresh_token     TEXT NOT NULL DEFAULT '',
			gmail_history_id  TEXT NOT NULL DEFAULT '',
			cursor_renewed_at TIMESTAMPTZ,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS banks (
			id   BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);

		CREATE TABLE IF NOT EXISTS transactions (
			id                BIGSERIAL PRIMARY KEY,
			user_id           BIGINT NOT NULL REFERENCES users(id),
			bank_id           BIGINT NOT NULL REFERENCES banks(id),
			amount            NUMERIC NOT NULL,
			currency          TEXT NOT NULL DEFAULT 'CLP',
			exchange_rate     NUMERIC,
			category          TEXT NOT NULL DEFAULT '',
			description       TEXT NOT NULL DEFAULT '',
			card_last_four    TEXT NOT NULL DEFAULT '',
			transaction_type  TEXT NOT NULL DEFAULT 'cargo',
			source_message_id TEXT,
			transaction_date  TIMESTAMPTZ,
			summary           TEXT,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, source_message_id)
		);
		CREATE INDEX IF NOT EXISTS idx_tx_user_date ON transactions(user_id, transaction_date);

		CREATE TABLE IF NOT EXISTS import_jobs (
			id              TEXT PRIMARY KEY,
			user_id         BIGINT NOT NULL REFERENCES users(id),
			status          TEXT NOT NULL DEFAULT 'pending',
			progress        INT NOT NULL DEFAULT 0,
			total_items     INT NOT NULL DEFAULT 0,
			processed_items INT NOT NULL DEFAULT 0,
			error           TEXT NOT NULL DEFAULT '',
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_user ON import_jobs(user_id);
	`)
	return err
}
