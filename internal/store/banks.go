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

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/baskezada/baske-finance/internal/models"
)

// BankStore provides access to the known-bank catalog. The extraction
// oracle is constrained to this catalog so drafts resolve to a foreign key
// instead of free text.
type BankStore struct {
	pool *pgxpool.Pool
}

// List returns the full catalog ordered by id.
func (s *BankStore) List(ctx context.Context) ([]models.Bank, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM banks ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var banks []models.Bank
	for rows.Next() {
		var b models.Bank
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// Ensure inserts a bank by name if missing and returns its id.
func (s *BankStore) Ensure(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO banks (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, name).Scan(&id)
	return id, err
}
