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
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/baskezada/baske-finance/internal/models"
)

// Amounts travel as NUMERIC text so equality is exact decimal equality,
// free of float drift on either side of the wire.
const txColumns = `id, user_id, bank_id, amount::text, currency,
	exchange_rate::text, category, description, card_last_four,
	transaction_type, COALESCE(source_message_id, ''), transaction_date,
	summary, created_at, updated_at`

// TransactionStore provides access to the ledger records.
type TransactionStore struct {
	pool *pgxpool.Pool
}

// InsertUnique inserts a transaction, skipping silently when a record with
// the same (user, source message) already exists. Returns whether a row was
// written. This is the sole idempotency guard against duplicate delivery.
func (s *TransactionStore) InsertUnique(ctx context.Context, t models.Transaction) (bool, error) {
	var rate *string
	if t.ExchangeRate != nil {
		v := t.ExchangeRate.String()
		rate = &v
	}
	var sourceID *string
	if t.SourceMessageID != "" {
		sourceID = &t.SourceMessageID
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO transactions
			(user_id, bank_id, amount, currency, exchange_rate, category,
			 description, card_last_four, transaction_type,
			 source_message_id, transaction_date)
		VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, source_message_id) DO NOTHING
	`, t.UserID, t.BankID, t.Amount.String(), t.Currency, rate, t.Category,
		t.Description, t.CardLastFour, t.TransactionType, sourceID, t.TransactionDate)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FindReconciliable returns the user's transactions inside [from, to] whose
// amount equals the purchase amount exactly, ordered by a deterministic
// tie-break: unreconciled records first, then smallest distance from the
// anchor date, then lowest id.
func (s *TransactionStore) FindReconciliable(ctx context.Context, userID int64, amount decimal.Decimal, from, to, anchor time.Time) ([]models.Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+txColumns+`
		FROM transactions
		WHERE user_id = $1
		  AND transaction_date IS NOT NULL
		  AND transaction_date BETWEEN $2 AND $3
		  AND amount = $4::numeric
		ORDER BY (summary IS NOT NULL),
		         ABS(EXTRACT(EPOCH FROM (transaction_date - $5::timestamptz))),
		         id
	`, userID, from, to, amount.String(), anchor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

// AttachSummary stores the reconciled purchase narrative on a transaction.
func (s *TransactionStore) AttachSummary(ctx context.Context, id int64, summary string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET summary = $1, updated_at = NOW()
		WHERE id = $2
	`, summary, id)
	return err
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	var out []models.Transaction
	for rows.Next() {
		t, err := scanTxFields(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTxFields(row pgx.Row) (*models.Transaction, error) {
	var (
		t          models.Transaction
		amountText string
		rateText   *string
	)
	if err := row.Scan(
		&t.ID, &t.UserID, &t.BankID, &amountText, &t.Currency,
		&rateText, &t.Category, &t.Description, &t.CardLastFour,
		&t.TransactionType, &t.SourceMessageID, &t.TransactionDate,
		&t.Summary, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	amount, err := decimal.NewFromString(amountText)
	if err != nil {
		return nil, err
	}
	t.Amount = amount

	if rateText != nil {
		rate, err := decimal.NewFromString(*rateText)
		if err != nil {
			return nil, err
		}
		t.ExchangeRate = &rate
	}

	return &t, nil
}
