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

// Package ledger persists transaction drafts and reconciles purchase
// confirmations against stored bank transactions.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baskezada/baske-finance/internal/models"
)

// TransactionInserter is what the writer needs from the store.
type TransactionInserter interface {
	InsertUnique(ctx context.Context, t models.Transaction) (bool, error)
}

// RateSource provides the same-day exchange-rate snapshot for foreign
// currencies. Implemented by fx.Client.
type RateSource interface {
	USDToCLP(ctx context.Context, date time.Time) (decimal.Decimal, error)
}

// Writer records transaction drafts in the ledger.
type Writer struct {
	txs          TransactionInserter
	rates        RateSource
	baseCurrency string
}

// NewWriter creates a ledger writer. rates may be nil to disable FX snapshots.
func NewWriter(txs TransactionInserter, rates RateSource, baseCurrency string) *Writer {
	return &Writer{txs: txs, rates: rates, baseCurrency: baseCurrency}
}

// RecordTransaction inserts a draft with insert-or-skip semantics keyed on
// the source message identifier: a record already present for the same
// (user, message) makes the call a no-op, not an error. Reports whether a
// row was written.
//
// For non-base currencies with a known date, a same-day exchange-rate
// snapshot is captured before insert; a rate failure is non-fatal and the
// snapshot is simply left absent.
func (w *Writer) RecordTransaction(ctx context.Context, userID, bankID int64, draft *models.TransactionDraft, sourceMessageID string) (bool, error) {
	t := models.Transaction{
		UserID:          userID,
		BankID:          bankID,
		Amount:          draft.Amount.Abs(),
		Currency:        draft.Currency,
		Category:        draft.Category,
		Description:     draft.Description,
		CardLastFour:    draft.CardLastFour,
		TransactionType: draft.TransactionType,
		SourceMessageID: sourceMessageID,
		TransactionDate: draft.TransactionDate,
	}

	if w.rates != nil && t.Currency != w.baseCurrency && t.TransactionDate != nil {
		rate, err := w.rates.USDToCLP(ctx, *t.TransactionDate)
		if err != nil {
			slog.Warn("exchange rate unavailable, storing without snapshot",
				"user_id", userID,
				"currency", t.Currency,
				"error", err,
			)
		} else {
			t.ExchangeRate = &rate
		}
	}

	inserted, err := w.txs.InsertUnique(ctx, t)
	if err != nil {
		return false, err
	}

	if !inserted {
		slog.Info("duplicate source message, ledger insert skipped",
			"user_id", userID,
			"source_message_id", sourceMessageID,
		)
		return false, nil
	}

	slog.Info("transaction recorded",
		"user_id", userID,
		"bank_id", bankID,
		"amount", t.Amount,
		"currency", t.Currency,
		"type", t.TransactionType,
		"source_message_id", sourceMessageID,
	)
	return true, nil
}
