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

package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baskezada/baske-finance/internal/models"
)

// matchWindow bounds how far a bank transaction may sit from the purchase
// confirmation date and still be considered the same event.
const matchWindow = 24 * time.Hour

// TransactionMatcher is what the reconciler needs from the store.
type TransactionMatcher interface {
	FindReconciliable(ctx context.Context, userID int64, amount decimal.Decimal, from, to, anchor time.Time) ([]models.Transaction, error)
	AttachSummary(ctx context.Context, id int64, summary string) error
}

// Reconciler attaches purchase summaries to existing ledger entries.
type Reconciler struct {
	txs TransactionMatcher
}

func NewReconciler(txs TransactionMatcher) *Reconciler {
	return &Reconciler{txs: txs}
}

// Reconcile looks for a stored transaction of the same user with the exact
// amount within matchWindow of date and attaches summary to the best
// candidate. Candidates are ranked unreconciled first, then by proximity to
// date, then by lowest id. Returns the updated transaction, or nil when
// nothing matched. Reconciliation never creates ledger entries.
func (r *Reconciler) Reconcile(ctx context.Context, userID int64, amount decimal.Decimal, date time.Time, summary string) (*models.Transaction, error) {
	from := date.Add(-matchWindow)
	to := date.Add(matchWindow)

	matches, err := r.txs.FindReconciliable(ctx, userID, amount.Abs(), from, to, date)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		slog.Info("no ledger match for purchase confirmation",
			"user_id", userID,
			"amount", amount,
			"date", date.Format(time.RFC3339),
		)
		return nil, nil
	}

	best := matches[0]
	if err := r.txs.AttachSummary(ctx, best.ID, summary); err != nil {
		return nil, err
	}
	best.Summary = &summary

	slog.Info("purchase reconciled",
		"user_id", userID,
		"transaction_id", best.ID,
		"amount", amount,
		"candidates", len(matches),
	)
	return &best, nil
}
