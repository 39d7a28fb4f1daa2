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

// Package pipeline runs the per-message flow: fetch, classify, extract,
// then record or reconcile depending on what the message turned out to be.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baskezada/baske-finance/internal/models"
	"github.com/baskezada/baske-finance/internal/oracle"
)

// MessageSource fetches usable message content. Implemented by gmail.Mailbox.
type MessageSource interface {
	FetchMessage(ctx context.Context, user *models.User, messageID string) (*models.Message, error)
}

// Oracle is the classification and extraction surface of the LLM client.
type Oracle interface {
	Classify(ctx context.Context, subject, from string) models.Classification
	ExtractTransaction(ctx context.Context, subject, from, body string, banks []models.Bank) *models.TransactionDraft
	ExtractPurchase(ctx context.Context, subject, from, body string) (*models.PurchaseDraft, error)
}

// Recorder writes transaction drafts to the ledger. Implemented by
// ledger.Writer.
type Recorder interface {
	RecordTransaction(ctx context.Context, userID, bankID int64, draft *models.TransactionDraft, sourceMessageID string) (bool, error)
}

// Matcher reconciles purchase confirmations. Implemented by
// ledger.Reconciler.
type Matcher interface {
	Reconcile(ctx context.Context, userID int64, amount decimal.Decimal, date time.Time, summary string) (*models.Transaction, error)
}

// SeenFilter suppresses messages already processed recently. Implemented by
// dedup.Filter.
type SeenFilter interface {
	IsNew(ctx context.Context, userID int64, messageID string) (bool, error)
}

// BankCatalog lists the known banks fed to transaction extraction.
type BankCatalog interface {
	List(ctx context.Context) ([]models.Bank, error)
}

// Processor drives one message through the pipeline end to end.
type Processor struct {
	source     MessageSource
	oracle     Oracle
	recorder   Recorder
	reconciler Matcher
	seen       SeenFilter
	banks      BankCatalog
}

// New creates a processor. seen may be nil to disable the dedup filter.
func New(source MessageSource, o Oracle, recorder Recorder, reconciler Matcher, seen SeenFilter, banks BankCatalog) *Processor {
	return &Processor{
		source:     source,
		oracle:     o,
		recorder:   recorder,
		reconciler: reconciler,
		seen:       seen,
		banks:      banks,
	}
}

// ProcessMessage fetches and routes a single message. A message that
// classifies as OTHER, fails extraction validation, or was already seen is
// dropped without error; only infrastructure failures propagate.
func (p *Processor) ProcessMessage(ctx context.Context, user *models.User, messageID string) error {
	if p.seen != nil {
		fresh, err := p.seen.IsNew(ctx, user.ID, messageID)
		if err != nil {
			// Fail open: a dedup outage must not stall ingestion. The
			// ledger's unique source key still prevents double writes.
			slog.Warn("dedup check failed, processing anyway",
				"user_id", user.ID,
				"message_id", messageID,
				"error", err,
			)
		} else if !fresh {
			slog.Debug("message already seen, skipping",
				"user_id", user.ID,
				"message_id", messageID,
			)
			return nil
		}
	}

	msg, err := p.source.FetchMessage(ctx, user, messageID)
	if err != nil {
		return fmt.Errorf("fetching message %s: %w", messageID, err)
	}

	class := p.oracle.Classify(ctx, msg.Subject, msg.From)
	slog.Debug("message classified",
		"user_id", user.ID,
		"message_id", messageID,
		"class", class.String(),
	)

	switch class {
	case models.ClassBankTransaction:
		return p.handleTransaction(ctx, user, msg)
	case models.ClassPurchaseInfo:
		return p.handlePurchase(ctx, user, msg)
	default:
		return nil
	}
}

func (p *Processor) handleTransaction(ctx context.Context, user *models.User, msg *models.Message) error {
	banks, err := p.banks.List(ctx)
	if err != nil {
		return fmt.Errorf("loading bank catalog: %w", err)
	}

	draft := p.oracle.ExtractTransaction(ctx, msg.Subject, msg.From, msg.Body, banks)
	if draft == nil {
		slog.Info("no transaction extracted",
			"user_id", user.ID,
			"message_id", msg.ID,
		)
		return nil
	}

	if _, err := p.recorder.RecordTransaction(ctx, user.ID, draft.BankID, draft, msg.ID); err != nil {
		return fmt.Errorf("recording transaction from %s: %w", msg.ID, err)
	}
	return nil
}

func (p *Processor) handlePurchase(ctx context.Context, user *models.User, msg *models.Message) error {
	draft, err := p.oracle.ExtractPurchase(ctx, msg.Subject, msg.From, msg.Body)
	if err != nil {
		if errors.Is(err, oracle.ErrIncompletePurchase) {
			slog.Info("purchase confirmation incomplete, skipping",
				"user_id", user.ID,
				"message_id", msg.ID,
			)
			return nil
		}
		return fmt.Errorf("extracting purchase from %s: %w", msg.ID, err)
	}
	if draft == nil {
		slog.Debug("not a purchase after all",
			"user_id", user.ID,
			"message_id", msg.ID,
		)
		return nil
	}

	if _, err := p.reconciler.Reconcile(ctx, user.ID, draft.Amount, *draft.PurchaseDate, draft.Summary); err != nil {
		return fmt.Errorf("reconciling purchase from %s: %w", msg.ID, err)
	}
	return nil
}
