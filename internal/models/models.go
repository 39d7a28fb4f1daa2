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

// Package models defines the data structures shared across the ingestion
// and reconciliation pipeline.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Classification is the three-way routing tag produced per message by the
// pre-filter. It is transient and never persisted.
type Classification int

const (
	// ClassOther marks mail that is neither a bank notification nor a
	// purchase confirmation. The message is dropped.
	ClassOther Classification = iota
	// ClassBankTransaction routes the message to transaction extraction
	// and the ledger writer.
	ClassBankTransaction
	// ClassPurchaseInfo routes the message to purchase extraction and the
	// reconciliation engine.
	ClassPurchaseInfo
)

func (c Classification) String() string {
	switch c {
	case ClassBankTransaction:
		return "BANK_TRANSACTION"
	case ClassPurchaseInfo:
		return "PURCHASE_INFORMATION"
	default:
		return "OTHER"
	}
}

// Movement direction of a ledger amount. Amounts are always non-negative;
// the sign lives here.
const (
	MovementCargo = "cargo" // debit / expense
	MovementAbono = "abono" // credit / income
)

// Message is the usable content extracted from a mailbox message.
type Message struct {
	ID      string
	Subject string
	From    string
	Body    string
}

// Bank is an entry of the known-bank catalog. The extraction oracle is
// constrained to pick a bank by ID so drafts can be stored relationally.
type Bank struct {
	ID   int64
	Name string
}

// TransactionDraft is the structured output of transaction extraction,
// pending validation and storage.
type TransactionDraft struct {
	IsTransaction   bool            `json:"isTransaction"`
	BankID          int64           `json:"bankId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	CardLastFour    string          `json:"cardLastFour"`
	TransactionDate *time.Time      `json:"transactionDate"`
	TransactionType string          `json:"transactionType"` // cargo | abono
}

// PurchaseDraft is the structured output of purchase extraction. Purchases
// carry no bank reference; they are reconciled against existing ledger
// records instead of stored directly.
type PurchaseDraft struct {
	IsPurchase   bool            `json:"isPurchase"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PurchaseDate *time.Time      `json:"purchaseDate"`
	Summary      string          `json:"summary"` // markdown narrative
}

// Transaction is a persisted ledger record.
type Transaction struct {
	ID              int64
	UserID          int64
	BankID          int64
	Amount          decimal.Decimal
	Currency        string
	ExchangeRate    *decimal.Decimal // daily snapshot for non-base currencies
	Category        string
	Description     string
	CardLastFour    string
	TransactionType string
	SourceMessageID string // idempotency key, unique per user
	TransactionDate *time.Time
	Summary         *string // attached by reconciliation
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// JobStatus is the lifecycle state of an import job.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobCancelled  JobStatus = "cancelled"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether the status allows no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled || s == JobFailed
}

// ImportJob tracks one backfill run over a mailbox date range.
type ImportJob struct {
	ID             string
	UserID         int64
	Status         JobStatus
	Progress       int // 0–100, non-decreasing while active
	TotalItems     int
	ProcessedItems int
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// User is a linked account with its mailbox credential and change cursor.
type User struct {
	ID           int64
	Email        string
	Name         string
	AccessToken  string
	RefreshToken string

	// HistoryID is the mailbox cursor: the provider-assigned position in
	// the change history, overwritten after each watch or history walk.
	HistoryID       string
	CursorRenewedAt *time.Time

	CreatedAt time.Time
}
