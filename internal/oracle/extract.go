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

package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/baskezada/baske-finance/internal/models"
)

// ErrIncompletePurchase marks a response that was recognised as a purchase
// but lacks amount, date, or summary. Such a draft cannot be reconciled;
// callers distinguish this from "not a purchase at all" (nil, nil).
var ErrIncompletePurchase = errors.New("purchase draft missing amount, date, or summary")

// transactionWire mirrors the JSON shape the oracle is instructed to emit
// for a single transaction.
type transactionWire struct {
	IsTransaction   bool            `json:"isTransaction"`
	BankID          int64           `json:"bankId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	CardLastFour    string          `json:"cardLastFour"`
	TransactionDate string          `json:"transactionDate"`
	TransactionType string          `json:"transactionType"`
}

type purchaseWire struct {
	IsPurchase   bool            `json:"isPurchase"`
	Amount       decimal.Decimal `json:"amount"`
	Currency     string          `json:"currency"`
	PurchaseDate string          `json:"purchaseDate"`
	Summary      string          `json:"summary"`
}

// ExtractTransaction asks the oracle to parse a bank-notification email into
// a transaction draft. The prompt enumerates the known-bank catalog and the
// oracle must answer with a bank identifier; a response naming an unknown
// bank is discarded because it cannot be stored relationally.
//
// Returns nil on any transport, configuration, or parse failure — a failed
// extraction skips the message, it never crashes the pipeline.
func (c *Client) ExtractTransaction(ctx context.Context, subject, from, body string, banks []models.Bank) *models.TransactionDraft {
	if !c.Configured() {
		slog.Warn("oracle not configured, skipping transaction extraction")
		return nil
	}

	text, err := c.generate(ctx, transactionPrompt(subject, from, body, banks))
	if err != nil {
		slog.Error("transaction extraction call failed", "subject", subject, "error", err)
		return nil
	}

	raw, ok := firstJSONObject(text)
	if !ok {
		slog.Warn("no JSON object in oracle response", "raw", text)
		return nil
	}

	var wire transactionWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		slog.Warn("unparseable transaction JSON from oracle", "raw", raw, "error", err)
		return nil
	}

	if !wire.IsTransaction {
		return nil
	}

	if !knownBank(banks, wire.BankID) {
		slog.Warn("oracle selected unknown bank, discarding draft",
			"subject", subject,
			"bank_id", wire.BankID,
		)
		return nil
	}

	return &models.TransactionDraft{
		IsTransaction:   true,
		BankID:          wire.BankID,
		Amount:          wire.Amount.Abs(),
		Currency:        defaultCurrency(wire.Currency),
		Category:        wire.Category,
		Description:     wire.Description,
		CardLastFour:    wire.CardLastFour,
		TransactionDate: parseWhen(wire.TransactionDate),
		TransactionType: defaultMovement(wire.TransactionType),
	}
}

// ExtractPurchase asks the oracle to parse a merchant confirmation email
// into a purchase draft. A draft missing amount, date, or summary cannot be
// reconciled and is surfaced as ErrIncompletePurchase; everything else that
// goes wrong degrades to (nil, nil).
func (c *Client) ExtractPurchase(ctx context.Context, subject, from, body string) (*models.PurchaseDraft, error) {
	if !c.Configured() {
		slog.Warn("oracle not configured, skipping purchase extraction")
		return nil, nil
	}

	text, err := c.generate(ctx, purchasePrompt(subject, from, body))
	if err != nil {
		slog.Error("purchase extraction call failed", "subject", subject, "error", err)
		return nil, nil
	}

	raw, ok := firstJSONObject(text)
	if !ok {
		slog.Warn("no JSON object in oracle response", "raw", text)
		return nil, nil
	}

	var wire purchaseWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		slog.Warn("unparseable purchase JSON from oracle", "raw", raw, "error", err)
		return nil, nil
	}

	if !wire.IsPurchase {
		return nil, nil
	}

	when := parseWhen(wire.PurchaseDate)
	if wire.Amount.IsZero() || when == nil || wire.Summary == "" {
		return nil, ErrIncompletePurchase
	}

	return &models.PurchaseDraft{
		IsPurchase:   true,
		Amount:       wire.Amount.Abs(),
		Currency:     defaultCurrency(wire.Currency),
		PurchaseDate: when,
		Summary:      wire.Summary,
	}, nil
}

// ExtractBatch parses tabular statement text into transaction drafts. Used
// by the bulk import path; drafts carry no bank and no source message id.
// Returns an empty slice on any failure.
func (c *Client) ExtractBatch(ctx context.Context, tabular string) []models.TransactionDraft {
	if !c.Configured() {
		slog.Warn("oracle not configured, skipping batch extraction")
		return nil
	}

	text, err := c.generate(ctx, batchPrompt(tabular))
	if err != nil {
		slog.Error("batch extraction call failed", "error", err)
		return nil
	}

	raw, ok := firstJSONArray(text)
	if !ok {
		slog.Warn("no JSON array in oracle response", "raw", text)
		return nil
	}

	var wires []transactionWire
	if err := json.Unmarshal([]byte(raw), &wires); err != nil {
		slog.Warn("unparseable batch JSON from oracle", "raw", raw, "error", err)
		return nil
	}

	drafts := make([]models.TransactionDraft, 0, len(wires))
	for _, w := range wires {
		if w.Amount.IsZero() {
			continue
		}
		// The prompt demands absolute values, but the oracle is not
		// trusted on sign conventions.
		drafts = append(drafts, models.TransactionDraft{
			IsTransaction:   true,
			Amount:          w.Amount.Abs(),
			Currency:        defaultCurrency(w.Currency),
			Category:        w.Category,
			Description:     w.Description,
			CardLastFour:    w.CardLastFour,
			TransactionDate: parseWhen(w.TransactionDate),
			TransactionType: defaultMovement(w.TransactionType),
		})
	}

	slog.Info("batch extraction parsed", "count", len(drafts))
	return drafts
}

func knownBank(banks []models.Bank, id int64) bool {
	for _, b := range banks {
		if b.ID == id {
			return true
		}
	}
	return false
}

func defaultCurrency(c string) string {
	if c == "" {
		return "CLP"
	}
	return c
}

func defaultMovement(t string) string {
	if t == models.MovementAbono {
		return models.MovementAbono
	}
	return models.MovementCargo
}

// parseWhen parses the date formats the oracle actually produces. Returns
// nil when absent or unparseable — the transaction date is nullable.
func parseWhen(s string) *time.Time {
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
