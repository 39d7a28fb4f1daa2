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
	"fmt"
	"strings"

	"github.com/baskezada/baske-finance/internal/models"
)

func classifyPrompt(subject, from string) string {
	return fmt.Sprintf(`Classify the following email header (subject and sender).

Respond with exactly one of these three phrases and nothing else:
- BANK_TRANSACTION (a bank or fintech notifying a charge, transfer, payment or deposit)
- PURCHASE_INFORMATION (a merchant confirming an order or purchase: receipt, order confirmation, invoice)
- OTHER (anything else: newsletters, security alerts, personal mail)

Subject: %s
From: %s
`, subject, from)
}

func transactionPrompt(subject, from, body string, banks []models.Bank) string {
	var catalog strings.Builder
	for _, b := range banks {
		fmt.Fprintf(&catalog, "- id %d: %s\n", b.ID, b.Name)
	}

	return fmt.Sprintf(`Analyze the following email and determine if it represents a bank transaction (purchase, transfer, etc.).
If it is a transaction, extract the details in JSON format.
If it is NOT a transaction, return {"isTransaction": false}.

Known banks (you MUST pick the matching bankId from this list; if the sender matches none, return {"isTransaction": false}):
%s
Fields to extract:
- isTransaction (boolean)
- bankId (number, the id of the matching bank from the list above)
- amount (number, the absolute numeric value, never negative)
- currency (string, ISO code like USD, EUR, CLP)
- category (string, e.g. Food, Transport, Subscription)
- description (string, merchant name or short description)
- cardLastFour (string, last 4 digits of the card if available)
- transactionDate (string, ISO 8601 if available, otherwise null)
- transactionType (string, "cargo" for an expense or "abono" for income)

Email details:
Subject: %s
From: %s

Email body:
"""
%s
"""

Return ONLY the JSON.
`, catalog.String(), subject, from, body)
}

func purchasePrompt(subject, from, body string) string {
	return fmt.Sprintf(`Analyze the following email and determine if it is a purchase confirmation from a merchant (order confirmation, receipt, invoice).
If it is, extract the details in JSON format.
If it is NOT a purchase confirmation, return {"isPurchase": false}.

Fields to extract:
- isPurchase (boolean)
- amount (number, the total paid, absolute value)
- currency (string, ISO code)
- purchaseDate (string, ISO 8601 if available, otherwise null)
- summary (string, a markdown summary of the purchase: merchant, order number, line items with prices)

Email details:
Subject: %s
From: %s

Email body:
"""
%s
"""

Return ONLY the JSON.
`, subject, from, body)
}

func batchPrompt(tabular string) string {
	return fmt.Sprintf(`You are analyzing transaction data exported from a bank statement file.

Your task is to extract ALL transactions from this data and return them as a JSON array.

For each transaction, extract:
- amount (number, the absolute value without sign)
- transactionType ("cargo" for expenses or "abono" for income - infer from negative/positive amounts or debit/credit columns; a charge on a credit card is a cargo)
- currency (string, ISO code like USD, EUR, CLP - default to CLP if not specified)
- category (string: Food, Transport, Shopping, Services, Salary, Transfer, etc.)
- description (string, merchant name or transaction description)
- transactionDate (string, ISO 8601 format if available)
- cardLastFour (string, last 4 digits if available)

Important rules:
- If amount is negative or marked as "cargo", set transactionType to "cargo"
- If amount is positive or marked as "abono", set transactionType to "abono"
- Always use absolute values for amount (no negative signs)
- Skip header rows and summary rows
- Only include actual transactions

Data:
"""
%s
"""

Return ONLY a JSON array of transactions.
`, tabular)
}
