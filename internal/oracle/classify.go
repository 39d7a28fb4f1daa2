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
	"log/slog"
	"strings"

	"github.com/baskezada/baske-finance/internal/models"
)

// Classify tags a message header as bank transaction, purchase information,
// or other. The oracle is instructed to answer with one of three literal
// phrases; matching is case-insensitive substring containment because the
// model's exact phrasing is not perfectly reliable.
//
// Failure policy: with no oracle configured the pre-filter cannot help, so
// everything is OTHER (nothing downstream could extract anyway). On a
// transport error the default flips to BANK_TRANSACTION: a false positive
// costs one extraction call, a false negative silently drops a real
// transaction.
func (c *Client) Classify(ctx context.Context, subject, from string) models.Classification {
	if !c.Configured() {
		return models.ClassOther
	}

	text, err := c.generate(ctx, classifyPrompt(subject, from))
	if err != nil {
		slog.Warn("classification call failed, defaulting to bank transaction",
			"subject", subject,
			"error", err,
		)
		return models.ClassBankTransaction
	}

	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "PURCHASE_INFORMATION"):
		return models.ClassPurchaseInfo
	case strings.Contains(upper, "BANK_TRANSACTION"):
		return models.ClassBankTransaction
	default:
		return models.ClassOther
	}
}
