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

// Baske Finance — Historical Import Command
//
// Standalone CLI tool that imports historical bank mail for one user
// within a date range. Intended for seeding data on newly linked
// accounts. It runs the same tracked import job as the HTTP API and
// waits for it to finish.
//
// Usage:
//
//	go run ./cmd/backfill/ --user mail@example.com --start 2024-01-01 --end 2024-06-30
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/baskezada/baske-finance/internal/config"
	"github.com/baskezada/baske-finance/internal/dedup"
	"github.com/baskezada/baske-finance/internal/fx"
	"github.com/baskezada/baske-finance/internal/gmail"
	"github.com/baskezada/baske-finance/internal/importer"
	"github.com/baskezada/baske-finance/internal/ledger"
	"github.com/baskezada/baske-finance/internal/models"
	"github.com/baskezada/baske-finance/internal/oracle"
	"github.com/baskezada/baske-finance/internal/pipeline"
	"github.com/baskezada/baske-finance/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	userFlag := flag.String("user", "", "Email of the linked account to import (required)")
	startFlag := flag.String("start", "", "Start date, YYYY-MM-DD (required)")
	endFlag := flag.String("end", "", "End date, YYYY-MM-DD inclusive (required)")
	flag.Parse()

	if *userFlag == "" || *startFlag == "" || *endFlag == "" {
		fmt.Fprintf(os.Stderr, "Error: --user, --start and --end are required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	start, err := time.Parse("2006-01-02", *startFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --start date %q: %v\n", *startFlag, err)
		os.Exit(1)
	}
	end, err := time.Parse("2006-01-02", *endFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid --end date %q: %v\n", *endFlag, err)
		os.Exit(1)
	}
	if end.Before(start) {
		fmt.Fprintf(os.Stderr, "Error: --end precedes --start\n")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	st, err := store.New(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	user, err := st.Users.GetByEmail(ctx, *userFlag)
	if err != nil {
		slog.Error("looking up user", "email", *userFlag, "error", err)
		os.Exit(1)
	}
	if user == nil {
		slog.Error("no linked account for email", "email", *userFlag)
		os.Exit(1)
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	filter := dedup.NewFilter(rdb)

	var oracleClient *oracle.Client
	if cfg.GeminiAPIKey == "" {
		slog.Warn("GEMINI_API_KEY not set, all mail will classify as OTHER")
		oracleClient = oracle.NewClient(nil, cfg.OracleTimeout)
	} else {
		gen, err := oracle.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			slog.Error("failed to create Gemini client", "error", err)
			os.Exit(1)
		}
		defer gen.Close()
		oracleClient = oracle.NewClient(gen, cfg.OracleTimeout)
	}

	gclient := gmail.NewClient(cfg.Google, st.Users)
	mailbox := gmail.NewMailbox(gclient)

	writer := ledger.NewWriter(st.Transactions, fx.NewClient(), cfg.BaseCurrency)
	reconciler := ledger.NewReconciler(st.Transactions)
	proc := pipeline.New(mailbox, oracleClient, writer, reconciler, filter, st.Banks)
	runner := importer.NewRunner(mailbox, proc, st.Jobs)

	jobID, err := runner.Start(ctx, user, start, end.AddDate(0, 0, 1))
	if err != nil {
		slog.Error("starting import job", "error", err)
		os.Exit(1)
	}
	slog.Info("import job started", "job_id", jobID)

	// Poll until the job reaches a terminal state.
	for {
		time.Sleep(2 * time.Second)

		job, err := st.Jobs.Get(ctx, user.ID, jobID)
		if err != nil {
			slog.Error("reading job", "job_id", jobID, "error", err)
			os.Exit(1)
		}
		if job == nil {
			slog.Error("job disappeared", "job_id", jobID)
			os.Exit(1)
		}

		slog.Info("import progress",
			"job_id", jobID,
			"status", string(job.Status),
			"progress", job.Progress,
			"processed", job.ProcessedItems,
			"total", job.TotalItems,
		)

		if job.Status.Terminal() {
			if job.Status != models.JobCompleted {
				slog.Error("import did not complete",
					"status", string(job.Status),
					"error", job.Error,
				)
				os.Exit(1)
			}
			slog.Info("import complete",
				"processed", job.ProcessedItems,
				"total", job.TotalItems,
			)
			return
		}
	}
}
