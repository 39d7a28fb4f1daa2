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

// Baske Finance — mailbox ingestion service
//
// Entry point for the ingestion service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Registers Gmail watches for linked users and renews them periodically
//  4. Serves the Pub/Sub push endpoint and the import-job API
//  5. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/baskezada/baske-finance/internal/config"
	"github.com/baskezada/baske-finance/internal/dedup"
	"github.com/baskezada/baske-finance/internal/fx"
	"github.com/baskezada/baske-finance/internal/gmail"
	"github.com/baskezada/baske-finance/internal/importer"
	"github.com/baskezada/baske-finance/internal/ledger"
	"github.com/baskezada/baske-finance/internal/oracle"
	"github.com/baskezada/baske-finance/internal/pipeline"
	"github.com/baskezada/baske-finance/internal/store"
	"github.com/baskezada/baske-finance/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting baske-finance ingestion service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"gemini_model", cfg.GeminiModel,
		"topic", cfg.PubSubTopic,
		"renew_interval", cfg.WatchRenewInterval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- PostgreSQL ---
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	st, err := store.New(ctx, pool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	filter := dedup.NewFilter(rdb)

	// --- Gemini oracle ---
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

	// --- Gmail ---
	gclient := gmail.NewClient(cfg.Google, st.Users)
	mailbox := gmail.NewMailbox(gclient)

	registrar := gmail.NewRegistrar(gclient, st.Users, cfg.PubSubTopic, cfg.WatchRenewInterval)
	registrar.Start(ctx)

	// --- Ledger ---
	rates := fx.NewClient()
	writer := ledger.NewWriter(st.Transactions, rates, cfg.BaseCurrency)
	reconciler := ledger.NewReconciler(st.Transactions)

	// --- Pipeline + jobs ---
	proc := pipeline.New(mailbox, oracleClient, writer, reconciler, filter, st.Banks)
	runner := importer.NewRunner(mailbox, proc, st.Jobs)

	// --- HTTP ---
	notifier := webhook.NewNotifier(
		webhook.GoogleVerifier{},
		st.Users,
		mailbox,
		proc,
		cfg.PushAudience,
		cfg.PushServiceAccount,
	)
	api := webhook.NewAPI(st.Users, runner, st.Jobs, oracleClient, writer, st.Banks)

	ready, err := webhook.Serve(ctx, cfg.Port, notifier, api)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready
	slog.Info("ingestion service ready", "port", cfg.Port)

	// --- Graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig.String())
	cancel()
	registrar.Stop()
	rdb.Close()

	slog.Info("ingestion service stopped")
}
