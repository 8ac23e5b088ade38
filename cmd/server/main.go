/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the claims reserve adjustment server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Initialize SQLite store
  3. Seed the demo claim when the database is empty
  4. Wire the adjustment service and HTTP router
  5. Start server with graceful shutdown

CONFIGURATION:
  Flags take precedence; env vars (via .env) fill the defaults.
  -port / PORT          HTTP server port (default: 8080)
  -db   / DB_PATH       SQLite database path (default: reserves.db)
                        Use ":memory:" for in-memory database
  -log  / LOG_LEVEL     logrus level (default: info)
  -rules / RULES_PATH   JSON rule set overriding the built-in tables

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/reserves.db"

  # Run with in-memory database and demo data
  ./server -db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jaimotivus/claims-reserve/api"
	"github.com/jaimotivus/claims-reserve/claims"
	"github.com/jaimotivus/claims-reserve/factory"
	"github.com/jaimotivus/claims-reserve/reserve"
	"github.com/jaimotivus/claims-reserve/store/sqlite"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", envOr("DB_PATH", "reserves.db"), "SQLite database path")
	logLevel := flag.String("log", envOr("LOG_LEVEL", "info"), "log level")
	rulesPath := flag.String("rules", envOr("RULES_PATH", ""), "JSON rule set path")
	flag.Parse()

	log := logrus.New()
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		log.SetLevel(level)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer store.Close()

	// Rule set: built-in defaults unless a JSON file is supplied.
	ruleCfg := &factory.RuleConfig{
		Tables:  claims.DefaultTables(),
		Balance: reserve.DefaultBalanceConfig(),
	}
	if *rulesPath != "" {
		data, err := os.ReadFile(*rulesPath)
		if err != nil {
			log.WithError(err).Fatal("failed to read rule set")
		}
		ruleCfg, err = factory.NewRuleFactory().ParseRules(string(data))
		if err != nil {
			log.WithError(err).Fatal("failed to parse rule set")
		}
		log.WithField("path", *rulesPath).Info("rule set loaded")
	}

	// Wire collaborators. The memory directory stands in for the policy
	// administration system; coverages come from the store itself.
	directory := claims.NewMemoryDirectory(store)

	if err := seedDemoClaim(context.Background(), store, directory); err != nil {
		log.WithError(err).Fatal("failed to seed demo claim")
	}

	service := claims.NewService(store, directory, ruleCfg.Tables, claims.Options{
		Log:      log,
		Overlays: ruleCfg.Overlays,
	})
	service.Aggregator.Config = ruleCfg.Balance
	handler := api.NewHandler(service, ruleCfg.Tables)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", *port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server stopped")
}

// seedDemoClaim registers one open claim with a shared-limit product so the
// API is usable out of the box. Reserve rows are only inserted when absent.
func seedDemoClaim(ctx context.Context, store *sqlite.Store, directory *claims.MemoryDirectory) error {
	ref := reserve.ClaimRef{Branch: 9, Line: 14, Number: 100001}
	policy := "POL-2026-000123"

	priority := func(p int) *int { return &p }
	coverages := []reserve.CoverageReserve{
		{
			Claim:                     ref,
			Coverage:                  reserve.CoverageKey{AccountingLine: 14, Code: "BASIC"},
			Policy:                    policy,
			SumInsured:                decimal.NewFromInt(100000),
			InitialReserve:            decimal.NewFromInt(40000),
			CurrentBalance:            decimal.NewFromInt(40000),
			Priority:                  priority(1),
			ValidateAgainstSumInsured: true,
			SharedLimitProduct:        true,
			EffectiveDate:             time.Now(),
		},
		{
			Claim:                     ref,
			Coverage:                  reserve.CoverageKey{AccountingLine: 14, Code: "FUNERAL"},
			Policy:                    policy,
			SumInsured:                decimal.NewFromInt(20000),
			InitialReserve:            decimal.NewFromInt(5000),
			CurrentBalance:            decimal.NewFromInt(5000),
			Priority:                  priority(2),
			ValidateAgainstSumInsured: true,
			SharedLimitProduct:        true,
			EffectiveDate:             time.Now(),
		},
		{
			Claim:          ref,
			Coverage:       reserve.CoverageKey{AccountingLine: 15, Code: "EXPENSES"},
			Policy:         policy,
			SumInsured:     decimal.NewFromInt(10000),
			InitialReserve: decimal.NewFromInt(2000),
			CurrentBalance: decimal.NewFromInt(2000),
			EffectiveDate:  time.Now(),
		},
	}

	existing, err := store.Reserves(ctx, ref)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		for _, c := range coverages {
			if err := store.InsertReserve(ctx, c); err != nil {
				return err
			}
		}
	}

	directory.AddClaim(&reserve.Claim{
		Ref:        ref,
		Status:     reserve.StatusOpen,
		Policy:     policy,
		PolicyLine: 14,
		Currency:   "MXN",
		Occurred: time.Now().AddDate(0, -1, 0),
	})
	for _, c := range coverages {
		directory.SetPolicySum(policy, c.Coverage, c.SumInsured)
	}
	return nil
}
