// Command repositoryd runs a repository server: a public, unauthenticated
// append-only store gated by proof verification, with notification filters
// and a key registry.
//
// The store backend is pluggable. The in-memory backend is for demos and
// tests; Redis and PostgreSQL are for real deployments.
//
// # Usage
//
//	go run ./cmd/repositoryd --addr :8080 --store postgres --pg-host db \
//	    --verifying-key vk.bin
//
// With --insecure-test-verifier the daemon accepts the transparent test
// scheme instead of groth16 proofs. Never use it outside development: its
// envelopes reveal channel identifiers to the repository operator.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hushwire/hushwire/internal/server"
	"github.com/hushwire/hushwire/pkg/keyring"
	"github.com/hushwire/hushwire/pkg/notify"
	"github.com/hushwire/hushwire/pkg/proof"
	"github.com/hushwire/hushwire/pkg/proof/prooftest"
	"github.com/hushwire/hushwire/pkg/repository"
	"github.com/hushwire/hushwire/pkg/repository/mem"
	"github.com/hushwire/hushwire/pkg/repository/pgrepo"
	"github.com/hushwire/hushwire/pkg/repository/redisrepo"
)

func main() {
	var (
		addr         = flag.String("addr", ":8080", "HTTP listen address")
		storeKind    = flag.String("store", "mem", "store backend: mem, redis or postgres")
		redisAddr    = flag.String("redis-addr", "localhost:6379", "Redis address")
		redisPass    = flag.String("redis-password", "", "Redis password")
		pgHost       = flag.String("pg-host", "localhost", "PostgreSQL host")
		pgPort       = flag.Int("pg-port", 5432, "PostgreSQL port")
		pgUser       = flag.String("pg-user", "hushwire", "PostgreSQL user")
		pgPassword   = flag.String("pg-password", "", "PostgreSQL password")
		pgDatabase   = flag.String("pg-database", "hushwire", "PostgreSQL database")
		vkPath       = flag.String("verifying-key", "", "groth16 verifying key file")
		insecureTest = flag.Bool("insecure-test-verifier", false, "accept transparent test proofs (development only)")
	)
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	verifier, err := buildVerifier(*vkPath, *insecureTest)
	if err != nil {
		log.Fatal("verifier setup failed", zap.Error(err))
	}
	if *insecureTest {
		log.Warn("running with the insecure test verifier")
	}

	store, err := buildStore(*storeKind, *redisAddr, *redisPass, &pgrepo.Config{
		Host:     *pgHost,
		Port:     *pgPort,
		User:     *pgUser,
		Password: *pgPassword,
		Database: *pgDatabase,
	})
	if err != nil {
		log.Fatal("store setup failed", zap.String("store", *storeKind), zap.Error(err))
	}

	gate := repository.NewGate(store, verifier, notify.NewAggregator())
	srv := server.New(gate, keyring.NewMemRegistry(), log)

	httpServer := &http.Server{
		Addr:         *addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("listening", zap.String("addr", *addr), zap.String("store", *storeKind))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

func buildVerifier(vkPath string, insecureTest bool) (proof.Verifier, error) {
	switch {
	case insecureTest && vkPath != "":
		return nil, errors.New("choose either --verifying-key or --insecure-test-verifier")
	case insecureTest:
		return prooftest.New(), nil
	case vkPath != "":
		return proof.LoadVerifierFile(vkPath)
	default:
		return nil, errors.New("--verifying-key is required (or --insecure-test-verifier for development)")
	}
}

func buildStore(kind, redisAddr, redisPass string, pgConfig *pgrepo.Config) (repository.Store, error) {
	switch kind {
	case "mem":
		return mem.NewStore(), nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPass})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, err
		}
		return redisrepo.NewStore(rdb), nil
	case "postgres":
		return pgrepo.NewStore(pgConfig)
	default:
		return nil, errors.New("unknown store backend: " + kind)
	}
}
