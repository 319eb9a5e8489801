package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/router"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/internal/token"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/pkg/database"
	"github.com/ovaphlow/pitchfork/service-ewaste-auth/pkg/utilities"
)

const defaultAddr = "0.0.0.0:3000"

func main() {
	// best-effort: real env wins, .env fills the gaps
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting service-ewaste-auth")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	accounts, sqlxDB, closeStore, err := openAccountStore(ctx, os.Getenv("ACCOUNT_STORE"), sugar)
	if err != nil {
		sugar.Fatalf("account store: %v", err)
	}
	defer closeStore()

	revoked, closeRevoked, err := openRevocationStore(ctx, sqlxDB, sugar)
	if err != nil {
		sugar.Fatalf("revocation store: %v", err)
	}
	defer closeRevoked()

	tokens, err := token.NewService(token.ConfigFromEnv(), revoked)
	if err != nil {
		sugar.Fatalf("token service: %v", err)
	}

	svc, err := account.NewService(accounts, account.BcryptHasher{Cost: account.DefaultBcryptCost}, tokens, sugar)
	if err != nil {
		sugar.Fatalf("account service: %v", err)
	}

	handler := router.RegisterRoutes(sugar, router.ConfigFromEnv(), account.NewHandler(svc, sugar), tokens)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = defaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("service is running; press Ctrl+C to stop", "addr", addr)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

// openAccountStore selects the backing store by ACCOUNT_STORE (mongo by default).
// The sqlx handle is non-nil only for postgres.
func openAccountStore(ctx context.Context, kind string, sugar *zap.SugaredLogger) (repo.Repository, *sqlx.DB, func(), error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "mongo", "mongodb":
		client, db, err := database.ConnectMongo(ctx, database.MongoConfigFromEnv())
		if err != nil {
			return nil, nil, nil, err
		}
		r := repo.NewMongoRepo(db)
		if err := r.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, nil, err
		}
		sugar.Infow("account store ready", "kind", "mongo", "database", db.Name())
		return r, nil, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Disconnect(dctx); err != nil {
				sugar.Warnf("mongo disconnect: %v", err)
			}
		}, nil

	case "postgres", "pg":
		sqlDB, err := database.Connect(ctx, database.ConfigFromEnv())
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Migrate(ctx, sqlDB); err != nil {
			_ = sqlDB.Close()
			return nil, nil, nil, err
		}
		sugar.Infow("account store ready", "kind", "postgres")
		db := sqlx.NewDb(sqlDB, "postgres")
		return repo.NewPostgresRepo(db), db, func() { _ = sqlDB.Close() }, nil

	case "memory":
		sugar.Warn("account store is in-memory; accounts are lost on restart")
		return repo.NewMemoryRepo(), nil, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown ACCOUNT_STORE %q", kind)
	}
}

// openRevocationStore prefers redis (REDIS_ADDR), then the postgres account
// database, then process memory.
func openRevocationStore(ctx context.Context, db *sqlx.DB, sugar *zap.SugaredLogger) (token.RevocationStore, func(), error) {
	cfg := database.RedisConfigFromEnv()
	switch {
	case cfg.Addr != "":
		rdb, err := database.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		sugar.Infow("revocation list in redis", "addr", cfg.Addr)
		return token.NewRedisRevocationStore(rdb, ""), func() { _ = rdb.Close() }, nil
	case db != nil:
		sugar.Info("revocation list in postgres")
		s := token.NewPostgresRevocationStore(db, 10*time.Minute)
		return s, func() { _ = s.Close() }, nil
	default:
		sugar.Info("revocation list kept in memory")
		s := token.NewMemoryRevocationStore(time.Minute)
		return s, func() { _ = s.Close() }, nil
	}
}
