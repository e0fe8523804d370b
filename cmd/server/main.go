// @title           Account Security API
// @version         1.0
// @description     Registration, login with lockout, sessions, password reset and account administration.
// @host            localhost:8080
// @BasePath        /
// @schemes         http
//
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/audiophile/account-core/internal/api"
	"github.com/audiophile/account-core/internal/api/handler"
	"github.com/audiophile/account-core/internal/core/domain"
	"github.com/audiophile/account-core/internal/core/ports"
	"github.com/audiophile/account-core/internal/core/service"
	"github.com/audiophile/account-core/internal/infrastructure/crypto"
	"github.com/audiophile/account-core/internal/infrastructure/db/memory"
	mongostore "github.com/audiophile/account-core/internal/infrastructure/db/mongo"
	redisstore "github.com/audiophile/account-core/internal/infrastructure/db/redis"
	"github.com/audiophile/account-core/internal/infrastructure/mail"
	"github.com/audiophile/account-core/internal/infrastructure/queue"
	"github.com/audiophile/account-core/internal/pkg/config"
	"github.com/audiophile/account-core/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	log, closeLog, err := logger.New(logger.Options{
		Level:    cfg.Log.Level,
		Pretty:   cfg.Log.Pretty,
		FilePath: cfg.Log.File,
	})
	if err != nil {
		panic(err)
	}
	defer func() { _ = closeLog() }()

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		_ = closeLog()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	readiness := map[string]handler.Check{}

	// --- Account store and audit trail ---
	var (
		accounts ports.AccountRepository
		events   ports.SecurityEventRepository
	)
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn().Msg("using in-memory account store; data is lost on restart")
		accounts = memory.NewAccountRepository()
		events = memory.NewSecurityEventLog(0)
	default:
		store, err := mongostore.Connect(ctx, mongostore.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				log.Error().Err(err).Msg("mongo disconnect failed")
			}
		}()
		accounts = mongostore.NewAccountRepository(store.DB)
		events = mongostore.NewSecurityEventRepository(store.DB)
		readiness["mongo"] = handler.MongoCheck(store.DB)
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongo")
	}

	// --- Session denylist ---
	var denylist ports.TokenDenylist
	if cfg.StoreDriver == config.StoreMemory {
		denylist = memory.NewTokenDenylist()
	} else {
		rdb, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		defer rdb.Close()
		denylist = redisstore.NewTokenDenylist(rdb)
		readiness["redis"] = handler.RedisCheck(rdb)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")
	}

	// --- Mail ---
	var mailer ports.Mailer
	if cfg.Mail.Driver == config.MailSMTP {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
			Timeout:  cfg.Mail.Timeout,
		})
	} else {
		mailer = mail.NewLogMailer(log)
	}

	// --- Security event workers ---
	dispatcher := queue.NewDispatcher(cfg.Events.Workers, events, log)
	dispatcher.Start(context.WithoutCancel(ctx))

	// --- Services ---
	resets := service.NewResetTokenService(accounts, mailer, service.ResetConfig{
		TTL:         cfg.Auth.ResetTokenTTL,
		ResetURL:    cfg.Auth.ResetURL,
		MailTimeout: cfg.Mail.Timeout,
	}, log)

	authService := service.NewAuthService(service.AuthDeps{
		Accounts: accounts,
		Hasher:   crypto.NewBcryptHasher(cfg.Auth.BcryptCost, cfg.Auth.HashConcurrency),
		Sessions: crypto.NewJWTIssuer(cfg.JWTSecret, cfg.Auth.SessionTTL),
		Denylist: denylist,
		Resets:   resets,
		Events:   dispatcher,
	}, domain.NewLockoutPolicy(cfg.Auth.LockoutThreshold, cfg.Auth.LockoutDuration), log)

	accountService := service.NewAccountService(accounts, dispatcher, log)

	e := api.NewRouter(authService, accountService, api.Options{
		Log:           log,
		SecureCookies: cfg.IsProduction(),
		Readiness:     readiness,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	if err := dispatcher.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("security event workers did not drain")
	}

	log.Info().Msg("server stopped")
	return nil
}
