// Command server runs the account server: signup with emailed
// confirmation, login, password reset and account closure over HTTP.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sakif/accountkeeper/internal/auth"
	"github.com/sakif/accountkeeper/internal/cipher"
	"github.com/sakif/accountkeeper/internal/config"
	"github.com/sakif/accountkeeper/internal/logging"
	"github.com/sakif/accountkeeper/internal/metrics"
	"github.com/sakif/accountkeeper/internal/notify"
	"github.com/sakif/accountkeeper/internal/ratelimit"
	"github.com/sakif/accountkeeper/internal/repository/sqlstore"
	"github.com/sakif/accountkeeper/internal/server"
	"github.com/sakif/accountkeeper/internal/service"
	"github.com/sakif/accountkeeper/internal/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("loading configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	if cfg.DBDriver == sqlstore.DriverSQLite && !strings.HasPrefix(cfg.DBDSN, ":memory:") {
		dir := filepath.Dir(cfg.DBDSN)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	db, err := sqlstore.New(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	closers := []io.Closer{db}
	if v, err := db.SchemaVersion(ctx); err == nil {
		logger.Info("database ready", slog.String("driver", cfg.DBDriver), slog.Int64("schemaVersion", v))
	}

	cph, err := cipher.New(cfg.CipherKey, cfg.CipherSalt)
	if err != nil {
		db.Close()
		return err
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		db.Close()
		return err
	}

	sessions := session.NewManager(cfg.SessionIdleTTL, logger)
	m := metrics.New(sessions.Len)

	var limiter *ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, rdb)
		limiter = ratelimit.New(rdb, cfg.RateLimitAttempts, cfg.RateLimitWindow, logger)
		logger.Info("rate limiting enabled", slog.String("redis", cfg.RedisAddr))
	}

	// Without SMTP, links are written to the log so a developer can follow
	// them. With it, messages are queued in the store and a worker sends them.
	var (
		sink    notify.Sink = notify.NewLogSink(logger)
		workers []server.Worker
	)
	if cfg.MailEnabled() {
		sink = notify.NewOutbox(db, cfg.AdminName)
		mailer := notify.NewSMTPMailer(cfg.MailHost, cfg.MailPort, cfg.MailUser, cfg.MailPassword, cfg.MailFrom)
		dispatcher := notify.NewDispatcher(db, mailer, cfg.OutboxPollInterval, m, logger)
		workers = append(workers, dispatcher.Run)
	} else {
		logger.Warn("mail is not configured; notifications are only logged")
	}

	svc := service.NewAccountService(service.Deps{
		Store:     db,
		Passwords: auth.NewPasswordService(),
		Tokens:    tokens,
		Cipher:    cph,
		Sink:      sink,
		Limiter:   limiter,
		Metrics:   m,
		Logger:    logger,
		Options: service.Options{
			PublicURL:       cfg.PublicURL,
			ReservedNames:   cfg.ReservedNames,
			AnonLandingNode: cfg.AnonLandingNode,
			RequireCaptcha:  cfg.RequireCaptcha,
			AdminName:       cfg.AdminName,
		},
	})

	if cfg.AdminPassword != "" {
		created, err := svc.CreateAccount(ctx, service.SignupRequest{
			UserName: cfg.AdminName,
			Password: cfg.AdminPassword,
		})
		if err != nil {
			db.Close()
			return err
		}
		if created {
			logger.Info("admin account created", slog.String("user", cfg.AdminName))
		}
	}

	deps := server.Deps{
		Accounts: svc,
		Tokens:   tokens,
		Sessions: sessions,
		Metrics:  m,
		Workers:  workers,
		Closers:  closers,
	}
	if cfg.GitHubEnabled() {
		deps.GitHub = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		logger.Info("GitHub login disabled")
	}

	return server.New(cfg.Port, logger, deps).Start()
}
