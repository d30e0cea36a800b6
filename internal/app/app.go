package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kelani/settled/internal/cache"
	"github.com/kelani/settled/internal/config"
	"github.com/kelani/settled/internal/env"
	"github.com/kelani/settled/internal/errHandler"
	"github.com/kelani/settled/internal/gateway"
	"github.com/kelani/settled/internal/helper"
	"github.com/kelani/settled/internal/ledger"
	"github.com/kelani/settled/internal/repository"
	"github.com/kelani/settled/internal/scheduler"
	"github.com/kelani/settled/internal/seeder"
	"github.com/kelani/settled/internal/settlement"
	"github.com/kelani/settled/internal/smtp"
	"github.com/kelani/settled/internal/stream"
	"github.com/kelani/settled/internal/worker"
	"github.com/joho/godotenv"
)

// Essential services and resources are exposed to the application
// this makes it possible for methods to have access to these items as and when they need them
type Application struct {
	Config       config.Config
	DB           repository.Database
	Logger       *slog.Logger
	Mailer       *smtp.Mailer
	WG           sync.WaitGroup
	errorHandler *errHandler.ErrorHandler
	helper       *helper.HelperRepository
	Kafka        *stream.KafkaStream
	Notifier     *stream.Notifier
	Cache        *cache.Cache
	Gateway      gateway.SettlementGateway
	Ledger       *ledger.Engine
	Settlement   *settlement.Service
	Scheduler    *scheduler.Scheduler
	Worker       *worker.Worker
}

func NewApplication(ctx context.Context, logger *slog.Logger) (*Application, error) {
	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", "error", err)
	}

	var cfg config.Config

	// config values are loaded from the .env file
	// Default values are provided for these items and these should strictly be values for development mode only
	// make sure no production-level value is exposed as default value here
	cfg.BaseURL = env.GetString("BASE_URL", "http://localhost:4444")
	cfg.HttpPort = env.GetInt("HTTP_PORT", 4444)

	cfg.Db.Dsn = env.GetString("DB_DSN", "user:pass@localhost:5432/db")
	cfg.Db.Automigrate = env.GetBool("DB_AUTOMIGRATE", true)

	// server errors won't be sent via email if the NOTIFICATIONS_EMAIL wasn't set in the .env file
	cfg.Notifications.Email = env.GetString("NOTIFICATIONS_EMAIL", "")

	cfg.Smtp.Host = env.GetString("SMTP_HOST", "example.smtp.host")
	cfg.Smtp.Port = env.GetInt("SMTP_PORT", 25)
	cfg.Smtp.Username = env.GetString("SMTP_USERNAME", "example_username")
	cfg.Smtp.Password = env.GetString("SMTP_PASSWORD", "pa55word")
	cfg.Smtp.From = env.GetString("SMTP_FROM", "Settled <no_reply@example.org>")

	cfg.KafkaServers = env.GetString("KAFKA_SERVERS", "localhost:9092")
	cfg.RedisServer = env.GetString("REDIS_SERVER", "localhost:6379")

	cfg.Provider.Name = env.GetString("PROVIDER_NAME", "mockpay")
	cfg.Provider.BaseURL = env.GetString("PROVIDER_BASE_URL", "http://localhost:9292")
	cfg.Provider.SecretKey = env.GetString("PROVIDER_SECRET_KEY", "sk_test_secret")
	cfg.Provider.ReturnURL = env.GetString("PROVIDER_RETURN_URL", cfg.BaseURL+"/payments/return")

	cfg.Scheduler.CronExpression = env.GetString("POLLER_CRON", "* * * * *")
	cfg.Scheduler.BatchSize = env.GetInt("POLLER_BATCH_SIZE", 100)
	cfg.Scheduler.StaleClaimMinutes = env.GetInt("POLLER_STALE_CLAIM_MINUTES", 10)

	cfg.Settlement.PaymentWindowMinutes = env.GetInt("PAYMENT_WINDOW_MINUTES", 30)

	cfg.Currencies = strings.Split(env.GetString("CURRENCIES", "NGN"), ",")

	db, err := repository.New(cfg.Db.Dsn, cfg.Db.Automigrate)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mailer, err := smtp.NewMailer(cfg.Smtp.Host, cfg.Smtp.Port, cfg.Smtp.Username, cfg.Smtp.Password, cfg.Smtp.From)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize mailer: %w", err)
	}

	kafkaStream, err := stream.New(cfg.KafkaServers)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize kafka producer: %w", err)
	}

	app := &Application{
		Config: cfg,
		DB:     db,
		Logger: logger,
		Mailer: mailer,
		Kafka:  kafkaStream,
	}

	app.helper = helper.New(&cfg.BaseURL, &app.WG, logger)
	app.errorHandler = errHandler.New(cfg.Notifications.Email, mailer, logger, app.helper)

	app.Notifier = stream.NewNotifier(kafkaStream)
	app.Cache = cache.New(cfg.RedisServer, 0)
	app.Gateway = gateway.NewHTTPProvider(cfg.Provider.Name, cfg.Provider.BaseURL, cfg.Provider.SecretKey)

	app.Ledger = ledger.New(db.Wallet(), db.Transaction(), app.Notifier, logger)
	app.Settlement = settlement.New(db.Wallet(), db.ExternalTransaction(), db.ScheduledJob(), app.Gateway, app.Cache, logger, settlement.Config{
		ProviderName:  cfg.Provider.Name,
		ReturnURL:     cfg.Provider.ReturnURL,
		PaymentWindow: time.Duration(cfg.Settlement.PaymentWindowMinutes) * time.Minute,
	})

	app.Scheduler = scheduler.New(db.ScheduledJob(), logger, cfg.Scheduler.CronExpression,
		scheduler.WithBatchSize(cfg.Scheduler.BatchSize),
		scheduler.WithStaleClaimAfter(time.Duration(cfg.Scheduler.StaleClaimMinutes)*time.Minute),
	)

	app.Worker = worker.New(&worker.Worker{
		DB:                 db,
		KafkaStream:        kafkaStream,
		Notifier:           app.Notifier,
		Ledger:             app.Ledger,
		Mailer:             mailer,
		Helper:             app.helper,
		Logger:             logger,
		Ctx:                ctx,
		NotificationsEmail: cfg.Notifications.Email,
	})
	app.Worker.RegisterHandlers(app.Scheduler)

	// system wallets must exist before any transfer or payout runs
	if err := seeder.New(db, logger, cfg.Currencies).Run(); err != nil {
		return nil, fmt.Errorf("failed to seed system wallets: %w", err)
	}

	return app, nil
}
