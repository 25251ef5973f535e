package main // Entry point package

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/project-tracker/internal/config"
	"github.com/iliyamo/project-tracker/internal/database"
	"github.com/iliyamo/project-tracker/internal/handler"
	"github.com/iliyamo/project-tracker/internal/logger"
	"github.com/iliyamo/project-tracker/internal/mail"
	"github.com/iliyamo/project-tracker/internal/middleware"
	"github.com/iliyamo/project-tracker/internal/queue"
	"github.com/iliyamo/project-tracker/internal/repository"
	"github.com/iliyamo/project-tracker/internal/router"
	"github.com/iliyamo/project-tracker/internal/service"
	"github.com/iliyamo/project-tracker/internal/utils"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatalf("mysql: %v", err)
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatalf("migrate: %v", err)
		}
	}

	// the blacklist lives in Redis; without it revoked tokens would pass
	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		logger.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	codec, err := utils.NewTokenCodec(cfg.JWTSecret, cfg.JWTAlgorithm)
	if err != nil {
		logger.Fatalf("jwt: %v", err)
	}

	// outbound mail goes through RabbitMQ when configured, else straight to SMTP
	var sender queue.Sender = mail.LogSender{}
	if cfg.SMTPHost != "" {
		sender = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			UseTLS:   cfg.SMTPTLS,
			From:     cfg.MailFrom,
		})
	}
	var mailer service.Mailer = sender
	if cfg.AMQPURL != "" {
		mailer = queue.NewPublisher(cfg.AMQPURL, cfg.MailQueue)
		consumer := queue.NewConsumer(cfg.AMQPURL, cfg.MailQueue, sender)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Errorf("mail consumer stopped: %v", err)
			}
		}()
	}

	store := repository.NewSQLStore(db)
	blacklist := repository.NewTokenBlacklist(rdb, "blacklist")
	sessions := service.NewSessionManager(store.Users(), codec, blacklist, cfg.AccessTTL, cfg.RefreshTTL)
	accounts := service.NewAccountService(store.Users(), codec, mailer, service.AccountConfig{
		BcryptCost:    cfg.BcryptCost,
		ActivationTTL: cfg.ActivationTTL,
		BaseURL:       cfg.BaseURL,
		MailFrom:      cfg.MailFrom,
	})
	projects := service.NewProjectService(store)
	tasks := service.NewTaskService(store, nil)

	reminders := service.NewReminderService(store.Tasks(), mailer, cfg.MailFrom, cfg.PendingWindow, nil)
	scheduler := service.NewReminderScheduler(reminders, cfg.ReminderSchedule)
	if err := scheduler.Start(); err != nil {
		logger.Fatalf("reminder schedule %q: %v", cfg.ReminderSchedule, err)
	}
	defer scheduler.Stop()

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(logger.EchoRecovery(), logger.EchoLogger())

	router.Register(e, router.Handlers{
		Auth:     handler.NewAuthHandler(sessions, accounts, cfg.CookieSecure),
		Projects: handler.NewProjectHandler(projects),
		Tasks:    handler.NewTaskHandler(tasks),
		Health: handler.Health(map[string]handler.Pinger{
			"mysql": db,
			"redis": handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
		}),
	}, middleware.Authenticate(sessions), middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	addr := ":" + cfg.Port
	go func() {
		logger.Infof("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
