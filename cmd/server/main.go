package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"confessly/internal/app"
	"confessly/internal/config"
	"confessly/internal/events"
	"confessly/internal/filter"
	"confessly/internal/notify"
	"confessly/internal/playclient"
	"confessly/internal/push"
	"confessly/internal/server"
	"confessly/internal/store"
	"confessly/internal/usertoken"
	"confessly/internal/util"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse JWT leeway: %v", err)
	}
	reminderHour, reminderMinute, err := config.ParseReminderTime(cfg.ReminderTime)
	if err != nil {
		log.Fatalf("failed to parse reminder time: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	gormStore, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to init store: %v", err)
	}

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}

	playClient, err := playclient.New(playclient.Config{
		BaseURL:     cfg.PlayBaseURL,
		PackageName: cfg.PlayPackageName,
		AuthToken:   cfg.PlayAuthToken,
	})
	if err != nil {
		log.Fatalf("failed to init play client: %v", err)
	}

	contentFilter, err := filter.New(cfg.ExtraBannedPatterns...)
	if err != nil {
		log.Fatalf("failed to compile content filter: %v", err)
	}

	bus, err := events.NewBus(events.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Fatalf("failed to init event bus: %v", err)
	}

	appCore := app.New(app.Config{
		Store:    gormStore,
		Filter:   contentFilter,
		Verifier: playClient,
		Events:   bus,
	})

	ctx := context.Background()
	if cfg.AMQPURL != "" {
		sender, err := push.NewAMQPSender(push.AMQPConfig{
			URL:      cfg.AMQPURL,
			Exchange: cfg.PushExchange,
		})
		if err != nil {
			log.Fatalf("failed to init push sender: %v", err)
		}
		defer sender.Close()

		notifier, err := notify.New(notify.Config{
			Store:    gormStore,
			Sender:   sender,
			Timezone: cfg.Timezone,
		})
		if err != nil {
			log.Fatalf("failed to init notifier: %v", err)
		}
		concurrency := cfg.EventConcurrency
		if concurrency <= 0 {
			concurrency = 4
		}
		bus.Start(ctx, concurrency, notifier.HandleEvent)
		notify.NewScheduler(notifier, reminderHour, reminderMinute).Start(ctx)
	} else {
		slog.Warn("amqpURL not configured; push notifications disabled")
	}

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		TokenVerifier:              verifier,
		RedisAddr:                  cfg.RedisAddr,
		RedisPassword:              cfg.RedisPassword,
		SubmitRateLimitPerMinute:   cfg.SubmitRateLimitPerMinute,
		ReactionRateLimitPerMinute: cfg.ReactionRateLimitPerMinute,
		ReportRateLimitPerMinute:   cfg.ReportRateLimitPerMinute,
		PurchaseRateLimitPerMinute: cfg.PurchaseRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init http server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
