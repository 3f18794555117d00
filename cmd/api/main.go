package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/emeka/bulksms-back/internal/config"
	"github.com/emeka/bulksms-back/internal/delivery"
	"github.com/emeka/bulksms-back/internal/extract"
	httpserver "github.com/emeka/bulksms-back/internal/http"
	"github.com/emeka/bulksms-back/internal/http/handlers"
	"github.com/emeka/bulksms-back/internal/logging"
	"github.com/emeka/bulksms-back/internal/phone"
	"github.com/emeka/bulksms-back/internal/policy"
	"github.com/emeka/bulksms-back/internal/queue"
	"github.com/emeka/bulksms-back/internal/repository"
	"github.com/emeka/bulksms-back/internal/service"
	"github.com/emeka/bulksms-back/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := logging.New(logging.Config{})
		bootLogger.Fatal().Err(err).Msg("load configuration")
	}
	logger := logging.New(logging.Config{Level: cfg.Log.Level, Console: cfg.Log.Console})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo := repository.NewMemoryJobsRepository()
	dispatchQueue := queue.NewLocalQueue(
		cfg.Dispatch.QueueCapacity,
		logger.With().Str("component", "queue").Logger(),
	)

	deliveryClient := delivery.NewTermiiClient(delivery.TermiiConfig{
		APIKey:   cfg.Termii.APIKey,
		SenderID: cfg.Termii.SenderID,
		BaseURL:  cfg.Termii.BaseURL,
		Timeout:  cfg.TermiiTimeout(),
	})
	if !deliveryClient.Available() {
		logger.Warn().Msg("termii api key not configured, every send will fail at the provider")
	}

	extractor := extract.New(extract.Options{
		DefaultProfile: phone.NewProfile(
			cfg.Phone.DefaultCountry,
			cfg.Phone.NationalLength,
			phone.Format(cfg.Phone.Format),
		),
	})

	previewService := service.NewPreviewService(
		repo,
		extractor,
		logger.With().Str("component", "preview").Logger(),
	)
	sendService := service.NewSendService(service.SendDependencies{
		Repo:     repo,
		Producer: dispatchQueue,
		Rules:    policy.MessageRules{MaxLength: cfg.Message.MaxLength},
		Logger:   logger.With().Str("component", "send").Logger(),
	})

	api := handlers.NewAPI(previewService, sendService, handlers.Options{
		MaxUploadBytes:      cfg.Upload.MaxBytes,
		PreviewPageSize:     cfg.Upload.PreviewPageSize,
		DefaultPerSendDelay: cfg.PerSendDelay(),
	})
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger.With().Str("component", "http").Logger(),
		AuthToken:      cfg.Server.AuthToken,
		CORSOrigins:    cfg.Server.CORSOrigins,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	})

	dispatcher := worker.NewDispatcher(
		dispatchQueue,
		repo,
		deliveryClient,
		logger.With().Str("component", "dispatcher").Logger(),
	)
	for i := 0; i < cfg.Dispatch.Workers; i++ {
		go dispatcher.Start(ctx)
	}
	logger.Info().Int("workers", cfg.Dispatch.Workers).Msg("dispatch workers started")

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info().Str("port", cfg.Server.Port).Msg("api listening")
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
