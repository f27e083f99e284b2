package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"zchat-signal/internal/events"
	"zchat-signal/internal/httpserver"
	"zchat-signal/internal/metrics"
	"zchat-signal/internal/security"
	"zchat-signal/internal/service"
	"zchat-signal/internal/signaling"
	"zchat-signal/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the session channel endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()
	cfg, logger := a.cfg, a.logger

	if err := a.migrate(); err != nil {
		return err
	}

	tokens := security.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL())
	hasher := security.NewPasswordHasher(0)
	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey), cfg.LegacyEncryptKeys)
	if err != nil {
		return fmt.Errorf("initialize encryptor: %w", err)
	}

	var publisher events.Publisher
	if cfg.AMQPURL != "" {
		publisher, err = events.NewAMQPPublisher(cfg.AMQPURL, cfg.EventsExchange)
		if err != nil {
			return err
		}
		logger.Info("publishing domain events", "exchange", cfg.EventsExchange)
	} else {
		publisher = events.NewNoopPublisher(logger)
	}
	defer publisher.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	registry := ws.NewRegistry(logger)
	auth := service.NewAuthService(a.repos.Users, tokens, hasher)
	social := service.NewSocialService(a.repos.Users, a.repos.Friends, registry, publisher, m, logger)
	messages := service.NewMessageService(a.repos.Conversations, a.repos.Messages, encryptor, registry, publisher, m, logger, cfg.MaxMessagesPerConversation)
	engine := signaling.NewEngine(registry, a.repos.Calls, publisher, m, logger, signaling.Options{
		RingTimeout: cfg.RingTimeout,
	})
	defer engine.Close()

	socket := ws.NewHandler(registry, auth, social, messages, engine, m, logger, ws.Options{
		AllowedOrigins: cfg.CORSOrigins,
		SendBuffer:     cfg.SendBuffer,
		PingInterval:   cfg.PingInterval,
	})

	router := httpserver.NewRouter(httpserver.Deps{
		CORSOrigins: cfg.CORSOrigins,
		Auth:        auth,
		Social:      social,
		Messages:    messages,
		Calls:       a.repos.Calls,
		Socket:      socket,
		Gatherer:    reg,
		Logger:      logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting zChat signaling server", "addr", cfg.HTTPAddr(), "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}
