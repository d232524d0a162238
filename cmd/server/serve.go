package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warp/lead-engine/api"
	"github.com/warp/lead-engine/events"
	"github.com/warp/lead-engine/logger"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and the follow-up scheduler",
	Long: `Starts the REST API, the follow-up sweep on its cron schedule and, when
kafka_brokers is configured, event publishing.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM the server stops accepting connections, waits for active
  requests (30s), stops the scheduler, flushes events and closes the database.

Example:
  server serve --addr :9090 --db ./data/leads.db`,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default from config)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = serveAddr
	}

	log := newLogger(cfg)
	handler, store, err := openHandler(cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer store.Close()

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{Brokers: brokers, Topic: cfg.KafkaTopic})
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn().Err(err).Msg("kafka publisher close")
			}
		}()
		handler.Events = publisher
		log.Info().Strs("brokers", brokers).Str("topic", cfg.KafkaTopic).Msg("publishing events to kafka")
	}

	scheduler, err := api.NewFollowUpScheduler(handler, cfg.FollowUpSchedule)
	if err != nil {
		return err
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      api.NewRouter(handler, cfg.Origins()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.Addr).
			Str("db", cfg.DBPath).
			Str("followup_schedule", cfg.FollowUpSchedule).
			Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
			return err
		}
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	scheduler.Stop(shutdownCtx)

	serverLog := logger.Component(log, "server")
	serverLog.Info().Msg("server stopped")
	return nil
}
