package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/vintrastudio/support-console/internal/api"
	"github.com/vintrastudio/support-console/internal/biz/usecase"
	"github.com/vintrastudio/support-console/internal/conf"
	"github.com/vintrastudio/support-console/internal/data"
	"github.com/vintrastudio/support-console/internal/service"
)

func main() {
	// Load .env file; environment variables alone are fine
	_ = godotenv.Load()

	cfg, err := conf.Load()
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("invalid config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	// Repository layer
	repos, err := data.NewRepositories(cfg.DBPath, cfg.SideChannelURL, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create repositories")
	}
	logger.Info().Str("db_path", cfg.DBPath).Msg("store opened")

	// Usecase layer
	convUC := usecase.NewConversationUsecase(repos.Conversation, repos.Message, logger)
	handoffUC := usecase.NewHandoffUsecase(repos.Conversation, repos.Message, repos.Notifier, logger)

	// Service layer
	view := service.NewConsoleView()
	mux := service.NewListenerMultiplexer(repos.Conversation, repos.Message, view, cfg.PreviewLimit, logger)
	focus := service.NewFocusManager(repos.Conversation, repos.Message, repos.Notifier, convUC, view, cfg.TypingIdle, logger)

	mux.Start(context.Background())

	apiServer := api.NewServer(convUC, handoffUC, focus, view, cfg.Addr(), logger)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info().Msg("shutting down")

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Stop(ctx); err != nil {
			logger.Warn().Err(err).Msg("server shutdown failed")
		}

		focus.Unfocus()
		mux.Stop()
		if err := repos.Close(); err != nil {
			logger.Warn().Err(err).Msg("store close failed")
		}
		os.Exit(0)
	}()

	if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
