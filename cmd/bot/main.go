package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"persona-chat-relay/internal/adapter/boltstore"
	"persona-chat-relay/internal/adapter/filestore"
	"persona-chat-relay/internal/adapter/relayhttp"
	"persona-chat-relay/internal/adapter/telegram"
	"persona-chat-relay/internal/config"
	"persona-chat-relay/internal/domain"
	"persona-chat-relay/internal/logger"
	"persona-chat-relay/internal/usecase/conversation"
)

func main() {
	config.LoadEnvFiles()

	cfg, err := config.LoadBot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("bot", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	contacts, err := config.LoadContacts(cfg.PersonasFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load contacts")
	}

	var store domain.HistoryStore
	switch cfg.HistoryBackend {
	case config.HistoryBackendBolt:
		db, err := boltstore.Open(cfg.HistoryFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open chat history")
		}
		defer db.Close()
		store = db
	default:
		store = filestore.Open(cfg.HistoryFile, log)
	}
	log.Info().Str("backend", cfg.HistoryBackend).Str("path", cfg.HistoryFile).Msg("chat history ready")

	relayClient := relayhttp.NewClient(cfg.RelayURL, cfg.RelayTimeout)
	convSvc := conversation.NewService(store, relayClient, contacts, log)

	bot, err := telegram.NewBot(cfg, convSvc, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init telegram bot")
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := bot.Run(ctx); err != nil {
		if ctx.Err() != nil {
			log.Info().Err(err).Msg("shutdown")
			return
		}
		log.Fatal().Err(err).Msg("bot stopped with error")
	}
}
