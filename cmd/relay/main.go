package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"persona-chat-relay/internal/adapter/httpserver"
	"persona-chat-relay/internal/adapter/openai"
	"persona-chat-relay/internal/config"
	"persona-chat-relay/internal/logger"
	"persona-chat-relay/internal/usecase/relay"
)

func main() {
	config.LoadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New("relay", cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}

	personas, err := config.LoadPersonas(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load personas")
	}
	for _, p := range personas.All() {
		if p.APIKey == "" {
			log.Warn().Str("persona", p.ID).Msg("no upstream API key configured; turns will answer with a fallback")
		}
	}

	client := openai.NewClient(cfg.UpstreamBaseURL, cfg.UpstreamTimeout)
	relaySvc := relay.NewService(personas, client, cfg.UpstreamTimeout, log)
	server := httpserver.New(cfg, log, relaySvc)

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Str("upstream", cfg.UpstreamBaseURL).
		Int("personas", len(personas.All())).
		Msg("starting persona chat relay")

	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("relay stopped with error")
	}
	log.Info().Msg("relay stopped")
}
