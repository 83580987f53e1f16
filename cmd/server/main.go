package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ConnorWiseman/taka/internal/chat"
	"github.com/ConnorWiseman/taka/internal/config"
	applog "github.com/ConnorWiseman/taka/internal/log"
	"github.com/ConnorWiseman/taka/internal/presence"
	"github.com/ConnorWiseman/taka/internal/server"
	"github.com/ConnorWiseman/taka/internal/store"
)

func main() {
	cfg := config.Load()
	applog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stores, err := store.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase,
		time.Duration(cfg.SessionTTLHours)*time.Hour, cfg.MessageLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("mongo connect")
	}
	if err := stores.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("mongo schema")
	}

	hub := chat.NewHub()
	registry := presence.NewRegistry()
	chatSrv := chat.NewServer(cfg, stores, hub, registry)

	r := server.SetupRouter(cfg, chatSrv)
	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal().Err(err).Msg("server run")
	}
}
