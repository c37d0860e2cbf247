package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"livepaste/cfg"
	"livepaste/metrics"
	"livepaste/svc/api"
	"livepaste/svc/cache"
	"livepaste/svc/history"
	"livepaste/svc/hub"
	"livepaste/svc/lim"
	"livepaste/svc/store"
	"livepaste/svc/svc"
	"livepaste/svc/util"
	"livepaste/svc/ws"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		util.Fatal().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}
	if err := cfg.Validate(c); err != nil {
		util.Fatal().Err(err).Msg("invalid configuration")
		os.Exit(1)
	}
	defer c.Wipe()
	util.InitLog(c.LogLevel, c.Environment == "development")
	util.Info().Msg("starting livepaste")
	metrics.Init()

	lruCache, err := cache.NewLRU(c.LRUCacheSize)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to create LRU cache")
		os.Exit(1)
	}
	util.Info().Int("size", c.LRUCacheSize).Msg("LRU cache initialized")

	st, err := store.Open(c.DataDir, c.MaxPasteSize, lruCache)
	if err != nil {
		util.Fatal().Err(err).Str("data_dir", c.DataDir).Msg("failed to open paste store")
		os.Exit(1)
	}
	util.Info().Str("data_dir", c.DataDir).Msg("paste store opened")

	hist, err := history.Open(c.DataDir, c.HistoryMaxLines)
	if err != nil {
		util.Fatal().Err(err).Msg("failed to open history log")
		os.Exit(1)
	}
	util.Info().Int("max_lines", c.HistoryMaxLines).Msg("history log opened")

	pasteSvc := svc.NewPaste(st, hist)

	limiter := lim.New(c.RateLimit.RPM, c.RateLimit.Burst, c.TrustedProxies)
	defer limiter.Stop()
	util.Info().
		Int("rpm", c.RateLimit.RPM).
		Int("burst", c.RateLimit.Burst).
		Strs("trusted_proxies", c.TrustedProxies).
		Msg("rate limiter initialized")

	sessions := hub.New()
	engine := ws.NewEngine(sessions, pasteSvc, c)

	server := api.NewServer(c, pasteSvc, sessions, engine, limiter)

	util.Info().Str("port", c.Port).Str("environment", c.Environment).Msg("server starting")
	go func() {
		if err := server.Start(); err != nil {
			util.Fatal().Err(err).Msg("server failed")
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	util.Info().Msg("shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), c.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		util.Error().Err(err).Msg("server shutdown error")
	}
	util.Info().Msg("shutdown complete")
}
