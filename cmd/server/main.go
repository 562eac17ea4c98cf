package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/flowsider/etfflow/internal/api"
	"github.com/flowsider/etfflow/internal/cache"
	"github.com/flowsider/etfflow/internal/core"
	"github.com/flowsider/etfflow/internal/httpx"
	"github.com/flowsider/etfflow/internal/parser"
)

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	ttl := cache.DefaultTTL
	if v := os.Getenv("FLOWS_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid FLOWS_TTL", "value", v, "error", err)
			os.Exit(1)
		}
		ttl = d
	}

	fetcher := httpx.New(os.Getenv("FLOWS_USER_AGENT"))
	pipeline := parser.New(fetcher, parser.DefaultVariants(), logger)
	flowsCache := cache.New(pipeline, ttl)

	ctx := context.Background()
	core.NewRefresher(flowsCache, ttl, logger).Start(ctx)

	srv := api.NewServer(flowsCache, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	slog.Info("starting server", "port", port, "ttl", ttl.String())
	if err := http.ListenAndServe(":"+port, srv.Router()); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
