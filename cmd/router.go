package main

import (
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/fleet-health/config"
	"github.com/angeloszaimis/fleet-health/internal/circuitbreaker"
	"github.com/angeloszaimis/fleet-health/internal/handler"
	"github.com/angeloszaimis/fleet-health/internal/healthcheck"
	"github.com/angeloszaimis/fleet-health/internal/metrics"
	"github.com/angeloszaimis/fleet-health/internal/stream"
)

func setupRouter(
	cfg *config.Config,
	cycler healthcheck.Cycler,
	collector *metrics.Collector,
	breakers *circuitbreaker.Registry,
	hub *stream.Hub,
	log *slog.Logger,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/healthcheck", handler.NewHealthCheckHandler(log, cycler))
	mux.HandleFunc("GET /ping", handler.Ping(cfg.Server.Name, cfg.Server.Version))
	mux.HandleFunc("GET /metrics", collector.Handler(breakers))
	mux.Handle("GET /events", hub)

	return mux
}
