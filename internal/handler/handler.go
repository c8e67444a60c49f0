package handler

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/angeloszaimis/fleet-health/internal/healthcheck"
)

type errorBody struct {
	Error string `json:"error"`
}

// HealthCheckHandler runs one health cycle per request and answers with the
// fleet report.
type HealthCheckHandler struct {
	logger *slog.Logger
	cycler healthcheck.Cycler
}

func NewHealthCheckHandler(logger *slog.Logger, cycler healthcheck.Cycler) *HealthCheckHandler {
	return &HealthCheckHandler{
		logger: logger,
		cycler: cycler,
	}
}

func (h *HealthCheckHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}

	h.logger.Info("Received health check",
		slog.String("from", extractClientIP(r)),
		slog.String("user_agent", r.UserAgent()))

	report, _, err := h.cycler.RunCycle(r.Context())
	if err != nil {
		h.logger.Error("Health check failed", slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type pingBody struct {
	Service string `json:"service"`
	Reply   string `json:"reply"`
	Version string `json:"version"`
}

// Ping answers the same liveness probe this service sends to its dependents.
func Ping(name, version string) http.HandlerFunc {
	body := pingBody{Service: name, Reply: "pong", Version: version}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
