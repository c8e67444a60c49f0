// Pingservice is a fake dependency for manual end-to-end runs of the health
// engine. It answers GET /ping like a real dependent service and can be
// switched into a failing or slow mode at runtime.
//
// Usage:
//
//	go run ./scripts/pingservice -port 8081 -name billing
//	go run ./scripts/pingservice -port 8082 -name search -fail
//
// Toggle failure while running:
//
//	curl -X POST 'localhost:8081/fail?on=true'
//	curl -X POST 'localhost:8081/fail?on=false'
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// PingResponse mirrors what dependents of the health engine return.
type PingResponse struct {
	ID      string `json:"id"`
	Service string `json:"service"`
	Reply   string `json:"reply"`
	Version string `json:"version"`
}

func main() {
	port := flag.Int("port", 8081, "port to listen on")
	name := flag.String("name", "pingservice", "service name reported by /ping")
	version := flag.String("version", "1.0.0", "version reported by /ping")
	fail := flag.Bool("fail", false, "start in failing mode (503 on /ping)")
	delay := flag.Duration("delay", 0, "delay every /ping answer, e.g. 6s to trigger probe timeouts")
	key := flag.String("key", "", "require this clientaccesskey on /ping when set")
	flag.Parse()

	var failing atomic.Bool
	failing.Store(*fail)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("request: path=%s from=%s failing=%t", r.URL.Path, r.RemoteAddr, failing.Load())

		if *delay > 0 {
			select {
			case <-time.After(*delay):
			case <-r.Context().Done():
				return
			}
		}

		if *key != "" && r.URL.Query().Get("clientaccesskey") != *key {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		if failing.Load() {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PingResponse{
			ID:      uuid.NewString(),
			Service: *name,
			Reply:   "pong",
			Version: *version,
		})
	})

	mux.HandleFunc("POST /fail", func(w http.ResponseWriter, r *http.Request) {
		on, err := strconv.ParseBool(r.URL.Query().Get("on"))
		if err != nil {
			http.Error(w, "on must be true or false", http.StatusBadRequest)
			return
		}
		failing.Store(on)
		log.Printf("failing mode set to %t", on)
		w.WriteHeader(http.StatusNoContent)
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting %s on %s", *name, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
