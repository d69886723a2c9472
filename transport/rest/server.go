package rest

import (
	"net/http"
	"time"
)

// NewServer - one listener for the REST endpoints and the websocket endpoint.
func NewServer(port string, handlers Handlers, ws http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", handlers.PingHandler)
	mux.HandleFunc("GET /stats", handlers.GetStats)
	mux.HandleFunc("GET /outcomes/{sessionID}", handlers.GetOutcome)
	mux.Handle("/ws", ws)

	return &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}
}
