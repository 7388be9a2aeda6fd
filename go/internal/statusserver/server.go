package statusserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/liveauction/go/internal/session"
)

// ViewSource is anything that can produce the current session view
type ViewSource interface {
	View() session.View
}

// New builds the local status server exposing /health and /session
func New(addr string, source ViewSource) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	setupHealthCheck(mux, source)
	setupSessionView(mux, source)

	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(c.Handler(mux), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

type health struct {
	Status    string `json:"status"`
	Connected bool   `json:"connected"`
	AuctionID string `json:"auctionId,omitempty"`
}

func setupHealthCheck(mux *http.ServeMux, source ViewSource) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		v := source.View()
		status := http.StatusOK
		body := health{Status: "OK", Connected: v.Connection.Connected, AuctionID: v.AuctionID}
		if !v.Connection.Connected {
			status = http.StatusServiceUnavailable
			body.Status = "DISCONNECTED"
		}
		writeJSON(w, status, body)
	})
}

func setupSessionView(mux *http.ServeMux, source ViewSource) {
	mux.HandleFunc("/session", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, source.View())
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write status response")
	}
}
