package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/diagno/callsignal/internal/config"
	"github.com/diagno/callsignal/internal/signaling"
)

// NewRouter wires every HTTP route of the signaling server.
func NewRouter(hub *signaling.Hub, cfg *config.Config) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger)

	r.HandleFunc("/health", healthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/ws", ServeWs(hub, cfg)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware(cfg))
	api.HandleFunc("/rooms", listRooms(hub)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/rooms/{meetingId}", getRoom(hub)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/stats", getStats(hub)).Methods(http.MethodGet, http.MethodOptions)

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Signaling server is healthy."))
}

// ServeWs returns an http.HandlerFunc that upgrades the request and starts
// the client's pumps.
func ServeWs(hub *signaling.Hub, cfg *config.Config) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  cfg.WS.ReadBuffer,
		WriteBufferSize: cfg.WS.WriteBuffer,
		CheckOrigin: func(r *http.Request) bool {
			return cfg.OriginAllowed(r.Header.Get("Origin"))
		},
	}
	opts := signaling.ClientOptions{
		SendQueue:      cfg.WS.SendQueue,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		PongWait:       cfg.WS.PongWait,
		WriteWait:      cfg.WS.WriteWait,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Failed to upgrade connection")
			return
		}

		client := signaling.NewClient(hub, conn, opts)
		hub.Register(client)
		log.Info().Str("conn_id", client.ID()).Str("remote", r.RemoteAddr).Msg("New connection")

		go client.WritePump()
		go client.ReadPump()
	}
}

func listRooms(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Rooms())
	}
}

func getRoom(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, ok := hub.Store().Room(mux.Vars(r)["meetingId"])
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

func getStats(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Stats())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}
