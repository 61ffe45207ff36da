// Package handlers exposes the inbound surface the engine consumes:
// token-addressed monitor check-ins, the pairing handshake, peer pushes
// and the realtime websocket. The admin CRUD UI talks to a separate
// surface and is not part of the engine.
package handlers

import (
	"encoding/json"
	"net/http"

	"gorm.io/gorm"

	"github.com/vigilo/vigilo/internal/hub"
	"github.com/vigilo/vigilo/internal/middleware"
	"github.com/vigilo/vigilo/internal/services"
)

// Handler bundles the dependencies of the inbound endpoints
type Handler struct {
	db           *gorm.DB
	stateMachine *services.StateMachine
	evaluator    *services.ThresholdEvaluator
	pairing      *services.PairingService
	auth         *middleware.AuthMiddleware
	events       *hub.Hub
}

// New creates the handler set
func New(db *gorm.DB, stateMachine *services.StateMachine, evaluator *services.ThresholdEvaluator, pairing *services.PairingService, auth *middleware.AuthMiddleware, events *hub.Hub) *Handler {
	return &Handler{
		db:           db,
		stateMachine: stateMachine,
		evaluator:    evaluator,
		pairing:      pairing,
		auth:         auth,
		events:       events,
	}
}

// SetupRoutes registers all inbound endpoints on the mux
func (h *Handler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /auth/login", h.handleLogin)

	mux.HandleFunc("POST /checkin/{token}", h.handleHeartbeatPing)
	mux.HandleFunc("POST /checkin/{token}/fail", h.handleWebhookFail)
	mux.HandleFunc("POST /checkin/{token}/recover", h.handleWebhookRecover)
	mux.HandleFunc("POST /checkin/{token}/metric", h.handleMetricIngest)

	mux.HandleFunc("POST /pair/initiate", h.handlePairInitiate)
	mux.HandleFunc("POST /pair/accept", h.handlePairAccept)
	mux.HandleFunc("POST /pair/complete", h.handlePairComplete)
	mux.HandleFunc("POST /pair/unpair", h.handleUnpair)

	mux.HandleFunc("POST /peer/heartbeat/{token}", h.handlePeerHeartbeat)
	mux.HandleFunc("POST /peer/webhook/{token}/{action}", h.handlePeerWebhook)

	if h.events != nil {
		mux.HandleFunc("GET /ws", h.events.ServeWS)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
