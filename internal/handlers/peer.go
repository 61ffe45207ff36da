package handlers

import (
	"fmt"
	"log"
	"net/http"

	"github.com/vigilo/vigilo/internal/database"
	"github.com/vigilo/vigilo/internal/peers"
)

func (h *Handler) lookupPeerByWebhookToken(token string) (*database.Peer, error) {
	peer, err := database.GetPeerByWebhookToken(h.db, token)
	if err != nil {
		log.Printf("Peer lookup failed: %v", err)
	}
	return peer, err
}

// handlePeerHeartbeat receives a liveness ping from a paired instance
// and marks the service representing it as up
func (h *Handler) handlePeerHeartbeat(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	peer, err := database.GetPeerByHeartbeatToken(h.db, token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if peer == nil {
		writeError(w, http.StatusNotFound, "unknown peer token")
		return
	}

	h.transitionUp(peer.ServiceID, fmt.Sprintf("Heartbeat received from peer %s", peer.Name))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePeerWebhook receives a dispatch-health change from a paired
// instance: fail means the peer can no longer deliver its own alerts,
// recover means it can again
func (h *Handler) handlePeerWebhook(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	action := r.PathValue("action")

	peer, err := h.lookupPeerByWebhookToken(token)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if peer == nil {
		writeError(w, http.StatusNotFound, "unknown peer token")
		return
	}

	service, err := database.GetServiceByID(h.db, peer.ServiceID)
	if err != nil || service == nil {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}

	switch action {
	case peers.ActionFail:
		reason := fmt.Sprintf("Peer %s reported alert dispatch failure", peer.Name)
		if _, err := h.stateMachine.TransitionToDown(service, database.AlertTypeFailure, reason); err != nil {
			log.Printf("Failed to transition peer service %d down: %v", service.ID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	case peers.ActionRecover:
		reason := fmt.Sprintf("Peer %s reported alert dispatch recovered", peer.Name)
		if _, err := h.stateMachine.TransitionToUp(service, reason); err != nil {
			log.Printf("Failed to transition peer service %d up: %v", service.ID, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "action must be fail or recover")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
