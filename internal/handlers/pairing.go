package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/vigilo/vigilo/internal/services"
)

// handlePairInitiate mints a pairing token for the operator to paste
// into the other instance
func (h *Handler) handlePairInitiate(w http.ResponseWriter, r *http.Request) {
	token, err := h.pairing.Initiate()
	if err != nil {
		log.Printf("Pairing initiate failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create pairing token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pairing_token": token})
}

// handlePairAccept is called by the remote instance presenting the
// secret from a pairing token. It is unauthenticated; the secret is the
// credential.
func (h *Handler) handlePairAccept(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Secret string `json:"secret"`
		Name   string `json:"name"`
		URL    string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Secret == "" || payload.URL == "" {
		writeError(w, http.StatusBadRequest, "secret, name and url are required")
		return
	}

	result, err := h.pairing.HandleAccept(payload.Secret, payload.Name, payload.URL)
	if errors.Is(err, services.ErrInvalidSecret) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		log.Printf("Pairing accept failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to accept pairing")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePairComplete is called by the local operator with a token pasted
// from the remote instance
func (h *Handler) handlePairComplete(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	peer, err := h.pairing.Complete(payload.Token)
	if errors.Is(err, services.ErrTokenExpired) {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if err != nil {
		log.Printf("Pairing complete failed: %v", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"peer_id": peer.ID,
		"name":    peer.Name,
		"url":     peer.URL,
	})
}

// handleUnpair removes a peer. The remote side identifies itself by the
// webhook token it was issued during pairing.
func (h *Handler) handleUnpair(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		WebhookToken string `json:"webhook_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.WebhookToken == "" {
		writeError(w, http.StatusBadRequest, "webhook_token is required")
		return
	}

	peer, err := h.lookupPeerByWebhookToken(payload.WebhookToken)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if peer == nil {
		writeError(w, http.StatusNotFound, "unknown peer")
		return
	}
	if err := h.pairing.Unpair(peer.ID); err != nil {
		log.Printf("Unpair of peer %d failed: %v", peer.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to unpair")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unpaired"})
}
