package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/vigilo/vigilo/internal/database"
)

// lookupMonitor resolves the token path segment to a monitor of the
// expected types. Unknown tokens get a 404; the token is the credential.
func (h *Handler) lookupMonitor(w http.ResponseWriter, r *http.Request, types ...database.MonitorType) *database.Monitor {
	token := r.PathValue("token")
	monitor, err := database.GetMonitorByToken(h.db, token)
	if err != nil {
		log.Printf("Monitor lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return nil
	}
	if monitor == nil {
		writeError(w, http.StatusNotFound, "unknown monitor token")
		return nil
	}
	for _, t := range types {
		if monitor.Type == t {
			return monitor
		}
	}
	writeError(w, http.StatusBadRequest, fmt.Sprintf("monitor is not a %v monitor", types))
	return nil
}

// handleHeartbeatPing records a heartbeat check-in and moves the service
// toward up
func (h *Handler) handleHeartbeatPing(w http.ResponseWriter, r *http.Request) {
	monitor := h.lookupMonitor(w, r, database.MonitorTypeHeartbeat)
	if monitor == nil {
		return
	}

	now := time.Now()
	if err := database.TouchCheckIn(h.db, monitor, now); err != nil {
		log.Printf("Failed to record check-in for monitor %d: %v", monitor.ID, err)
	}
	event := &database.MonitorEvent{
		MonitorID: monitor.ID,
		EventType: database.EventTypeCheckIn,
		Success:   true,
		Message:   "Heartbeat received",
	}
	if err := database.CreateMonitorEvent(h.db, event); err != nil {
		log.Printf("Failed to record heartbeat event for monitor %d: %v", monitor.ID, err)
	}

	h.transitionUp(monitor.ServiceID, "Heartbeat received")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhookFail marks the owning service down via a webhook monitor
func (h *Handler) handleWebhookFail(w http.ResponseWriter, r *http.Request) {
	monitor := h.lookupMonitor(w, r, database.MonitorTypeWebhook)
	if monitor == nil {
		return
	}

	reason := readReason(r, "Failure reported via webhook")
	now := time.Now()
	if err := database.TouchCheckIn(h.db, monitor, now); err != nil {
		log.Printf("Failed to record check-in for monitor %d: %v", monitor.ID, err)
	}
	if err := database.CreateMonitorEvent(h.db, &database.MonitorEvent{
		MonitorID: monitor.ID,
		EventType: database.EventTypeCheckIn,
		Success:   false,
		Message:   reason,
	}); err != nil {
		log.Printf("Failed to record failure event for monitor %d: %v", monitor.ID, err)
	}

	service, err := database.GetServiceByID(h.db, monitor.ServiceID)
	if err != nil || service == nil {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}
	if _, err := h.stateMachine.TransitionToDown(service, database.AlertTypeFailure, reason); err != nil {
		log.Printf("Failed to transition service %d down: %v", service.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWebhookRecover marks the owning service up via a webhook monitor
func (h *Handler) handleWebhookRecover(w http.ResponseWriter, r *http.Request) {
	monitor := h.lookupMonitor(w, r, database.MonitorTypeWebhook)
	if monitor == nil {
		return
	}

	reason := readReason(r, "Recovery reported via webhook")
	now := time.Now()
	if err := database.TouchCheckIn(h.db, monitor, now); err != nil {
		log.Printf("Failed to record check-in for monitor %d: %v", monitor.ID, err)
	}
	if err := database.CreateMonitorEvent(h.db, &database.MonitorEvent{
		MonitorID: monitor.ID,
		EventType: database.EventTypeCheckIn,
		Success:   true,
		Message:   reason,
	}); err != nil {
		log.Printf("Failed to record recovery event for monitor %d: %v", monitor.ID, err)
	}

	h.transitionUp(monitor.ServiceID, reason)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetricIngest evaluates a submitted metric value under the
// monitor's threshold strategy, records the reading and drives the
// service state from the outcome
func (h *Handler) handleMetricIngest(w http.ResponseWriter, r *http.Request) {
	monitor := h.lookupMonitor(w, r, database.MonitorTypeMetric)
	if monitor == nil {
		return
	}

	var payload struct {
		Value *float64 `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Value == nil {
		writeError(w, http.StatusBadRequest, "missing numeric value")
		return
	}
	value := *payload.Value
	now := time.Now()

	// Evaluate against prior events before recording the new reading
	breach, err := h.evaluator.Evaluate(monitor, value, now)
	if err != nil {
		log.Printf("Threshold evaluation failed for monitor %d: %v", monitor.ID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	outOfRange := monitor.IsOutOfRange(value)
	if err := database.TouchCheckIn(h.db, monitor, now); err != nil {
		log.Printf("Failed to record check-in for monitor %d: %v", monitor.ID, err)
	}
	if err := database.CreateMonitorEvent(h.db, &database.MonitorEvent{
		MonitorID:    monitor.ID,
		EventType:    database.EventTypeMetric,
		Success:      !outOfRange,
		Value:        &value,
		IsOutOfRange: outOfRange,
	}); err != nil {
		log.Printf("Failed to record metric event for monitor %d: %v", monitor.ID, err)
	}

	service, err := database.GetServiceByID(h.db, monitor.ServiceID)
	if err != nil || service == nil {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}

	// A non-breaching but out-of-range value leaves the state alone: it
	// may be the start of a sustained breach.
	if breach {
		reason := fmt.Sprintf("Metric value %g breached the configured threshold", value)
		if _, err := h.stateMachine.TransitionToDown(service, database.AlertTypeFailure, reason); err != nil {
			log.Printf("Failed to transition service %d down: %v", service.ID, err)
		}
	} else if !outOfRange {
		if _, err := h.stateMachine.TransitionToUp(service, fmt.Sprintf("Metric value %g within range", value)); err != nil {
			log.Printf("Failed to transition service %d up: %v", service.ID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"breach": breach,
	})
}

func (h *Handler) transitionUp(serviceID uint, reason string) {
	service, err := database.GetServiceByID(h.db, serviceID)
	if err != nil || service == nil {
		return
	}
	if _, err := h.stateMachine.TransitionToUp(service, reason); err != nil {
		log.Printf("Failed to transition service %d up: %v", service.ID, err)
	}
}

func readReason(r *http.Request, fallback string) string {
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err == nil && payload.Reason != "" {
		return payload.Reason
	}
	return fallback
}
