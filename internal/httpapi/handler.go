package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Silence-XiXi/queue-system/internal/scheduler"
	"github.com/Silence-XiXi/queue-system/internal/store"
)

// Notifier is the broadcast channel the dispatch operations publish to.
// Publishing happens after the store transaction has committed and its
// outcome never affects the response.
type Notifier interface {
	Emit(event string, payload interface{})
}

// ResetScheduler is the slice of the reset engine the API exposes.
type ResetScheduler interface {
	Status() scheduler.Status
	ManualReset(ctx context.Context) error
}

type Handler struct {
	store     store.TicketStore
	notifier  Notifier
	scheduler ResetScheduler
	logLimit  int
}

type Options struct {
	CallLogLimit int
}

func NewHandler(st store.TicketStore, notifier Notifier, sched ResetScheduler, options Options) *Handler {
	limit := options.CallLogLimit
	if limit <= 0 {
		limit = 100
	}
	return &Handler{store: st, notifier: notifier, scheduler: sched, logLimit: limit}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/business-types", h.handleBusinessTypes)
	mux.HandleFunc("/api/tickets", h.handleCreateTicket)
	mux.HandleFunc("/api/tickets/current", h.handleCurrentTickets)
	mux.HandleFunc("/api/tickets/", h.handleTicketActions)
	mux.HandleFunc("/api/counters", h.handleCounters)
	mux.HandleFunc("/api/counters/", h.handleCounterActions)
	mux.HandleFunc("/api/call-logs", h.handleCallLogs)
	mux.HandleFunc("/api/scheduler/status", h.handleSchedulerStatus)
	mux.HandleFunc("/api/scheduler/reset", h.handleManualReset)
	mux.HandleFunc("/api/settings/reset-time", h.handleResetTime)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleBusinessTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	types, err := h.store.ListBusinessTypes(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *Handler) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		BusinessTypeID int64 `json:"business_type_id"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.BusinessTypeID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_type_id is required")
		return
	}

	ticket, err := h.store.AllocateTicket(r.Context(), store.AllocateInput{
		BusinessTypeID: req.BusinessTypeID,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.notifier.Emit("ticket.created", ticket)
	writeJSON(w, http.StatusCreated, ticket)
}

func (h *Handler) handleCurrentTickets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var businessTypeID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("business_type_id")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "business_type_id must be a positive integer")
			return
		}
		businessTypeID = id
	}

	tickets, err := h.store.ListWaiting(r.Context(), businessTypeID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, tickets)
}

func (h *Handler) handleTicketActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/tickets/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[1] != "cancel" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ticketID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || ticketID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket id must be a positive integer")
		return
	}

	ticket, err := h.store.CancelTicket(r.Context(), ticketID)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleCounters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	counters, err := h.store.ListCounters(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counters)
}

func (h *Handler) handleCounterActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/counters/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	counterID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || counterID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "counter id must be a positive integer")
		return
	}

	switch {
	case len(parts) == 1:
		h.handleUpdateCounter(w, r, counterID)
	case len(parts) == 2 && parts[1] == "next":
		h.handleCallNext(w, r, counterID)
	case len(parts) == 2 && parts[1] == "call-manual":
		h.handleCallManual(w, r, counterID)
	case len(parts) == 2 && parts[1] == "end-service":
		h.handleEndService(w, r, counterID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleUpdateCounter(w http.ResponseWriter, r *http.Request, counterID int64) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Status         string `json:"status"`
		BusinessTypeID *int64 `json:"current_business_type_id"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Status = strings.TrimSpace(req.Status)
	if req.Status != "" && req.Status != "closed" && req.Status != "available" && req.Status != "busy" {
		writeError(w, http.StatusBadRequest, "invalid_request", "status must be one of closed, available, busy")
		return
	}

	counter, err := h.store.UpdateCounter(r.Context(), store.UpdateCounterInput{
		CounterID:      counterID,
		Status:         req.Status,
		BusinessTypeID: req.BusinessTypeID,
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, counter)
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request, counterID int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		BusinessTypeID int64 `json:"business_type_id"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if req.BusinessTypeID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "business_type_id is required")
		return
	}

	result, err := h.store.CallNext(r.Context(), store.CallNextInput{
		CounterID:      counterID,
		BusinessTypeID: req.BusinessTypeID,
		CalledAt:       time.Now().UTC(),
	})
	if err != nil {
		// Empty queue is a legitimate outcome, not a failure.
		if errors.Is(err, store.ErrNoTicket) {
			writeJSON(w, http.StatusOK, nil)
			return
		}
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.emitCalled(result)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCallManual(w http.ResponseWriter, r *http.Request, counterID int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		TicketNumber string `json:"ticket_number"`
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.TicketNumber = strings.TrimSpace(req.TicketNumber)
	if req.TicketNumber == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "ticket_number is required")
		return
	}

	result, err := h.store.CallManual(r.Context(), store.CallManualInput{
		CounterID:    counterID,
		TicketNumber: req.TicketNumber,
		CalledAt:     time.Now().UTC(),
	})
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}

	h.emitCalled(result)
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleEndService(w http.ResponseWriter, r *http.Request, counterID int64) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := h.store.EndService(r.Context(), counterID, time.Now().UTC()); err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleCallLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	limit := h.logLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		if value < limit {
			limit = value
		}
	}

	logs, err := h.store.ListCallLogs(r.Context(), limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

func (h *Handler) handleSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.scheduler.Status())
}

func (h *Handler) handleManualReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.scheduler.ManualReset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reset_failed", "daily reset transaction failed, prior state intact")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleResetTime(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		value, err := h.store.GetResetTime(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"value": value})
	case http.MethodPut:
		var req struct {
			Value string `json:"value"`
		}
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Value = strings.TrimSpace(req.Value)
		if _, _, err := scheduler.ParseResetTime(req.Value); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "value must be HH:MM")
			return
		}
		if err := h.store.UpdateResetTime(r.Context(), req.Value); err != nil {
			status, code, msg := mapError(err)
			writeError(w, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"value": req.Value})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) emitCalled(result store.DispatchResult) {
	h.notifier.Emit("ticket.called", map[string]interface{}{
		"ticket_number":      result.Ticket.TicketNumber,
		"counter_number":     result.CounterNumber,
		"business_type_name": result.BusinessTypeName,
		"call_type":          result.CallType,
	})
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrCategoryNotFound):
		return http.StatusNotFound, "business_type_not_found", "business type not found"
	case errors.Is(err, store.ErrCounterNotFound):
		return http.StatusNotFound, "counter_not_found", "counter not found"
	case errors.Is(err, store.ErrTicketNotFound):
		return http.StatusNotFound, "ticket_not_found", "ticket not found"
	case errors.Is(err, store.ErrTicketNotCallable):
		return http.StatusConflict, "ticket_not_callable", "ticket can no longer be called"
	case errors.Is(err, store.ErrIllegalTransition):
		return http.StatusConflict, "invalid_state", "ticket state does not allow this action"
	case errors.Is(err, store.ErrCounterBusy):
		return http.StatusConflict, "counter_busy", "counter is serving a ticket"
	case errors.Is(err, store.ErrAllocationConflict):
		return http.StatusConflict, "allocation_conflict", "ticket allocation conflicted, retry the request"
	case errors.Is(err, store.ErrDispatchConflict):
		return http.StatusConflict, "dispatch_conflict", "dispatch conflicted, retry the request"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
