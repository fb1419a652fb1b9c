// Package api exposes the engine's HTTP endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"runcoach/internal/auth"
	"runcoach/internal/plan"
	"runcoach/internal/service"
	"runcoach/internal/store"
)

const maxBodyBytes = 1 << 20

// Handler coordinates HTTP requests with the services.
type Handler struct {
	analytics *service.AnalyticsService
	plans     *service.PlanService
	chat      *service.ChatService
	linker    *auth.Linker // nil when Strava is not configured
	logger    *slog.Logger
}

// NewHandler builds a Handler.
func NewHandler(analytics *service.AnalyticsService, plans *service.PlanService, chat *service.ChatService, linker *auth.Linker, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{analytics: analytics, plans: plans, chat: chat, linker: linker, logger: logger}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", healthz)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /v1/users/{userID}/weekly", h.weekly)
	mux.HandleFunc("GET /v1/users/{userID}/fitness", h.fitness)
	mux.HandleFunc("GET /v1/users/{userID}/efficiency", h.efficiency)
	mux.HandleFunc("GET /v1/users/{userID}/score", h.score)
	mux.HandleFunc("GET /v1/users/{userID}/predictions", h.predictions)
	mux.HandleFunc("GET /v1/users/{userID}/form", h.form)
	mux.HandleFunc("GET /v1/users/{userID}/profile", h.profile)

	mux.HandleFunc("POST /v1/users/{userID}/plans", h.generatePlan)
	mux.HandleFunc("GET /v1/users/{userID}/plans/active", h.activePlan)
	mux.HandleFunc("POST /v1/plans/conflicts", h.conflicts)
	mux.HandleFunc("GET /v1/users/{userID}/plans/{planID}/adherence", h.adherence)
	mux.HandleFunc("POST /v1/users/{userID}/plans/{planID}/soften", h.soften)
	mux.HandleFunc("POST /v1/users/{userID}/plans/{planID}/enrich", h.enrich)
	mux.HandleFunc("POST /v1/users/{userID}/plans/{planID}/archive", h.archive)
	mux.HandleFunc("PATCH /v1/users/{userID}/plans/{planID}/days/{dayID}", h.updateDay)

	mux.HandleFunc("POST /v1/users/{userID}/chat", h.chatTurn)

	mux.HandleFunc("GET /v1/users/{userID}/strava/link", h.stravaLink)
	mux.HandleFunc("GET /v1/strava/callback", h.stravaCallback)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) weekly(w http.ResponseWriter, r *http.Request) {
	if userID, ok := pathUserID(w, r); ok {
		writeJSON(w, http.StatusOK, h.analytics.Weekly(r.Context(), userID))
	}
}

func (h *Handler) fitness(w http.ResponseWriter, r *http.Request) {
	if userID, ok := pathUserID(w, r); ok {
		writeJSON(w, http.StatusOK, h.analytics.Fitness(r.Context(), userID))
	}
}

func (h *Handler) efficiency(w http.ResponseWriter, r *http.Request) {
	if userID, ok := pathUserID(w, r); ok {
		writeJSON(w, http.StatusOK, h.analytics.Efficiency(r.Context(), userID))
	}
}

func (h *Handler) score(w http.ResponseWriter, r *http.Request) {
	if userID, ok := pathUserID(w, r); ok {
		writeJSON(w, http.StatusOK, h.analytics.RunnerScore(r.Context(), userID))
	}
}

func (h *Handler) predictions(w http.ResponseWriter, r *http.Request) {
	if userID, ok := pathUserID(w, r); ok {
		writeJSON(w, http.StatusOK, h.analytics.Predictions(r.Context(), userID))
	}
}

func (h *Handler) form(w http.ResponseWriter, r *http.Request) {
	if userID, ok := pathUserID(w, r); ok {
		writeJSON(w, http.StatusOK, h.analytics.Form(r.Context(), userID))
	}
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	p, err := h.analytics.Profile(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) generatePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var body PlanRequest
	if !decodeBody(w, r, &body) {
		return
	}
	req, err := body.Request()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	sk, err := h.plans.Generate(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sk)
}

func (h *Handler) activePlan(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	p, err := h.plans.ActivePlan(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) conflicts(w http.ResponseWriter, r *http.Request) {
	var req ConflictsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	primary, err := req.Primary.Goal()
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	var secondary *plan.Goal
	if req.Secondary != nil {
		g, err := req.Secondary.Goal()
		if err != nil {
			h.writeServiceError(w, err)
			return
		}
		secondary = &g
	}
	report, err := h.plans.CheckConflicts(primary, secondary)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) adherence(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	report, err := h.plans.Adherence(r.Context(), userID, r.PathValue("planID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) soften(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	res, err := h.plans.Soften(r.Context(), userID, r.PathValue("planID"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) enrich(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.plans.Enrich(r.Context(), userID, r.PathValue("planID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if err := h.plans.Archive(r.Context(), userID, r.PathValue("planID")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": store.PlanArchived})
}

// UpdateDayRequest is the payload for PATCH .../days/{dayID}.
type UpdateDayRequest struct {
	Status     string `json:"status"`
	ActivityID *int64 `json:"activity_id,omitempty"`
}

func (h *Handler) updateDay(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	dayID, err := strconv.ParseInt(r.PathValue("dayID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "day id must be numeric")
		return
	}
	var req UpdateDayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.plans.UpdateDayStatus(r.Context(), userID, r.PathValue("planID"), dayID, req.Status, req.ActivityID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"day_id": dayID, "status": req.Status})
}

func (h *Handler) chatTurn(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	var req service.ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	resp, err := h.chat.Turn(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stravaLink(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathUserID(w, r)
	if !ok {
		return
	}
	if h.linker == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "strava credentials are not configured")
		return
	}
	u, err := h.linker.AuthCodeURL(userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u})
}

func (h *Handler) stravaCallback(w http.ResponseWriter, r *http.Request) {
	if h.linker == nil {
		writeError(w, http.StatusNotImplemented, "not_configured", "strava credentials are not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "authorization_denied", e)
		return
	}
	if q.Get("code") == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing code parameter")
		return
	}
	userID, err := h.linker.Complete(r.Context(), q.Get("state"), q.Get("code"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "linked": true})
}

func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("userID"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "user id must be a positive integer")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, plan.ErrInvalidGoal),
		errors.Is(err, service.ErrInvalidDayStatus),
		errors.Is(err, service.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, auth.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "queue_full", err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// ErrorBody is the error envelope returned by every endpoint.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes one failure.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorBody{Error: ErrorDetail{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
