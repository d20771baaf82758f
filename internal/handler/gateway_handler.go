package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"alerto-service/internal/model"
	"alerto-service/internal/service"
	"alerto-service/internal/util"
)

// Identity headers injected by the upstream auth proxy after it verifies
// the caller's session
const (
	headerUserID    = "X-User-ID"
	headerAnonymous = "X-User-Anonymous"
)

// GatewayHandler handles HTTP requests for the action gateway
type GatewayHandler struct {
	gateway *service.GatewayService
	logger  *zap.Logger
}

func NewGatewayHandler(gateway *service.GatewayService, logger *zap.Logger) *GatewayHandler {
	return &GatewayHandler{
		gateway: gateway,
		logger:  logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all gateway routes
func (h *GatewayHandler) RegisterRoutes(router chi.Router) {
	router.Route("/limits", func(r chi.Router) {
		r.Post("/check", h.CheckLimit)
	})

	router.Route("/reports", func(r chi.Router) {
		r.Post("/", h.SubmitReport)
		r.Patch("/{reportID}/verification", h.UpdateVerification)
	})

	router.Route("/notifications", func(r chi.Router) {
		r.Post("/subscriptions", h.Subscribe)
		r.Delete("/subscriptions", h.Unsubscribe)
		r.Post("/broadcast", h.SendBroadcast)
	})
}

// identityFromRequest resolves the caller identity set by the auth proxy.
// A missing user ID yields an unauthenticated identity, rejected in the
// service layer.
func identityFromRequest(r *http.Request) model.Identity {
	anonymous, _ := strconv.ParseBool(r.Header.Get(headerAnonymous))
	return model.Identity{
		UserID:    r.Header.Get(headerUserID),
		Anonymous: anonymous,
	}
}

type checkLimitRequest struct {
	ActionType string `json:"action_type"`
}

// CheckLimit handles the informational rate limit probe
func (h *GatewayHandler) CheckLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req checkLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	decision, err := h.gateway.CheckLimit(ctx, identityFromRequest(r), req.ActionType)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to check rate limit")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(decision, "Rate limit checked"))
	h.logger.Debug("Rate limit checked via HTTP",
		util.String("action_type", req.ActionType),
		util.Bool("allowed", decision.Allowed),
		util.Duration("duration", time.Since(startTime)),
	)
}

// SubmitReport handles rate-limited report submission
func (h *GatewayHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req service.SubmitReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.gateway.SubmitReport(ctx, identityFromRequest(r), &req)
	if err != nil {
		var limitErr *service.RateLimitError
		if errors.As(err, &limitErr) {
			h.respondRateLimited(w, limitErr)
			return
		}
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to submit report")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(result, "Report submitted"))
	h.logger.Info("Report submitted via HTTP",
		util.String("report_id", result.ReportID),
		util.Int("remaining", result.Remaining),
		util.Duration("duration", time.Since(startTime)),
	)
}

type updateVerificationRequest struct {
	Status string `json:"status"`
}

// UpdateVerification handles moderator verification-status transitions
func (h *GatewayHandler) UpdateVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	reportID := chi.URLParam(r, "reportID")

	var req updateVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.gateway.UpdateVerification(ctx, identityFromRequest(r), reportID, req.Status)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to update verification status")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Verification status updated"))
	h.logger.Info("Verification updated via HTTP",
		util.String("report_id", reportID),
		util.String("status", req.Status),
		util.Bool("changed", result.Changed),
		util.Duration("duration", time.Since(startTime)),
	)
}

type subscriptionRequest struct {
	Token string `json:"token"`
	Topic string `json:"topic"`
}

// Subscribe handles topic subscription
func (h *GatewayHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.gateway.Subscribe(ctx, identityFromRequest(r), req.Token, req.Topic)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to subscribe to notifications")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Subscribed"))
}

// Unsubscribe handles topic unsubscription
func (h *GatewayHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.gateway.Unsubscribe(ctx, identityFromRequest(r), req.Token, req.Topic)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to unsubscribe from notifications")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Unsubscribed"))
}

type broadcastRequest struct {
	Title        string `json:"title"`
	Body         string `json:"body"`
	Municipality string `json:"municipality"`
}

// SendBroadcast handles admin alerts
func (h *GatewayHandler) SendBroadcast(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.gateway.SendBroadcast(ctx, identityFromRequest(r), req.Title, req.Body, req.Municipality)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to send alert")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(result, "Alert sent"))
	h.logger.Info("Admin alert sent via HTTP",
		util.String("message_id", result.MessageID),
		util.String("municipality", req.Municipality),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *GatewayHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *GatewayHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// respondRateLimited always carries the retry hint so the client can render
// a countdown rather than a generic failure
func (h *GatewayHandler) respondRateLimited(w http.ResponseWriter, limitErr *service.RateLimitError) {
	retryAfter := limitErr.ResetTimeMs / 1000
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))

	resp := errorResponse(limitErr, "Rate limit exceeded")
	resp.Data = map[string]interface{}{
		"allowed":       false,
		"reset_time_ms": limitErr.ResetTimeMs,
		"max_attempts":  limitErr.MaxAttempts,
	}
	h.respondWithJSON(w, http.StatusTooManyRequests, resp)
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *GatewayHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrReportNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
