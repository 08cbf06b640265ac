package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/honeynil/payment-orchestrator/internal/infrastructure/auth"
	"github.com/honeynil/payment-orchestrator/internal/models"
	service "github.com/honeynil/payment-orchestrator/internal/services"
	pkgerrors "github.com/honeynil/payment-orchestrator/pkg/errors"
)

type Handler struct {
	service service.PaymentService
	now     func() time.Time
}

func NewHandler(s service.PaymentService) *Handler {
	return &Handler{service: s, now: time.Now}
}

var errMalformedBody = errors.New(service.FailureMessage(service.CodeValidation))

type errorResponse struct {
	Error string             `json:"error"`
	Code  service.ResultCode `json:"code,omitempty"`
}

var codeStatus = map[service.ResultCode]int{
	service.CodeOK:                http.StatusOK,
	service.CodeValidation:        http.StatusBadRequest,
	service.CodeUnauthenticated:   http.StatusUnauthorized,
	service.CodeNotFound:          http.StatusNotFound,
	service.CodeConfigUnavailable: http.StatusServiceUnavailable,
	service.CodeInternal:          http.StatusInternalServerError,
	service.CodeRecoveryRejected:  http.StatusConflict,
	service.CodeSecurityBlocked:   http.StatusForbidden,
	service.CodeRecoveryFailed:    http.StatusBadGateway,
	service.CodeRateLimited:       http.StatusTooManyRequests,
}

func httpStatus(code service.ResultCode) int {
	if s, ok := codeStatus[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "method", "writeJSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code service.ResultCode, err error) {
	h.writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// RegisterPublicRoutes mounts the provider browser-redirect callback.
func (h *Handler) RegisterPublicRoutes(r *mux.Router) {
	r.HandleFunc("/api/payments/callback", h.Callback).Methods(http.MethodGet, http.MethodPost)
}

func (h *Handler) RegisterProtectedRoutes(r *mux.Router) {
	r.HandleFunc("/api/payments", h.CreatePayment).Methods(http.MethodPost)
	r.HandleFunc("/api/payments/rate-limit", h.RateLimit).Methods(http.MethodGet)
	r.HandleFunc("/api/payments/recovery/stats", h.RecoveryStats).Methods(http.MethodGet)
	r.HandleFunc("/api/payments/transactions/{id:[0-9]+}/recover", h.Recover).Methods(http.MethodPost)
	r.HandleFunc("/api/payments/transactions/{id:[0-9]+}/risk", h.Risk).Methods(http.MethodGet)
	r.HandleFunc("/api/payments/{paymentID}/verify", h.VerifyPayment).Methods(http.MethodGet)
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, service.CodeUnauthenticated, pkgerrors.ErrUnauthenticated)
		return
	}

	var req service.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("malformed request body", "method", "CreatePayment", "error", err)
		h.writeError(w, http.StatusBadRequest, service.CodeValidation, errMalformedBody)
		return
	}

	limit := h.service.CheckRateLimit(r.Context(), userID, service.DefaultRateLimitAction)
	if !limit.Allowed {
		retryAfter := int(math.Ceil(limit.ResetTime.Sub(h.now()).Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeJSON(w, http.StatusTooManyRequests, service.CreatePaymentResult{
			Code:  service.CodeRateLimited,
			Error: service.FailureMessage(service.CodeRateLimited),
		})
		return
	}

	res := h.service.CreatePayment(r.Context(), req)
	if res.Success {
		h.writeJSON(w, http.StatusCreated, res)
		return
	}
	h.writeJSON(w, httpStatus(res.Code), res)
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	res := h.service.VerifyPayment(r.Context(), mux.Vars(r)["paymentID"])
	h.writeJSON(w, httpStatus(res.Code), res)
}

// Callback accepts the provider redirect. Parameters may arrive in the query
// string or, for POST, as a form body.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("malformed callback form", "method", "Callback", "error", err)
		h.writeError(w, http.StatusBadRequest, service.CodeValidation, errMalformedBody)
		return
	}
	req := service.CallbackRequest{
		ResourceID: strings.TrimSpace(r.Form.Get("resource_id")),
		PaymentID:  strings.TrimSpace(r.Form.Get("payment_id")),
		RawStatus:  strings.TrimSpace(r.Form.Get("status")),
	}
	if req.ResourceID == "" {
		h.writeError(w, http.StatusBadRequest, service.CodeValidation, errors.New("resource_id is required"))
		return
	}

	res := h.service.ProcessCallback(r.Context(), req)
	switch {
	case res.Success:
		h.writeJSON(w, http.StatusOK, res)
	case res.TransactionID == 0 && res.Message == service.MessageResourceNotFound:
		h.writeJSON(w, http.StatusNotFound, res)
	case res.Message == service.MessageLinkMismatch:
		h.writeJSON(w, http.StatusConflict, res)
	default:
		h.writeJSON(w, http.StatusInternalServerError, res)
	}
}

func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	txID, err := transactionID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, service.CodeValidation, err)
		return
	}

	if !h.ownsTransaction(w, r, txID) {
		return
	}

	var req struct {
		Reason models.RecoveryReason `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("malformed request body", "method", "Recover", "error", err)
		h.writeError(w, http.StatusBadRequest, service.CodeValidation, errMalformedBody)
		return
	}

	res := h.service.AttemptRecovery(r.Context(), txID, req.Reason)
	h.writeJSON(w, httpStatus(res.Code), res)
}

func (h *Handler) Risk(w http.ResponseWriter, r *http.Request) {
	txID, err := transactionID(r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, service.CodeValidation, err)
		return
	}

	if !h.ownsTransaction(w, r, txID) {
		return
	}

	analysis, err := h.service.AnalyzeTransaction(r.Context(), txID)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrTransactionNotFound) {
			h.writeError(w, http.StatusNotFound, service.CodeNotFound, pkgerrors.ErrTransactionNotFound)
		} else {
			slog.Error("risk analysis failed", "method", "Risk", "transaction_id", txID, "error", err)
			h.writeError(w, http.StatusInternalServerError, service.CodeInternal, errors.New(service.FailureMessage(service.CodeInternal)))
		}
		return
	}
	h.writeJSON(w, http.StatusOK, analysis)
}

// RateLimit reports the caller's window for an action. The check itself counts
// as a hit.
func (h *Handler) RateLimit(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, service.CodeUnauthenticated, pkgerrors.ErrUnauthenticated)
		return
	}
	action := strings.TrimSpace(r.URL.Query().Get("action"))
	if action == "" {
		action = service.DefaultRateLimitAction
	}
	h.writeJSON(w, http.StatusOK, h.service.CheckRateLimit(r.Context(), userID, action))
}

func (h *Handler) RecoveryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetRecoveryStats(r.Context(), r.URL.Query().Get("window"))
	if err != nil {
		if errors.Is(err, pkgerrors.ErrInvalidWindow) {
			h.writeError(w, http.StatusBadRequest, service.CodeValidation, err)
		} else {
			slog.Error("recovery stats failed", "method", "RecoveryStats", "error", err)
			h.writeError(w, http.StatusInternalServerError, service.CodeInternal, errors.New(service.FailureMessage(service.CodeInternal)))
		}
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// ownsTransaction writes the error response and returns false unless the caller
// created the transaction. Foreign ids answer like unknown ones.
func (h *Handler) ownsTransaction(w http.ResponseWriter, r *http.Request, txID int64) bool {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, service.CodeUnauthenticated, pkgerrors.ErrUnauthenticated)
		return false
	}
	owner, err := h.service.TransactionOwner(r.Context(), txID)
	switch {
	case errors.Is(err, pkgerrors.ErrTransactionNotFound):
	case err != nil:
		slog.Error("failed to load transaction owner", "method", "ownsTransaction", "transaction_id", txID, "error", err)
		h.writeError(w, http.StatusInternalServerError, service.CodeInternal, errors.New(service.FailureMessage(service.CodeInternal)))
		return false
	case owner == userID:
		return true
	default:
		slog.Warn("transaction access denied", "method", "ownsTransaction", "transaction_id", txID, "user_id", userID)
	}
	h.writeError(w, http.StatusNotFound, service.CodeNotFound, pkgerrors.ErrTransactionNotFound)
	return false
}

func transactionID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid transaction id")
	}
	return id, nil
}
