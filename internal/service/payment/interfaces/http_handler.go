package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"poscore/internal/pkg/logger"
	"poscore/internal/service/payment/application"
	"poscore/internal/service/payment/domain"
)

// PaymentHandler 封装了 payment 服务的 HTTP 处理器
type PaymentHandler struct {
	service *application.PaymentService
}

// NewPaymentHandler 创建一个新的 HTTP 处理器实例
func NewPaymentHandler(service *application.PaymentService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

// RegisterRoutes 在 ServeMux 上注册所有路由
func (h *PaymentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/payments/initiate", h.handleInitiate)
	mux.HandleFunc("/payments/authorize/", h.handleAuthorize)
	mux.HandleFunc("/payments/confirm/", h.handleConfirm)
	mux.HandleFunc("/payments/", h.handleGet)
	mux.HandleFunc("/payments", h.handleList)
	mux.HandleFunc("/receipts/", h.handleGetReceipt)
	mux.HandleFunc("/admin/erp_queue", h.handleListErpQueue)
	mux.HandleFunc("/admin/force_sync/", h.handleForceSync)
	mux.HandleFunc("/admin/approve/", h.handleApprove)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())
}

func (h *PaymentHandler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	var req application.InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Initiate(ctx, &req)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Result == "exists" {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

type authorizeRequest struct {
	Card domain.CardInfo `json:"card"`
}

func (h *PaymentHandler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	id, ok := pathID(w, r, "/payments/authorize/")
	if !ok {
		return
	}
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Authorize(ctx, id, req.Card)
	if err != nil {
		if errors.Is(err, domain.ErrDeclined) && result != nil {
			// 渠道拒绝也要把原因带给收银端
			writeJSON(w, http.StatusPaymentRequired, result)
			return
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	id, ok := pathID(w, r, "/payments/confirm/")
	if !ok {
		return
	}
	result, err := h.service.Confirm(ctx, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *PaymentHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	id, ok := pathID(w, r, "/payments/")
	if !ok {
		return
	}
	view, err := h.service.Get(ctx, id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PaymentHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	views, err := h.service.List(ctx, limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *PaymentHandler) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	receiptNumber := strings.TrimPrefix(r.URL.Path, "/receipts/")
	if receiptNumber == "" {
		http.Error(w, "receipt number required", http.StatusBadRequest)
		return
	}
	view, err := h.service.GetReceipt(ctx, receiptNumber)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *PaymentHandler) handleListErpQueue(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	entries, err := h.service.ListErpQueue(ctx)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *PaymentHandler) handleForceSync(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	id, ok := pathID(w, r, "/admin/force_sync/")
	if !ok {
		return
	}
	if err := h.service.ForceSync(ctx, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": "forced_sync", "payment_id": id})
}

func (h *PaymentHandler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := extractTraceContext(r)

	id, ok := pathID(w, r, "/admin/approve/")
	if !ok {
		return
	}
	if err := h.service.Approve(ctx, id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": "approved", "payment_id": id})
}

func extractTraceContext(r *http.Request) context.Context {
	propagator := otel.GetTextMapPropagator()
	return propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
}

func pathID(w http.ResponseWriter, r *http.Request, prefix string) (uint64, bool) {
	raw := strings.TrimPrefix(r.URL.Path, prefix)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError 根据错误类型返回不同的 HTTP 状态码
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var statusCode int
	switch {
	case errors.Is(err, domain.ErrPaymentNotFound),
		errors.Is(err, domain.ErrReceiptNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidRequest),
		errors.Is(err, domain.ErrInvalidMode),
		errors.Is(err, domain.ErrAuthorizationNotRequired),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrNotAuthorized),
		errors.Is(err, domain.ErrCartEmpty):
		statusCode = http.StatusBadRequest
	case errors.Is(err, domain.ErrApprovalRequired):
		statusCode = http.StatusForbidden
	case errors.Is(err, domain.ErrDeclined):
		statusCode = http.StatusPaymentRequired
	default:
		statusCode = http.StatusInternalServerError
	}
	logger.Ctx(r.Context()).Warn().Err(err).Int("status", statusCode).Str("path", r.URL.Path).Msg("request failed")
	http.Error(w, err.Error(), statusCode)
}
